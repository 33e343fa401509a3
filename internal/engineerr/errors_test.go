package engineerr

import (
	"errors"
	"testing"
)

func TestEngineErrorFormatting(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(CodeGeneratorFault, "generator fault", base).
		WithDetail("event_type", "UserRegistered").
		WithDetail("field_path", "payload.total_amount")

	if err.Code != CodeGeneratorFault {
		t.Fatalf("Code = %v, want %v", err.Code, CodeGeneratorFault)
	}
	if !errors.Is(err, base) {
		t.Fatalf("errors.Is should see through to wrapped cause")
	}
	if err.Details["event_type"] != "UserRegistered" {
		t.Fatalf("Details[event_type] = %v", err.Details["event_type"])
	}
	wantMsg := "[GENERATOR_FAULT] generator fault: boom"
	if err.Error() != wantMsg {
		t.Fatalf("Error() = %q, want %q", err.Error(), wantMsg)
	}
}

func TestGeneratorFaultHelper(t *testing.T) {
	err := GeneratorFault("PurchaseMade", "payload.items[0].price", errors.New("unknown field"))
	if err.Details["event_type"] != "PurchaseMade" {
		t.Fatalf("missing event_type detail")
	}
	if err.Details["field_path"] != "payload.items[0].price" {
		t.Fatalf("missing field_path detail")
	}
}

func TestNewHasNoCause(t *testing.T) {
	err := New(CodeStarved, "no feasible event for too long")
	if err.Unwrap() != nil {
		t.Fatalf("expected nil cause for New()")
	}
	if err.Error() != "[STARVED] no feasible event for too long" {
		t.Fatalf("Error() = %q", err.Error())
	}
}
