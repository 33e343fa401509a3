package entitystore

import (
	"errors"
	"testing"
	"time"

	"github.com/resink-ai/resinker/internal/ordered"
	"github.com/resink-ai/resinker/internal/specdef"
)

func newUser(id string, loggedIn bool) *Instance {
	p := ordered.New()
	p.Set("user_id", id)
	p.Set("email", id+"@example.com")
	return &Instance{
		Kind:            "User",
		PrimaryKeyValue: id,
		Payload:         p,
		State:           map[string]interface{}{"is_logged_in": loggedIn},
		CreatedAt:       time.Now(),
		LastUpdatedAt:   time.Now(),
	}
}

func TestInsertRejectsDuplicatePrimaryKey(t *testing.T) {
	s := New()
	if err := s.Insert(newUser("u1", false)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := s.Insert(newUser("u1", false))
	if err == nil {
		t.Fatal("expected duplicate primary key error")
	}
	if _, ok := err.(*ErrPrimaryKeyCollision); !ok {
		t.Fatalf("expected *ErrPrimaryKeyCollision, got %T", err)
	}
}

func TestSelectHonorsStateFilter(t *testing.T) {
	s := New()
	must(t, s.Insert(newUser("u1", false)))
	must(t, s.Insert(newUser("u2", true)))
	must(t, s.Insert(newUser("u3", false)))

	filter := specdef.SelectionFilter{Clauses: []specdef.FilterClause{
		{Field: "state.is_logged_in", Operator: specdef.OpEquals, Value: false},
	}}
	matches, err := s.Select("User", filter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	for _, m := range matches {
		if m.PrimaryKeyValue != "u1" && m.PrimaryKeyValue != "u3" {
			t.Fatalf("unexpected match %v", m.PrimaryKeyValue)
		}
	}
}

func TestSelectHonorsPayloadFilter(t *testing.T) {
	s := New()
	must(t, s.Insert(newUser("u1", false)))
	must(t, s.Insert(newUser("u2", false)))

	filter := specdef.SelectionFilter{Clauses: []specdef.FilterClause{
		{Field: "payload.email", Operator: specdef.OpEquals, Value: "u2@example.com"},
	}}
	matches, err := s.Select("User", filter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 || matches[0].PrimaryKeyValue != "u2" {
		t.Fatalf("expected exactly u2, got %v", matches)
	}
}

func TestUpdateRollsBackOnMutatorError(t *testing.T) {
	s := New()
	must(t, s.Insert(newUser("u1", false)))

	err := s.Update("User", "u1", func(inst *Instance) error {
		inst.State["is_logged_in"] = true
		return errFail
	})
	if err == nil {
		t.Fatal("expected mutator error to propagate")
	}

	inst, _ := s.Get("User", "u1")
	if inst.State["is_logged_in"] != false {
		t.Fatalf("state should be unchanged after a failed mutator, got %v", inst.State["is_logged_in"])
	}
}

func TestCountWhere(t *testing.T) {
	s := New()
	must(t, s.Insert(newUser("u1", true)))
	must(t, s.Insert(newUser("u2", true)))
	must(t, s.Insert(newUser("u3", false)))

	if got := s.CountWhere("User", "is_logged_in", true); got != 2 {
		t.Fatalf("CountWhere = %d, want 2", got)
	}
}

func TestSelectOrderIsInsertionOrder(t *testing.T) {
	s := New()
	must(t, s.Insert(newUser("u3", false)))
	must(t, s.Insert(newUser("u1", false)))
	must(t, s.Insert(newUser("u2", false)))

	matches, err := s.Select("User", specdef.SelectionFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"u3", "u1", "u2"}
	for i, pk := range want {
		if matches[i].PrimaryKeyValue != pk {
			t.Fatalf("position %d: got %v, want %v", i, matches[i].PrimaryKeyValue, pk)
		}
	}
}

var errFail = errors.New("forced failure")

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
