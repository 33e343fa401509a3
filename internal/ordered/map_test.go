package ordered

import (
	"encoding/json"
	"testing"
)

func TestSetPreservesInsertionOrderAcrossOverwrites(t *testing.T) {
	m := New()
	m.Set("b", 1)
	m.Set("a", 2)
	m.Set("b", 3) // overwrite, must not move in key order

	if got := m.Keys(); len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("expected key order [b a], got %v", got)
	}
	if v, ok := m.Get("b"); !ok || v != 3 {
		t.Fatalf("expected overwritten value 3, got %v ok=%v", v, ok)
	}
	if m.Len() != 2 {
		t.Fatalf("expected length 2, got %d", m.Len())
	}
}

func TestMarshalJSONEmitsInsertionOrder(t *testing.T) {
	m := New()
	m.Set("zebra", 1)
	m.Set("apple", 2)

	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"zebra":1,"apple":2}`
	if string(raw) != want {
		t.Fatalf("expected %s, got %s", want, raw)
	}
}

func TestMarshalIndentJSONIsValidAndOrdered(t *testing.T) {
	m := New()
	m.Set("first", "x")
	m.Set("second", "y")

	raw, err := m.MarshalIndentJSON()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("expected valid JSON, got error: %v", err)
	}
	if decoded["first"] != "x" || decoded["second"] != "y" {
		t.Fatalf("unexpected decoded content: %v", decoded)
	}
	firstIdx := indexOfSubstr(string(raw), `"first"`)
	secondIdx := indexOfSubstr(string(raw), `"second"`)
	if firstIdx < 0 || secondIdx < 0 || firstIdx > secondIdx {
		t.Fatalf("expected 'first' before 'second' in indented output, got:\n%s", raw)
	}
}

func TestToMapReturnsAllEntries(t *testing.T) {
	m := New()
	m.Set("x", 1)
	m.Set("y", 2)

	plain := m.ToMap()
	if len(plain) != 2 || plain["x"] != 1 || plain["y"] != 2 {
		t.Fatalf("unexpected plain map: %v", plain)
	}
}

func indexOfSubstr(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
