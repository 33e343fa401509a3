package expr

import "testing"

func evalOrFatal(t *testing.T, src string, fields map[string]interface{}) float64 {
	t.Helper()
	x, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", src, err)
	}
	v, err := x.Eval(fields)
	if err != nil {
		t.Fatalf("Eval(%q) error: %v", src, err)
	}
	return v
}

func TestArithmetic(t *testing.T) {
	got := evalOrFatal(t, "unit_price * quantity + 2", map[string]interface{}{
		"unit_price": 10.0,
		"quantity":   3.0,
	})
	if got != 32 {
		t.Fatalf("got %v, want 32", got)
	}
}

func TestPrecedenceAndParens(t *testing.T) {
	got := evalOrFatal(t, "(a + b) * 2", map[string]interface{}{"a": 1.0, "b": 2.0})
	if got != 6 {
		t.Fatalf("got %v, want 6", got)
	}
}

func TestSumAggregate(t *testing.T) {
	fields := map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"unit_price": 10.0, "quantity": 2.0},
			map[string]interface{}{"unit_price": 5.0, "quantity": 4.0},
		},
	}
	got := evalOrFatal(t, "sum(item['unit_price'] * item['quantity'] for item in items)", fields)
	if got != 40 {
		t.Fatalf("got %v, want 40", got)
	}
}

func TestProductAggregate(t *testing.T) {
	fields := map[string]interface{}{
		"factors": []interface{}{
			map[string]interface{}{"v": 2.0},
			map[string]interface{}{"v": 3.0},
			map[string]interface{}{"v": 4.0},
		},
	}
	got := evalOrFatal(t, "product(item['v'] for item in factors)", fields)
	if got != 24 {
		t.Fatalf("got %v, want 24", got)
	}
}

func TestUndefinedFieldIsAnError(t *testing.T) {
	x, err := Parse("missing_field + 1")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if _, err := x.Eval(map[string]interface{}{}); err == nil {
		t.Fatal("expected an error referencing a field absent from current_payload_partial")
	}
}

func TestItemIndexOutsideAggregateIsAnError(t *testing.T) {
	x, err := Parse("item['v']")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if _, err := x.Eval(map[string]interface{}{}); err == nil {
		t.Fatal("expected an error for item[...] used outside an aggregate")
	}
}

func TestRejectsOutsideGrammar(t *testing.T) {
	cases := []string{
		"a && b",
		"1 == 2",
		"foo.bar()",
		"`template`",
	}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Fatalf("expected Parse(%q) to fail, it did not", c)
		}
	}
}
