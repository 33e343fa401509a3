package entitystore

import (
	"reflect"

	"github.com/resink-ai/resinker/internal/specdef"
)

// MatchesFilter evaluates a selection filter's conjunction of clauses
// against an instance (spec.md §4.4). A type mismatch on an individual
// clause is not fatal — the instance simply fails that clause, per
// spec.md §4.4: "Type mismatches during filtering are not fatal."
func MatchesFilter(inst *Instance, filter specdef.SelectionFilter) (bool, error) {
	for _, clause := range filter.Clauses {
		ok, err := matchesClause(inst, clause)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchesClause(inst *Instance, clause specdef.FilterClause) (bool, error) {
	actual, found := FieldValue(inst, clause.Field)

	switch clause.Operator {
	case specdef.OpEquals:
		return found && deepEqual(actual, clause.Value), nil
	case specdef.OpNotEquals:
		return !found || !deepEqual(actual, clause.Value), nil
	case specdef.OpGreaterThan, specdef.OpLessThan, specdef.OpGreaterOrEq, specdef.OpLessOrEqual:
		if !found {
			return false, nil
		}
		af, aok := toFloat(actual)
		bf, bok := toFloat(clause.Value)
		if !aok || !bok {
			return false, nil // type mismatch: clause simply fails
		}
		switch clause.Operator {
		case specdef.OpGreaterThan:
			return af > bf, nil
		case specdef.OpLessThan:
			return af < bf, nil
		case specdef.OpGreaterOrEq:
			return af >= bf, nil
		case specdef.OpLessOrEqual:
			return af <= bf, nil
		}
	case specdef.OpIn:
		if !found {
			return false, nil
		}
		list, ok := clause.Value.([]interface{})
		if !ok {
			return false, nil
		}
		for _, v := range list {
			if deepEqual(actual, v) {
				return true, nil
			}
		}
		return false, nil
	case specdef.OpNotIn:
		if !found {
			return true, nil
		}
		list, ok := clause.Value.([]interface{})
		if !ok {
			return false, nil
		}
		for _, v := range list {
			if deepEqual(actual, v) {
				return false, nil
			}
		}
		return true, nil
	}
	return false, nil
}

func deepEqual(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
