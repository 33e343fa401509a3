package entitystore

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// FieldValue resolves a selection-filter or from_entity field reference
// against an instance's payload or state, per spec.md §4.4: "state.<name>"
// resolves against the state map, "payload.<path>" (or a bare name)
// resolves against the payload.
//
// Payload lookups go through tidwall/gjson the same way the teacher's
// services/requests/marble/dispatcher.go and services/datafeed extract a
// configured JSON path out of an arbitrary response body — here the
// "response body" is the instance's own JSON-marshaled payload, which lets
// "items.0.unit_price"-style nested paths resolve without the engine
// hand-rolling its own map/slice walker.
func FieldValue(inst *Instance, field string) (interface{}, bool) {
	switch {
	case strings.HasPrefix(field, "state."):
		name := strings.TrimPrefix(field, "state.")
		v, ok := inst.State[name]
		return v, ok
	case strings.HasPrefix(field, "payload."):
		path := strings.TrimPrefix(field, "payload.")
		return payloadGJSON(inst, path)
	default:
		return payloadGJSON(inst, field)
	}
}

func payloadGJSON(inst *Instance, path string) (interface{}, bool) {
	if inst.Payload == nil {
		return nil, false
	}
	raw, err := json.Marshal(inst.Payload)
	if err != nil {
		return nil, false
	}
	result := gjson.GetBytes(raw, path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}
