package mutation

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/resink-ai/resinker/internal/ordered"
)

// payloadField resolves a dotted/indexed path against a not-yet-stored
// generated payload, the same way internal/entitystore/fieldpath.go
// resolves paths against an already-stored instance's payload.
func payloadField(payload *ordered.Map, path string) (interface{}, bool) {
	if payload == nil {
		return nil, false
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, false
	}
	result := gjson.GetBytes(raw, path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
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
