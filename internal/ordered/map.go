// Package ordered provides a minimal insertion-ordered string-keyed map
// used everywhere the engine must preserve spec-declared field order:
// generated payload objects (spec.md §4.3: "fields are emitted in
// spec-declared order") and json_pretty sink output (spec.md §6:
// "sorted-or-declared key order... implementers must pick one and keep it
// stable"). Resinker picks declared order.
package ordered

import (
	"bytes"
	"encoding/json"
)

// Map is an insertion-ordered string-keyed map that marshals to JSON in
// insertion order instead of Go's default sorted-by-key map marshaling.
type Map struct {
	keys   []string
	values map[string]interface{}
}

// New returns an empty ordered Map.
func New() *Map {
	return &Map{values: map[string]interface{}{}}
}

// Set assigns key to value, appending key to the order if it is new.
func (m *Map) Set(key string, value interface{}) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value at key and whether it was present.
func (m *Map) Get(key string) (interface{}, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return len(m.keys)
}

// ToMap returns a plain (unordered) map[string]interface{} copy, for
// callers that only need value lookups and not order (e.g. entity state
// attribute maps).
func (m *Map) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// MarshalJSON renders the map as a JSON object in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalIndentJSON renders the map with two-space indentation, preserving
// insertion order, for the json_pretty sink format (spec.md §6).
func (m *Map) MarshalIndentJSON() ([]byte, error) {
	raw, err := m.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return nil, err
	}
	return pretty.Bytes(), nil
}
