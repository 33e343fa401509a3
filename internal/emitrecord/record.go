// Package emitrecord defines the wire shape the scheduler hands to sinks:
// {event_type, timestamp, payload} (spec.md §4.8).
package emitrecord

import (
	"time"

	"github.com/resink-ai/resinker/internal/ordered"
)

// Record is one emitted event, ready for sink fan-out.
type Record struct {
	EventType string
	Timestamp time.Time
	Payload   *ordered.Map
}
