// Package simclock implements the engine's synthetic simulation clock
// (spec.md §4.1): a monotonic timestamp that never moves backward,
// advanced by the scheduler between ticks and read (without advancing) by
// the current_timestamp generator.
package simclock

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Clock is the engine's single-threaded synthetic time source, guarded by
// a mutex only so the diagnostics server can read it concurrently for
// /stats without racing the scheduler (spec.md §5: the store/clock are
// exclusively mutated by the scheduler; this is a read-only exception).
type Clock struct {
	mu         sync.Mutex
	now        time.Time
	multiplier float64
}

// New starts a clock at startTime with the given reporting multiplier.
// multiplier is stored and applied only by ReportedDelta; the
// current_timestamp generator reads Now() unscaled and scenario-delay
// sampling does not use it either. It never gates the scheduler's actual
// throughput (spec.md §4.1).
func New(startTime time.Time, multiplier float64) *Clock {
	if multiplier <= 0 {
		multiplier = 1.0
	}
	return &Clock{now: startTime, multiplier: multiplier}
}

// ResolveStartTime implements "now" vs an absolute RFC3339 timestamp,
// resolved once at run start (spec.md §3 Runtime / §4.1).
func ResolveStartTime(spec string) (time.Time, error) {
	if spec == "" || spec == "now" {
		return time.Now().UTC(), nil
	}
	return time.Parse(time.RFC3339, spec)
}

// Now returns the current synthetic timestamp without advancing it.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by delta. delta must be non-negative;
// the clock never moves backward (spec.md §4.1).
func (c *Clock) Advance(delta time.Duration) {
	if delta < 0 {
		delta = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(delta)
}

// Multiplier returns the configured time_multiplier.
func (c *Clock) Multiplier() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.multiplier
}

// ReportedDelta scales delta by the configured multiplier for generators
// that report elapsed synthetic time (distinct from the clock's own
// internal advance, which is never scaled — see package doc).
func (c *Clock) ReportedDelta(delta time.Duration) time.Duration {
	return time.Duration(float64(delta) * c.Multiplier())
}

// Throttle optionally paces ticks against wall-clock time using
// golang.org/x/time/rate, for callers who opt into real-time pacing
// despite spec.md §1's "time_multiplier is advisory" Non-goal. Disabled
// (nil-safe) by default.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle builds a Throttle emitting at most eventsPerSecond ticks per
// second. eventsPerSecond <= 0 disables pacing (Wait becomes a no-op).
func NewThrottle(eventsPerSecond float64) *Throttle {
	if eventsPerSecond <= 0 {
		return &Throttle{}
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Limit(eventsPerSecond), 1)}
}

// Wait blocks until the next tick is permitted, or ctx is canceled.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil || t.limiter == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}
