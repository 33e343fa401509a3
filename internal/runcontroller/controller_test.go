package runcontroller

import (
	"context"
	"io"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/resink-ai/resinker/internal/emitrecord"
	"github.com/resink-ai/resinker/internal/enginelog"
	"github.com/resink-ai/resinker/internal/entitystore"
	"github.com/resink-ai/resinker/internal/generator/fakerdefault"
	"github.com/resink-ai/resinker/internal/prngstream"
	"github.com/resink-ai/resinker/internal/scheduler"
	"github.com/resink-ai/resinker/internal/simclock"
	"github.com/resink-ai/resinker/internal/specdef"
)

type discardEmitter struct{ count int }

func (d *discardEmitter) Emit(rec emitrecord.Record) { d.count++ }

func quietLogger() *enginelog.Logger {
	l := enginelog.NewDefault("runcontroller-test")
	l.SetOutput(io.Discard)
	return l
}

// noWorkDoc declares no entities, event types, or scenarios, so every tick
// is starved. starvationBound controls how many starved ticks the
// scheduler tolerates before giving up on its own (ReasonStarved),
// independent of any signal.
func noWorkDoc(starvationBound int) *specdef.Document {
	return &specdef.Document{
		Schemas:    map[string]*specdef.SchemaNode{},
		Entities:   map[string]*specdef.Entity{},
		EventTypes: map[string]*specdef.EventType{},
		Scenarios:  map[string]*specdef.Scenario{},
		SimulationSettings: specdef.SimulationSettings{
			DefaultInterEventStep: time.Nanosecond,
			StarvationTickBound:   starvationBound,
		},
	}
}

func newTestScheduler(doc *specdef.Document) *scheduler.Scheduler {
	store := entitystore.New()
	clock := simclock.New(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 1.0)
	prng := prngstream.New(1)
	return scheduler.New(doc, store, clock, prng, fakerdefault.New(1), &discardEmitter{}, nil, nil)
}

func TestRunCompletesWithoutSignalWhenSchedulerFinishesOnItsOwn(t *testing.T) {
	doc := noWorkDoc(3)
	sched := newTestScheduler(doc)
	c := New(sched, nil, quietLogger(), "@every 1h", nil)

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TerminationReason != string(scheduler.ReasonStarved) {
		t.Fatalf("expected starved termination, got %q", result.TerminationReason)
	}
}

func TestRunMapsCanceledPlusSignalToSignalReason(t *testing.T) {
	doc := noWorkDoc(1_000_000_000)
	sched := newTestScheduler(doc)
	c := New(sched, nil, quietLogger(), "@every 1h", nil)

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := c.Run(context.Background())
		done <- outcome{result, err}
	}()

	// Let the scheduler spin through a handful of starved ticks before
	// delivering the signal the controller is listening for.
	time.Sleep(10 * time.Millisecond)
	if err := syscall.Kill(os.Getpid(), syscall.SIGINT); err != nil {
		t.Fatalf("unexpected error sending signal: %v", err)
	}

	select {
	case o := <-done:
		if o.err != nil {
			t.Fatalf("unexpected error: %v", o.err)
		}
		if o.result.TerminationReason != "signal" {
			t.Fatalf("expected signal termination reason, got %q", o.result.TerminationReason)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Run to observe the signal")
	}
}

func TestRunLeavesCanceledReasonUntouchedWithoutASignal(t *testing.T) {
	doc := noWorkDoc(1_000_000_000)
	sched := newTestScheduler(doc)
	c := New(sched, nil, quietLogger(), "@every 1h", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := c.Run(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TerminationReason != string(scheduler.ReasonCanceled) {
		t.Fatalf("expected canceled termination reason, got %q", result.TerminationReason)
	}
}

func TestHeartbeatReadsLiveEmittedCountDuringTheRun(t *testing.T) {
	doc := noWorkDoc(1_000_000_000)
	sched := newTestScheduler(doc)

	seen := make(chan int, 1)
	c := New(sched, nil, quietLogger(), "@every 1h", func() map[string]interface{} {
		return map[string]interface{}{"probe": true}
	})

	// logHeartbeat is what the cron job invokes; calling it directly
	// exercises the same live scheduler.EmittedCount() read without
	// waiting on real wall-clock cron scheduling.
	c.logHeartbeat(time.Now())
	seen <- sched.EmittedCount()
	if got := <-seen; got != 0 {
		t.Fatalf("expected 0 events emitted from a doc with no event types, got %d", got)
	}
}
