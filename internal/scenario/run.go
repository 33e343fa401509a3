// Package scenario implements the scenario run state machine (spec.md
// §3 Runtime "Scenario run" and §4.6 step 8): step_index, binding_context,
// pending_wakeup_time, and loop_counters for one in-flight multi-step
// journey.
package scenario

import (
	"math/rand"
	"time"

	"github.com/resink-ai/resinker/internal/entitystore"
	"github.com/resink-ai/resinker/internal/specdef"
)

// loopState tracks an in-progress loop step's sampled target and how many
// repetitions have completed so far.
type loopState struct {
	target    int
	completed int
}

// Run is one active scenario run.
type Run struct {
	ScenarioName      string
	StepIndex         int
	Binding           map[string]*entitystore.Instance
	PendingWakeupTime time.Time

	loopCounters map[int]*loopState
}

// NewRun creates a scenario run at step 0, immediately eligible (no
// pending wakeup delay before its first step).
func NewRun(scenarioName string, now time.Time, binding map[string]*entitystore.Instance) *Run {
	return &Run{
		ScenarioName:      scenarioName,
		StepIndex:         0,
		Binding:           binding,
		PendingWakeupTime: now,
		loopCounters:      map[int]*loopState{},
	}
}

// Ready reports whether the run's next step is eligible to be considered
// for this tick (spec.md §4.6 step 3: "next pending step of each active
// scenario whose wakeup time <= clock").
func (r *Run) Ready(now time.Time) bool {
	return !r.PendingWakeupTime.After(now)
}

// CurrentStep returns the step this run is waiting on, or ok=false if the
// run has already completed every step.
func (r *Run) CurrentStep(scenario *specdef.Scenario) (*specdef.ScenarioStep, bool) {
	if r.StepIndex >= len(scenario.Steps) {
		return nil, false
	}
	return &scenario.Steps[r.StepIndex], true
}

// Done reports whether every step has been executed.
func (r *Run) Done(scenario *specdef.Scenario) bool {
	return r.StepIndex >= len(scenario.Steps)
}

// Advance moves the run forward after its current step has been executed
// (spec.md §4.6 step 8): if the step declares a loop and the sampled
// target repetition count hasn't been reached, the run stays on the same
// step_index and its loop counter increments; otherwise it moves to the
// next step. A delay_after_previous_step (or delay_between_loops, for a
// repeating step) sets the next pending_wakeup_time by sampling
// U(min_seconds, max_seconds) from rng.
func (r *Run) Advance(scenario *specdef.Scenario, now time.Time, rng *rand.Rand) {
	step := scenario.Steps[r.StepIndex]

	if step.Loop != nil {
		ls := r.loopCounters[r.StepIndex]
		if ls == nil {
			ls = &loopState{target: sampleLoopCount(step.Loop, rng)}
			r.loopCounters[r.StepIndex] = ls
		}
		ls.completed++
		if ls.completed < ls.target {
			r.PendingWakeupTime = applyDelay(now, &step.Loop.DelayBetweenLoops, rng)
			return
		}
		delete(r.loopCounters, r.StepIndex)
	}

	r.StepIndex++
	if r.StepIndex >= len(scenario.Steps) {
		return
	}
	next := scenario.Steps[r.StepIndex]
	if next.DelayAfterPrev != nil {
		r.PendingWakeupTime = applyDelay(now, next.DelayAfterPrev, rng)
	} else {
		r.PendingWakeupTime = now
	}
}

func sampleLoopCount(loop *specdef.ScenarioStepLoop, rng *rand.Rand) int {
	if loop.MaxCount <= loop.MinCount {
		return loop.MinCount
	}
	return loop.MinCount + rng.Intn(loop.MaxCount-loop.MinCount+1)
}

func applyDelay(now time.Time, delay *specdef.ScenarioStepDelay, rng *rand.Rand) time.Time {
	if delay == nil {
		return now
	}
	span := delay.MaxSeconds - delay.MinSeconds
	seconds := delay.MinSeconds
	if span > 0 {
		seconds += rng.Float64() * span
	}
	return now.Add(time.Duration(seconds * float64(time.Second)))
}

// MergeBinding builds the binding for one step's generate-and-commit,
// reusing the run's captured binding_context wherever an alias matches
// and falling back to freshly resolved candidates otherwise (spec.md
// §4.6 step 6: "reusing scenario-captured bindings where alias names
// match; otherwise resolve fresh").
func MergeBinding(captured, fresh map[string]*entitystore.Instance) map[string]*entitystore.Instance {
	merged := make(map[string]*entitystore.Instance, len(captured)+len(fresh))
	for k, v := range fresh {
		merged[k] = v
	}
	for k, v := range captured {
		merged[k] = v
	}
	return merged
}
