package scenario

import (
	"math/rand"
	"testing"
	"time"

	"github.com/resink-ai/resinker/internal/entitystore"
	"github.com/resink-ai/resinker/internal/specdef"
)

func twoStepScenario() *specdef.Scenario {
	return &specdef.Scenario{
		Name: "Checkout",
		Steps: []specdef.ScenarioStep{
			{EventType: "AddToCart"},
			{EventType: "Purchase", DelayAfterPrev: &specdef.ScenarioStepDelay{MinSeconds: 10, MaxSeconds: 20}},
		},
	}
}

func TestRunAdvancesThroughSteps(t *testing.T) {
	scenario := twoStepScenario()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	run := NewRun("Checkout", now, nil)
	rng := rand.New(rand.NewSource(1))

	step, ok := run.CurrentStep(scenario)
	if !ok || step.EventType != "AddToCart" {
		t.Fatalf("expected first step AddToCart, got %+v ok=%v", step, ok)
	}

	run.Advance(scenario, now, rng)
	if run.Done(scenario) {
		t.Fatal("run should not be done after one of two steps")
	}
	step, ok = run.CurrentStep(scenario)
	if !ok || step.EventType != "Purchase" {
		t.Fatalf("expected second step Purchase, got %+v ok=%v", step, ok)
	}
	if run.PendingWakeupTime.Before(now.Add(10 * time.Second)) {
		t.Fatalf("pending wakeup %v should be at least 10s after %v", run.PendingWakeupTime, now)
	}
	if run.PendingWakeupTime.After(now.Add(20 * time.Second)) {
		t.Fatalf("pending wakeup %v should be at most 20s after %v", run.PendingWakeupTime, now)
	}

	run.Advance(scenario, run.PendingWakeupTime, rng)
	if !run.Done(scenario) {
		t.Fatal("run should be done after both steps")
	}
}

func TestLoopStepRepeatsWithinBounds(t *testing.T) {
	scenario := &specdef.Scenario{
		Name: "Browsing",
		Steps: []specdef.ScenarioStep{
			{EventType: "ViewProduct", Loop: &specdef.ScenarioStepLoop{
				MinCount: 2, MaxCount: 2,
				DelayBetweenLoops: specdef.ScenarioStepDelay{MinSeconds: 1, MaxSeconds: 1},
			}},
			{EventType: "Checkout"},
		},
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	run := NewRun("Browsing", now, nil)
	rng := rand.New(rand.NewSource(1))

	run.Advance(scenario, now, rng) // first loop iteration completes
	if run.StepIndex != 0 {
		t.Fatalf("expected to stay on step 0 mid-loop, got step %d", run.StepIndex)
	}
	run.Advance(scenario, run.PendingWakeupTime, rng) // second (and final, min=max=2) iteration
	if run.StepIndex != 1 {
		t.Fatalf("expected to move to step 1 after loop target reached, got step %d", run.StepIndex)
	}
}

func TestReadyRespectsPendingWakeup(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	run := NewRun("Checkout", now, nil)
	run.PendingWakeupTime = now.Add(5 * time.Second)
	if run.Ready(now) {
		t.Fatal("run should not be ready before its pending wakeup time")
	}
	if !run.Ready(now.Add(5 * time.Second)) {
		t.Fatal("run should be ready exactly at its pending wakeup time")
	}
}

func TestMergeBindingPrefersCaptured(t *testing.T) {
	capturedInst := &entitystore.Instance{Kind: "User", PrimaryKeyValue: "captured"}
	freshInst := &entitystore.Instance{Kind: "User", PrimaryKeyValue: "fresh"}
	freshOnlyInst := &entitystore.Instance{Kind: "Product", PrimaryKeyValue: "fresh-only"}

	merged := MergeBinding(
		map[string]*entitystore.Instance{"buyer": capturedInst},
		map[string]*entitystore.Instance{"buyer": freshInst, "product": freshOnlyInst},
	)
	if merged["buyer"] != capturedInst {
		t.Fatal("expected captured binding to win for a matching alias")
	}
	if merged["product"] != freshOnlyInst {
		t.Fatal("expected the freshly resolved binding to fill a non-matching alias")
	}
}
