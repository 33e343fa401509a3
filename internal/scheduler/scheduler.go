// Package scheduler implements the engine's tick loop (spec.md §4.6):
// scenario initiation, candidate pooling across active scenarios and
// stand-alone event types, feasibility filtering, weighted pick,
// generate, commit, and advance.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/resink-ai/resinker/internal/emitrecord"
	"github.com/resink-ai/resinker/internal/engineerr"
	"github.com/resink-ai/resinker/internal/enginelog"
	"github.com/resink-ai/resinker/internal/enginemetrics"
	"github.com/resink-ai/resinker/internal/entitystore"
	"github.com/resink-ai/resinker/internal/generator"
	"github.com/resink-ai/resinker/internal/mutation"
	"github.com/resink-ai/resinker/internal/ordered"
	"github.com/resink-ai/resinker/internal/prngstream"
	"github.com/resink-ai/resinker/internal/resolver"
	"github.com/resink-ai/resinker/internal/scenario"
	"github.com/resink-ai/resinker/internal/simclock"
	"github.com/resink-ai/resinker/internal/specdef"
)

// Emitter receives every committed record for sink fan-out.
type Emitter interface {
	Emit(rec emitrecord.Record)
}

// scenarioInitiationFallbackWeight is used as the "do nothing" slot's
// weight (spec.md §4.6 step 2) when every declared scenario has a zero
// initiation_weight, so the roulette always has a positive total.
const scenarioInitiationFallbackWeight = 1.0

// Scheduler drives one simulation run's tick loop.
type Scheduler struct {
	doc       *specdef.Document
	store     *entitystore.Store
	clock     *simclock.Clock
	prng      *prngstream.Streams
	realistic generator.RealisticProvider
	emitter   Emitter
	metrics   *enginemetrics.Metrics
	logger    *enginelog.Logger

	activeRuns              []*scenario.Run
	emittedCount            int
	consecutiveStarvedTicks int
	startWall               time.Time

	// liveEmittedCount mirrors emittedCount for readers outside the tick
	// loop's single goroutine (the run controller's heartbeat, the
	// diagnostics /stats endpoint). emittedCount itself stays a plain int
	// since the tick loop that owns it never needs atomics.
	liveEmittedCount atomic.Int64
}

// New constructs a Scheduler ready to run doc.
func New(doc *specdef.Document, store *entitystore.Store, clock *simclock.Clock, prng *prngstream.Streams, realistic generator.RealisticProvider, emitter Emitter, metrics *enginemetrics.Metrics, logger *enginelog.Logger) *Scheduler {
	return &Scheduler{
		doc:       doc,
		store:     store,
		clock:     clock,
		prng:      prng,
		realistic: realistic,
		emitter:   emitter,
		metrics:   metrics,
		logger:    logger,
	}
}

// TerminationReason is the closed set of reasons a run stops.
type TerminationReason string

const (
	ReasonCompleted TerminationReason = "completed"
	ReasonStarved   TerminationReason = "starved"
	ReasonCanceled  TerminationReason = "canceled"
)

// EmittedCount returns the number of events committed so far. Safe to call
// from any goroutine while Run is in progress, unlike reading the run
// result (only available once Run returns).
func (s *Scheduler) EmittedCount() int {
	return int(s.liveEmittedCount.Load())
}

// RunResult summarizes a completed scheduler run.
type RunResult struct {
	EmittedCount      int
	TerminationReason TerminationReason
	ElapsedWallClock  time.Duration
}

// Run drives the tick loop until a termination condition fires (spec.md
// §4.6 step 1) or ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) (RunResult, error) {
	s.startWall = time.Now()
	settings := s.doc.SimulationSettings

	for {
		if ctx.Err() != nil {
			return s.result(ReasonCanceled), nil
		}
		if settings.Duration != nil && time.Since(s.startWall) >= *settings.Duration {
			return s.result(ReasonCompleted), nil
		}
		if settings.TotalEvents != nil && s.emittedCount >= *settings.TotalEvents {
			return s.result(ReasonCompleted), nil
		}

		progressed, err := s.tick()
		if err != nil {
			return s.result(ReasonCompleted), err
		}
		if progressed {
			s.consecutiveStarvedTicks = 0
			continue
		}

		s.consecutiveStarvedTicks++
		s.clock.Advance(s.defaultInterEventStep())
		if s.metrics != nil {
			s.metrics.StarvationTicks.Inc()
		}
		bound := settings.StarvationTickBound
		if bound <= 0 {
			bound = 300
		}
		if s.consecutiveStarvedTicks >= bound {
			if s.logger != nil {
				s.logger.WithFields(logrus.Fields{}).Warn("run terminating: starvation bound exceeded")
			}
			return s.result(ReasonStarved), nil
		}
	}
}

func (s *Scheduler) result(reason TerminationReason) RunResult {
	return RunResult{
		EmittedCount:      s.emittedCount,
		TerminationReason: reason,
		ElapsedWallClock:  time.Since(s.startWall),
	}
}

func (s *Scheduler) defaultInterEventStep() time.Duration {
	d := s.doc.SimulationSettings.DefaultInterEventStep
	if d <= 0 {
		d = time.Second
	}
	return d
}

// candidate is one entry in a tick's candidate pool (spec.md §4.6 step 3).
type candidate struct {
	weight     float64
	eventType  *specdef.EventType
	resolution *resolver.Resolution
	run        *scenario.Run
	step       *specdef.ScenarioStep
}

// tick executes one full pass of spec.md §4.6 steps 2-8. It returns
// progressed=false when the candidate pool was empty after feasibility
// filtering (a starved tick).
func (s *Scheduler) tick() (bool, error) {
	now := s.clock.Now()

	s.attemptScenarioInitiation(now)

	pool, err := s.buildCandidatePool(now)
	if err != nil {
		return false, err
	}
	feasible := pool[:0:0]
	for _, c := range pool {
		if c.resolution.Feasible {
			feasible = append(feasible, c)
		}
	}
	if len(feasible) == 0 {
		return false, nil
	}

	chosen := pickCandidate(feasible, s.prng)
	if err := s.executeCandidate(chosen, now); err != nil {
		// Generator/mutation faults are scoped to the event being built
		// (spec.md §7): log and move on without terminating the run.
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{}).WithError(err).Warn("event commit failed, skipping")
		}
		if s.metrics != nil {
			s.metrics.GeneratorFaults.WithLabelValues(chosen.eventType.Name).Inc()
		}
		return false, nil
	}
	return true, nil
}

func (s *Scheduler) buildCandidatePool(now time.Time) ([]candidate, error) {
	var pool []candidate

	for _, run := range s.activeRuns {
		if !run.Ready(now) {
			continue
		}
		scenarioDef := s.doc.Scenarios[run.ScenarioName]
		step, ok := run.CurrentStep(scenarioDef)
		if !ok {
			continue
		}
		et, ok := s.doc.EventTypes[step.EventType]
		if !ok {
			return nil, engineerr.New(engineerr.CodeSpecMissingRef, "scenario step references undefined event type "+step.EventType)
		}
		res, err := resolver.Resolve(et, s.store, s.prng)
		if err != nil {
			return nil, err
		}
		pool = append(pool, candidate{weight: 1.0, eventType: et, resolution: res, run: run, step: step})
	}

	for _, name := range s.doc.EventTypeOrder {
		et := s.doc.EventTypes[name]
		if et.FrequencyWeight <= 0 {
			continue
		}
		res, err := resolver.Resolve(et, s.store, s.prng)
		if err != nil {
			return nil, err
		}
		pool = append(pool, candidate{weight: et.FrequencyWeight, eventType: et, resolution: res})
	}

	// Scenario runs whose feasibility has lapsed are not pruned: if the
	// run's current step is infeasible every tick it is retried forever
	// by the pool-building loop above; that is an accepted cost (the
	// candidate is simply skipped each tick, spec.md §4.5) rather than
	// destroyed, since feasibility can recover once entity state changes.
	return pool, nil
}

func pickCandidate(pool []candidate, prng *prngstream.Streams) candidate {
	var total float64
	for _, c := range pool {
		total += c.weight
	}
	target := prng.Schedule().Float64() * total
	var acc float64
	for _, c := range pool {
		acc += c.weight
		if target < acc {
			return c
		}
	}
	return pool[len(pool)-1]
}

func (s *Scheduler) executeCandidate(c candidate, now time.Time) error {
	binding := c.resolution.Binding()
	if c.run != nil {
		binding = scenario.MergeBinding(c.run.Binding, binding)
	}

	schemaNode, ok := s.doc.Schemas[c.eventType.PayloadSchema]
	if !ok {
		return engineerr.New(engineerr.CodeSpecMissingRef, "event type references undefined payload schema "+c.eventType.PayloadSchema)
	}

	renderCtx := &generator.RenderContext{
		Clock:               s.clock,
		Prng:                s.prng,
		Store:               s.store,
		Binding:             binding,
		ArrayItemCandidates: c.resolution.ArrayItemCandidates(),
		RealisticProvider:   s.realistic,
	}
	value, err := generator.Render(schemaNode, s.doc.Schemas, renderCtx)
	if err != nil {
		return engineerr.GeneratorFault(c.eventType.Name, "", err)
	}
	payload, ok := value.(*ordered.Map)
	if !ok {
		return engineerr.New(engineerr.CodeGeneratorFault, "event payload schema did not render to an object")
	}

	if c.step != nil && c.step.PayloadOverrides != nil {
		applyOverrides(payload, c.step.PayloadOverrides)
	}

	plan, err := mutation.Build(s.doc, c.eventType, payload, binding, s.store, s.prng, now)
	if err != nil {
		return engineerr.GeneratorFault(c.eventType.Name, "", err)
	}
	if err := mutation.Commit(s.store, plan); err != nil {
		return err
	}
	if c.run != nil && plan.Create != nil {
		// Capture the instance this run just produced into its own
		// binding_context (spec.md §4.6 step 8), so a later step in the
		// same run resolves against the run's own instance rather than a
		// fresh store-wide pick among every instance of that kind.
		c.run.Binding[plan.Create.Kind] = plan.Create
	}

	s.emitter.Emit(emitrecord.Record{EventType: c.eventType.Name, Timestamp: now, Payload: payload})
	s.emittedCount++
	s.liveEmittedCount.Store(int64(s.emittedCount))
	if s.metrics != nil {
		s.metrics.RecordEmission(c.eventType.Name)
	}

	if c.run != nil {
		s.advanceScenarioRun(c.run, now)
	}
	s.clock.Advance(s.defaultInterEventStep())
	return nil
}

func applyOverrides(payload *ordered.Map, overrides map[string]interface{}) {
	for k, v := range overrides {
		payload.Set(k, v)
	}
}

func (s *Scheduler) advanceScenarioRun(run *scenario.Run, now time.Time) {
	scenarioDef := s.doc.Scenarios[run.ScenarioName]
	run.Advance(scenarioDef, now, s.prng.ScenarioInit())
	if run.Done(scenarioDef) {
		s.removeRun(run)
		if s.metrics != nil {
			s.metrics.ScenariosCompleted.WithLabelValues(run.ScenarioName).Inc()
		}
	}
}

func (s *Scheduler) removeRun(target *scenario.Run) {
	out := s.activeRuns[:0]
	for _, r := range s.activeRuns {
		if r != target {
			out = append(out, r)
		}
	}
	s.activeRuns = out
}

// attemptScenarioInitiation implements spec.md §4.6 step 2: weighted pick
// among declared scenarios plus a "do nothing" slot, starting a run only
// if the chosen scenario's requires_initial_entities are satisfiable.
func (s *Scheduler) attemptScenarioInitiation(now time.Time) {
	type option struct {
		name   string
		weight float64
	}
	var options []option
	var total float64
	for _, name := range s.doc.ScenarioOrder {
		w := s.doc.Scenarios[name].InitiationWeight
		options = append(options, option{name: name, weight: w})
		total += w
	}
	doNothingWeight := total
	if doNothingWeight <= 0 {
		doNothingWeight = scenarioInitiationFallbackWeight
	}
	options = append(options, option{name: "", weight: doNothingWeight})
	total += doNothingWeight

	target := s.prng.ScenarioInit().Float64() * total
	var acc float64
	var chosen string
	for _, o := range options {
		acc += o.weight
		if target < acc {
			chosen = o.name
			break
		}
	}
	if chosen == "" {
		return
	}

	sc := s.doc.Scenarios[chosen]
	binding, ok := s.resolveInitialEntities(sc)
	if !ok {
		return
	}
	run := scenario.NewRun(chosen, now, binding)
	s.activeRuns = append(s.activeRuns, run)
	if s.metrics != nil {
		s.metrics.ScenariosStarted.WithLabelValues(chosen).Inc()
	}
}

func (s *Scheduler) resolveInitialEntities(sc *specdef.Scenario) (map[string]*entitystore.Instance, bool) {
	binding := map[string]*entitystore.Instance{}
	for _, entityName := range sc.RequiresInitialEntities {
		candidates, err := s.store.Select(entityName, specdef.SelectionFilter{})
		if err != nil || len(candidates) == 0 {
			return nil, false
		}
		binding[entityName] = resolver.Pick(candidates, s.prng)
	}
	return binding, true
}
