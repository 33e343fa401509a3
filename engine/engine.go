// Package engine wires every internal component into the single public
// entry point spec.md §6 describes: "run(spec, options) -> result and an
// iterator over diagnostics". It plays the role services/automation's
// exported Service/Config/New shape plays in the teacher repository,
// scaled down to one Run call rather than a long-lived service with its
// own HTTP surface.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/resink-ai/resinker/internal/diagserver"
	"github.com/resink-ai/resinker/internal/emitrecord"
	"github.com/resink-ai/resinker/internal/engineerr"
	"github.com/resink-ai/resinker/internal/enginelog"
	"github.com/resink-ai/resinker/internal/enginemetrics"
	"github.com/resink-ai/resinker/internal/entitystore"
	"github.com/resink-ai/resinker/internal/generator"
	"github.com/resink-ai/resinker/internal/generator/fakerdefault"
	"github.com/resink-ai/resinker/internal/mutation"
	"github.com/resink-ai/resinker/internal/ordered"
	"github.com/resink-ai/resinker/internal/prngstream"
	"github.com/resink-ai/resinker/internal/runcontroller"
	"github.com/resink-ai/resinker/internal/scheduler"
	"github.com/resink-ai/resinker/internal/simclock"
	"github.com/resink-ai/resinker/internal/sinks"
	"github.com/resink-ai/resinker/internal/specdef"
)

// RunOptions customizes one run beyond what the specification document
// itself declares.
type RunOptions struct {
	// Seed overrides doc.SimulationSettings.RandomSeed when non-nil, for
	// reproducing a prior run under a fixed seed from the CLI.
	Seed *int64

	// DiagnosticsAddr, if non-empty, starts the HTTP diagnostics server
	// (internal/diagserver) bound to this address for the run's duration.
	DiagnosticsAddr string

	// LogLevel/LogFormat configure internal/enginelog; defaults to
	// "info"/"text" when left zero.
	LogLevel  string
	LogFormat string

	// HeartbeatCronSpec configures internal/runcontroller's periodic
	// status log; defaults to "@every 30s" when empty.
	HeartbeatCronSpec string

	// DiagnosticChannelDepth bounds the Diagnostic channel returned to the
	// caller; defaults to 256 when zero.
	DiagnosticChannelDepth int
}

// RunResult is the run's final outcome.
type RunResult struct {
	EventsEmitted     int
	DurationObserved  time.Duration
	TerminationReason string
}

// Diagnostic is one structured log line surfaced to the caller as an
// iterator (spec.md §6), sourced from internal/enginelog's hook.
type Diagnostic = enginelog.Diagnostic

// Run executes doc to completion (or until ctx is canceled / a SIGINT or
// SIGTERM arrives), fanning every committed record out to doc.Outputs and
// returning once the scheduler and every sink have stopped. The returned
// channel is closed only after Run's result is ready to return, so a
// caller that drains it to exhaustion sees every diagnostic the run ever
// produced.
func Run(ctx context.Context, doc *specdef.Document, opts RunOptions) (RunResult, <-chan Diagnostic, error) {
	if errs := specdef.ValidateStructure(doc); len(errs) > 0 {
		return RunResult{}, nil, fmt.Errorf("engine: invalid specification: %w", errs[0])
	}

	diagDepth := opts.DiagnosticChannelDepth
	if diagDepth <= 0 {
		diagDepth = 256
	}
	diagCh := make(chan Diagnostic, diagDepth)

	logLevel, logFormat := opts.LogLevel, opts.LogFormat
	if logLevel == "" {
		logLevel = "info"
	}
	if logFormat == "" {
		logFormat = "text"
	}
	logger := enginelog.New("engine", enginelog.Config{Level: logLevel, Format: logFormat})
	logger.AddHook(enginelog.NewHook(diagCh))

	metrics := enginemetrics.New()

	seed := doc.SimulationSettings.RandomSeed
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	prng := prngstream.New(seed)

	startTime, err := simclock.ResolveStartTime(doc.SimulationSettings.TimeProgression.StartTime)
	if err != nil {
		close(diagCh)
		return RunResult{}, nil, fmt.Errorf("engine: resolving simulation start time: %w", err)
	}
	clock := simclock.New(startTime, doc.SimulationSettings.TimeProgression.TimeMultiplier)

	store := entitystore.New()
	if err := seedInitialEntities(doc, store, clock, prng); err != nil {
		close(diagCh)
		return RunResult{}, nil, fmt.Errorf("engine: seeding initial entities: %w", err)
	}

	fanOut, err := sinks.NewFanOut(doc.Outputs, logger, metrics)
	if err != nil {
		close(diagCh)
		return RunResult{}, nil, fmt.Errorf("engine: building sinks: %w", err)
	}

	runStart := time.Now()
	var diag *diagserver.Server
	sched := scheduler.New(doc, store, clock, prng, fakerdefault.New(seed), fanOutWithDiag{fanOut: fanOut, diag: func() *diagserver.Server { return diag }}, metrics, logger)

	if opts.DiagnosticsAddr != "" {
		statsFn := func() diagserver.Stats {
			return diagserver.Stats{
				EventsEmitted: uint64(sched.EmittedCount()),
				Elapsed:       time.Since(runStart).String(),
				EntityCounts:  entityCounts(doc, store),
			}
		}
		diag = diagserver.New(opts.DiagnosticsAddr, metrics, statsFn, logger)
		diag.Start()
	}

	heartbeatStats := func() map[string]interface{} {
		fields := map[string]interface{}{}
		for kind, n := range entityCounts(doc, store) {
			fields["entity_count_"+kind] = n
		}
		return fields
	}
	controller := runcontroller.New(sched, fanOut, logger, opts.HeartbeatCronSpec, heartbeatStats)

	result, runErr := controller.Run(ctx)

	if diag != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = diag.Shutdown(shutdownCtx)
		cancel()
	}
	close(diagCh)

	if runErr != nil {
		return RunResult{}, nil, runErr
	}
	return RunResult{
		EventsEmitted:     result.EventsEmitted,
		DurationObserved:  result.DurationObserved,
		TerminationReason: result.TerminationReason,
	}, diagCh, nil
}

// fanOutWithDiag adapts sinks.FanOut to scheduler.Emitter while also
// broadcasting every committed record to the diagnostics websocket stream
// (SPEC_FULL.md §10 "Diagnostics websocket stream"), independent of
// whatever sinks the specification configured.
type fanOutWithDiag struct {
	fanOut *sinks.FanOut
	diag   func() *diagserver.Server
}

func (f fanOutWithDiag) Emit(rec emitrecord.Record) {
	f.fanOut.Emit(rec)
	if d := f.diag(); d != nil {
		d.Broadcast(map[string]interface{}{
			"event_type": rec.EventType,
			"timestamp":  rec.Timestamp,
			"payload":    rec.Payload,
		})
	}
}

func entityCounts(doc *specdef.Document, store *entitystore.Store) map[string]int {
	counts := make(map[string]int, len(doc.EntityOrder))
	for _, name := range doc.EntityOrder {
		counts[name] = store.Len(name)
	}
	return counts
}

// seedInitialEntities populates the store with
// simulation_settings.initial_entity_counts before the scheduler's first
// tick, rendering each instance from its entity's own schema exactly as a
// produces_entity commit would (spec.md §8 S1/S3 rely on this: S3's
// Product is pre-seeded, never produced by an event).
func seedInitialEntities(doc *specdef.Document, store *entitystore.Store, clock *simclock.Clock, prng *prngstream.Streams) error {
	for name, count := range doc.SimulationSettings.InitialEntityCounts {
		entity, ok := doc.Entities[name]
		if !ok {
			return engineerr.New(engineerr.CodeSpecMissingRef, fmt.Sprintf("initial_entity_counts references undefined entity %q", name))
		}
		if count <= 0 {
			continue
		}
		schemaNode, ok := doc.Schemas[entity.Schema]
		if !ok {
			return engineerr.New(engineerr.CodeSpecMissingRef, fmt.Sprintf("entity %q references undefined schema %q", name, entity.Schema))
		}
		for i := 0; i < count; i++ {
			renderCtx := &generator.RenderContext{
				Clock: clock,
				Prng:  prng,
				Store: store,
			}
			value, err := generator.Render(schemaNode, doc.Schemas, renderCtx)
			if err != nil {
				return engineerr.Wrap(engineerr.CodeGeneratorFault, fmt.Sprintf("rendering initial instance of %q", name), err)
			}
			payload, ok := value.(*ordered.Map)
			if !ok {
				return engineerr.New(engineerr.CodeGeneratorFault, fmt.Sprintf("entity %q schema did not render to an object", name))
			}
			inst, err := mutation.NewSeedInstance(doc, name, payload, clock.Now())
			if err != nil {
				return err
			}
			if err := store.Insert(inst); err != nil {
				return err
			}
		}
	}
	return nil
}
