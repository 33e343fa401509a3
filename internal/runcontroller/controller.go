// Package runcontroller owns the top-level run lifecycle around the
// scheduler loop: signal handling and a periodic heartbeat, matching
// infrastructure/service/runner.go's Run entry point (start the server,
// wait for SIGINT/SIGTERM, drain, stop) generalized from an HTTP server to
// a scheduler.Run call. spec.md §5's either-trips duration/total-events
// termination is the scheduler's own job; the controller only adds the
// process-lifecycle concerns a complete CLI tool needs around it.
package runcontroller

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/resink-ai/resinker/internal/enginelog"
	"github.com/resink-ai/resinker/internal/scheduler"
	"github.com/resink-ai/resinker/internal/sinks"
	"github.com/robfig/cron/v3"
)

// Controller runs one scheduler to completion, layering signal-driven
// graceful shutdown and a periodic heartbeat log around it.
type Controller struct {
	sched      *scheduler.Scheduler
	fanOut     *sinks.FanOut
	logger     *enginelog.Logger
	cronSpec   string
	heartbeats func() map[string]interface{}
}

// New builds a Controller. heartbeatStats, if non-nil, is polled on every
// heartbeat tick and logged alongside events_emitted/elapsed; cronSpec
// defaults to "@every 30s" when empty.
func New(sched *scheduler.Scheduler, fanOut *sinks.FanOut, logger *enginelog.Logger, cronSpec string, heartbeatStats func() map[string]interface{}) *Controller {
	if cronSpec == "" {
		cronSpec = "@every 30s"
	}
	return &Controller{sched: sched, fanOut: fanOut, logger: logger, cronSpec: cronSpec, heartbeats: heartbeatStats}
}

// Result is the controller-level outcome, extending scheduler.RunResult
// with the "signal" termination reason a scheduler run alone can't
// report.
type Result struct {
	EventsEmitted     int
	DurationObserved  time.Duration
	TerminationReason string
}

// Run installs SIGINT/SIGTERM handling (first signal: cancel ctx for a
// graceful drain; second signal: immediate os.Exit(1), per spec.md §5),
// starts the heartbeat cron, runs the scheduler to completion, and flushes
// every sink before returning.
func (c *Controller) Run(parent context.Context) (Result, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var signaled atomic.Bool
	go func() {
		for range sigCh {
			if signaled.Swap(true) {
				if c.logger != nil {
					c.logger.WithFields(map[string]interface{}{}).Warn("second signal received, exiting immediately")
				}
				os.Exit(1)
			}
			if c.logger != nil {
				c.logger.WithFields(map[string]interface{}{}).Warn("signal received, draining and flushing sinks")
			}
			cancel()
		}
	}()

	cronRunner := cron.New()
	start := time.Now()
	if c.heartbeats != nil || c.logger != nil {
		if _, err := cronRunner.AddFunc(c.cronSpec, func() { c.logHeartbeat(start) }); err != nil {
			return Result{}, fmt.Errorf("runcontroller: invalid heartbeat cron spec %q: %w", c.cronSpec, err)
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	runResult, err := c.sched.Run(ctx)

	var flushErr error
	if c.fanOut != nil {
		flushErr = c.fanOut.Close()
	}
	if err != nil {
		return Result{}, err
	}
	if flushErr != nil {
		return Result{}, fmt.Errorf("runcontroller: flushing sinks: %w", flushErr)
	}

	reason := string(runResult.TerminationReason)
	if runResult.TerminationReason == scheduler.ReasonCanceled && signaled.Load() {
		reason = "signal"
	}
	return Result{
		EventsEmitted:     runResult.EmittedCount,
		DurationObserved:  runResult.ElapsedWallClock,
		TerminationReason: reason,
	}, nil
}

func (c *Controller) logHeartbeat(start time.Time) {
	if c.logger == nil {
		return
	}
	fields := map[string]interface{}{
		"events_emitted": c.sched.EmittedCount(),
		"elapsed":        time.Since(start).String(),
	}
	if c.heartbeats != nil {
		for k, v := range c.heartbeats() {
			fields[k] = v
		}
	}
	c.logger.WithFields(fields).Info("heartbeat")
}
