// Package sinks implements event fan-out to the configured output
// destinations (spec.md §4.8): stdout, file, and a Kafka-style topic sink.
// Each sink owns a bounded queue and a dedicated worker goroutine, the
// same per-consumer channel-slot pattern the teacher uses for bounding
// concurrent trigger execution (services/automation/marble/concurrency.go).
package sinks

import (
	"fmt"

	"github.com/resink-ai/resinker/internal/emitrecord"
	"github.com/resink-ai/resinker/internal/enginelog"
	"github.com/resink-ai/resinker/internal/enginemetrics"
	"github.com/resink-ai/resinker/internal/specdef"
)

// defaultQueueDepth is used when a sink config leaves QueueDepth at zero.
const defaultQueueDepth = 256

// Sink is one running output destination: a worker goroutine draining a
// bounded job queue.
type Sink struct {
	name       string
	cfg        specdef.OutputSink
	writer     recordWriter
	jobs       chan emitrecord.Record
	done       chan struct{}
	logger     *enginelog.Logger
	metrics    *enginemetrics.Metrics
	dropOnFull bool
}

// recordWriter is the per-sink-type write strategy (stdout/file/kafka).
type recordWriter interface {
	Write(rec emitrecord.Record) error
	Close() error
}

// New builds a running Sink for one configured output. The returned sink's
// worker goroutine is already started; callers must call Close to flush
// and stop it.
func New(cfg specdef.OutputSink, name string, logger *enginelog.Logger, metrics *enginemetrics.Metrics) (*Sink, error) {
	w, err := newWriter(cfg)
	if err != nil {
		return nil, fmt.Errorf("sinks: building %s sink %q: %w", cfg.Type, name, err)
	}

	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = defaultQueueDepth
	}

	s := &Sink{
		name:       name,
		cfg:        cfg,
		writer:     w,
		jobs:       make(chan emitrecord.Record, depth),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    metrics,
		dropOnFull: cfg.DropOnFull,
	}
	go s.run()
	return s, nil
}

func (s *Sink) run() {
	defer close(s.done)
	for rec := range s.jobs {
		if s.metrics != nil {
			s.metrics.SinkQueueDepth.WithLabelValues(s.name).Set(float64(len(s.jobs)))
		}
		if err := s.writer.Write(rec); err != nil {
			if s.metrics != nil {
				s.metrics.SinkFaults.WithLabelValues(s.name).Inc()
			}
			if s.logger != nil {
				s.logger.WithFields(loggerFields(s.name, rec.EventType, err)).Warn("sink write failed")
			}
		}
	}
}

func loggerFields(sink, eventType string, err error) map[string]interface{} {
	return map[string]interface{}{"sink": sink, "event_type": eventType, "error": err.Error()}
}

// Submit enqueues rec for this sink. When the queue is full, Submit blocks
// (the spec.md §5 reference behavior: "block on slowest") unless the sink
// is configured with DropOnFull, in which case it drops the record and
// reports false.
func (s *Sink) Submit(rec emitrecord.Record) (delivered bool) {
	if s.dropOnFull {
		select {
		case s.jobs <- rec:
			return true
		default:
			if s.metrics != nil {
				s.metrics.SinkFaults.WithLabelValues(s.name).Inc()
			}
			if s.logger != nil {
				s.logger.WithFields(map[string]interface{}{"sink": s.name, "event_type": rec.EventType}).
					Warn("sink queue full, dropping record")
			}
			return false
		}
	}
	s.jobs <- rec
	return true
}

// Close drains the queue and stops the worker, flushing the underlying
// writer (spec.md §4.8's "flush-on-shutdown").
func (s *Sink) Close() error {
	close(s.jobs)
	<-s.done
	return s.writer.Close()
}

// FanOut delivers one emitted record to every enabled sink (spec.md §4.8:
// "the engine delivers to every enabled sink"). Sink errors are logged
// against that sink only and never abort the simulation.
type FanOut struct {
	sinks []*Sink
}

// NewFanOut builds one running Sink per enabled entry in cfgs.
func NewFanOut(cfgs []specdef.OutputSink, logger *enginelog.Logger, metrics *enginemetrics.Metrics) (*FanOut, error) {
	fo := &FanOut{}
	for i, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		name := fmt.Sprintf("%s-%d", cfg.Type, i)
		sink, err := New(cfg, name, logger, metrics)
		if err != nil {
			fo.Close()
			return nil, err
		}
		fo.sinks = append(fo.sinks, sink)
	}
	return fo, nil
}

// Emit implements scheduler.Emitter, delivering rec to every enabled sink.
func (fo *FanOut) Emit(rec emitrecord.Record) {
	for _, s := range fo.sinks {
		s.Submit(rec)
	}
}

// Close flushes and stops every sink, in declaration order.
func (fo *FanOut) Close() error {
	var firstErr error
	for _, s := range fo.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
