// Package enginemetrics exposes the engine's Prometheus collectors,
// grounded on pkg/metrics.Metrics / infrastructure/metrics's
// registry-plus-HandlerFunc pattern in the teacher repository.
package enginemetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors. Unlike the teacher's
// package-level Registry, each Metrics owns its own registry so multiple
// runs in one process (tests) don't collide on duplicate registration.
type Metrics struct {
	registry *prometheus.Registry

	EventsEmitted      *prometheus.CounterVec
	FeasibilitySkips   *prometheus.CounterVec
	GeneratorFaults    *prometheus.CounterVec
	SinkFaults         *prometheus.CounterVec
	SinkQueueDepth     *prometheus.GaugeVec
	StarvationTicks    prometheus.Counter
	ScenariosStarted   *prometheus.CounterVec
	ScenariosCompleted *prometheus.CounterVec
}

// New constructs and registers a fresh Metrics instance.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		EventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resinker",
			Subsystem: "engine",
			Name:      "events_emitted_total",
			Help:      "Total number of events emitted, by event type.",
		}, []string{"event_type"}),
		FeasibilitySkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resinker",
			Subsystem: "engine",
			Name:      "feasibility_skips_total",
			Help:      "Total number of ticks an event type was skipped as infeasible.",
		}, []string{"event_type"}),
		GeneratorFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resinker",
			Subsystem: "engine",
			Name:      "generator_faults_total",
			Help:      "Total number of generator faults, by event type.",
		}, []string{"event_type"}),
		SinkFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resinker",
			Subsystem: "sinks",
			Name:      "faults_total",
			Help:      "Total number of sink write failures, by sink name.",
		}, []string{"sink"}),
		SinkQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "resinker",
			Subsystem: "sinks",
			Name:      "queue_depth",
			Help:      "Current queue depth, by sink name.",
		}, []string{"sink"}),
		StarvationTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "resinker",
			Subsystem: "engine",
			Name:      "starvation_ticks_total",
			Help:      "Total number of consecutive ticks with an empty feasible pool.",
		}),
		ScenariosStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resinker",
			Subsystem: "scenarios",
			Name:      "started_total",
			Help:      "Total number of scenario runs initiated, by scenario name.",
		}, []string{"scenario"}),
		ScenariosCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resinker",
			Subsystem: "scenarios",
			Name:      "completed_total",
			Help:      "Total number of scenario runs completed, by scenario name.",
		}, []string{"scenario"}),
	}

	reg.MustRegister(
		m.EventsEmitted,
		m.FeasibilitySkips,
		m.GeneratorFaults,
		m.SinkFaults,
		m.SinkQueueDepth,
		m.StarvationTicks,
		m.ScenariosStarted,
		m.ScenariosCompleted,
	)
	return m
}

// Handler returns the promhttp handler for this Metrics' registry,
// matching infrastructure/metrics's /metrics wiring.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordEmission increments the per-event-type emission counter.
func (m *Metrics) RecordEmission(eventType string) {
	m.EventsEmitted.WithLabelValues(eventType).Inc()
}
