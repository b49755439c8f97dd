// Package metrics exposes Prometheus instrumentation for the agent.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the agent.
type Metrics struct {
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	ScopeDecisions   *prometheus.CounterVec
	ProducerRequests *prometheus.CounterVec
	ProducerDuration prometheus.Histogram
	ToolExecutions   *prometheus.CounterVec
}

// New creates a Metrics instance registered with reg. Passing nil registers
// with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "droidpilot",
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits by key tier",
			},
			[]string{"tier"}, // context, content
		),
		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "droidpilot",
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses by detected scope",
			},
			[]string{"scope"},
		),
		ScopeDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "droidpilot",
				Name:      "scope_decisions_total",
				Help:      "Total scope classifications by the key generator",
			},
			[]string{"scope"},
		),
		ProducerRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "droidpilot",
				Name:      "producer_requests_total",
				Help:      "Total number of requests sent to the wrapped producer",
			},
			[]string{"status"}, // ok, error
		),
		ProducerDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "droidpilot",
				Name:      "producer_duration_seconds",
				Help:      "Wrapped producer call duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		ToolExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "droidpilot",
				Name:      "tool_executions_total",
				Help:      "Total number of device tool executions",
			},
			[]string{"tool", "status"},
		),
	}
}

// RecordCacheHit is nil-safe so callers can run without instrumentation.
func (m *Metrics) RecordCacheHit(tier string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(tier).Inc()
}

// RecordCacheMiss is nil-safe.
func (m *Metrics) RecordCacheMiss(scope string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(scope).Inc()
}

// RecordScope is nil-safe.
func (m *Metrics) RecordScope(scope string) {
	if m == nil {
		return
	}
	m.ScopeDecisions.WithLabelValues(scope).Inc()
}

// RecordProducer is nil-safe.
func (m *Metrics) RecordProducer(status string, seconds float64) {
	if m == nil {
		return
	}
	m.ProducerRequests.WithLabelValues(status).Inc()
	m.ProducerDuration.Observe(seconds)
}

// RecordTool is nil-safe.
func (m *Metrics) RecordTool(tool, status string) {
	if m == nil {
		return
	}
	m.ToolExecutions.WithLabelValues(tool, status).Inc()
}
