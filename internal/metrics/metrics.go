// Package metrics exposes Prometheus instrumentation for the draft engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Optimize outcomes.
const (
	OutcomeSuccess    = "success"
	OutcomeRejected   = "rejected"
	OutcomeTransport  = "transport_failure"
	OutcomeEmpty      = "empty_list"
	OutcomeInProgress = "in_progress"
)

// Metrics holds the engine's collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	optimizeTotal    *prometheus.CounterVec
	optimizeDuration prometheus.Histogram
	invalidations    prometheus.Counter
	persistWrites    *prometheus.CounterVec
	openSessions     prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		optimizeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "basket_optimize_total",
			Help: "Optimize attempts by outcome",
		}, []string{"outcome"}),
		optimizeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "basket_optimize_duration_seconds",
			Help:    "Latency of remote optimize calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		invalidations: f.NewCounter(prometheus.CounterOpts{
			Name: "basket_cache_invalidations_total",
			Help: "Cached optimizations cleared because the list changed",
		}),
		persistWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "basket_persist_writes_total",
			Help: "Debounced draft writes by result",
		}, []string{"result"}),
		openSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "basket_open_sessions",
			Help: "Lists with an active in-memory session",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Optimize(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.optimizeTotal.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		m.optimizeDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) Invalidated() {
	if m == nil {
		return
	}
	m.invalidations.Inc()
}

// Persisted records a write result: "written", "skipped" or "failed".
func (m *Metrics) Persisted(result string) {
	if m == nil {
		return
	}
	m.persistWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) SessionsOpen(n int) {
	if m == nil {
		return
	}
	m.openSessions.Set(float64(n))
}
