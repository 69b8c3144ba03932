// Package metrics exposes preflight counters and timings to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tendant/print-preflight/pkg/preflight"
)

// Metrics implements convert.Observer and engine.Recorder
type Metrics struct {
	registry *prometheus.Registry

	results  *prometheus.CounterVec
	checks   *prometheus.CounterVec
	attempts *prometheus.CounterVec
	duration prometheus.Histogram
}

// New registers the preflight collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "preflight_results_total",
			Help: "Preflight runs by overall verdict.",
		}, []string{"overall"}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "preflight_checks_total",
			Help: "Individual check outcomes.",
		}, []string{"check", "status"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "preflight_conversion_attempts_total",
			Help: "Conversion strategy attempts by outcome.",
		}, []string{"format", "strategy", "outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "preflight_duration_seconds",
			Help:    "Wall time of a preflight run.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
	}
	m.registry.MustRegister(m.results, m.checks, m.attempts, m.duration)
	return m
}

// ConversionAttempt implements convert.Observer
func (m *Metrics) ConversionAttempt(format, strategy string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.attempts.WithLabelValues(format, strategy, outcome).Inc()
}

// ObserveResult records a finished run
func (m *Metrics) ObserveResult(result preflight.Result, took time.Duration) {
	m.results.WithLabelValues(string(result.Overall)).Inc()
	for _, c := range result.Checks {
		m.checks.WithLabelValues(c.Name, string(c.Status)).Inc()
	}
	m.duration.Observe(took.Seconds())
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
