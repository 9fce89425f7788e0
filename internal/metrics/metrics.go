// Package metrics holds the Prometheus collectors for the sync pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the sync collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RemoteCalls     *prometheus.CounterVec
	RemoteLatency   *prometheus.HistogramVec
	SaveOutcomes    *prometheus.CounterVec
	DiscoveryPasses *prometheus.CounterVec
	DiscoveryDelta  *prometheus.CounterVec
	BackoffSeconds  prometheus.Gauge
	CallsInWindow   prometheus.Gauge
}

// New registers the collectors on a fresh registry, together with the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RemoteCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "plansync_remote_calls_total",
			Help: "Remote content API calls by operation and outcome kind",
		}, []string{"op", "kind"}),
		RemoteLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "plansync_remote_call_duration_seconds",
			Help:    "Remote content API latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"op"}),
		SaveOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "plansync_save_outcomes_total",
			Help: "Save results by level and status kind",
		}, []string{"level", "status"}),
		DiscoveryPasses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "plansync_discovery_passes_total",
			Help: "Local discovery passes by mode and result",
		}, []string{"mode", "result"}),
		DiscoveryDelta: f.NewCounterVec(prometheus.CounterOpts{
			Name: "plansync_discovery_changes_total",
			Help: "Ledger changes applied by discovery, by change type",
		}, []string{"change"}),
		BackoffSeconds: f.NewGauge(prometheus.GaugeOpts{
			Name: "plansync_remote_min_interval_seconds",
			Help: "Current minimum interval between remote calls",
		}),
		CallsInWindow: f.NewGauge(prometheus.GaugeOpts{
			Name: "plansync_remote_calls_in_window",
			Help: "Remote calls made in the current hourly window",
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

// RecordRemoteCall records one remote call. kind is "ok" on success.
func (m *Metrics) RecordRemoteCall(op, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.RemoteCalls.WithLabelValues(op, kind).Inc()
	m.RemoteLatency.WithLabelValues(op).Observe(d.Seconds())
}

// RecordSave records a save outcome.
func (m *Metrics) RecordSave(level, status string) {
	if m == nil {
		return
	}
	m.SaveOutcomes.WithLabelValues(level, status).Inc()
}

// RecordDiscovery records a discovery pass and the changes it applied.
func (m *Metrics) RecordDiscovery(mode, result string, changes map[string]int) {
	if m == nil {
		return
	}
	m.DiscoveryPasses.WithLabelValues(mode, result).Inc()
	for k, n := range changes {
		if n > 0 {
			m.DiscoveryDelta.WithLabelValues(k).Add(float64(n))
		}
	}
}

// SetLimiter publishes limiter state.
func (m *Metrics) SetLimiter(minInterval time.Duration, calls int) {
	if m == nil {
		return
	}
	m.BackoffSeconds.Set(minInterval.Seconds())
	m.CallsInWindow.Set(float64(calls))
}
