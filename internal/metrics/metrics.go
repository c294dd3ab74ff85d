// Package metrics exposes Prometheus instrumentation for the vault layer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the vault layer's collectors behind one registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge

	vaultOps      *prometheus.CounterVec
	vaultRejected *prometheus.CounterVec
	totalDeposits prometheus.Gauge
	upgrades      prometheus.Counter
}

// New creates a metrics bundle with its own registry.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "path"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
		vaultOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Completed vault operations by kind.",
		}, []string{"operation"}),
		vaultRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_rejected_total",
			Help:      "Rejected vault operations by kind and error class.",
		}, []string{"operation", "class"}),
		totalDeposits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_deposits",
			Help:      "Current TotalDeposits value.",
		}),
		upgrades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logic_upgrades_total",
			Help:      "Successful logic module swaps.",
		}),
	}
	registry.MustRegister(
		m.httpRequests, m.httpDuration, m.httpInFlight,
		m.vaultOps, m.vaultRejected, m.totalDeposits, m.upgrades,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncrementInFlight marks a request entering the server.
func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }

// DecrementInFlight marks a request leaving the server.
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, seconds float64) {
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(seconds)
}

// RecordOperation records a completed vault operation.
func (m *Metrics) RecordOperation(operation string) {
	m.vaultOps.WithLabelValues(operation).Inc()
}

// RecordRejection records a rejected vault operation.
func (m *Metrics) RecordRejection(operation, class string) {
	m.vaultRejected.WithLabelValues(operation, class).Inc()
}

// SetTotalDeposits publishes the current total.
func (m *Metrics) SetTotalDeposits(total int64) {
	m.totalDeposits.Set(float64(total))
}

// RecordUpgrade records a successful logic swap.
func (m *Metrics) RecordUpgrade() { m.upgrades.Inc() }
