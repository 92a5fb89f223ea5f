// Package metrics holds the Prometheus collectors shared by the ingestion
// pipeline and the HTTP layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for monitoring.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Ingestion metrics
	SessionsAccepted prometheus.Counter
	SessionsRejected *prometheus.CounterVec
	SnapshotWrites   *prometheus.CounterVec
	PercentileServed prometheus.Histogram

	// Security metrics
	SecurityEvents *prometheus.CounterVec
	AlertsSent     *prometheus.CounterVec
	BlockedSources prometheus.Gauge
}

// New creates the service metric collectors. Register them once with
// MustRegister before serving.
func New() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stillness_http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stillness_http_request_duration_seconds",
				Help:    "HTTP request processing duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		SessionsAccepted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stillness_sessions_accepted_total",
				Help: "Total number of accepted session submissions.",
			},
		),
		SessionsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stillness_sessions_rejected_total",
				Help: "Total number of rejected session submissions by reason.",
			},
			[]string{"reason"},
		),
		SnapshotWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stillness_snapshot_writes_total",
				Help: "Total number of snapshot persistence attempts by result.",
			},
			[]string{"result"},
		),
		PercentileServed: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stillness_percentile_served",
				Help:    "Distribution of percentile values returned to submitters.",
				Buckets: []float64{10, 25, 50, 75, 90, 95, 99, 100},
			},
		),
		SecurityEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stillness_security_events_total",
				Help: "Total number of recorded security events by type and severity.",
			},
			[]string{"type", "severity"},
		),
		AlertsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stillness_security_alerts_total",
				Help: "Total number of security alerts dispatched by severity.",
			},
			[]string{"severity"},
		),
		BlockedSources: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stillness_blocked_sources",
				Help: "Number of sources currently under an active block.",
			},
		),
	}
}

// MustRegister registers all collectors with the given registerer.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SessionsAccepted,
		m.SessionsRejected,
		m.SnapshotWrites,
		m.PercentileServed,
		m.SecurityEvents,
		m.AlertsSent,
		m.BlockedSources,
	)
}
