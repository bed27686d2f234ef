package infra

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	JobsDispatched *prometheus.CounterVec
	JobsFailed     *prometheus.CounterVec
	JobsRejected   *prometheus.CounterVec
	JobsInFlight   prometheus.Gauge
	BackendLatency *prometheus.HistogramVec
	FeedPages      *prometheus.CounterVec
}

// NewMetrics registers collectors on a fresh registry so tests can build as
// many instances as they need.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		JobsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "jobs_dispatched_total",
			Help:      "Generation jobs handed to the backend.",
		}, []string{"kind"}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "jobs_failed_total",
			Help:      "Generation jobs that ended in failure.",
		}, []string{"kind", "error_kind"}),
		JobsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "jobs_rejected_total",
			Help:      "Jobs refused because dispatch capacity was exhausted.",
		}, []string{"kind"}),
		JobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gateway",
			Name:      "jobs_in_flight",
			Help:      "Jobs currently waiting on the backend.",
		}),
		BackendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gateway",
			Name:      "backend_duration_seconds",
			Help:      "Time spent waiting on the generation backend.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"kind"}),
		FeedPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "feed_pages_total",
			Help:      "Feed pages served by scope.",
		}, []string{"scope"}),
	}
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.JobsDispatched,
		m.JobsFailed,
		m.JobsRejected,
		m.JobsInFlight,
		m.BackendLatency,
		m.FeedPages,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
