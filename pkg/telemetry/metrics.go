package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus primitives for the HTTP surface and the outbox relay.
type Metrics struct {
	apiRequests        *prometheus.CounterVec
	apiDuration        *prometheus.HistogramVec
	outboxDispatch     *prometheus.CounterVec
	outboxDispatchTime *prometheus.HistogramVec
	outboxEvents       *prometheus.CounterVec
	outboxBacklog      prometheus.Gauge
}

// NewMetrics registers and returns Prometheus metrics on reg.
// A nil reg falls back to the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_api_requests_total",
		Help: "Counts API requests by method, route and status.",
	}, []string{"method", "route", "status"})

	apiDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketplace_api_duration_seconds",
		Help:    "API request latency per method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	outboxDispatch := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_outbox_dispatch_total",
		Help: "Counts relay batches by status.",
	}, []string{"status"})

	outboxDispatchTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketplace_outbox_dispatch_duration_seconds",
		Help:    "Relay batch durations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	outboxEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_outbox_events_published_total",
		Help: "Events handed to the broker, by topic.",
	}, []string{"topic"})

	outboxBacklog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "marketplace_outbox_backlog",
		Help: "Number of unpublished events in the outbox.",
	})

	reg.MustRegister(
		apiRequests,
		apiDuration,
		outboxDispatch,
		outboxDispatchTime,
		outboxEvents,
		outboxBacklog,
	)

	return &Metrics{
		apiRequests:        apiRequests,
		apiDuration:        apiDuration,
		outboxDispatch:     outboxDispatch,
		outboxDispatchTime: outboxDispatchTime,
		outboxEvents:       outboxEvents,
		outboxBacklog:      outboxBacklog,
	}
}

// ObserveAPIRequest records an API request and latency.
func (m *Metrics) ObserveAPIRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	methodLabel := sanitizeLabel(method)
	routeLabel := sanitizeLabel(route)
	m.apiRequests.WithLabelValues(methodLabel, routeLabel, strconv.Itoa(status)).Inc()
	m.apiDuration.WithLabelValues(methodLabel, routeLabel).Observe(duration.Seconds())
}

// RecordOutboxBatch registers relay batch metrics.
func (m *Metrics) RecordOutboxBatch(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.outboxDispatch.WithLabelValues(sanitizeLabel(status)).Inc()
	m.outboxDispatchTime.WithLabelValues(sanitizeLabel(status)).Observe(duration.Seconds())
}

// RecordOutboxPublished counts a single event handed to the broker.
func (m *Metrics) RecordOutboxPublished(topic string) {
	if m == nil {
		return
	}
	m.outboxEvents.WithLabelValues(sanitizeLabel(topic)).Inc()
}

// SetOutboxBacklog updates the backlog gauge.
func (m *Metrics) SetOutboxBacklog(value float64) {
	if m == nil {
		return
	}
	m.outboxBacklog.Set(value)
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
