// Package metrics defines the Prometheus collectors obay exports on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// Metrics holds the gateway and feed collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	operations    *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	subscriptions *prometheus.GaugeVec
	events        *prometheus.CounterVec
}

// New registers obay's collectors plus the Go and process collectors on a
// fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "obay",
			Subsystem: "gateway",
			Name:      "operations_total",
			Help:      "Gateway operations by record kind, operation and outcome.",
		}, []string{"kind", "op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "obay",
			Subsystem: "gateway",
			Name:      "operation_seconds",
			Help:      "Gateway operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "op"}),
		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "obay",
			Subsystem: "feed",
			Name:      "subscriptions",
			Help:      "Open change subscriptions by record kind.",
		}, []string{"kind"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "obay",
			Subsystem: "feed",
			Name:      "events_total",
			Help:      "Change events delivered to subscribers by record kind and event name.",
		}, []string{"kind", "event"}),
	}
	m.registry.MustRegister(
		m.operations,
		m.latency,
		m.subscriptions,
		m.events,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveOperation records one gateway call. A nil receiver is a no-op.
func (m *Metrics) ObserveOperation(kind, op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(kind, op, outcome).Inc()
	m.latency.WithLabelValues(kind, op).Observe(elapsed.Seconds())
}

// SubscriptionOpened increments the open subscription gauge.
func (m *Metrics) SubscriptionOpened(kind string) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(kind).Inc()
}

// SubscriptionClosed decrements the open subscription gauge.
func (m *Metrics) SubscriptionClosed(kind string) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(kind).Dec()
}

// EventDelivered counts one change event sent to a subscriber.
func (m *Metrics) EventDelivered(kind, event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind, event).Inc()
}
