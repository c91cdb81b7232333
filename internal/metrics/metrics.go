// Package metrics holds the Prometheus collectors for the API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Registry = prometheus.NewRegistry()

var (
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tabletap",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tabletap",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	OrderTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tabletap",
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Successful order operations by type",
		},
		[]string{"operation"},
	)

	ConflictRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tabletap",
			Subsystem: "orders",
			Name:      "conflict_retries_total",
			Help:      "Order writes retried after a concurrent update",
		},
		[]string{"operation"},
	)

	Payments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tabletap",
			Subsystem: "payments",
			Name:      "total",
			Help:      "Payment events by outcome",
		},
		[]string{"outcome"},
	)

	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tabletap",
			Subsystem: "ws",
			Name:      "subscribers",
			Help:      "Connected real-time subscribers",
		},
	)

	DroppedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tabletap",
			Subsystem: "ws",
			Name:      "dropped_events_total",
			Help:      "Real-time events not delivered",
		},
		[]string{"reason"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPDuration,
		HTTPRequests,
		OrderTransitions,
		ConflictRetries,
		Payments,
		Subscribers,
		DroppedEvents,
	)
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
