package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomcast_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomcast_http_request_duration_seconds",
			Help:    "HTTP request duration, excluding long-lived streams",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Fan-out metrics
	messagesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomcast_messages_ingested_total",
			Help: "Messages accepted by the store",
		},
		[]string{"source"},
	)

	eventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomcast_events_delivered_total",
			Help: "Events enqueued to live subscribers",
		},
		[]string{"type"},
	)

	deliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomcast_delivery_failures_total",
			Help: "Failed pushes that dropped a subscriber",
		},
		[]string{"reason"},
	)

	liveSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomcast_live_subscribers",
			Help: "Currently registered live streams",
		},
	)
)
