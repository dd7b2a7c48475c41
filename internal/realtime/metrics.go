package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "statusboard"

// Delivery results.
const (
	resultDelivered = "delivered"
	resultFailed    = "failed"
	resultSkipped   = "skipped"
)

var (
	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Number of registered subscriber connections",
		},
	)

	broadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "broadcasts_total",
			Help:      "Total broadcasts by event type",
		},
		[]string{"event_type"},
	)

	messagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "messages_sent_total",
			Help:      "Per-connection delivery attempts by result",
		},
		[]string{"result"},
	)

	sendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "send_duration_seconds",
			Help:      "Time to write one event to one connection",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	inboundDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "inbound_dropped_total",
			Help:      "Inbound frames dropped by the per-connection rate limit",
		},
	)
)
