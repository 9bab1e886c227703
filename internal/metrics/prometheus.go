package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesProcessed counts inbound messages by dispatcher branch
	MessagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comanda_messages_processed_total",
			Help: "Total number of inbound messages by handling branch",
		},
		[]string{"branch"},
	)

	// ValidationFailures counts rejected field inputs
	ValidationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comanda_validation_failures_total",
			Help: "Total number of field validation failures",
		},
		[]string{"field"},
	)

	// OrdersSubmitted counts finalized orders by submission outcome
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comanda_orders_submitted_total",
			Help: "Total number of order submissions by status",
		},
		[]string{"status"},
	)

	// ActiveSessions tracks the session store size
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "comanda_active_sessions",
			Help: "Number of sessions currently in the store",
		},
	)

	// SessionsEvicted counts idle-timeout evictions
	SessionsEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "comanda_sessions_evicted_total",
			Help: "Total number of sessions evicted by the idle sweep",
		},
	)

	// MessageHandlingDuration observes end-to-end inbound handling time
	MessageHandlingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "comanda_message_handling_seconds",
			Help:    "Time spent handling one inbound message",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		MessagesProcessed,
		ValidationFailures,
		OrdersSubmitted,
		ActiveSessions,
		SessionsEvicted,
		MessageHandlingDuration,
	)
}

// Handler returns the HTTP handler exposing the metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
