// Package metrics provides Prometheus instrumentation for the chat client.
// It exposes gauges for connection state and roster size, counters for
// connect attempts and message throughput, and a histogram for history
// fetch latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionState holds the numeric session state
	// (0 disconnected, 1 connecting, 2 connected, 3 error).
	ConnectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stompchat_connection_state",
		Help: "Current session state (0 disconnected, 1 connecting, 2 connected, 3 error)",
	})

	// ConnectAttempts counts connect attempts, labeled by result:
	// "success", "error" or "timeout".
	ConnectAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stompchat_connect_attempts_total",
		Help: "Total number of connect attempts",
	}, []string{"result"})

	// Reconnects counts transport reconnects that completed registration.
	Reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stompchat_reconnects_total",
		Help: "Total number of completed transport reconnects",
	})

	// MessagesTotal counts chat messages, labeled by type:
	// "sent", "received", "dropped" or "rejected".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stompchat_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"type"})

	// EventsDropped counts transport events discarded because the consumer was slow.
	EventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stompchat_transport_events_dropped_total",
		Help: "Total number of transport events dropped on a full channel",
	})

	// HistoryFetchDuration records conversation history fetch latency in seconds.
	HistoryFetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stompchat_history_fetch_duration_seconds",
		Help:    "Conversation history fetch latency in seconds",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// RosterSize tracks the number of online peers.
	RosterSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stompchat_roster_size",
		Help: "Current number of online peers in the roster",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionState,
		ConnectAttempts,
		Reconnects,
		MessagesTotal,
		EventsDropped,
		HistoryFetchDuration,
		RosterSize,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
