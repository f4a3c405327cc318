// Package metrics provides Prometheus collectors for the relay.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks negotiated sessions that have not reached a terminal state.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_sessions",
			Help: "Number of realtime sessions not yet closed",
		},
	)

	// SessionsNegotiated counts successful offer/answer exchanges.
	SessionsNegotiated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_sessions_negotiated_total",
			Help: "Total number of realtime sessions negotiated",
		},
	)

	// EphemeralSessionsIssued counts credentials minted through the provider.
	EphemeralSessionsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_ephemeral_sessions_issued_total",
			Help: "Total number of ephemeral provider sessions issued",
		},
	)

	// SessionStateTransitions tracks session state changes.
	SessionStateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_session_state_transitions_total",
			Help: "Total number of session state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	// ChannelMessages counts inbound data channel messages.
	ChannelMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_channel_messages_total",
			Help: "Total number of data channel messages received",
		},
	)

	// UtterancesAppended counts utterances written to the conversation store.
	UtterancesAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_utterances_appended_total",
			Help: "Total number of utterances appended to conversations",
		},
	)

	// ConversationsEvicted counts conversations removed by the expiry policy.
	ConversationsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_conversations_evicted_total",
			Help: "Total number of idle conversations evicted",
		},
	)

	// ProviderErrors counts non-success provider responses.
	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_provider_errors_total",
			Help: "Total number of failed provider calls",
		},
		[]string{"operation", "status"},
	)

	// ProviderRequestDuration tracks provider round-trip latency.
	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_provider_request_duration_seconds",
			Help:    "Duration of provider HTTP calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// RecordStateTransition records a session state change.
func RecordStateTransition(fromState, toState string) {
	SessionStateTransitions.WithLabelValues(fromState, toState).Inc()
}

// RecordProviderError records a failed provider call; status 0 means transport failure.
func RecordProviderError(operation string, status int) {
	ProviderErrors.WithLabelValues(operation, strconv.Itoa(status)).Inc()
}
