package ctxsync

import "github.com/prometheus/client_golang/prometheus"

var (
	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctxsync_client_messages_sent_total",
			Help: "Messages handed to the transport, by kind",
		},
		[]string{"kind"},
	)

	messagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctxsync_client_messages_received_total",
			Help: "Messages decoded from the transport, by kind",
		},
		[]string{"kind"},
	)

	failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctxsync_client_failures_total",
			Help: "Failures reported to the error handler, by error kind",
		},
		[]string{"error_kind"},
	)

	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctxsync_client_state_transitions_total",
			Help: "Protocol state transitions, by target state",
		},
		[]string{"state"},
	)
)

// RegisterMetrics registers the client collectors with r.
func RegisterMetrics(r prometheus.Registerer) {
	r.MustRegister(messagesSent, messagesReceived, failures, stateTransitions)
}
