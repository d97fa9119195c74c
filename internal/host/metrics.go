package host

import "github.com/prometheus/client_golang/prometheus"

var (
	connectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ctxsync_host_connected_clients",
		Help: "Clients with an open channel to the host",
	})

	messagesIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctxsync_host_messages_received_total",
			Help: "Messages received from clients, by kind",
		},
		[]string{"kind"},
	)

	messagesOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctxsync_host_messages_sent_total",
			Help: "Messages queued to clients, by kind",
		},
		[]string{"kind"},
	)

	subscriptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctxsync_host_subscriptions_total",
			Help: "Subscription decisions, by outcome (accepted, rejected, replaced, promoted)",
		},
		[]string{"outcome"},
	)

	votes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctxsync_host_votes_total",
			Help: "Client context change requests resolved by the host, by outcome",
		},
		[]string{"outcome"},
	)
)

// RegisterMetrics registers the host collectors with r.
func RegisterMetrics(r prometheus.Registerer) {
	r.MustRegister(connectedClients, messagesIn, messagesOut, subscriptions, votes)
}
