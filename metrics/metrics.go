// Package metrics holds the Prometheus collectors for the social gates.
package metrics

import (
	"github.com/kasuganosora/nickfinder/social"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nickfinder"

// Gate names used as the "gate" label.
const (
	GatePoke    = "poke"
	GateMessage = "message"
	GateFriend  = "friend"
)

var (
	GateDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Gate decisions by gate and outcome code (\"allowed\" when allowed)",
		},
		[]string{"gate", "code"},
	)

	PokesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pokes_sent_total",
		Help:      "Pokes created",
	})

	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_sent_total",
		Help:      "Messages created",
	})

	PendingPokes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_pokes",
		Help:      "Pokes awaiting a response",
	})

	PendingFriendRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_friend_requests",
		Help:      "Friend requests awaiting a response",
	})

	SpamReports = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "spam_reports_total",
		Help:      "Pokes reported as spam",
	})

	DBOpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_open_connections",
		Help:      "Open database connections",
	})
)

// ObserveDecision counts one gate decision.
func ObserveDecision(gate string, d social.Decision) {
	code := d.Code
	if d.Allowed {
		code = "allowed"
	}
	GateDecisions.WithLabelValues(gate, code).Inc()
}
