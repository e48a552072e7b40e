// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session lifecycle
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "switchboard_sessions_created_total",
			Help: "Total chat sessions started",
		},
	)

	SessionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_sessions_closed_total",
			Help: "Total chat sessions closed, by status at close",
		},
		[]string{"from"}, // "bot", "waiting", "agent"
	)

	MessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_messages_total",
			Help: "Total messages appended to sessions",
		},
		[]string{"sender"},
	)

	Escalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_escalations_total",
			Help: "Total sessions moved to the human queue",
		},
		[]string{"priority"},
	)

	Pickups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_pickups_total",
			Help: "Pickup attempts by result",
		},
		[]string{"result"}, // "assigned", "already_assigned", "agent_unavailable", "not_found", "error"
	)

	QueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "switchboard_queue_length",
			Help: "Sessions currently waiting for an agent",
		},
	)

	// Event routing
	Intents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_intents_total",
			Help: "Inbound intents by name and result",
		},
		[]string{"intent", "result"}, // result: "ok" or "rejected"
	)

	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_events_delivered_total",
			Help: "Outbound events handed to connections",
		},
		[]string{"event"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_events_dropped_total",
			Help: "Outbound events dropped because a connection was slow or gone",
		},
		[]string{"event"},
	)

	ConnectedClients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "switchboard_connected_clients",
			Help: "Currently attached connections by role",
		},
		[]string{"role"}, // "customer", "agent", "dashboard"
	)

	// Collaborators
	BotLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "switchboard_bot_latency_seconds",
			Help:    "Bot responder latency",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	NotifyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchboard_notify_failures_total",
			Help: "Failed waiting-customer notifications",
		},
		[]string{"channel"},
	)
)
