package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatbot_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)

	// Relay pipeline
	MessagesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatbot_messages_posted_total",
			Help: "User messages persisted",
		},
	)

	PublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_publish_failures_total",
			Help: "Broker publish failures",
		},
		[]string{"reason"}, // "timeout" or "error"
	)

	RepliesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_replies_consumed_total",
			Help: "Bot replies consumed from the broker",
		},
		[]string{"outcome"}, // "pushed", "stored", "failed"
	)

	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatbot_live_connections",
			Help: "Open live connections",
		},
	)

	// Sessions
	SessionsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatbot_sessions_issued_total",
			Help: "Session tokens minted",
		},
	)

	SessionVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_session_verifications_total",
			Help: "Session token verifications",
		},
		[]string{"result"},
	)
)
