package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Chat metrics for monitoring message admission, moderation and real-time delivery
var (
	// Admission metrics
	ChatMessageAdmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_message_admitted_total",
		Help: "Total number of messages admitted",
	}, []string{"has_attachment"})

	ChatMessageRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_message_rejected_total",
		Help: "Total number of messages rejected at admission",
	}, []string{"reason"}) // "validation", "attachment", "reference", "storage"

	ChatAdmissionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_admission_duration_seconds",
		Help:    "Time taken by the admission transaction",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	// Moderation metrics
	ChatAbuseReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_abuse_reports_total",
		Help: "Total number of abuse report calls",
	}, []string{"result"}) // "created", "duplicate", "already_hidden"

	ChatMessagesHiddenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_hidden_total",
		Help: "Total number of messages hidden by moderation",
	}, []string{"trigger"}) // "owner", "threshold"

	// Broadcast metrics
	ChatBroadcastQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_broadcast_queue_length",
		Help: "Current length of the broadcast job queue",
	})

	ChatBroadcastDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_broadcast_dropped_total",
		Help: "Total number of broadcast jobs dropped because the queue was full",
	})

	ChatBroadcastSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_broadcast_skipped_total",
		Help: "Total number of broadcast jobs skipped before publishing",
	}, []string{"reason"}) // "hidden", "missing"

	ChatBroadcastPanicTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_broadcast_panic_total",
		Help: "Total number of panics during broadcast",
	})

	ChatMessagePublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_message_published_total",
		Help: "Total number of events published to Redis",
	}, []string{"event", "status"})

	ChatPublishDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_publish_duration_seconds",
		Help:    "Time taken to publish a broadcast event",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	// WebSocket lifecycle metrics
	ChatWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_websocket_connections",
		Help: "Current number of active WebSocket connections",
	})

	ChatWebSocketConnectionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_websocket_connection_total",
		Help: "Total number of WebSocket connections",
	}, []string{"status"})

	ChatWebSocketMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_websocket_messages_total",
		Help: "Total number of WebSocket messages",
	}, []string{"direction"})

	ChatClientMessageDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_client_message_dropped_total",
		Help: "Total number of messages dropped to clients",
	}, []string{"reason"})

	ChatRedisSubscriptionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_redis_subscription_active",
		Help: "Current number of active Redis subscriptions",
	})
)
