package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	chatConnectionsActive prometheus.Gauge
	chatMessagesSent      prometheus.Counter
	chatMessagesBlocked   prometheus.Counter
	chatRateLimited       prometheus.Counter
	busEventsReplayed     *prometheus.CounterVec
	roomMembershipsActive prometheus.Gauge
	notificationsTotal    *prometheus.CounterVec
	sseClientsActive      prometheus.Gauge
	httpRequests          *prometheus.CounterVec
	httpLatency           *prometheus.HistogramVec
	httpErrors            *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the chat core.
func RegisterMetrics() {
	registerOnce.Do(func() {
		chatConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_connections_active",
			Help: "Number of websocket connections currently served by this instance.",
		})

		chatMessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total number of chat messages persisted and fanned out.",
		})

		chatMessagesBlocked = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_blocked_total",
			Help: "Total number of messages that required contact-leak redaction.",
		})

		chatRateLimited = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_rate_limited_total",
			Help: "Total number of sends rejected by the per-sender rate limit.",
		})

		busEventsReplayed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_bus_events_replayed_total",
			Help: "Broadcasts received from peer instances and replayed to local sockets.",
		}, []string{"kind"})

		roomMembershipsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_room_memberships_active",
			Help: "Number of (connection, room) join pairs currently held by this instance.",
		})

		notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Total number of notifications published, by type.",
		}, []string{"type"})

		sseClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sse_clients_active",
			Help: "Number of notification stream subscribers on this instance.",
		})

		httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests served.",
		}, []string{"method", "route", "status"})

		httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distribution.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

		httpErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_request_errors_total",
			Help: "Total number of HTTP requests answered with a 4xx or 5xx status.",
		}, []string{"method", "route", "status"})

		prometheus.MustRegister(
			chatConnectionsActive,
			chatMessagesSent,
			chatMessagesBlocked,
			chatRateLimited,
			busEventsReplayed,
			roomMembershipsActive,
			notificationsTotal,
			sseClientsActive,
			httpRequests,
			httpLatency,
			httpErrors,
		)
	})
}

// ChatConnectionsActive exposes the live connection gauge.
func ChatConnectionsActive() prometheus.Gauge {
	RegisterMetrics()
	return chatConnectionsActive
}

// ChatMessagesSent exposes the persisted-message counter.
func ChatMessagesSent() prometheus.Counter {
	RegisterMetrics()
	return chatMessagesSent
}

// ChatMessagesBlocked exposes the redacted-message counter.
func ChatMessagesBlocked() prometheus.Counter {
	RegisterMetrics()
	return chatMessagesBlocked
}

// ChatRateLimited exposes the throttled-send counter.
func ChatRateLimited() prometheus.Counter {
	RegisterMetrics()
	return chatRateLimited
}

// BusEventsReplayed exposes the peer-broadcast replay counter.
func BusEventsReplayed() *prometheus.CounterVec {
	RegisterMetrics()
	return busEventsReplayed
}

// RoomMembershipsActive exposes the local membership gauge.
func RoomMembershipsActive() prometheus.Gauge {
	RegisterMetrics()
	return roomMembershipsActive
}

// NotificationsPublishedTotal exposes the per-type notification counter.
func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsTotal
}

// SSEClientsActive exposes the notification stream subscriber gauge.
func SSEClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return sseClientsActive
}

// HTTPRequests exposes the HTTP request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequests
}

// HTTPLatency exposes the HTTP latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatency
}

// HTTPErrors exposes the HTTP error counter.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrors
}
