package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// ActiveStreams tracks websocket clients currently attached to the event hub.
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phantombet_ws_active_streams",
		Help: "Number of websocket clients attached to the ledger event stream",
	})

	// MessagesSentTotal tracks events written to stream clients by kind.
	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phantombet_ws_messages_sent_total",
			Help: "Total number of ledger events written to websocket clients",
		},
		[]string{"kind"},
	)

	// MessagesReceivedTotal tracks events read by the stream client by kind.
	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phantombet_ws_messages_received_total",
			Help: "Total number of ledger events read from the websocket stream",
		},
		[]string{"kind"},
	)

	// MessagesDroppedTotal tracks events the client could not deliver or decode.
	MessagesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phantombet_ws_messages_dropped_total",
			Help: "Total number of websocket messages dropped",
		},
		[]string{"reason"},
	)

	// ReconnectAttemptsTotal tracks reconnection attempts.
	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phantombet_ws_reconnect_attempts_total",
		Help: "Total number of websocket reconnection attempts",
	})

	// ReconnectFailuresTotal tracks reconnection failures.
	ReconnectFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phantombet_ws_reconnect_failures_total",
		Help: "Total number of websocket reconnection failures",
	})

	// StreamDuration tracks stream connection lifetime.
	StreamDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "phantombet_ws_stream_duration_seconds",
		Help:    "Duration of websocket streams before disconnect",
		Buckets: []float64{1, 10, 60, 300, 1800, 3600, 14400, 86400},
	})
)
