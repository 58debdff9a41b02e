package websocket

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/mselser95/phantombet/pkg/types"
	"go.uber.org/zap"
)

// EventSource publishes ledger notifications.
type EventSource interface {
	Subscribe(buffer int) (<-chan types.LedgerEvent, func())
}

// HubConfig holds event hub configuration.
type HubConfig struct {
	Source       EventSource
	Logger       *zap.Logger
	PingInterval time.Duration // default 30s
	WriteTimeout time.Duration // default 10s
	Buffer       int           // per-client event buffer, default 64
}

// Hub serves ledger notifications to websocket clients. Each client gets its
// own ledger subscription; a slow client misses events instead of stalling others.
type Hub struct {
	source       EventSource
	logger       *zap.Logger
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	writeTimeout time.Duration
	buffer       int

	quit      chan struct{}
	closeOnce sync.Once
}

// NewHub creates an event hub.
func NewHub(cfg *HubConfig) (*Hub, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Source == nil {
		return nil, errors.New("event source cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	h := &Hub{
		source:       cfg.Source,
		logger:       cfg.Logger,
		pingInterval: cfg.PingInterval,
		writeTimeout: cfg.WriteTimeout,
		buffer:       cfg.Buffer,
		quit:         make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	if h.pingInterval <= 0 {
		h.pingInterval = 30 * time.Second
	}
	if h.writeTimeout <= 0 {
		h.writeTimeout = 10 * time.Second
	}
	if h.buffer <= 0 {
		h.buffer = 64
	}
	return h, nil
}

// Close ends every open stream with a close frame. The HTTP server does not
// track hijacked connections, so this must be called on shutdown.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.quit) })
}

// ServeHTTP upgrades the request and streams events until either side hangs up.
// An optional ?market=<id> query restricts the stream to one market.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var (
		filtered bool
		marketID uint64
	)
	if q := r.URL.Query().Get("market"); q != "" {
		id, err := strconv.ParseUint(q, 10, 64)
		if err != nil {
			http.Error(w, "invalid market id", http.StatusBadRequest)
			return
		}
		filtered, marketID = true, id
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("ws-upgrade-failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, unsubscribe := h.source.Subscribe(h.buffer)
	defer unsubscribe()

	start := time.Now()
	ActiveStreams.Inc()
	defer func() {
		ActiveStreams.Dec()
		StreamDuration.Observe(time.Since(start).Seconds())
	}()

	h.logger.Info("ws-stream-opened", zap.String("remote-addr", r.RemoteAddr))

	pongWait := 2 * h.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Clients never send data; reading drives control frames and detects hang-ups.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			h.logger.Info("ws-stream-closed", zap.String("remote-addr", r.RemoteAddr))
			return
		case <-h.quit:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(h.writeTimeout))
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if filtered && ev.MarketID != marketID {
				continue
			}
			err := h.write(conn, ev)
			if err != nil {
				h.logger.Warn("ws-write-failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout))
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, ev types.LedgerEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	if err != nil {
		return err
	}
	MessagesSentTotal.WithLabelValues(string(ev.Kind)).Inc()
	return nil
}
