package websocket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/mselser95/phantombet/pkg/types"
	"go.uber.org/zap"
)

// ClientConfig holds event stream client configuration.
type ClientConfig struct {
	URL         string
	DialTimeout time.Duration
	Reconnect   ReconnectConfig
	Buffer      int
	Logger      *zap.Logger
}

// Client follows a ledger event stream and redials when it drops.
type Client struct {
	url       string
	dialer    websocket.Dialer
	logger    *zap.Logger
	reconnect *ReconnectManager
	events    chan types.LedgerEvent
}

// NewClient creates an event stream client.
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.URL == "" {
		return nil, errors.New("url cannot be empty")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}

	return &Client{
		url:       cfg.URL,
		dialer:    websocket.Dialer{HandshakeTimeout: dialTimeout},
		logger:    cfg.Logger,
		reconnect: NewReconnectManager(cfg.Reconnect, cfg.Logger),
		events:    make(chan types.LedgerEvent, buffer),
	}, nil
}

// Events returns the decoded event channel. It is closed when Run returns.
func (c *Client) Events() <-chan types.LedgerEvent {
	return c.events
}

// Run reads the stream until ctx is done. A failed initial dial or exhausted
// reconnects are returned as errors; cancellation returns nil.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)

	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("initial connection: %w", err)
	}

	for {
		start := time.Now()
		err = c.readLoop(ctx, conn)
		_ = conn.Close()
		StreamDuration.Observe(time.Since(start).Seconds())

		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("stream-disconnected", zap.Error(err))

		err = c.reconnect.Reconnect(ctx, func(ctx context.Context) error {
			var dialErr error
			conn, dialErr = c.dial(ctx)
			return dialErr
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reconnect: %w", err)
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}
	c.logger.Info("stream-connected", zap.String("url", c.url))
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var ev types.LedgerEvent
		err = json.Unmarshal(data, &ev)
		if err != nil {
			MessagesDroppedTotal.WithLabelValues("decode").Inc()
			c.logger.Debug("stream-message-undecodable", zap.Error(err), zap.Int("bytes", len(data)))
			continue
		}
		MessagesReceivedTotal.WithLabelValues(string(ev.Kind)).Inc()

		select {
		case c.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
