package websocket

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrReconnectExhausted is returned once MaxAttempts consecutive dials have failed.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// ReconnectConfig holds the configuration for exponential backoff reconnection.
type ReconnectConfig struct {
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterPercent     float64 // 0.2 = 20%
	MaxAttempts       int     // 0 = unlimited
}

// ReconnectManager redials an event stream with exponential backoff and jitter.
type ReconnectManager struct {
	config ReconnectConfig
	logger *zap.Logger

	mu             sync.Mutex
	currentBackoff time.Duration
}

// NewReconnectManager creates a new reconnection manager with the specified config.
func NewReconnectManager(cfg ReconnectConfig, logger *zap.Logger) *ReconnectManager {
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	return &ReconnectManager{
		config:         cfg,
		logger:         logger,
		currentBackoff: cfg.InitialDelay,
	}
}

// Reconnect waits out the current backoff and calls connect until it succeeds,
// the context ends, or MaxAttempts is reached.
func (rm *ReconnectManager) Reconnect(ctx context.Context, connect func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		backoff := rm.nextBackoff()
		rm.logger.Info("stream-reconnect-waiting",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		ReconnectAttemptsTotal.Inc()
		err := connect(ctx)
		if err == nil {
			rm.Reset()
			rm.logger.Info("stream-reconnected", zap.Int("attempt", attempt))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ReconnectFailuresTotal.Inc()
		rm.logger.Warn("stream-reconnect-failed", zap.Int("attempt", attempt), zap.Error(err))

		if rm.config.MaxAttempts > 0 && attempt >= rm.config.MaxAttempts {
			return ErrReconnectExhausted
		}
		rm.grow()
	}
}

// Reset resets the backoff to the initial delay.
func (rm *ReconnectManager) Reset() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.currentBackoff = rm.config.InitialDelay
}

// nextBackoff returns the current backoff with up to JitterPercent added.
func (rm *ReconnectManager) nextBackoff() time.Duration {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	jitter := rand.Float64() * rm.config.JitterPercent
	return time.Duration(float64(rm.currentBackoff) * (1.0 + jitter))
}

func (rm *ReconnectManager) grow() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.currentBackoff = min(time.Duration(float64(rm.currentBackoff)*rm.config.BackoffMultiplier), rm.config.MaxDelay)
}
