package evidence

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig controls per-source retries with exponential backoff and jitter.
type RetryConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterPercent     float64 // 0.2 = 20%
}

// DefaultRetryConfig returns the retry policy used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialDelay:      250 * time.Millisecond,
		MaxDelay:          2 * time.Second,
		BackoffMultiplier: 2.0,
		JitterPercent:     0.2,
	}
}

type backoff struct {
	cfg     RetryConfig
	current time.Duration
}

func newBackoff(cfg RetryConfig) *backoff {
	return &backoff{cfg: cfg, current: cfg.InitialDelay}
}

// wait sleeps for the current delay with jitter applied, then grows it.
func (b *backoff) wait(ctx context.Context) error {
	jitter := rand.Float64() * b.cfg.JitterPercent
	delay := time.Duration(float64(b.current) * (1.0 + jitter))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	next := time.Duration(float64(b.current) * b.cfg.BackoffMultiplier)
	if next > b.cfg.MaxDelay {
		next = b.cfg.MaxDelay
	}
	b.current = next
	return nil
}
