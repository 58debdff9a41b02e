package evidence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mselser95/phantombet/pkg/types"
	"go.uber.org/zap"
)

const (
	// FallbackSourceName names the synthetic entry used when no source answered.
	FallbackSourceName = "Background Knowledge"

	fallbackConfidence = 0.1
)

// Aggregator collects evidence for a question from its sources, one at a
// time in configured order. A failing source is dropped, never fatal.
type Aggregator struct {
	sources     []Source
	retry       RetryConfig
	callTimeout time.Duration
	logger      *zap.Logger
}

// Config holds aggregator configuration.
type Config struct {
	Sources     []Source
	Retry       RetryConfig
	CallTimeout time.Duration // per source call; 0 disables
	Logger      *zap.Logger
}

// New creates an aggregator.
func New(cfg *Config) (*Aggregator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries cannot be negative")
	}

	retry := cfg.Retry
	if retry.BackoffMultiplier < 1 {
		retry.BackoffMultiplier = 1
	}

	return &Aggregator{
		sources:     cfg.Sources,
		retry:       retry,
		callTimeout: cfg.CallTimeout,
		logger:      cfg.Logger,
	}, nil
}

// Aggregate builds the evidence bundle for a question. Every entry's capture
// time is set to asOf so identical source answers give identical bundles on
// every node. It only fails when ctx is done.
func (a *Aggregator) Aggregate(ctx context.Context, question string, asOf time.Time) (*types.EvidenceBundle, error) {
	bundle := &types.EvidenceBundle{Question: question}
	capturedAt := asOf.UTC()

	for _, src := range a.sources {
		ev, err := a.fetchWithRetry(ctx, src, question)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			if !errors.Is(err, ErrNoData) {
				a.logger.Warn("evidence-source-dropped",
					zap.String("source", src.Name()),
					zap.Error(err))
			}
			continue
		}

		ev = normalize(ev, src.Name(), capturedAt)
		if ev.Confidence <= 0 || ev.Payload == "" {
			continue
		}
		bundle.Entries = append(bundle.Entries, ev)
	}

	if len(bundle.Entries) == 0 {
		FallbackBundlesTotal.Inc()
		a.logger.Info("evidence-fallback", zap.String("question", question))
		bundle.Entries = append(bundle.Entries, Fallback(question, capturedAt))
	}

	return bundle, nil
}

// Fallback is the synthetic low-confidence entry used when no real source answered.
func Fallback(question string, capturedAt time.Time) types.Evidence {
	return types.Evidence{
		Source: FallbackSourceName,
		Payload: "No external data sources returned evidence. Judge the question from your own " +
			"background knowledge only: " + question,
		Confidence: fallbackConfidence,
		CapturedAt: capturedAt.UTC(),
		Fallback:   true,
	}
}

func (a *Aggregator) fetchWithRetry(ctx context.Context, src Source, question string) (types.Evidence, error) {
	bo := newBackoff(a.retry)
	name := src.Name()

	var lastErr error
	for attempt := 0; attempt <= a.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			SourceRetriesTotal.WithLabelValues(name).Inc()
			err := bo.wait(ctx)
			if err != nil {
				return types.Evidence{}, err
			}
		}

		ev, err := a.fetchOnce(ctx, src, question)
		switch {
		case err == nil:
			SourceFetchesTotal.WithLabelValues(name, "ok").Inc()
			return ev, nil
		case errors.Is(err, ErrNoData):
			SourceFetchesTotal.WithLabelValues(name, "no-data").Inc()
			return types.Evidence{}, err
		case ctx.Err() != nil:
			return types.Evidence{}, ctx.Err()
		}

		SourceFetchesTotal.WithLabelValues(name, "error").Inc()
		a.logger.Debug("evidence-fetch-failed",
			zap.String("source", name),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		lastErr = err
	}

	return types.Evidence{}, fmt.Errorf("%s failed after %d attempts: %w", name, a.retry.MaxRetries+1, lastErr)
}

func (a *Aggregator) fetchOnce(ctx context.Context, src Source, question string) (types.Evidence, error) {
	start := time.Now()
	defer func() {
		FetchDurationSeconds.WithLabelValues(src.Name()).Observe(time.Since(start).Seconds())
	}()

	if a.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.callTimeout)
		defer cancel()
	}
	return src.Fetch(ctx, question)
}

func normalize(ev types.Evidence, name string, capturedAt time.Time) types.Evidence {
	if ev.Source == "" {
		ev.Source = name
	}
	ev.Payload = strings.TrimSpace(ev.Payload)
	if math.IsNaN(ev.Confidence) {
		ev.Confidence = 0
	}
	ev.Confidence = math.Max(0, math.Min(1, ev.Confidence))
	ev.CapturedAt = capturedAt
	ev.Fallback = false
	return ev
}
