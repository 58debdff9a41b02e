package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/phantombet/pkg/types"
	"go.uber.org/zap"
)

// FallbackReasoning is the justification carried by every fallback verdict.
// It is constant so failed nodes still produce identical verdicts.
const FallbackReasoning = "inference unavailable; verdict must not be used for settlement"

// Inferrer turns a question and its evidence into a Verdict.
type Inferrer struct {
	reasoner Reasoner
	timeout  time.Duration
	logger   *zap.Logger
}

// Config holds inferrer configuration.
type Config struct {
	Reasoner Reasoner // nil means every call falls back
	Timeout  time.Duration
	Logger   *zap.Logger
}

// New creates an inferrer.
func New(cfg *Config) (*Inferrer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Inferrer{
		reasoner: cfg.Reasoner,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
	}, nil
}

// Fallback is the deterministic verdict used when inference fails:
// the first outcome with confidence 0.
func Fallback(outcomes []string) types.Verdict {
	v := types.Verdict{OutcomeIndex: types.NoOutcome, Reasoning: FallbackReasoning}
	if len(outcomes) > 0 {
		v.Outcome = outcomes[0]
		v.OutcomeIndex = 0
	}
	return v
}

// Infer asks the reasoning service for a verdict. It never fails: network
// errors, service errors and malformed replies all yield Fallback(outcomes).
func (i *Inferrer) Infer(ctx context.Context, question string, outcomes []string, bundle *types.EvidenceBundle) types.Verdict {
	v, err := i.infer(ctx, question, outcomes, bundle)
	if err != nil {
		result := "error"
		if errors.Is(err, ErrMalformedVerdict) {
			result = "malformed"
		}
		InferencesTotal.WithLabelValues(result).Inc()
		i.logger.Warn("inference-fallback",
			zap.String("question", question),
			zap.Error(err))
		return Fallback(outcomes)
	}

	InferencesTotal.WithLabelValues("ok").Inc()
	i.logger.Debug("inference-complete",
		zap.String("outcome", v.Outcome),
		zap.Float64("confidence", v.Confidence))
	return v
}

func (i *Inferrer) infer(ctx context.Context, question string, outcomes []string, bundle *types.EvidenceBundle) (types.Verdict, error) {
	if i.reasoner == nil {
		return types.Verdict{}, errors.New("no reasoning service configured")
	}
	if len(outcomes) == 0 {
		return types.Verdict{}, fmt.Errorf("%w: no outcomes", ErrMalformedVerdict)
	}

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := i.reasoner.Complete(ctx, SystemPrompt, BuildPrompt(question, outcomes, bundle))
	InferenceDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return types.Verdict{}, err
	}

	return ParseVerdict(reply, outcomes)
}
