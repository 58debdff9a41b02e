package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/phantombet/pkg/types"
	"go.uber.org/zap"
)

// ErrBreakerOpen means the gas breaker is holding submissions back.
var ErrBreakerOpen = errors.New("submission breaker open")

// Gateway is the authenticated settlement write path.
type Gateway interface {
	ReceiveSettlement(ctx context.Context, marketID uint64, outcomeLabel string, proof []byte) (*types.Submission, error)
}

// MarketVerifier re-reads a market after submission.
type MarketVerifier interface {
	Market(ctx context.Context, marketID uint64) (*types.Market, error)
}

// Gate reports whether submissions are allowed.
type Gate interface {
	IsEnabled() bool
}

// Submitter turns an agreed round into an attested settlement and submits it.
type Submitter struct {
	gateway  Gateway
	attestor Attestor
	verifier MarketVerifier
	breaker  Gate
	logger   *zap.Logger
}

// Config holds submitter configuration. Verifier and Breaker are optional.
type Config struct {
	Gateway  Gateway
	Attestor Attestor
	Verifier MarketVerifier
	Breaker  Gate
	Logger   *zap.Logger
}

// New creates a submitter.
func New(cfg *Config) (*Submitter, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Gateway == nil {
		return nil, errors.New("gateway cannot be nil")
	}
	if cfg.Attestor == nil {
		return nil, errors.New("attestor cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Submitter{
		gateway:  cfg.Gateway,
		attestor: cfg.Attestor,
		verifier: cfg.Verifier,
		breaker:  cfg.Breaker,
		logger:   cfg.Logger,
	}, nil
}

// Open reports whether the breaker currently blocks submissions.
func (s *Submitter) Open() bool {
	return s.breaker != nil && !s.breaker.IsEnabled()
}

// Submit attests the round's verdict and writes it through the gateway.
func (s *Submitter) Submit(ctx context.Context, round *types.RoundResult) (sub *types.Submission, err error) {
	start := time.Now()
	defer func() {
		SubmissionDurationSeconds.Observe(time.Since(start).Seconds())
		switch {
		case errors.Is(err, ErrBreakerOpen):
			SubmissionsTotal.WithLabelValues("breaker-open").Inc()
		case err != nil:
			SubmissionsTotal.WithLabelValues("error").Inc()
		default:
			SubmissionsTotal.WithLabelValues("success").Inc()
		}
	}()

	if s.Open() {
		return nil, ErrBreakerOpen
	}

	report, err := NewReport(round)
	if err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}

	proof, err := s.attestor.Attest(report)
	if err != nil {
		return nil, fmt.Errorf("attest report: %w", err)
	}

	sub, err = s.gateway.ReceiveSettlement(ctx, report.MarketID, report.Outcome, proof)
	if err != nil {
		return nil, fmt.Errorf("submit settlement: %w", err)
	}

	s.logger.Info("settlement-submitted",
		zap.Uint64("market-id", report.MarketID),
		zap.String("round-id", report.RoundID),
		zap.String("outcome", report.Outcome),
		zap.Uint64("confidence-bps", ConfidenceBps(report.Confidence)),
		zap.String("signer", s.attestor.Address().Hex()),
		zap.String("tx-hash", sub.TxHash.Hex()),
		zap.String("status", sub.Status))

	s.verify(ctx, report)
	return sub, nil
}

// verify re-reads the market and logs whether the settlement is visible.
func (s *Submitter) verify(ctx context.Context, report *types.SettlementReport) {
	if s.verifier == nil {
		return
	}

	market, err := s.verifier.Market(ctx, report.MarketID)
	if err != nil {
		s.logger.Warn("settlement-verify-failed",
			zap.Uint64("market-id", report.MarketID),
			zap.Error(err))
		return
	}

	if !market.Settled || market.FinalOutcome != report.OutcomeIndex {
		VerificationMismatchesTotal.Inc()
		s.logger.Warn("settlement-not-visible",
			zap.Uint64("market-id", report.MarketID),
			zap.Bool("settled", market.Settled),
			zap.Int("final-outcome", market.FinalOutcome),
			zap.Int("expected-outcome", report.OutcomeIndex))
		return
	}

	s.logger.Info("settlement-verified",
		zap.Uint64("market-id", report.MarketID),
		zap.String("outcome", report.Outcome))
}
