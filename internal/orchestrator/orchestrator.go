package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mselser95/phantombet/internal/lock"
	"github.com/mselser95/phantombet/internal/settlement"
	"github.com/mselser95/phantombet/internal/storage"
	"github.com/mselser95/phantombet/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MarketReader is the read side of the ledger. Now is the clock the ledger
// gates phases on, which for a deployed contract is the latest block time.
type MarketReader interface {
	SettleableMarkets(ctx context.Context) ([]*types.Market, error)
	Market(ctx context.Context, marketID uint64) (*types.Market, error)
	Now(ctx context.Context) (time.Time, error)
}

// RoundRunner runs one consensus round for a market.
type RoundRunner interface {
	Run(ctx context.Context, market *types.Market) (*types.RoundResult, error)
}

// Submitter attests and submits an agreed round.
type Submitter interface {
	Submit(ctx context.Context, round *types.RoundResult) (*types.Submission, error)
	Open() bool
}

// Orchestrator discovers settleable markets and drives one consensus and
// submission cycle per market.
type Orchestrator struct {
	reader    MarketReader
	consensus RoundRunner
	submitter Submitter
	storage   storage.Storage
	locker    lock.Locker
	logger    *zap.Logger
	now       func() time.Time

	confidenceThreshold float64
	minEvidenceSources  int
	maxConcurrent       int
	lockTTL             time.Duration

	mu       sync.RWMutex
	rounds   map[uint64]*types.RoundResult
	attempts map[uint64]*types.SettlementAttempt
}

// Config holds orchestrator configuration.
type Config struct {
	Reader    MarketReader
	Consensus RoundRunner
	Submitter Submitter
	Storage   storage.Storage
	Locker    lock.Locker // defaults to an in-process locker
	Logger    *zap.Logger
	Clock     func() time.Time

	ConfidenceThreshold float64
	MinEvidenceSources  int
	MaxConcurrent       int
	LockTTL             time.Duration
}

// New creates an orchestrator.
func New(cfg *Config) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Reader == nil {
		return nil, errors.New("market reader cannot be nil")
	}
	if cfg.Consensus == nil {
		return nil, errors.New("consensus cannot be nil")
	}
	if cfg.Submitter == nil {
		return nil, errors.New("submitter cannot be nil")
	}
	if cfg.Storage == nil {
		return nil, errors.New("storage cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.ConfidenceThreshold <= 0 || cfg.ConfidenceThreshold > 1 {
		return nil, fmt.Errorf("confidence threshold %v must be in (0,1]", cfg.ConfidenceThreshold)
	}
	if cfg.MinEvidenceSources < 0 {
		return nil, errors.New("min evidence sources cannot be negative")
	}

	o := &Orchestrator{
		reader:              cfg.Reader,
		consensus:           cfg.Consensus,
		submitter:           cfg.Submitter,
		storage:             cfg.Storage,
		locker:              cfg.Locker,
		logger:              cfg.Logger,
		now:                 cfg.Clock,
		confidenceThreshold: cfg.ConfidenceThreshold,
		minEvidenceSources:  cfg.MinEvidenceSources,
		maxConcurrent:       cfg.MaxConcurrent,
		lockTTL:             cfg.LockTTL,
		rounds:              make(map[uint64]*types.RoundResult),
		attempts:            make(map[uint64]*types.SettlementAttempt),
	}
	if o.locker == nil {
		o.locker = lock.NewLocalLocker()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.maxConcurrent <= 0 {
		o.maxConcurrent = 1
	}
	if o.lockTTL <= 0 {
		o.lockTTL = 5 * time.Minute
	}
	return o, nil
}

// RunOnce performs one discovery cycle and processes every qualifying market.
// Per-market problems never fail the cycle; only discovery errors do.
func (o *Orchestrator) RunOnce(ctx context.Context) ([]*types.SettlementAttempt, error) {
	start := time.Now()
	defer func() {
		CycleDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	markets, err := o.reader.SettleableMarkets(ctx)
	if err != nil {
		CyclesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("discover markets: %w", err)
	}
	CyclesTotal.WithLabelValues("ok").Inc()
	SettleableMarkets.Set(float64(len(markets)))

	o.logger.Info("discovery-cycle",
		zap.Int("settleable", len(markets)))

	attempts := make([]*types.SettlementAttempt, len(markets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrent)
	for i, m := range markets {
		g.Go(func() error {
			attempts[i] = o.processMarket(gctx, m.ID)
			return nil
		})
	}
	_ = g.Wait()

	return attempts, nil
}

// processMarket runs one cycle for one market and records the attempt.
func (o *Orchestrator) processMarket(ctx context.Context, marketID uint64) *types.SettlementAttempt {
	attempt := &types.SettlementAttempt{
		ID:          uuid.NewString(),
		MarketID:    marketID,
		AttemptedAt: o.now().UTC(),
	}
	o.settle(ctx, attempt)

	AttemptsTotal.WithLabelValues(attempt.Status, attempt.Reason).Inc()
	o.logAttempt(attempt)

	// Storage is an audit trail; a write failure must not affect settlement.
	err := o.storage.StoreAttempt(context.WithoutCancel(ctx), attempt)
	if err != nil {
		o.logger.Error("store-attempt-failed",
			zap.Uint64("market-id", marketID),
			zap.Error(err))
	}

	o.mu.Lock()
	o.attempts[marketID] = attempt
	o.mu.Unlock()

	return attempt
}

func (o *Orchestrator) settle(ctx context.Context, a *types.SettlementAttempt) {
	unlock, err := o.locker.Acquire(ctx, lock.MarketKey(a.MarketID), o.lockTTL)
	if errors.Is(err, lock.ErrLockHeld) {
		skip(a, types.ReasonLocked)
		return
	}
	if err != nil {
		fail(a, "acquire-lock", err)
		return
	}
	defer unlock()

	// Re-read under the lock: another replica may have settled it meanwhile.
	market, err := o.reader.Market(ctx, a.MarketID)
	if err != nil {
		fail(a, "read-market", err)
		return
	}
	if market.Settled {
		skip(a, types.ReasonAlreadySettled)
		return
	}
	ledgerNow, err := o.reader.Now(ctx)
	if err != nil {
		fail(a, "read-ledger-time", err)
		return
	}
	if !market.SettleableAt(ledgerNow) {
		skip(a, types.ReasonNotPastDeadline)
		return
	}

	if o.submitter.Open() {
		skip(a, types.ReasonBreakerOpen)
		return
	}

	round, err := o.consensus.Run(ctx, market)
	if err != nil {
		if ctx.Err() != nil {
			fail(a, "consensus", err)
			return
		}
		skip(a, types.ReasonNoConsensus)
		a.Error = err.Error()
		return
	}

	o.mu.Lock()
	o.rounds[a.MarketID] = round
	o.mu.Unlock()

	a.RoundID = round.RoundID
	a.Outcome = round.Verdict.Outcome
	a.Confidence = round.Verdict.Confidence
	a.Agreeing = round.Agreeing
	a.Nodes = round.Nodes

	if round.RealSources < o.minEvidenceSources {
		skip(a, types.ReasonInsufficientEvidence)
		return
	}
	if round.Verdict.Confidence < o.confidenceThreshold {
		skip(a, types.ReasonLowConfidence)
		return
	}

	sub, err := o.submitter.Submit(ctx, round)
	switch {
	case errors.Is(err, settlement.ErrBreakerOpen):
		skip(a, types.ReasonBreakerOpen)
	case errors.Is(err, types.ErrAlreadySettled):
		skip(a, types.ReasonAlreadySettled)
	case err != nil:
		a.Status = types.AttemptFailed
		a.Reason = types.ReasonSubmissionFailed
		a.Error = err.Error()
	default:
		a.Status = types.AttemptSubmitted
		a.TxHash = sub.TxHash.Hex()
	}
}

func skip(a *types.SettlementAttempt, reason string) {
	a.Status = types.AttemptSkipped
	a.Reason = reason
}

func fail(a *types.SettlementAttempt, stage string, err error) {
	a.Status = types.AttemptFailed
	a.Error = fmt.Sprintf("%s: %v", stage, err)
}

func (o *Orchestrator) logAttempt(a *types.SettlementAttempt) {
	fields := []zap.Field{
		zap.Uint64("market-id", a.MarketID),
		zap.String("attempt-id", a.ID),
	}
	if a.RoundID != "" {
		fields = append(fields,
			zap.String("round-id", a.RoundID),
			zap.String("outcome", a.Outcome),
			zap.Float64("confidence", a.Confidence))
	}

	switch a.Status {
	case types.AttemptSubmitted:
		o.logger.Info("market-settled", append(fields, zap.String("tx-hash", a.TxHash))...)
	case types.AttemptSkipped:
		o.logger.Info("market-skipped", append(fields, zap.String("reason", a.Reason))...)
	default:
		o.logger.Warn("market-attempt-failed", append(fields,
			zap.String("reason", a.Reason),
			zap.String("error", a.Error))...)
	}
}

// Rounds returns the last round reached per market, ordered by market id.
func (o *Orchestrator) Rounds() []*types.RoundResult {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]*types.RoundResult, 0, len(o.rounds))
	for _, r := range o.rounds {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out
}

// Attempts returns the last attempt per market, ordered by market id.
func (o *Orchestrator) Attempts() []*types.SettlementAttempt {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]*types.SettlementAttempt, 0, len(o.attempts))
	for _, a := range o.attempts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out
}

// SettleableMarkets exposes the discovery view.
func (o *Orchestrator) SettleableMarkets(ctx context.Context) ([]*types.Market, error) {
	return o.reader.SettleableMarkets(ctx)
}
