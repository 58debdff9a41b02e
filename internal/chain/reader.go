package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/phantombet/pkg/cache"
	"github.com/mselser95/phantombet/pkg/types"
	"go.uber.org/zap"
)

// Outcome lists never change after creation, so they can be cached for a long time.
const outcomesTTL = 24 * time.Hour

// Reader reads markets from a deployed ledger contract.
type Reader struct {
	backend Backend
	ledger  common.Address
	cache   cache.Cache
	logger  *zap.Logger
}

// ReaderConfig holds reader configuration. Cache is optional.
type ReaderConfig struct {
	Backend Backend
	Ledger  common.Address
	Cache   cache.Cache
	Logger  *zap.Logger
}

// NewReader creates a ledger reader.
func NewReader(cfg *ReaderConfig) (*Reader, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Backend == nil {
		return nil, errors.New("backend cannot be nil")
	}
	if cfg.Ledger == (common.Address{}) {
		return nil, errors.New("ledger address cannot be empty")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Reader{backend: cfg.Backend, ledger: cfg.Ledger, cache: cfg.Cache, logger: cfg.Logger}, nil
}

// NextMarketID returns the id the next created market will get.
func (r *Reader) NextMarketID(ctx context.Context) (uint64, error) {
	out, err := r.call(ctx, "nextMarketId", 0)
	if err != nil {
		return 0, err
	}
	next, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected nextMarketId type %T", out[0])
	}
	return next.Uint64(), nil
}

// Market reads one market, including its outcome labels.
func (r *Reader) Market(ctx context.Context, marketID uint64) (*types.Market, error) {
	var row struct {
		ID              *big.Int `abi:"id"`
		Question        string   `abi:"question"`
		BettingDeadline *big.Int `abi:"bettingDeadline"`
		RevealDeadline  *big.Int `abi:"revealDeadline"`
		Revealed        bool     `abi:"revealed"`
		FinalOutcome    *big.Int `abi:"finalOutcomeId"`
		Settled         bool     `abi:"settled"`
		TotalPool       *big.Int `abi:"totalPool"`
	}

	raw, err := callRaw(ctx, r.backend, ledgerABI, r.ledger, "markets", marketID, new(big.Int).SetUint64(marketID))
	if err != nil {
		return nil, err
	}
	err = ledgerABI.UnpackIntoInterface(&row, "markets", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack market %d: %w", marketID, err)
	}

	// Unknown ids read back as the zero struct.
	if row.RevealDeadline == nil || row.RevealDeadline.Sign() == 0 {
		return nil, &types.LedgerError{Op: "markets", MarketID: marketID, Err: types.ErrMarketNotFound}
	}

	outcomes, err := r.MarketOutcomes(ctx, marketID)
	if err != nil {
		return nil, err
	}

	m := &types.Market{
		ID:              marketID,
		Question:        row.Question,
		Outcomes:        outcomes,
		BettingDeadline: time.Unix(row.BettingDeadline.Int64(), 0).UTC(),
		RevealDeadline:  time.Unix(row.RevealDeadline.Int64(), 0).UTC(),
		TotalPool:       row.TotalPool,
		FinalOutcome:    types.NoOutcome,
		Settled:         row.Settled,
	}
	if row.Settled {
		m.FinalOutcome = int(row.FinalOutcome.Int64())
	}
	return m, nil
}

// MarketOutcomes returns a market's outcome labels, cached when a cache is set.
func (r *Reader) MarketOutcomes(ctx context.Context, marketID uint64) ([]string, error) {
	key := fmt.Sprintf("outcomes:%s:%d", r.ledger.Hex(), marketID)
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			if outcomes, ok := v.([]string); ok {
				return append([]string(nil), outcomes...), nil
			}
		}
	}

	out, err := r.call(ctx, "getMarketOutcomes", marketID, new(big.Int).SetUint64(marketID))
	if err != nil {
		return nil, err
	}
	outcomes, ok := out[0].([]string)
	if !ok {
		return nil, fmt.Errorf("unexpected outcomes type %T", out[0])
	}

	if r.cache != nil && len(outcomes) > 0 {
		r.cache.Set(key, append([]string(nil), outcomes...), outcomesTTL)
	}
	return outcomes, nil
}

// ChainTime returns the latest block timestamp, the clock the contract gates on.
func (r *Reader) ChainTime(ctx context.Context) (time.Time, error) {
	header, err := r.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("get latest header: %w", err)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// Now implements orchestrator.MarketReader with chain time.
func (r *Reader) Now(ctx context.Context) (time.Time, error) {
	return r.ChainTime(ctx)
}

// SettleableMarkets scans every market and returns those past their reveal
// deadline (by chain time) and not yet settled.
func (r *Reader) SettleableMarkets(ctx context.Context) ([]*types.Market, error) {
	start := time.Now()
	defer func() {
		ScanDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	next, err := r.NextMarketID(ctx)
	if err != nil {
		return nil, err
	}
	now, err := r.ChainTime(ctx)
	if err != nil {
		return nil, err
	}

	var out []*types.Market
	for id := uint64(0); id < next; id++ {
		m, err := r.Market(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read market %d: %w", id, err)
		}
		if m.SettleableAt(now) {
			out = append(out, m)
		}
	}

	r.logger.Debug("markets-scanned",
		zap.Uint64("markets", next),
		zap.Int("settleable", len(out)),
		zap.Time("chain-time", now))
	return out, nil
}

func (r *Reader) call(ctx context.Context, method string, marketID uint64, args ...any) ([]any, error) {
	return callContract(ctx, r.backend, ledgerABI, r.ledger, method, marketID, args...)
}

func callContract(
	ctx context.Context,
	backend Backend,
	parsed abi.ABI,
	to common.Address,
	method string,
	marketID uint64,
	args ...any,
) ([]any, error) {
	raw, err := callRaw(ctx, backend, parsed, to, method, marketID, args...)
	if err != nil {
		return nil, err
	}

	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return out, nil
}

func callRaw(
	ctx context.Context,
	backend Backend,
	parsed abi.ABI,
	to common.Address,
	method string,
	marketID uint64,
	args ...any,
) ([]byte, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	CallsTotal.WithLabelValues(method).Inc()
	raw, err := backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		CallErrorsTotal.WithLabelValues(method).Inc()
		return nil, mapRevert(method, marketID, fmt.Errorf("call %s: %w", method, err))
	}
	return raw, nil
}
