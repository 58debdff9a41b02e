package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/phantombet/pkg/types"
)

// NextMarketID returns the id the next CreateMarket will allocate.
func (l *Ledger) NextMarketID() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.markets))
}

// GetMarket returns a snapshot of one market.
func (l *Ledger) GetMarket(marketID uint64) (*types.Market, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.lookup("markets", marketID)
	if err != nil {
		return nil, err
	}
	return state.market.Clone(), nil
}

// MarketOutcomes returns the ordered outcome labels of a market.
func (l *Ledger) MarketOutcomes(marketID uint64) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.lookup("getMarketOutcomes", marketID)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), state.market.Outcomes...), nil
}

// Bets returns snapshots of a bettor's bets on a market, in placement order.
func (l *Ledger) Bets(marketID uint64, bettor common.Address) ([]*types.Bet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.lookup("bets", marketID)
	if err != nil {
		return nil, err
	}

	bets := make([]*types.Bet, 0, len(state.bets[bettor]))
	for _, b := range state.bets[bettor] {
		bets = append(bets, b.Clone())
	}
	return bets, nil
}

// HasClaimed reports whether a bettor has been paid for a market.
func (l *Ledger) HasClaimed(marketID uint64, bettor common.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if marketID >= uint64(len(l.markets)) {
		return false
	}
	return l.markets[marketID].claimed[bettor]
}

// Balance returns the total paid out to an address so far.
func (l *Ledger) Balance(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Escrow returns the value still held by the ledger across all markets.
func (l *Ledger) Escrow() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.escrow)
}

// Oracle returns the identity currently allowed to settle.
func (l *Ledger) Oracle() common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.oracle
}

// Owner returns the ledger administrator.
func (l *Ledger) Owner() common.Address {
	return l.owner
}

// SettleableMarkets returns every market past its reveal deadline and not settled.
func (l *Ledger) SettleableMarkets() []*types.Market {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	var out []*types.Market
	for _, state := range l.markets {
		if state.market.SettleableAt(now) {
			out = append(out, state.market.Clone())
		}
	}
	return out
}

// Reader adapts a Ledger to the context-aware read surface the
// orchestrator consumes, so in-process and on-chain ledgers are interchangeable.
type Reader struct {
	ledger *Ledger
}

// NewReader wraps a ledger.
func NewReader(l *Ledger) *Reader {
	return &Reader{ledger: l}
}

// SettleableMarkets implements orchestrator.MarketReader.
func (r *Reader) SettleableMarkets(ctx context.Context) ([]*types.Market, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}
	return r.ledger.SettleableMarkets(), nil
}

// Market implements orchestrator.MarketReader.
func (r *Reader) Market(ctx context.Context, marketID uint64) (*types.Market, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}
	return r.ledger.GetMarket(marketID)
}

// Now implements orchestrator.MarketReader with the ledger's own clock.
func (r *Reader) Now(ctx context.Context) (time.Time, error) {
	err := ctx.Err()
	if err != nil {
		return time.Time{}, err
	}
	return r.ledger.clock(), nil
}
