package ledger

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/phantombet/pkg/commitment"
	"github.com/mselser95/phantombet/pkg/types"
	"go.uber.org/zap"
)

// EmptyPoolPolicy decides what claims do when nobody revealed a bet on the
// winning outcome.
type EmptyPoolPolicy int

const (
	// RefundRevealed lets every bettor claim back their own revealed stakes once.
	RefundRevealed EmptyPoolPolicy = iota
	// LockFunds rejects every claim with NoWinnings; funds stay in the market.
	LockFunds
)

// Ledger is the authoritative market state machine. Every mutating operation
// runs as one serialized unit, so concurrent reveals of one bet or concurrent
// claims for one bettor resolve to exactly one success.
type Ledger struct {
	mu       sync.Mutex
	owner    common.Address
	oracle   common.Address
	clock    func() time.Time
	policy   EmptyPoolPolicy
	logger   *zap.Logger
	markets  []*marketState
	balances map[common.Address]*big.Int
	escrow   *big.Int
	subs     map[int]chan types.LedgerEvent
	nextSub  int
}

type marketState struct {
	market  *types.Market
	bets    map[common.Address][]*types.Bet
	claimed map[common.Address]bool
}

// Config holds ledger configuration.
type Config struct {
	Owner           common.Address // administrator: may change the oracle
	Oracle          common.Address // the only identity allowed to call Settle
	Clock           func() time.Time
	EmptyPoolPolicy EmptyPoolPolicy
	Logger          *zap.Logger
}

// New creates an empty ledger.
func New(cfg *Config) *Ledger {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Ledger{
		owner:    cfg.Owner,
		oracle:   cfg.Oracle,
		clock:    clock,
		policy:   cfg.EmptyPoolPolicy,
		logger:   logger,
		balances: make(map[common.Address]*big.Int),
		escrow:   new(big.Int),
		subs:     make(map[int]chan types.LedgerEvent),
	}
}

// CreateMarket allocates a new market whose betting window starts now.
func (l *Ledger) CreateMarket(
	caller common.Address,
	question string,
	outcomes []string,
	bettingDuration time.Duration,
	revealDuration time.Duration,
) (marketID uint64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	nextID := uint64(len(l.markets))
	defer func() { observe(OpCreateMarket, err) }()

	if len(outcomes) < 2 || hasDuplicateOrEmpty(outcomes) {
		return 0, &types.LedgerError{Op: OpCreateMarket, MarketID: nextID, Err: types.ErrInvalidOutcomes}
	}
	if bettingDuration <= 0 || revealDuration <= 0 {
		return 0, &types.LedgerError{Op: OpCreateMarket, MarketID: nextID, Err: types.ErrInvalidDuration}
	}

	now := l.clock()
	bettingDeadline := now.Add(bettingDuration)

	pools := make([]*big.Int, len(outcomes))
	for i := range pools {
		pools[i] = new(big.Int)
	}

	market := &types.Market{
		ID:              nextID,
		Question:        question,
		Outcomes:        append([]string(nil), outcomes...),
		BettingDeadline: bettingDeadline,
		RevealDeadline:  bettingDeadline.Add(revealDuration),
		TotalPool:       new(big.Int),
		RevealedPools:   pools,
		FinalOutcome:    types.NoOutcome,
	}

	l.markets = append(l.markets, &marketState{
		market:  market,
		bets:    make(map[common.Address][]*types.Bet),
		claimed: make(map[common.Address]bool),
	})

	l.logger.Info("market-created",
		zap.Uint64("market-id", nextID),
		zap.String("question", question),
		zap.Strings("outcomes", outcomes),
		zap.String("creator", caller.Hex()),
		zap.Time("betting-deadline", market.BettingDeadline),
		zap.Time("reveal-deadline", market.RevealDeadline))

	l.emit(types.LedgerEvent{
		Kind:            types.EventMarketCreated,
		MarketID:        nextID,
		Question:        question,
		BettingDeadline: market.BettingDeadline,
	})

	return nextID, nil
}

// PlaceBet records a sealed commitment with the attached stake.
// It returns the bet's index among the caller's bets on this market.
func (l *Ledger) PlaceBet(caller common.Address, marketID uint64, commit common.Hash, value *big.Int) (betIndex int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { observe(OpPlaceBet, err) }()

	state, err := l.lookup(OpPlaceBet, marketID)
	if err != nil {
		return 0, err
	}

	if state.market.PhaseAt(l.clock()) != types.PhaseBetting {
		return 0, &types.LedgerError{Op: OpPlaceBet, MarketID: marketID, Err: types.ErrMarketNotBetting}
	}
	if value == nil || value.Sign() <= 0 {
		return 0, &types.LedgerError{Op: OpPlaceBet, MarketID: marketID, Err: types.ErrZeroStake}
	}

	stake := new(big.Int).Set(value)
	betIndex = len(state.bets[caller])
	state.bets[caller] = append(state.bets[caller], &types.Bet{
		MarketID:     marketID,
		Bettor:       caller,
		Index:        betIndex,
		Commitment:   commit,
		Amount:       stake,
		OutcomeIndex: types.NoOutcome,
	})
	state.market.TotalPool.Add(state.market.TotalPool, stake)
	l.escrow.Add(l.escrow, stake)

	l.logger.Info("bet-placed",
		zap.Uint64("market-id", marketID),
		zap.String("bettor", caller.Hex()),
		zap.String("commitment", commit.Hex()),
		zap.String("amount", stake.String()))

	l.emit(types.LedgerEvent{
		Kind:       types.EventBetPlaced,
		MarketID:   marketID,
		Bettor:     caller,
		Commitment: commit,
		Amount:     new(big.Int).Set(stake),
	})

	return betIndex, nil
}

// RevealBet opens a sealed bet and counts its stake toward the chosen outcome.
func (l *Ledger) RevealBet(caller common.Address, marketID uint64, outcomeIndex int, secret string, betIndex int) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { observe(OpRevealBet, err) }()

	state, err := l.lookup(OpRevealBet, marketID)
	if err != nil {
		return err
	}
	market := state.market

	if market.PhaseAt(l.clock()) != types.PhaseRevealing {
		return &types.LedgerError{Op: OpRevealBet, MarketID: marketID, Err: types.ErrMarketNotRevealing}
	}

	bets := state.bets[caller]
	if betIndex < 0 || betIndex >= len(bets) {
		return &types.LedgerError{Op: OpRevealBet, MarketID: marketID, Err: types.ErrBetNotFound}
	}
	bet := bets[betIndex]

	if bet.Revealed {
		return &types.LedgerError{Op: OpRevealBet, MarketID: marketID, Err: types.ErrAlreadyRevealed}
	}
	if outcomeIndex < 0 || outcomeIndex >= len(market.Outcomes) {
		return &types.LedgerError{Op: OpRevealBet, MarketID: marketID, Err: types.ErrInvalidOutcomeIndex}
	}

	label := market.Outcomes[outcomeIndex]
	if !commitment.Verify(bet.Commitment, bet.Amount, label, secret) {
		return &types.LedgerError{Op: OpRevealBet, MarketID: marketID, Err: types.ErrInvalidCommitment}
	}

	bet.Revealed = true
	bet.OutcomeIndex = outcomeIndex
	market.RevealedPools[outcomeIndex].Add(market.RevealedPools[outcomeIndex], bet.Amount)

	l.logger.Info("bet-revealed",
		zap.Uint64("market-id", marketID),
		zap.String("bettor", caller.Hex()),
		zap.Int("bet-index", betIndex),
		zap.String("outcome", label),
		zap.String("amount", bet.Amount.String()))

	l.emit(types.LedgerEvent{
		Kind:         types.EventBetRevealed,
		MarketID:     marketID,
		Bettor:       caller,
		OutcomeLabel: label,
		Amount:       new(big.Int).Set(bet.Amount),
	})

	return nil
}

// Settle writes the final outcome. Only the configured oracle may call it.
// The proof is carried for the record and never interpreted here.
func (l *Ledger) Settle(caller common.Address, marketID uint64, outcomeLabel string, proof []byte) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { observe(OpSettle, err) }()

	if caller != l.oracle {
		return &types.LedgerError{Op: OpSettle, MarketID: marketID, Err: types.ErrNotOracle}
	}

	state, err := l.lookup(OpSettle, marketID)
	if err != nil {
		return err
	}
	market := state.market

	if market.Settled {
		return &types.LedgerError{Op: OpSettle, MarketID: marketID, Err: types.ErrAlreadySettled}
	}
	if l.clock().Before(market.RevealDeadline) {
		return &types.LedgerError{Op: OpSettle, MarketID: marketID, Err: types.ErrRevealNotEnded}
	}

	index, ok := market.OutcomeIndex(outcomeLabel)
	if !ok {
		return &types.LedgerError{Op: OpSettle, MarketID: marketID, Err: types.ErrUnknownOutcome}
	}

	market.FinalOutcome = index
	market.Settled = true

	l.logger.Info("market-settled",
		zap.Uint64("market-id", marketID),
		zap.String("outcome", outcomeLabel),
		zap.Int("outcome-index", index),
		zap.Int("proof-bytes", len(proof)),
		zap.String("winning-pool", market.RevealedPools[index].String()),
		zap.String("total-pool", market.TotalPool.String()))

	l.emit(types.LedgerEvent{
		Kind:         types.EventMarketSettled,
		MarketID:     marketID,
		OutcomeLabel: outcomeLabel,
	})

	return nil
}

// ClaimWinnings pays the caller's share of a settled market and returns the amount.
func (l *Ledger) ClaimWinnings(caller common.Address, marketID uint64) (payout *big.Int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() { observe(OpClaimWinnings, err) }()

	state, err := l.lookup(OpClaimWinnings, marketID)
	if err != nil {
		return nil, err
	}
	market := state.market

	if !market.Settled {
		return nil, &types.LedgerError{Op: OpClaimWinnings, MarketID: marketID, Err: types.ErrNotSettled}
	}
	if state.claimed[caller] {
		return nil, &types.LedgerError{Op: OpClaimWinnings, MarketID: marketID, Err: types.ErrAlreadyClaimed}
	}

	payout = l.entitlement(market, state.bets[caller])
	if payout.Sign() == 0 {
		return nil, &types.LedgerError{Op: OpClaimWinnings, MarketID: marketID, Err: types.ErrNoWinnings}
	}

	state.claimed[caller] = true
	refund := market.RevealedPools[market.FinalOutcome].Sign() == 0
	for _, bet := range state.bets[caller] {
		if bet.Revealed && (refund || bet.OutcomeIndex == market.FinalOutcome) {
			bet.Claimed = true
		}
	}

	balance, ok := l.balances[caller]
	if !ok {
		balance = new(big.Int)
		l.balances[caller] = balance
	}
	balance.Add(balance, payout)
	l.escrow.Sub(l.escrow, payout)

	l.logger.Info("winnings-claimed",
		zap.Uint64("market-id", marketID),
		zap.String("bettor", caller.Hex()),
		zap.String("amount", payout.String()))

	l.emit(types.LedgerEvent{
		Kind:     types.EventWinningsClaimed,
		MarketID: marketID,
		Bettor:   caller,
		Amount:   new(big.Int).Set(payout),
	})

	return new(big.Int).Set(payout), nil
}

// entitlement computes the caller's payout. Each winning bet pays
// stake * totalPool / winningPool with integer division; the dust stays in escrow.
func (l *Ledger) entitlement(market *types.Market, bets []*types.Bet) *big.Int {
	payout := new(big.Int)
	winningPool := market.RevealedPools[market.FinalOutcome]

	if winningPool.Sign() == 0 {
		if l.policy != RefundRevealed {
			return payout
		}
		for _, bet := range bets {
			if bet.Revealed {
				payout.Add(payout, bet.Amount)
			}
		}
		return payout
	}

	share := new(big.Int)
	for _, bet := range bets {
		if !bet.Revealed || bet.OutcomeIndex != market.FinalOutcome {
			continue
		}
		share.Mul(bet.Amount, market.TotalPool)
		share.Quo(share, winningPool)
		payout.Add(payout, share)
	}
	return payout
}

// SetOracle changes the identity allowed to settle. Owner only.
func (l *Ledger) SetOracle(caller common.Address, oracle common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if caller != l.owner {
		return &types.LedgerError{Op: OpSetOracle, Err: types.ErrNotAdmin}
	}

	l.logger.Info("oracle-changed",
		zap.String("old", l.oracle.Hex()),
		zap.String("new", oracle.Hex()))
	l.oracle = oracle
	return nil
}

func (l *Ledger) lookup(op string, marketID uint64) (*marketState, error) {
	if marketID >= uint64(len(l.markets)) {
		return nil, &types.LedgerError{Op: op, MarketID: marketID, Err: types.ErrMarketNotFound}
	}
	return l.markets[marketID], nil
}

func hasDuplicateOrEmpty(outcomes []string) bool {
	seen := make(map[string]struct{}, len(outcomes))
	for _, o := range outcomes {
		if o == "" {
			return true
		}
		if _, ok := seen[o]; ok {
			return true
		}
		seen[o] = struct{}{}
	}
	return false
}
