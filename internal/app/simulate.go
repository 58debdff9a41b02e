package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/phantombet/internal/evidence"
	"github.com/mselser95/phantombet/internal/inference"
	"github.com/mselser95/phantombet/pkg/commitment"
	"github.com/mselser95/phantombet/pkg/config"
	"github.com/mselser95/phantombet/pkg/types"
	"go.uber.org/zap"
)

// SimulationBet is one scripted bettor in a simulation.
type SimulationBet struct {
	Name    string
	Bettor  common.Address
	Outcome string
	Stake   *big.Int
	Reveal  bool
}

// SimulationResult summarizes a simulated market lifecycle.
type SimulationResult struct {
	MarketID uint64
	Question string
	Outcome  string
	Attempts []*types.SettlementAttempt
	Payouts  map[string]*big.Int // by bettor name; nil when the claim was rejected
	Errors   map[string]error    // claim errors by bettor name
}

// ManualClock is a settable clock for driving phases without waiting.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock starts a clock at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now returns the current simulated time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// StaticSource is an evidence source that always reports the same payload.
type StaticSource struct {
	SourceName string
	Payload    string
	Confidence float64
}

// Name implements evidence.Source.
func (s *StaticSource) Name() string { return s.SourceName }

// Fetch implements evidence.Source.
func (s *StaticSource) Fetch(ctx context.Context, question string) (types.Evidence, error) {
	return types.Evidence{Source: s.SourceName, Payload: s.Payload, Confidence: s.Confidence}, ctx.Err()
}

// ScriptedReasoner replies with a fixed verdict.
type ScriptedReasoner struct {
	Outcome    string
	Confidence float64
}

// Complete implements inference.Reasoner.
func (r *ScriptedReasoner) Complete(ctx context.Context, system string, prompt string) (string, error) {
	return fmt.Sprintf(`{"outcome": %q, "confidence": %.2f, "reasoning": "scripted"}`, r.Outcome, r.Confidence), ctx.Err()
}

// DefaultSimulationBets is the scenario used by the simulate command: two
// revealed bets on opposite sides and one winning bet that is never revealed.
func DefaultSimulationBets() []SimulationBet {
	return []SimulationBet{
		{Name: "alice", Bettor: common.HexToAddress("0x00000000000000000000000000000000000a11ce"), Outcome: "Yes", Stake: ether(2), Reveal: true},
		{Name: "bob", Bettor: common.HexToAddress("0x0000000000000000000000000000000000000b0b"), Outcome: "No", Stake: ether(1), Reveal: true},
		{Name: "carol", Bettor: common.HexToAddress("0x00000000000000000000000000000000000ca201"), Outcome: "Yes", Stake: ether(1), Reveal: false},
	}
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

// Simulate runs one full market lifecycle on an in-process ledger: create,
// sealed bets, reveals, a consensus round with scripted evidence and
// reasoning, settlement through the gateway, then claims.
func Simulate(ctx context.Context, cfg *config.Config, logger *zap.Logger, answer string, bets []SimulationBet) (*SimulationResult, error) {
	simCfg := *cfg
	simCfg.LedgerMode = config.LedgerModeSimnet
	simCfg.StorageMode = "console"
	simCfg.LockMode = "local"

	clock := NewManualClock(time.Now().UTC().Truncate(time.Second))
	a, err := New(ctx, &simCfg, logger, &Options{
		Clock: clock.Now,
		Sources: func() []evidence.Source {
			return []evidence.Source{&StaticSource{SourceName: "scripted", Payload: "reported outcome: " + answer, Confidence: 0.9}}
		},
		Reasoner: func() (inference.Reasoner, error) {
			return &ScriptedReasoner{Outcome: answer, Confidence: 0.92}, nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create app: %w", err)
	}
	defer a.closeAll()

	const phase = time.Hour
	question := "Will the simulated launch succeed?"
	l := a.Ledger()

	id, err := l.CreateMarket(a.NodeAddress(), question, []string{"Yes", "No"}, phase, phase)
	if err != nil {
		return nil, fmt.Errorf("create market: %w", err)
	}

	type placed struct {
		bet    SimulationBet
		secret string
		index  int
	}
	var sealed []placed
	for _, b := range bets {
		secret, err := commitment.NewSecret()
		if err != nil {
			return nil, err
		}
		commit, err := commitment.Commit(b.Stake, b.Outcome, secret)
		if err != nil {
			return nil, fmt.Errorf("commit %s: %w", b.Name, err)
		}
		idx, err := l.PlaceBet(b.Bettor, id, commit, b.Stake)
		if err != nil {
			return nil, fmt.Errorf("place bet %s: %w", b.Name, err)
		}
		sealed = append(sealed, placed{bet: b, secret: secret, index: idx})
	}

	clock.Advance(phase)
	for _, p := range sealed {
		if !p.bet.Reveal {
			continue
		}
		outcomeIdx := indexOf([]string{"Yes", "No"}, p.bet.Outcome)
		err = l.RevealBet(p.bet.Bettor, id, outcomeIdx, p.secret, p.index)
		if err != nil {
			return nil, fmt.Errorf("reveal %s: %w", p.bet.Name, err)
		}
	}

	clock.Advance(phase)
	attempts, err := a.RunOnce(ctx)
	if err != nil {
		return nil, err
	}

	market, err := l.GetMarket(id)
	if err != nil {
		return nil, err
	}

	result := &SimulationResult{
		MarketID: id,
		Question: question,
		Attempts: attempts,
		Payouts:  make(map[string]*big.Int),
		Errors:   make(map[string]error),
	}
	if !market.Settled {
		return result, errors.New("market was not settled")
	}
	result.Outcome = market.Outcomes[market.FinalOutcome]

	for _, b := range bets {
		payout, err := l.ClaimWinnings(b.Bettor, id)
		if err != nil {
			result.Errors[b.Name] = err
			continue
		}
		result.Payouts[b.Name] = payout
	}

	return result, nil
}

func indexOf(labels []string, label string) int {
	for i, l := range labels {
		if l == label {
			return i
		}
	}
	return types.NoOutcome
}
