package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Phase is the lifecycle stage of a market. It is derived from wall-clock time
// and the sticky settled flag, never stored.
type Phase int

const (
	// PhaseBetting accepts sealed commitments (now < bettingDeadline).
	PhaseBetting Phase = iota
	// PhaseRevealing accepts reveals (bettingDeadline <= now < revealDeadline).
	PhaseRevealing
	// PhaseAwaitingSettlement is past the reveal deadline with no settlement written yet.
	PhaseAwaitingSettlement
	// PhaseSettled is terminal.
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseBetting:
		return "betting"
	case PhaseRevealing:
		return "revealing"
	case PhaseAwaitingSettlement:
		return "awaiting-settlement"
	case PhaseSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// NoOutcome marks an unset outcome index (unrevealed bet, unsettled market).
const NoOutcome = -1

// Market is a snapshot of one market held by the ledger.
type Market struct {
	ID              uint64     `json:"id"`
	Question        string     `json:"question"`
	Outcomes        []string   `json:"outcomes"`
	BettingDeadline time.Time  `json:"bettingDeadline"`
	RevealDeadline  time.Time  `json:"revealDeadline"`
	TotalPool       *big.Int   `json:"totalPool"`
	RevealedPools   []*big.Int `json:"revealedPools"` // indexed like Outcomes
	FinalOutcome    int        `json:"finalOutcome"`
	Settled         bool       `json:"settled"`
}

// PhaseAt returns the market phase at the given instant. Deadlines are
// exclusive upper bounds: at now == bettingDeadline betting is already over.
func (m *Market) PhaseAt(now time.Time) Phase {
	if m.Settled {
		return PhaseSettled
	}
	if now.Before(m.BettingDeadline) {
		return PhaseBetting
	}
	if now.Before(m.RevealDeadline) {
		return PhaseRevealing
	}
	return PhaseAwaitingSettlement
}

// SettleableAt reports whether the orchestrator should pick the market up:
// now >= revealDeadline and not yet settled.
func (m *Market) SettleableAt(now time.Time) bool {
	return !m.Settled && !now.Before(m.RevealDeadline)
}

// OutcomeIndex resolves an exact outcome label to its index.
func (m *Market) OutcomeIndex(label string) (int, bool) {
	for i, o := range m.Outcomes {
		if o == label {
			return i, true
		}
	}
	return NoOutcome, false
}

// WinningPool returns the revealed pool of the final outcome, or zero when unsettled.
func (m *Market) WinningPool() *big.Int {
	if !m.Settled || m.FinalOutcome < 0 || m.FinalOutcome >= len(m.RevealedPools) {
		return new(big.Int)
	}
	return new(big.Int).Set(m.RevealedPools[m.FinalOutcome])
}

// RevealedTotal sums every outcome's revealed pool.
func (m *Market) RevealedTotal() *big.Int {
	total := new(big.Int)
	for _, p := range m.RevealedPools {
		total.Add(total, p)
	}
	return total
}

// Clone returns a deep copy safe to hand out of the ledger.
func (m *Market) Clone() *Market {
	c := *m
	c.Outcomes = append([]string(nil), m.Outcomes...)
	c.TotalPool = copyInt(m.TotalPool)
	c.RevealedPools = make([]*big.Int, len(m.RevealedPools))
	for i, p := range m.RevealedPools {
		c.RevealedPools[i] = copyInt(p)
	}
	return &c
}

// Bet is one sealed commitment placed by a bettor in a market.
type Bet struct {
	MarketID     uint64         `json:"marketId"`
	Bettor       common.Address `json:"bettor"`
	Index        int            `json:"index"` // position within the bettor's bets on this market
	Commitment   common.Hash    `json:"commitment"`
	Amount       *big.Int       `json:"amount"`
	Revealed     bool           `json:"revealed"`
	OutcomeIndex int            `json:"outcomeIndex"`
	Claimed      bool           `json:"claimed"`
}

// Clone returns a deep copy.
func (b *Bet) Clone() *Bet {
	c := *b
	c.Amount = copyInt(b.Amount)
	return &c
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
