package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NodeResult is what one oracle node returns from its isolated execution.
type NodeResult struct {
	NodeID      string  `json:"nodeId"`
	Verdict     Verdict `json:"verdict"`
	RealSources int     `json:"realSources"`
}

// RoundResult is the output of a consensus round that reached agreement.
type RoundResult struct {
	RoundID     string       `json:"roundId"`
	MarketID    uint64       `json:"marketId"`
	Verdict     Verdict      `json:"verdict"`
	Agreeing    int          `json:"agreeing"`
	Nodes       int          `json:"nodes"`
	RealSources int          `json:"realSources"`
	Results     []NodeResult `json:"results"`
}

// SettlementReport is the payload attested and submitted to the gateway.
type SettlementReport struct {
	MarketID     uint64  `json:"marketId"`
	Outcome      string  `json:"outcome"`
	OutcomeIndex int     `json:"outcomeIndex"`
	Confidence   float64 `json:"confidence"`
	RoundID      string  `json:"roundId"`
	Agreeing     int     `json:"agreeing"`
	Nodes        int     `json:"nodes"`
}

// Submission is the gateway's answer to a settlement write.
type Submission struct {
	TxHash      common.Hash `json:"txHash"`
	BlockNumber uint64      `json:"blockNumber"`
	Status      string      `json:"status"`
}

// Attempt statuses.
const (
	AttemptSubmitted = "submitted"
	AttemptSkipped   = "skipped"
	AttemptFailed    = "failed"
)

// Skip reasons surfaced to operators.
const (
	ReasonNoConsensus          = "no-consensus"
	ReasonLowConfidence        = "low-confidence"
	ReasonInsufficientEvidence = "insufficient-evidence"
	ReasonNotPastDeadline      = "not-past-deadline"
	ReasonAlreadySettled       = "already-settled"
	ReasonLocked               = "locked"
	ReasonBreakerOpen          = "breaker-open"
	ReasonSubmissionFailed     = "submission-failed"
)

// SettlementAttempt is one orchestrator cycle's outcome for one market.
type SettlementAttempt struct {
	ID          string    `json:"id"`
	MarketID    uint64    `json:"marketId"`
	RoundID     string    `json:"roundId,omitempty"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	Outcome     string    `json:"outcome,omitempty"`
	Confidence  float64   `json:"confidence"`
	Agreeing    int       `json:"agreeing"`
	Nodes       int       `json:"nodes"`
	TxHash      string    `json:"txHash,omitempty"`
	Error       string    `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attemptedAt"`
}

// EventKind names a ledger notification.
type EventKind string

// Ledger notifications.
const (
	EventMarketCreated   EventKind = "market-created"
	EventBetPlaced       EventKind = "bet-placed"
	EventBetRevealed     EventKind = "bet-revealed"
	EventMarketSettled   EventKind = "market-settled"
	EventWinningsClaimed EventKind = "winnings-claimed"
)

// LedgerEvent is a notification emitted after a successful ledger mutation.
type LedgerEvent struct {
	Kind            EventKind      `json:"kind"`
	MarketID        uint64         `json:"marketId"`
	Question        string         `json:"question,omitempty"`
	BettingDeadline time.Time      `json:"bettingDeadline,omitempty"`
	Bettor          common.Address `json:"bettor,omitempty"`
	Commitment      common.Hash    `json:"commitment,omitempty"`
	Amount          *big.Int       `json:"amount,omitempty"`
	OutcomeLabel    string         `json:"outcomeLabel,omitempty"`
}
