package types

import (
	"errors"
	"fmt"
)

// Ledger and gateway protocol violations. Each one fails a single operation
// atomically with no state change.
var (
	ErrInvalidOutcomes     = errors.New("InvalidOutcomes")
	ErrInvalidDuration     = errors.New("InvalidDuration")
	ErrMarketNotFound      = errors.New("MarketNotFound")
	ErrMarketNotBetting    = errors.New("MarketNotBetting")
	ErrZeroStake           = errors.New("ZeroStake")
	ErrMarketNotRevealing  = errors.New("MarketNotRevealing")
	ErrBetNotFound         = errors.New("BetNotFound")
	ErrInvalidCommitment   = errors.New("InvalidCommitment")
	ErrAlreadyRevealed     = errors.New("AlreadyRevealed")
	ErrInvalidOutcomeIndex = errors.New("InvalidOutcomeIndex")
	ErrAlreadySettled      = errors.New("AlreadySettled")
	ErrRevealNotEnded      = errors.New("RevealNotEnded")
	ErrUnknownOutcome      = errors.New("UnknownOutcome")
	ErrNotSettled          = errors.New("NotSettled")
	ErrNoWinnings          = errors.New("NoWinnings")
	ErrAlreadyClaimed      = errors.New("AlreadyClaimed")
	ErrNotOracle           = errors.New("NotOracle")
	ErrNotAdmin            = errors.New("NotAdmin")
	ErrUnauthorizedNode    = errors.New("UnauthorizedNode")
)

// protocolErrors is the lookup used to map contract revert names back to sentinels.
//
//nolint:gochecknoglobals // static lookup table
var protocolErrors = []error{
	ErrInvalidOutcomes, ErrInvalidDuration, ErrMarketNotFound, ErrMarketNotBetting,
	ErrZeroStake, ErrMarketNotRevealing, ErrBetNotFound, ErrInvalidCommitment,
	ErrAlreadyRevealed, ErrInvalidOutcomeIndex, ErrAlreadySettled, ErrRevealNotEnded,
	ErrUnknownOutcome, ErrNotSettled, ErrNoWinnings, ErrAlreadyClaimed, ErrNotOracle,
	ErrNotAdmin, ErrUnauthorizedNode,
}

// ProtocolErrorByName returns the sentinel whose name equals the given revert reason.
func ProtocolErrorByName(name string) (error, bool) {
	for _, e := range protocolErrors {
		if e.Error() == name {
			return e, true
		}
	}
	return nil, false
}

// LedgerError is a rejected ledger or gateway operation.
type LedgerError struct {
	Op       string // createMarket, placeBet, revealBet, settle, claimWinnings, ...
	MarketID uint64
	Err      error // one of the sentinel errors above
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("%s market %d: %s", e.Op, e.MarketID, e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}
