package settlement

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mselser95/phantombet/pkg/types"
)

// reportArgs is the ABI layout hashed into a report digest:
// (uint256 marketId, string outcome, uint256 outcomeIndex, uint256 confidenceBps, string roundId).
//
//nolint:gochecknoglobals // static ABI layout
var reportArgs = func() abi.Arguments {
	uint256, _ := abi.NewType("uint256", "", nil)
	str, _ := abi.NewType("string", "", nil)
	return abi.Arguments{
		{Name: "marketId", Type: uint256},
		{Name: "outcome", Type: str},
		{Name: "outcomeIndex", Type: uint256},
		{Name: "confidenceBps", Type: uint256},
		{Name: "roundId", Type: str},
	}
}()

// NewReport packages an agreed round into a settlement report.
func NewReport(round *types.RoundResult) (*types.SettlementReport, error) {
	if round == nil {
		return nil, errors.New("round cannot be nil")
	}
	if round.Verdict.OutcomeIndex < 0 || round.Verdict.Outcome == "" {
		return nil, fmt.Errorf("round %s has no outcome", round.RoundID)
	}

	return &types.SettlementReport{
		MarketID:     round.MarketID,
		Outcome:      round.Verdict.Outcome,
		OutcomeIndex: round.Verdict.OutcomeIndex,
		Confidence:   round.Verdict.Confidence,
		RoundID:      round.RoundID,
		Agreeing:     round.Agreeing,
		Nodes:        round.Nodes,
	}, nil
}

// ConfidenceBps converts a [0,1] confidence to basis points.
func ConfidenceBps(confidence float64) uint64 {
	confidence = math.Max(0, math.Min(1, confidence))
	return uint64(math.Round(confidence * 10_000))
}

// Digest returns the keccak256 of the ABI-encoded report.
func Digest(r *types.SettlementReport) (common.Hash, error) {
	if r == nil {
		return common.Hash{}, errors.New("report cannot be nil")
	}

	packed, err := reportArgs.Pack(
		new(big.Int).SetUint64(r.MarketID),
		r.Outcome,
		big.NewInt(int64(r.OutcomeIndex)),
		new(big.Int).SetUint64(ConfidenceBps(r.Confidence)),
		r.RoundID,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack report: %w", err)
	}
	return crypto.Keccak256Hash(packed), nil
}
