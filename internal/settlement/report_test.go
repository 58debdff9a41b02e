package settlement

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mselser95/phantombet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRound() *types.RoundResult {
	return &types.RoundResult{
		RoundID:  "round-1",
		MarketID: 7,
		Verdict:  types.Verdict{Outcome: "Win", OutcomeIndex: 0, Confidence: 0.85, Reasoning: "r"},
		Agreeing: 3,
		Nodes:    3,
	}
}

func TestNewReport(t *testing.T) {
	r, err := NewReport(testRound())
	require.NoError(t, err)
	assert.Equal(t, &types.SettlementReport{
		MarketID: 7, Outcome: "Win", OutcomeIndex: 0, Confidence: 0.85,
		RoundID: "round-1", Agreeing: 3, Nodes: 3,
	}, r)

	_, err = NewReport(nil)
	assert.Error(t, err)

	noOutcome := testRound()
	noOutcome.Verdict = types.Verdict{OutcomeIndex: types.NoOutcome}
	_, err = NewReport(noOutcome)
	assert.ErrorContains(t, err, "has no outcome")
}

func TestConfidenceBps(t *testing.T) {
	tests := []struct {
		in   float64
		want uint64
	}{
		{0, 0},
		{0.7, 7000},
		{0.85, 8500},
		{0.12344, 1234},
		{1, 10000},
		{1.5, 10000},
		{-0.2, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConfidenceBps(tt.in), "confidence %v", tt.in)
	}
}

func TestDigest(t *testing.T) {
	base, err := NewReport(testRound())
	require.NoError(t, err)

	d1, err := Digest(base)
	require.NoError(t, err)
	d2, err := Digest(base)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	// The packed layout is five 32-byte heads plus two dynamic strings.
	packed, err := reportArgs.Pack(
		bigU(7), "Win", bigU(0), bigU(8500), "round-1",
	)
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash(packed), d1)

	changes := map[string]func(r *types.SettlementReport){
		"market":     func(r *types.SettlementReport) { r.MarketID = 8 },
		"outcome":    func(r *types.SettlementReport) { r.Outcome = "Lose" },
		"index":      func(r *types.SettlementReport) { r.OutcomeIndex = 1 },
		"confidence": func(r *types.SettlementReport) { r.Confidence = 0.86 },
		"round":      func(r *types.SettlementReport) { r.RoundID = "round-2" },
	}
	for name, change := range changes {
		t.Run(name, func(t *testing.T) {
			r := *base
			change(&r)
			d, err := Digest(&r)
			require.NoError(t, err)
			assert.NotEqual(t, d1, d)
		})
	}

	_, err = Digest(nil)
	assert.Error(t, err)
}
