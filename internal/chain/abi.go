package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/mselser95/phantombet/pkg/types"
)

// PredictionMarketABI is the subset of the ledger contract the adapter uses.
const PredictionMarketABI = `[
	{"type":"function","name":"nextMarketId","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"markets","stateMutability":"view",
	 "inputs":[{"name":"marketId","type":"uint256"}],
	 "outputs":[
		{"name":"id","type":"uint256"},
		{"name":"question","type":"string"},
		{"name":"bettingDeadline","type":"uint256"},
		{"name":"revealDeadline","type":"uint256"},
		{"name":"revealed","type":"bool"},
		{"name":"finalOutcomeId","type":"uint256"},
		{"name":"settled","type":"bool"},
		{"name":"totalPool","type":"uint256"}]},
	{"type":"function","name":"getMarketOutcomes","stateMutability":"view",
	 "inputs":[{"name":"marketId","type":"uint256"}],
	 "outputs":[{"name":"","type":"string[]"}]},
	{"type":"function","name":"createMarket","stateMutability":"nonpayable",
	 "inputs":[{"name":"question","type":"string"},{"name":"outcomes","type":"string[]"},
		{"name":"duration","type":"uint256"},{"name":"revealDuration","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"placeBet","stateMutability":"payable",
	 "inputs":[{"name":"marketId","type":"uint256"},{"name":"commitment","type":"bytes32"}],
	 "outputs":[]},
	{"type":"function","name":"revealBet","stateMutability":"nonpayable",
	 "inputs":[{"name":"marketId","type":"uint256"},{"name":"outcomeIndex","type":"uint256"},
		{"name":"secret","type":"string"},{"name":"betIndex","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"claimWinnings","stateMutability":"nonpayable",
	 "inputs":[{"name":"marketId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"setOracle","stateMutability":"nonpayable",
	 "inputs":[{"name":"newOracle","type":"address"}],"outputs":[]}
	ERRORS
]`

// OracleGatewayABI is the subset of the gateway contract the adapter uses.
const OracleGatewayABI = `[
	{"type":"function","name":"receiveSettlement","stateMutability":"nonpayable",
	 "inputs":[{"name":"marketId","type":"uint256"},{"name":"outcome","type":"string"},
		{"name":"proof","type":"bytes"}],
	 "outputs":[]},
	{"type":"function","name":"determineNodeAuth","stateMutability":"nonpayable",
	 "inputs":[{"name":"node","type":"address"},{"name":"authorized","type":"bool"}],
	 "outputs":[]},
	{"type":"function","name":"authorizedNodes","stateMutability":"view",
	 "inputs":[{"name":"node","type":"address"}],
	 "outputs":[{"name":"","type":"bool"}]}
	ERRORS
]`

// Custom errors both contracts may revert with. The gateway bubbles up
// ledger reverts unchanged.
//
//nolint:gochecknoglobals // static list
var revertNames = []string{
	"InvalidOutcomes", "InvalidDuration", "MarketNotFound", "MarketNotBetting",
	"ZeroStake", "MarketNotRevealing", "BetNotFound", "InvalidCommitment",
	"AlreadyRevealed", "InvalidOutcomeIndex", "AlreadySettled", "RevealNotEnded",
	"UnknownOutcome", "NotSettled", "NoWinnings", "AlreadyClaimed", "NotOracle",
	"NotAdmin", "UnauthorizedNode",
}

//nolint:gochecknoglobals // parsed once
var (
	ledgerABI  = mustParse(PredictionMarketABI)
	gatewayABI = mustParse(OracleGatewayABI)
)

func mustParse(def string) abi.ABI {
	entries := make([]string, 0, len(revertNames))
	for _, name := range revertNames {
		entries = append(entries, fmt.Sprintf(`{"type":"error","name":%q,"inputs":[]}`, name))
	}
	def = strings.Replace(def, "ERRORS", ","+strings.Join(entries, ","), 1)

	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse ABI: %v", err))
	}
	return parsed
}

// protocolError maps a custom error name to its sentinel.
func protocolError(name string) (error, bool) {
	return types.ProtocolErrorByName(name)
}
