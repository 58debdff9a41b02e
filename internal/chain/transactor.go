package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mselser95/phantombet/pkg/types"
	"go.uber.org/zap"
)

// ErrTxReverted means a transaction was mined with a failed status.
var ErrTxReverted = errors.New("transaction reverted")

// Gas estimates are padded by this percentage.
const gasHeadroomPercent = 20

// Transactor signs and sends ledger and gateway transactions from one key.
type Transactor struct {
	backend  Backend
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	ledger   common.Address
	gateway  common.Address
	gasLimit uint64
	logger   *zap.Logger
}

// TransactorConfig holds transactor configuration. GasLimit of 0 means
// estimate every transaction.
type TransactorConfig struct {
	Backend    Backend
	PrivateKey *ecdsa.PrivateKey
	ChainID    *big.Int
	Ledger     common.Address
	Gateway    common.Address
	GasLimit   uint64
	Logger     *zap.Logger
}

// NewTransactor creates a transactor.
func NewTransactor(cfg *TransactorConfig) (*Transactor, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Backend == nil {
		return nil, errors.New("backend cannot be nil")
	}
	if cfg.PrivateKey == nil {
		return nil, errors.New("private key cannot be nil")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, errors.New("chain id must be positive")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Transactor{
		backend:  cfg.Backend,
		key:      cfg.PrivateKey,
		from:     crypto.PubkeyToAddress(cfg.PrivateKey.PublicKey),
		chainID:  new(big.Int).Set(cfg.ChainID),
		ledger:   cfg.Ledger,
		gateway:  cfg.Gateway,
		gasLimit: cfg.GasLimit,
		logger:   cfg.Logger,
	}, nil
}

// Address returns the sending account.
func (t *Transactor) Address() common.Address {
	return t.from
}

// ReceiveSettlement submits a settlement through the gateway contract.
func (t *Transactor) ReceiveSettlement(
	ctx context.Context,
	marketID uint64,
	outcomeLabel string,
	proof []byte,
) (*types.Submission, error) {
	if proof == nil {
		proof = []byte{}
	}
	return t.transact(ctx, gatewayABI, t.gateway, nil, "receiveSettlement", marketID,
		new(big.Int).SetUint64(marketID), outcomeLabel, proof)
}

// SetAuthorization grants or revokes a node's right to settle. Admin only.
func (t *Transactor) SetAuthorization(ctx context.Context, node common.Address, allowed bool) (*types.Submission, error) {
	return t.transact(ctx, gatewayABI, t.gateway, nil, "determineNodeAuth", 0, node, allowed)
}

// IsAuthorized reads a node's authorization from the gateway.
func (t *Transactor) IsAuthorized(ctx context.Context, node common.Address) (bool, error) {
	out, err := callContract(ctx, t.backend, gatewayABI, t.gateway, "authorizedNodes", 0, node)
	if err != nil {
		return false, err
	}
	allowed, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected authorizedNodes type %T", out[0])
	}
	return allowed, nil
}

// CreateMarket opens a market whose betting window starts at the mining block.
func (t *Transactor) CreateMarket(
	ctx context.Context,
	question string,
	outcomes []string,
	bettingDuration time.Duration,
	revealDuration time.Duration,
) (*types.Submission, error) {
	return t.transact(ctx, ledgerABI, t.ledger, nil, "createMarket", 0,
		question, outcomes,
		big.NewInt(int64(bettingDuration/time.Second)),
		big.NewInt(int64(revealDuration/time.Second)))
}

// PlaceBet sends a sealed commitment with its stake.
func (t *Transactor) PlaceBet(ctx context.Context, marketID uint64, commit common.Hash, stake *big.Int) (*types.Submission, error) {
	return t.transact(ctx, ledgerABI, t.ledger, stake, "placeBet", marketID,
		new(big.Int).SetUint64(marketID), commit)
}

// RevealBet opens a previously placed bet.
func (t *Transactor) RevealBet(
	ctx context.Context,
	marketID uint64,
	outcomeIndex int,
	secret string,
	betIndex int,
) (*types.Submission, error) {
	return t.transact(ctx, ledgerABI, t.ledger, nil, "revealBet", marketID,
		new(big.Int).SetUint64(marketID), big.NewInt(int64(outcomeIndex)), secret, big.NewInt(int64(betIndex)))
}

// ClaimWinnings withdraws the sender's payout from a settled market.
func (t *Transactor) ClaimWinnings(ctx context.Context, marketID uint64) (*types.Submission, error) {
	return t.transact(ctx, ledgerABI, t.ledger, nil, "claimWinnings", marketID, new(big.Int).SetUint64(marketID))
}

// SetOracle points the ledger at a new gateway. Owner only.
func (t *Transactor) SetOracle(ctx context.Context, oracle common.Address) (*types.Submission, error) {
	return t.transact(ctx, ledgerABI, t.ledger, nil, "setOracle", 0, oracle)
}

// transact packs, estimates, signs, sends and waits for one transaction.
func (t *Transactor) transact(
	ctx context.Context,
	parsed abi.ABI,
	to common.Address,
	value *big.Int,
	method string,
	marketID uint64,
	args ...any,
) (sub *types.Submission, err error) {
	start := time.Now()
	defer func() {
		result := "success"
		if err != nil {
			result = "error"
		}
		TransactionsTotal.WithLabelValues(method, result).Inc()
		TransactionDurationSeconds.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	if to == (common.Address{}) {
		return nil, fmt.Errorf("%s: contract address not configured", method)
	}
	if value == nil {
		value = new(big.Int)
	}

	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	gasLimit, err := t.estimateGas(ctx, to, value, data)
	if err != nil {
		return nil, mapRevert(method, marketID, err)
	}

	nonce, err := t.backend.PendingNonceAt(ctx, t.from)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}

	gasPrice, err := t.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	tx := gethtypes.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signedTx, err := gethtypes.SignTx(tx, gethtypes.NewEIP155Signer(t.chainID), t.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	err = t.backend.SendTransaction(ctx, signedTx)
	if err != nil {
		return nil, mapRevert(method, marketID, fmt.Errorf("send tx: %w", err))
	}

	t.logger.Info("tx-sent",
		zap.String("method", method),
		zap.Uint64("market-id", marketID),
		zap.String("tx-hash", signedTx.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas-limit", gasLimit))

	receipt, err := bind.WaitMined(ctx, t.backend, signedTx)
	if err != nil {
		return nil, fmt.Errorf("wait for tx: %w", err)
	}

	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%s tx %s: %w", method, receipt.TxHash.Hex(), ErrTxReverted)
	}

	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}

	t.logger.Info("tx-confirmed",
		zap.String("method", method),
		zap.String("tx-hash", receipt.TxHash.Hex()),
		zap.Uint64("block", block),
		zap.Uint64("gas-used", receipt.GasUsed))

	return &types.Submission{TxHash: receipt.TxHash, BlockNumber: block, Status: "mined"}, nil
}

// estimateGas simulates the call, which also surfaces reverts before
// anything is signed. A configured gas limit skips estimation.
func (t *Transactor) estimateGas(ctx context.Context, to common.Address, value *big.Int, data []byte) (uint64, error) {
	if t.gasLimit > 0 {
		return t.gasLimit, nil
	}

	gas, err := t.backend.EstimateGas(ctx, ethereum.CallMsg{From: t.from, To: &to, Value: value, Data: data})
	if err != nil {
		return 0, fmt.Errorf("estimate gas: %w", err)
	}
	return gas + gas*gasHeadroomPercent/100, nil
}
