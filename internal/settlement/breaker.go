package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/phantombet/pkg/wallet"
	"go.uber.org/zap"
)

// BalanceFetcher reads an account's native balance. wallet.Client implements it.
type BalanceFetcher interface {
	NativeBalance(ctx context.Context, address common.Address) (*big.Int, error)
}

// GasBreaker watches the oracle node's gas balance and stops submissions
// while it is too low to pay for a settlement transaction. Hysteresis keeps
// it from flapping around the threshold.
type GasBreaker struct {
	enabled atomic.Bool

	checkInterval   time.Duration
	wallet          BalanceFetcher
	address         common.Address
	logger          *zap.Logger
	hysteresisRatio float64

	disableThreshold *big.Int
	enableThreshold  *big.Int

	mu          sync.RWMutex
	lastBalance *big.Int
	lastCheck   time.Time
}

// BreakerConfig holds gas breaker configuration.
type BreakerConfig struct {
	CheckInterval   time.Duration
	MinBalance      *big.Int // wei
	HysteresisRatio float64
	Wallet          BalanceFetcher
	Address         common.Address
	Logger          *zap.Logger
}

// BreakerStatus is a snapshot for debugging and HTTP endpoints.
type BreakerStatus struct {
	Enabled          bool      `json:"enabled"`
	LastBalance      *big.Int  `json:"lastBalance"`
	LastCheck        time.Time `json:"lastCheck"`
	DisableThreshold *big.Int  `json:"disableThreshold"`
	EnableThreshold  *big.Int  `json:"enableThreshold"`
}

// NewGasBreaker creates a breaker. It starts enabled.
func NewGasBreaker(cfg *BreakerConfig) (*GasBreaker, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Wallet == nil {
		return nil, errors.New("wallet client cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.CheckInterval <= 0 {
		return nil, errors.New("check interval must be positive")
	}
	if cfg.MinBalance == nil || cfg.MinBalance.Sign() <= 0 {
		return nil, errors.New("min balance must be positive")
	}
	if cfg.HysteresisRatio < 1.0 {
		return nil, errors.New("hysteresis ratio must be >= 1.0")
	}

	enable, _ := new(big.Float).Mul(
		new(big.Float).SetInt(cfg.MinBalance),
		big.NewFloat(cfg.HysteresisRatio),
	).Int(nil)

	b := &GasBreaker{
		checkInterval:    cfg.CheckInterval,
		wallet:           cfg.Wallet,
		address:          cfg.Address,
		logger:           cfg.Logger,
		hysteresisRatio:  cfg.HysteresisRatio,
		disableThreshold: new(big.Int).Set(cfg.MinBalance),
		enableThreshold:  enable,
	}
	b.enabled.Store(true)

	BreakerEnabled.Set(1)
	BreakerDisableThreshold.Set(etherFloat(b.disableThreshold))
	BreakerEnableThreshold.Set(etherFloat(b.enableThreshold))

	return b, nil
}

// IsEnabled reports whether submissions may proceed. Lock-free.
func (b *GasBreaker) IsEnabled() bool {
	return b.enabled.Load()
}

// CheckBalance fetches the balance and updates the enabled state.
func (b *GasBreaker) CheckBalance(ctx context.Context) error {
	start := time.Now()
	defer func() {
		BreakerCheckDuration.Observe(time.Since(start).Seconds())
	}()

	balance, err := b.wallet.NativeBalance(ctx, b.address)
	if err != nil {
		b.logger.Error("failed-to-check-balance",
			zap.Error(err),
			zap.String("address", b.address.Hex()))
		return fmt.Errorf("get balance: %w", err)
	}

	b.mu.Lock()
	b.lastBalance = new(big.Int).Set(balance)
	b.lastCheck = time.Now()
	b.mu.Unlock()

	BreakerBalance.Set(etherFloat(balance))

	currentlyEnabled := b.enabled.Load()
	shouldDisable := currentlyEnabled && balance.Cmp(b.disableThreshold) < 0
	shouldEnable := !currentlyEnabled && balance.Cmp(b.enableThreshold) >= 0

	switch {
	case shouldDisable:
		b.enabled.Store(false)
		BreakerEnabled.Set(0)
		BreakerStateChanges.Inc()
		b.logger.Warn("gas-breaker-disabled",
			zap.String("balance-wei", balance.String()),
			zap.String("disable-threshold-wei", b.disableThreshold.String()),
			zap.String("enable-threshold-wei", b.enableThreshold.String()))
	case shouldEnable:
		b.enabled.Store(true)
		BreakerEnabled.Set(1)
		BreakerStateChanges.Inc()
		b.logger.Info("gas-breaker-enabled",
			zap.String("balance-wei", balance.String()),
			zap.String("enable-threshold-wei", b.enableThreshold.String()))
	default:
		b.logger.Debug("balance-checked",
			zap.String("balance-wei", balance.String()),
			zap.Bool("enabled", currentlyEnabled))
	}

	return nil
}

// Start checks the balance once, then keeps checking in the background
// until ctx is canceled.
func (b *GasBreaker) Start(ctx context.Context) {
	b.logger.Info("gas-breaker-started",
		zap.Duration("check-interval", b.checkInterval),
		zap.String("min-balance-wei", b.disableThreshold.String()),
		zap.Float64("hysteresis-ratio", b.hysteresisRatio))

	err := b.CheckBalance(ctx)
	if err != nil {
		b.logger.Error("initial-balance-check-failed", zap.Error(err))
	}

	go b.monitorLoop(ctx)
}

func (b *GasBreaker) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(b.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("gas-breaker-stopped")
			return
		case <-ticker.C:
			err := b.CheckBalance(ctx)
			if err != nil {
				b.logger.Error("balance-check-error", zap.Error(err))
			}
		}
	}
}

// GetStatus returns the current breaker status.
func (b *GasBreaker) GetStatus() BreakerStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var last *big.Int
	if b.lastBalance != nil {
		last = new(big.Int).Set(b.lastBalance)
	}
	return BreakerStatus{
		Enabled:          b.enabled.Load(),
		LastBalance:      last,
		LastCheck:        b.lastCheck,
		DisableThreshold: new(big.Int).Set(b.disableThreshold),
		EnableThreshold:  new(big.Int).Set(b.enableThreshold),
	}
}

func etherFloat(wei *big.Int) float64 {
	f, _ := wallet.WeiToEther(wei).Float64()
	return f
}
