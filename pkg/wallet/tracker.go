package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Tracker periodically fetches the oracle node's gas balance and the
// ledger contract's escrow and updates Prometheus metrics.
type Tracker struct {
	client       *Client
	address      common.Address
	ledger       common.Address
	pollInterval time.Duration
	logger       *zap.Logger
}

// Config holds tracker configuration.
type Config struct {
	RPCEndpoint  string
	Address      common.Address // oracle node account
	Ledger       common.Address // ledger contract, zero to skip
	PollInterval time.Duration
	Logger       *zap.Logger
	Dial         DialFunc // optional
}

// New creates a new wallet tracker.
func New(cfg *Config) (t *Tracker, err error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.RPCEndpoint == "" {
		return nil, errors.New("RPC endpoint cannot be empty")
	}

	if cfg.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}

	dial := cfg.Dial
	if dial == nil {
		dial = dialEth
	}
	client, err := NewClientWithDialer(cfg.RPCEndpoint, dial, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	tracker := &Tracker{
		client:       client,
		address:      cfg.Address,
		ledger:       cfg.Ledger,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
	}

	return tracker, nil
}

// Run starts the tracker polling loop (blocking).
func (t *Tracker) Run(ctx context.Context) (err error) {
	t.logger.Info("wallet-tracker-starting",
		zap.Duration("poll-interval", t.pollInterval),
		zap.String("address", t.address.Hex()))

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	pollErr := t.poll(ctx)
	if pollErr != nil {
		t.logger.Error("initial-poll-failed", zap.Error(pollErr))
		UpdateErrorsTotal.Inc()
	}

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("wallet-tracker-stopping")
			return ctx.Err()
		case <-ticker.C:
			pollErr = t.poll(ctx)
			if pollErr != nil {
				t.logger.Error("poll-failed", zap.Error(pollErr))
				UpdateErrorsTotal.Inc()
			}
		}
	}
}

// poll performs a single polling cycle.
func (t *Tracker) poll(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		UpdateDuration.Observe(time.Since(start).Seconds())
	}()

	balCtx, balCancel := context.WithTimeout(ctx, 15*time.Second)
	defer balCancel()

	native, err := t.client.NativeBalance(balCtx, t.address)
	if err != nil {
		return fmt.Errorf("get node balance: %w", err)
	}
	nodeEther, _ := WeiToEther(native).Float64()
	NodeBalance.Set(nodeEther)

	if t.ledger != (common.Address{}) {
		escrow, err := t.client.NativeBalance(balCtx, t.ledger)
		if err != nil {
			return fmt.Errorf("get ledger escrow: %w", err)
		}
		escrowEther, _ := WeiToEther(escrow).Float64()
		LedgerEscrow.Set(escrowEther)
	}

	LastUpdateTimestamp.Set(float64(time.Now().Unix()))

	t.logger.Debug("poll-complete",
		zap.Float64("node-balance", nodeEther),
		zap.Duration("duration", time.Since(start)))

	return nil
}
