package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Backend is the part of an RPC client the wallet needs.
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

// DialFunc opens a Backend for an RPC endpoint.
type DialFunc func(ctx context.Context, rpcURL string) (Backend, error)

// Client reads native balances from the chain.
type Client struct {
	rpcURL string
	dial   DialFunc
	logger *zap.Logger
}

// Balances holds native balances in wei.
type Balances struct {
	Native *big.Int // the account's own gas balance
}

// NewClient creates a new wallet client.
func NewClient(rpcURL string, logger *zap.Logger) (c *Client, err error) {
	return NewClientWithDialer(rpcURL, dialEth, logger)
}

// NewClientWithDialer creates a client using a custom dialer.
func NewClientWithDialer(rpcURL string, dial DialFunc, logger *zap.Logger) (c *Client, err error) {
	if rpcURL == "" {
		return nil, errors.New("rpcURL cannot be empty")
	}
	if dial == nil {
		return nil, errors.New("dialer cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Client{rpcURL: rpcURL, dial: dial, logger: logger}, nil
}

func dialEth(ctx context.Context, rpcURL string) (Backend, error) {
	return ethclient.DialContext(ctx, rpcURL)
}

// GetBalances fetches the account's balances.
func (c *Client) GetBalances(ctx context.Context, address common.Address) (balances *Balances, err error) {
	native, err := c.NativeBalance(ctx, address)
	if err != nil {
		return nil, err
	}
	return &Balances{Native: native}, nil
}

// NativeBalance returns an account's balance in wei at the latest block.
func (c *Client) NativeBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	backend, err := c.dial(ctx, c.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}
	defer backend.Close()

	balance, err := backend.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("get native balance: %w", err)
	}

	c.logger.Debug("balance-fetched",
		zap.String("address", address.Hex()),
		zap.String("ether", WeiToEther(balance).String()))

	return balance, nil
}

// WeiToEther converts wei to an exact decimal ether amount.
func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -18)
}

// EtherToWei parses a decimal ether amount such as "1.5" into wei.
// Amounts with more than 18 decimal places are rejected.
func EtherToWei(ether string) (*big.Int, error) {
	d, err := decimal.NewFromString(ether)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", ether, err)
	}
	if d.Sign() < 0 {
		return nil, fmt.Errorf("amount %q is negative", ether)
	}

	wei := d.Shift(18)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than 18 decimals", ether)
	}
	return wei.BigInt(), nil
}
