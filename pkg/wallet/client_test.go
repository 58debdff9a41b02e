package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeBackend struct {
	balances map[common.Address]*big.Int
	err      error
	closed   int
}

func (f *fakeBackend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	if b, ok := f.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (f *fakeBackend) Close() {
	f.closed++
}

func dialer(b *fakeBackend) DialFunc {
	return func(context.Context, string) (Backend, error) {
		return b, nil
	}
}

func TestNewClient(t *testing.T) {
	logger := zaptest.NewLogger(t)

	tests := []struct {
		name    string
		rpcURL  string
		dial    DialFunc
		wantErr string
	}{
		{"valid", "http://localhost:8545", dialEth, ""},
		{"empty-rpc", "", dialEth, "rpcURL cannot be empty"},
		{"nil-dialer", "http://localhost:8545", nil, "dialer cannot be nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClientWithDialer(tt.rpcURL, tt.dial, logger)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}

	_, err := NewClient("http://localhost:8545", nil)
	assert.ErrorContains(t, err, "logger cannot be nil")
}

func TestClient_NativeBalance(t *testing.T) {
	addr := common.HexToAddress("0x0000000000000000000000000000000000000011")
	backend := &fakeBackend{balances: map[common.Address]*big.Int{addr: big.NewInt(1_500_000_000_000_000_000)}}
	c, err := NewClientWithDialer("http://rpc", dialer(backend), zaptest.NewLogger(t))
	require.NoError(t, err)

	bal, err := c.NativeBalance(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", bal.String())
	assert.Equal(t, 1, backend.closed)

	balances, err := c.GetBalances(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, bal, balances.Native)
	assert.Equal(t, 2, backend.closed)
}

func TestClient_Errors(t *testing.T) {
	addr := common.HexToAddress("0x01")

	failing := &fakeBackend{err: errors.New("connection refused")}
	c, err := NewClientWithDialer("http://rpc", dialer(failing), zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = c.NativeBalance(context.Background(), addr)
	assert.ErrorContains(t, err, "get native balance")

	noDial := func(context.Context, string) (Backend, error) { return nil, errors.New("bad url") }
	c, err = NewClientWithDialer("http://rpc", noDial, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = c.GetBalances(context.Background(), addr)
	assert.ErrorContains(t, err, "dial RPC")
}

func TestWeiToEther(t *testing.T) {
	assert.True(t, decimal.Zero.Equal(WeiToEther(nil)))
	assert.Equal(t, "1.5", WeiToEther(big.NewInt(1_500_000_000_000_000_000)).String())
	assert.Equal(t, "0.000000000000000001", WeiToEther(big.NewInt(1)).String())
}

func TestEtherToWei(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr string
	}{
		{"1", "1000000000000000000", ""},
		{"1.5", "1500000000000000000", ""},
		{"0.000000000000000001", "1", ""},
		{"0", "0", ""},
		{"0.0000000000000000001", "", "more than 18 decimals"},
		{"-1", "", "negative"},
		{"abc", "", "parse amount"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			wei, err := EtherToWei(tt.in)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, wei.String())
		})
	}
}
