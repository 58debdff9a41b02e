package settlement

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type fakeWallet struct {
	mu      sync.Mutex
	balance *big.Int
	err     error
	calls   int
}

func (f *fakeWallet) NativeBalance(_ context.Context, _ common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeWallet) set(v int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance = big.NewInt(v)
}

func (f *fakeWallet) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestBreaker(t *testing.T, w BalanceFetcher, interval time.Duration) *GasBreaker {
	t.Helper()
	b, err := NewGasBreaker(&BreakerConfig{
		CheckInterval:   interval,
		MinBalance:      big.NewInt(1000),
		HysteresisRatio: 1.5,
		Wallet:          w,
		Address:         common.HexToAddress("0x0000000000000000000000000000000000000011"),
		Logger:          zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return b
}

func TestNewGasBreaker_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	w := &fakeWallet{balance: big.NewInt(0)}

	tests := []struct {
		name   string
		cfg    *BreakerConfig
		errMsg string
	}{
		{"nil-config", nil, "config cannot be nil"},
		{"nil-wallet", &BreakerConfig{CheckInterval: time.Second, MinBalance: big.NewInt(1), HysteresisRatio: 1, Logger: logger}, "wallet client cannot be nil"},
		{"nil-logger", &BreakerConfig{CheckInterval: time.Second, MinBalance: big.NewInt(1), HysteresisRatio: 1, Wallet: w}, "logger cannot be nil"},
		{"zero-interval", &BreakerConfig{MinBalance: big.NewInt(1), HysteresisRatio: 1, Wallet: w, Logger: logger}, "check interval must be positive"},
		{"zero-min", &BreakerConfig{CheckInterval: time.Second, MinBalance: big.NewInt(0), HysteresisRatio: 1, Wallet: w, Logger: logger}, "min balance must be positive"},
		{"low-ratio", &BreakerConfig{CheckInterval: time.Second, MinBalance: big.NewInt(1), HysteresisRatio: 0.5, Wallet: w, Logger: logger}, "hysteresis ratio must be >= 1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGasBreaker(tt.cfg)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestGasBreaker_Hysteresis(t *testing.T) {
	w := &fakeWallet{balance: big.NewInt(5000)}
	b := newTestBreaker(t, w, time.Hour)
	ctx := context.Background()

	assert.True(t, b.IsEnabled())
	status := b.GetStatus()
	assert.Equal(t, big.NewInt(1000), status.DisableThreshold)
	assert.Equal(t, big.NewInt(1500), status.EnableThreshold)
	assert.Nil(t, status.LastBalance)

	steps := []struct {
		balance int64
		enabled bool
	}{
		{5000, true},
		{1000, true},  // at threshold stays enabled
		{999, false},  // below disables
		{1200, false}, // between thresholds stays disabled
		{1499, false},
		{1500, true}, // re-enabled at threshold * ratio
		{1200, true}, // between thresholds stays enabled
	}
	for _, s := range steps {
		w.set(s.balance)
		require.NoError(t, b.CheckBalance(ctx))
		assert.Equal(t, s.enabled, b.IsEnabled(), "balance %d", s.balance)
	}

	status = b.GetStatus()
	assert.Equal(t, big.NewInt(1200), status.LastBalance)
	assert.False(t, status.LastCheck.IsZero())
}

func TestGasBreaker_FetchErrorKeepsState(t *testing.T) {
	w := &fakeWallet{err: errors.New("rpc down")}
	b := newTestBreaker(t, w, time.Hour)

	err := b.CheckBalance(context.Background())
	assert.ErrorContains(t, err, "rpc down")
	assert.True(t, b.IsEnabled())
}

func TestGasBreaker_StartMonitors(t *testing.T) {
	w := &fakeWallet{balance: big.NewInt(10)}
	b, err := NewGasBreaker(&BreakerConfig{
		CheckInterval:   10 * time.Millisecond,
		MinBalance:      big.NewInt(1000),
		HysteresisRatio: 1.5,
		Wallet:          w,
		// The monitor goroutine outlives the test body.
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)

	// The initial check runs synchronously.
	assert.False(t, b.IsEnabled())

	w.set(2000)
	require.Eventually(t, b.IsEnabled, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, w.callCount(), 2)
}
