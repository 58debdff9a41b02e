package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mselser95/phantombet/pkg/cache"
	"github.com/mselser95/phantombet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	ledgerAddr  = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	gatewayAddr = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	chainTime   = time.Unix(1_700_000_000, 0)
)

// rpcError mimics a JSON-RPC error carrying revert data.
type rpcError struct {
	msg  string
	data interface{}
}

func (e *rpcError) Error() string          { return e.msg }
func (e *rpcError) ErrorData() interface{} { return e.data }

func selector(name string) []byte {
	id := ledgerABI.Errors[name].ID
	return id[:4]
}

func revertWith(name string) error {
	return &rpcError{msg: "execution reverted", data: hexutil.Encode(selector(name))}
}

type handler func(args []any) ([]any, error)

type fakeBackend struct {
	mu          sync.Mutex
	handlers    map[string]handler
	calls       map[string]int
	estimateErr error
	sent        []*gethtypes.Transaction
	status      uint64
	headerTime  time.Time
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		handlers:   make(map[string]handler),
		calls:      make(map[string]int),
		status:     gethtypes.ReceiptStatusSuccessful,
		headerTime: chainTime,
	}
}

func (f *fakeBackend) method(data []byte) (*abi.Method, error) {
	if m, err := ledgerABI.MethodById(data[:4]); err == nil {
		return m, nil
	}
	return gatewayABI.MethodById(data[:4])
}

func (f *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	m, err := f.method(call.Data)
	if err != nil {
		return nil, err
	}
	args, err := m.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.calls[m.Name]++
	h, ok := f.handlers[m.Name]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no handler for %s", m.Name)
	}

	out, err := h(args)
	if err != nil {
		return nil, err
	}
	return m.Outputs.Pack(out...)
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*gethtypes.Header, error) {
	return &gethtypes.Header{Number: big.NewInt(100), Time: uint64(f.headerTime.Unix())}, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 100_000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *gethtypes.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	return &gethtypes.Receipt{Status: f.status, TxHash: hash, BlockNumber: big.NewInt(101), GasUsed: 50_000}, nil
}

func (f *fakeBackend) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// market describes one row served by the fake ledger.
type market struct {
	question string
	outcomes []string
	betting  time.Time
	reveal   time.Time
	final    int64
	settled  bool
	pool     int64
}

func (f *fakeBackend) serveMarkets(markets []market) {
	f.handlers["nextMarketId"] = func([]any) ([]any, error) {
		return []any{big.NewInt(int64(len(markets)))}, nil
	}
	f.handlers["markets"] = func(args []any) ([]any, error) {
		id := args[0].(*big.Int).Int64()
		if id >= int64(len(markets)) {
			z := new(big.Int)
			return []any{z, "", z, z, false, z, false, z}, nil
		}
		m := markets[id]
		return []any{
			big.NewInt(id), m.question,
			big.NewInt(m.betting.Unix()), big.NewInt(m.reveal.Unix()),
			false, big.NewInt(m.final), m.settled, big.NewInt(m.pool),
		}, nil
	}
	f.handlers["getMarketOutcomes"] = func(args []any) ([]any, error) {
		id := args[0].(*big.Int).Int64()
		if id >= int64(len(markets)) {
			return nil, revertWith("MarketNotFound")
		}
		return []any{markets[id].outcomes}, nil
	}
}

func newTestReader(t *testing.T, backend Backend, c cache.Cache) *Reader {
	t.Helper()
	r, err := NewReader(&ReaderConfig{Backend: backend, Ledger: ledgerAddr, Cache: c, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return r
}

func TestNewReader_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)

	_, err := NewReader(nil)
	assert.ErrorContains(t, err, "config cannot be nil")
	_, err = NewReader(&ReaderConfig{Ledger: ledgerAddr, Logger: logger})
	assert.ErrorContains(t, err, "backend cannot be nil")
	_, err = NewReader(&ReaderConfig{Backend: newFakeBackend(), Logger: logger})
	assert.ErrorContains(t, err, "ledger address cannot be empty")
	_, err = NewReader(&ReaderConfig{Backend: newFakeBackend(), Ledger: ledgerAddr})
	assert.ErrorContains(t, err, "logger cannot be nil")
}

func TestReader_Market(t *testing.T) {
	backend := newFakeBackend()
	backend.serveMarkets([]market{
		{question: "Will it rain?", outcomes: []string{"Yes", "No"}, betting: chainTime.Add(-2 * time.Hour), reveal: chainTime.Add(-time.Hour), pool: 3},
		{question: "Who won?", outcomes: []string{"A", "B", "C"}, betting: chainTime.Add(-2 * time.Hour), reveal: chainTime.Add(-time.Hour), final: 2, settled: true},
	})
	r := newTestReader(t, backend, nil)
	ctx := context.Background()

	next, err := r.NextMarketID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next)

	m, err := r.Market(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "Will it rain?", m.Question)
	assert.Equal(t, []string{"Yes", "No"}, m.Outcomes)
	assert.Equal(t, chainTime.Add(-time.Hour).UTC(), m.RevealDeadline)
	assert.Equal(t, types.NoOutcome, m.FinalOutcome)
	assert.False(t, m.Settled)
	assert.Equal(t, int64(3), m.TotalPool.Int64())

	settled, err := r.Market(ctx, 1)
	require.NoError(t, err)
	assert.True(t, settled.Settled)
	assert.Equal(t, 2, settled.FinalOutcome)

	_, err = r.Market(ctx, 9)
	assert.ErrorIs(t, err, types.ErrMarketNotFound)
}

func TestReader_OutcomesCached(t *testing.T) {
	backend := newFakeBackend()
	backend.serveMarkets([]market{
		{question: "Q", outcomes: []string{"Yes", "No"}, betting: chainTime, reveal: chainTime.Add(time.Hour)},
	})

	c, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		Name: "test-outcomes", NumCounters: 100, MaxCost: 10, Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	defer c.Close()

	r := newTestReader(t, backend, c)
	ctx := context.Background()

	first, err := r.MarketOutcomes(ctx, 0)
	require.NoError(t, err)
	c.Wait()

	second, err := r.MarketOutcomes(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.callCount("getMarketOutcomes"))

	// Callers cannot corrupt the cached slice.
	second[0] = "mutated"
	third, err := r.MarketOutcomes(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Yes", "No"}, third)
}

func TestReader_SettleableMarkets(t *testing.T) {
	backend := newFakeBackend()
	backend.serveMarkets([]market{
		{question: "past", outcomes: []string{"Y", "N"}, betting: chainTime.Add(-2 * time.Hour), reveal: chainTime.Add(-time.Hour)},
		{question: "revealing", outcomes: []string{"Y", "N"}, betting: chainTime.Add(-time.Hour), reveal: chainTime.Add(time.Hour)},
		{question: "settled", outcomes: []string{"Y", "N"}, betting: chainTime.Add(-2 * time.Hour), reveal: chainTime.Add(-time.Hour), settled: true},
		{question: "exact", outcomes: []string{"Y", "N"}, betting: chainTime.Add(-time.Hour), reveal: chainTime},
	})
	r := newTestReader(t, backend, nil)

	markets, err := r.SettleableMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 2)
	assert.Equal(t, "past", markets[0].Question)
	assert.Equal(t, "exact", markets[1].Question)
}

func TestReader_NowIsChainTime(t *testing.T) {
	backend := newFakeBackend()
	backend.headerTime = chainTime.Add(90 * time.Second)
	r := newTestReader(t, backend, nil)

	now, err := r.Now(context.Background())
	require.NoError(t, err)
	assert.Equal(t, chainTime.Add(90*time.Second).UTC(), now)
}

func TestMapRevert(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"selector", revertWith("AlreadySettled"), types.ErrAlreadySettled},
		{"selector-bytes", &rpcError{msg: "execution reverted", data: selector("NoWinnings")}, types.ErrNoWinnings},
		{"message", errors.New("execution reverted: UnauthorizedNode"), types.ErrUnauthorizedNode},
		{"custom-error-message", errors.New("execution reverted: custom error NotOracle()"), types.ErrNotOracle},
		{"wrapped", fmt.Errorf("estimate gas: %w", revertWith("RevealNotEnded")), types.ErrRevealNotEnded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapRevert("settle", 4, tt.err)
			assert.ErrorIs(t, err, tt.want)

			var le *types.LedgerError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, uint64(4), le.MarketID)
			assert.Equal(t, "settle", le.Op)
		})
	}

	plain := errors.New("connection refused")
	assert.Same(t, plain, mapRevert("settle", 1, plain))
	assert.NoError(t, mapRevert("settle", 1, nil))
}

func TestReader_RevertMapped(t *testing.T) {
	backend := newFakeBackend()
	backend.serveMarkets([]market{
		{question: "Q", outcomes: []string{"Y", "N"}, betting: chainTime, reveal: chainTime.Add(time.Hour)},
	})
	backend.handlers["markets"] = func([]any) ([]any, error) {
		return nil, revertWith("MarketNotFound")
	}
	r := newTestReader(t, backend, nil)

	_, err := r.Market(context.Background(), 0)
	assert.ErrorIs(t, err, types.ErrMarketNotFound)
}

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func newTestTransactor(t *testing.T, backend Backend, gasLimit uint64) *Transactor {
	t.Helper()
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	tr, err := NewTransactor(&TransactorConfig{
		Backend:    backend,
		PrivateKey: key,
		ChainID:    big.NewInt(421614),
		Ledger:     ledgerAddr,
		Gateway:    gatewayAddr,
		GasLimit:   gasLimit,
		Logger:     zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return tr
}

func TestNewTransactor_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	_, err = NewTransactor(nil)
	assert.ErrorContains(t, err, "config cannot be nil")
	_, err = NewTransactor(&TransactorConfig{PrivateKey: key, ChainID: big.NewInt(1), Logger: logger})
	assert.ErrorContains(t, err, "backend cannot be nil")
	_, err = NewTransactor(&TransactorConfig{Backend: newFakeBackend(), ChainID: big.NewInt(1), Logger: logger})
	assert.ErrorContains(t, err, "private key cannot be nil")
	_, err = NewTransactor(&TransactorConfig{Backend: newFakeBackend(), PrivateKey: key, Logger: logger})
	assert.ErrorContains(t, err, "chain id must be positive")
	_, err = NewTransactor(&TransactorConfig{Backend: newFakeBackend(), PrivateKey: key, ChainID: big.NewInt(1)})
	assert.ErrorContains(t, err, "logger cannot be nil")
}

func TestTransactor_ReceiveSettlement(t *testing.T) {
	backend := newFakeBackend()
	tr := newTestTransactor(t, backend, 0)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", tr.Address().Hex())

	sub, err := tr.ReceiveSettlement(context.Background(), 5, "Yes", []byte{0xde, 0xad})
	require.NoError(t, err)
	assert.Equal(t, "mined", sub.Status)
	assert.Equal(t, uint64(101), sub.BlockNumber)

	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	assert.Equal(t, sub.TxHash, tx.Hash())
	assert.Equal(t, gatewayAddr, *tx.To())
	assert.Equal(t, uint64(120_000), tx.Gas())
	assert.Equal(t, big.NewInt(421614), tx.ChainId())

	sender, err := gethtypes.Sender(gethtypes.NewEIP155Signer(big.NewInt(421614)), tx)
	require.NoError(t, err)
	assert.Equal(t, tr.Address(), sender)

	m, err := gatewayABI.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "receiveSettlement", m.Name)
	args, err := m.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(5), args[0])
	assert.Equal(t, "Yes", args[1])
	assert.Equal(t, []byte{0xde, 0xad}, args[2])
}

func TestTransactor_RevertBeforeSend(t *testing.T) {
	backend := newFakeBackend()
	backend.estimateErr = revertWith("UnauthorizedNode")
	tr := newTestTransactor(t, backend, 0)

	_, err := tr.ReceiveSettlement(context.Background(), 5, "Yes", nil)
	assert.ErrorIs(t, err, types.ErrUnauthorizedNode)
	assert.Empty(t, backend.sent)
}

func TestTransactor_FixedGasLimit(t *testing.T) {
	backend := newFakeBackend()
	backend.estimateErr = errors.New("should not be called")
	tr := newTestTransactor(t, backend, 300_000)

	_, err := tr.ClaimWinnings(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)
	assert.Equal(t, uint64(300_000), backend.sent[0].Gas())
	assert.Equal(t, ledgerAddr, *backend.sent[0].To())
}

func TestTransactor_MinedRevert(t *testing.T) {
	backend := newFakeBackend()
	backend.status = gethtypes.ReceiptStatusFailed
	tr := newTestTransactor(t, backend, 0)

	_, err := tr.SetAuthorization(context.Background(), common.HexToAddress("0x11"), true)
	assert.ErrorIs(t, err, ErrTxReverted)
}

func TestTransactor_LedgerMethods(t *testing.T) {
	backend := newFakeBackend()
	tr := newTestTransactor(t, backend, 0)
	ctx := context.Background()

	stake := new(big.Int).Mul(big.NewInt(1), big.NewInt(1e18))
	commit := crypto.Keccak256Hash([]byte("c"))

	_, err := tr.CreateMarket(ctx, "Q?", []string{"Yes", "No"}, time.Hour, 30*time.Minute)
	require.NoError(t, err)
	_, err = tr.PlaceBet(ctx, 0, commit, stake)
	require.NoError(t, err)
	_, err = tr.RevealBet(ctx, 0, 1, "s", 0)
	require.NoError(t, err)
	_, err = tr.SetOracle(ctx, gatewayAddr)
	require.NoError(t, err)

	require.Len(t, backend.sent, 4)
	for i, tx := range backend.sent {
		assert.Equal(t, uint64(i), tx.Nonce())
	}

	create, err := ledgerABI.Methods["createMarket"].Inputs.Unpack(backend.sent[0].Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(3600), create[2])
	assert.Equal(t, big.NewInt(1800), create[3])

	assert.Equal(t, stake, backend.sent[1].Value())
	bet, err := ledgerABI.Methods["placeBet"].Inputs.Unpack(backend.sent[1].Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, [32]byte(commit), bet[1])
}

func TestTransactor_IsAuthorized(t *testing.T) {
	node := common.HexToAddress("0x11")
	backend := newFakeBackend()
	backend.handlers["authorizedNodes"] = func(args []any) ([]any, error) {
		return []any{args[0].(common.Address) == node}, nil
	}
	tr := newTestTransactor(t, backend, 0)

	ok, err := tr.IsAuthorized(context.Background(), node)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tr.IsAuthorized(context.Background(), common.HexToAddress("0x12"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransactor_MissingAddress(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	tr, err := NewTransactor(&TransactorConfig{
		Backend: newFakeBackend(), PrivateKey: key, ChainID: big.NewInt(1), Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	_, err = tr.ReceiveSettlement(context.Background(), 0, "Yes", nil)
	assert.ErrorContains(t, err, "contract address not configured")
}
