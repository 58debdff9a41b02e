package httpserver

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/phantombet/pkg/healthprobe"
	"github.com/mselser95/phantombet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeMarkets struct {
	markets []*types.Market
	err     error
}

func (f *fakeMarkets) SettleableMarkets(context.Context) ([]*types.Market, error) {
	return f.markets, f.err
}

type fakeRounds struct {
	rounds   []*types.RoundResult
	attempts []*types.SettlementAttempt
}

func (f *fakeRounds) Rounds() []*types.RoundResult { return f.rounds }
func (f *fakeRounds) Attempts() []*types.SettlementAttempt { return f.attempts }

func newTestServer(t *testing.T, cfg *Config) *Server {
	t.Helper()
	cfg.Port = "0"
	cfg.Logger = zaptest.NewLogger(t)
	if cfg.HealthChecker == nil {
		cfg.HealthChecker = healthprobe.New()
	}
	return New(cfg)
}

func do(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_HealthAndReady(t *testing.T) {
	hc := healthprobe.New()
	s := newTestServer(t, &Config{HealthChecker: hc})

	assert.Equal(t, http.StatusOK, do(t, s, "/health").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, "/ready").Code)
	hc.SetReady(true)
	assert.Equal(t, http.StatusOK, do(t, s, "/ready").Code)
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, &Config{})
	rec := do(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_OptionalRoutesNotMounted(t *testing.T) {
	s := newTestServer(t, &Config{})
	for _, path := range []string{"/api/markets/settleable", "/api/rounds", "/api/attempts", "/ws/events"} {
		assert.Equal(t, http.StatusNotFound, do(t, s, path).Code, path)
	}
}

func TestServer_Settleable(t *testing.T) {
	markets := &fakeMarkets{markets: []*types.Market{{
		ID:             3,
		Question:       "Will BTC close above 100k?",
		Outcomes:       []string{"Yes", "No"},
		RevealDeadline: time.Unix(1_700_000_000, 0).UTC(),
		TotalPool:      big.NewInt(2e18),
		RevealedPools:  []*big.Int{big.NewInt(1e18), big.NewInt(0)},
		FinalOutcome:   types.NoOutcome,
	}}}
	s := newTestServer(t, &Config{Markets: markets})

	rec := do(t, s, "/api/markets/settleable")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp MarketsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, uint64(3), resp.Markets[0].ID)
	assert.Equal(t, "2000000000000000000", resp.Markets[0].TotalPool.String())

	markets.markets, markets.err = nil, errors.New("rpc down")
	rec = do(t, s, "/api/markets/settleable")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"discover markets failed"}`, rec.Body.String())
}

func TestServer_Settleable_EmptyList(t *testing.T) {
	s := newTestServer(t, &Config{Markets: &fakeMarkets{}})
	rec := do(t, s, "/api/markets/settleable")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":0,"markets":[]}`, rec.Body.String())
}

func TestServer_Rounds(t *testing.T) {
	rounds := &fakeRounds{
		rounds: []*types.RoundResult{
			{RoundID: "r1", MarketID: 1, Verdict: types.Verdict{Outcome: "Yes", OutcomeIndex: 0, Confidence: 0.9}, Agreeing: 3, Nodes: 3},
			{RoundID: "r2", MarketID: 2, Agreeing: 3, Nodes: 3},
		},
		attempts: []*types.SettlementAttempt{
			{ID: "a1", MarketID: 1, Status: types.AttemptSubmitted, TxHash: "0xabc"},
		},
	}
	s := newTestServer(t, &Config{Rounds: rounds})

	var list RoundsResponse
	rec := do(t, s, "/api/rounds")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)

	var one types.RoundResult
	rec = do(t, s, "/api/rounds/1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, "r1", one.RoundID)
	assert.Equal(t, "Yes", one.Verdict.Outcome)

	assert.Equal(t, http.StatusNotFound, do(t, s, "/api/rounds/7").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, "/api/rounds/x").Code)

	var attempts AttemptsResponse
	rec = do(t, s, "/api/attempts")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &attempts))
	require.Equal(t, 1, attempts.Count)
	assert.Equal(t, "0xabc", attempts.Attempts[0].TxHash)
}

func TestServer_EventsRoute(t *testing.T) {
	events := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	s := newTestServer(t, &Config{Events: events})
	assert.Equal(t, http.StatusTeapot, do(t, s, "/ws/events").Code)
}

func TestServer_StartShutdown(t *testing.T) {
	s := newTestServer(t, &Config{})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}
