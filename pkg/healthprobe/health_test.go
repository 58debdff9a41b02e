package healthprobe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.HandlerFunc) (int, HealthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, resp
}

func TestNew(t *testing.T) {
	hc := New()
	assert.WithinDuration(t, time.Now(), hc.startTime, time.Second)
	assert.False(t, hc.ready.Load())
}

func TestHealth_AlwaysHealthy(t *testing.T) {
	hc := New()
	code, resp := get(t, hc.Health())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", resp.Status)
	assert.NotEmpty(t, resp.Uptime)
}

func TestReady_Toggle(t *testing.T) {
	hc := New()

	code, resp := get(t, hc.Ready())
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not_ready", resp.Status)

	hc.SetReady(true)
	code, resp = get(t, hc.Ready())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", resp.Status)
	assert.Empty(t, resp.Checks)

	hc.SetReady(false)
	code, _ = get(t, hc.Ready())
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReady_Checks(t *testing.T) {
	hc := New()
	hc.SetReady(true)

	var rpcErr error
	hc.Register("ledger", func(context.Context) error { return nil })
	hc.Register("rpc", func(context.Context) error { return rpcErr })

	code, resp := get(t, hc.Ready())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]string{"ledger": "ok", "rpc": "ok"}, resp.Checks)

	rpcErr = errors.New("dial tcp: connection refused")
	code, resp = get(t, hc.Ready())
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "dependency check failed", resp.Message)
	assert.Equal(t, "dial tcp: connection refused", resp.Checks["rpc"])
	assert.Equal(t, "ok", resp.Checks["ledger"])
}

func TestReady_CheckTimeout(t *testing.T) {
	hc := New()
	hc.checkTimeout = 20 * time.Millisecond
	hc.SetReady(true)
	hc.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	code, resp := get(t, hc.Ready())
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, context.DeadlineExceeded.Error(), resp.Checks["slow"])
}
