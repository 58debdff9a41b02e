package evidence

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mselser95/phantombet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSource struct {
	name     string
	failures int32 // calls that fail before one succeeds; -1 fails forever
	evidence types.Evidence
	err      error
	calls    atomic.Int32
	block    bool
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context, _ string) (types.Evidence, error) {
	n := f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return types.Evidence{}, ctx.Err()
	}
	if f.err != nil {
		return types.Evidence{}, f.err
	}
	if f.failures < 0 || n <= f.failures {
		return types.Evidence{}, errors.New("connection reset")
	}
	return f.evidence, nil
}

func fastRetry(max int) RetryConfig {
	return RetryConfig{
		MaxRetries:        max,
		InitialDelay:      time.Millisecond,
		MaxDelay:          2 * time.Millisecond,
		BackoffMultiplier: 2,
		JitterPercent:     0.1,
	}
}

func newTestAggregator(t *testing.T, retries int, timeout time.Duration, sources ...Source) *Aggregator {
	t.Helper()
	a, err := New(&Config{
		Sources:     sources,
		Retry:       fastRetry(retries),
		CallTimeout: timeout,
		Logger:      zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return a
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
	_, err = New(&Config{})
	assert.ErrorContains(t, err, "logger cannot be nil")
	_, err = New(&Config{Logger: zaptest.NewLogger(t), Retry: RetryConfig{MaxRetries: -1}})
	assert.ErrorContains(t, err, "max retries cannot be negative")
}

func TestAggregate_OrderAndNormalization(t *testing.T) {
	asOf := time.Date(2025, 1, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	news := &fakeSource{name: "NewsAPI", evidence: types.Evidence{Payload: "  headline  ", Confidence: 0.8, CapturedAt: time.Now()}}
	price := &fakeSource{name: "CoinGecko", evidence: types.Evidence{Source: "CoinGecko", Payload: "btc: 1", Confidence: 1.7}}

	a := newTestAggregator(t, 0, 0, news, price)
	bundle, err := a.Aggregate(context.Background(), "Q?", asOf)
	require.NoError(t, err)

	require.Len(t, bundle.Entries, 2)
	assert.Equal(t, "Q?", bundle.Question)
	assert.Equal(t, "NewsAPI", bundle.Entries[0].Source)
	assert.Equal(t, "headline", bundle.Entries[0].Payload)
	assert.Equal(t, asOf.UTC(), bundle.Entries[0].CapturedAt)
	assert.Equal(t, 1.0, bundle.Entries[1].Confidence)
	assert.Equal(t, 2, bundle.RealSources())
}

func TestAggregate_DeterministicAcrossRuns(t *testing.T) {
	asOf := time.Unix(1_700_000_000, 0)
	src := func() Source {
		return &fakeSource{name: "NewsAPI", evidence: types.Evidence{Payload: "p", Confidence: 0.8, CapturedAt: time.Now()}}
	}

	first, err := newTestAggregator(t, 0, 0, src()).Aggregate(context.Background(), "Q", asOf)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := newTestAggregator(t, 0, 0, src()).Aggregate(context.Background(), "Q", asOf)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAggregate_RetriesThenSucceeds(t *testing.T) {
	flaky := &fakeSource{name: "flaky", failures: 2, evidence: types.Evidence{Payload: "ok", Confidence: 0.5}}

	bundle, err := newTestAggregator(t, 2, 0, flaky).Aggregate(context.Background(), "Q", time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, int32(3), flaky.calls.Load())
	require.Len(t, bundle.Entries, 1)
	assert.Equal(t, "ok", bundle.Entries[0].Payload)
}

func TestAggregate_FailingSourceIsDropped(t *testing.T) {
	broken := &fakeSource{name: "broken", failures: -1}
	empty := &fakeSource{name: "empty", err: ErrNoData}
	good := &fakeSource{name: "good", evidence: types.Evidence{Payload: "fact", Confidence: 0.8}}
	zero := &fakeSource{name: "zero", evidence: types.Evidence{Payload: "Error fetching", Confidence: 0}}

	bundle, err := newTestAggregator(t, 1, 0, broken, empty, good, zero).Aggregate(context.Background(), "Q", time.Unix(0, 0))
	require.NoError(t, err)

	assert.Equal(t, int32(2), broken.calls.Load())
	assert.Equal(t, int32(1), empty.calls.Load())
	require.Len(t, bundle.Entries, 1)
	assert.Equal(t, "good", bundle.Entries[0].Source)
}

func TestAggregate_FallbackWhenNothingAnswers(t *testing.T) {
	asOf := time.Unix(1_700_000_000, 0)
	broken := &fakeSource{name: "broken", failures: -1}

	for _, sources := range [][]Source{nil, {broken}} {
		bundle, err := newTestAggregator(t, 0, 0, sources...).Aggregate(context.Background(), "Will it rain?", asOf)
		require.NoError(t, err)
		require.Len(t, bundle.Entries, 1)

		entry := bundle.Entries[0]
		assert.True(t, entry.Fallback)
		assert.Equal(t, FallbackSourceName, entry.Source)
		assert.Contains(t, entry.Payload, "Will it rain?")
		assert.Greater(t, entry.Confidence, 0.0)
		assert.Less(t, entry.Confidence, 0.5)
		assert.Equal(t, 0, bundle.RealSources())
		assert.Equal(t, Fallback("Will it rain?", asOf), entry)
	}
}

func TestAggregate_PerCallTimeout(t *testing.T) {
	slow := &fakeSource{name: "slow", block: true}
	good := &fakeSource{name: "good", evidence: types.Evidence{Payload: "fact", Confidence: 0.8}}

	start := time.Now()
	bundle, err := newTestAggregator(t, 0, 20*time.Millisecond, slow, good).Aggregate(context.Background(), "Q", time.Unix(0, 0))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, bundle.Entries, 1)
	assert.Equal(t, "good", bundle.Entries[0].Source)
}

func TestAggregate_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	slow := &fakeSource{name: "slow", block: true}
	_, err := newTestAggregator(t, 3, 0, slow).Aggregate(ctx, "Q", time.Unix(0, 0))
	assert.ErrorIs(t, err, context.Canceled)
}
