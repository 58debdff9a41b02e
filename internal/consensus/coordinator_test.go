package consensus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mselser95/phantombet/internal/evidence"
	"github.com/mselser95/phantombet/internal/inference"
	"github.com/mselser95/phantombet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubNode struct {
	id      string
	verdict types.Verdict
	sources int
	err     error
	delay   time.Duration
	seen    *types.Market
}

func (s *stubNode) ID() string { return s.id }

func (s *stubNode) Evaluate(ctx context.Context, market *types.Market) (types.NodeResult, error) {
	s.seen = market
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return types.NodeResult{}, ctx.Err()
		}
	}
	if s.err != nil {
		return types.NodeResult{}, s.err
	}
	// Mutating the snapshot must not leak to other nodes.
	market.Outcomes[0] = "mutated-by-" + s.id
	return types.NodeResult{Verdict: s.verdict, RealSources: s.sources}, nil
}

func testMarket() *types.Market {
	return &types.Market{
		ID:             7,
		Question:       "Will BTC close above $100k?",
		Outcomes:       []string{"Yes", "No"},
		RevealDeadline: time.Unix(1_700_000_000, 0),
	}
}

var (
	yes     = types.Verdict{Outcome: "Yes", OutcomeIndex: 0, Confidence: 0.9, Reasoning: "r"}
	yesLow  = types.Verdict{Outcome: "Yes", OutcomeIndex: 0, Confidence: 0.75, Reasoning: "other words"}
	no      = types.Verdict{Outcome: "No", OutcomeIndex: 1, Confidence: 0.9, Reasoning: "r"}
	errNode = errors.New("upstream 502")
)

func nodes(verdicts ...any) []Node {
	out := make([]Node, 0, len(verdicts))
	for i, v := range verdicts {
		n := &stubNode{id: fmt.Sprintf("node-%d", i), sources: 2}
		switch val := v.(type) {
		case types.Verdict:
			n.verdict = val
		case error:
			n.err = val
		}
		out = append(out, n)
	}
	return out
}

func newCoordinator(t *testing.T, quorum int, timeout time.Duration, ns []Node) *Coordinator {
	t.Helper()
	c, err := New(&Config{Nodes: ns, Quorum: quorum, NodeTimeout: timeout, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	three := nodes(yes, yes, yes)

	tests := []struct {
		name   string
		cfg    *Config
		errMsg string
	}{
		{"nil-config", nil, "config cannot be nil"},
		{"no-nodes", &Config{Logger: logger}, "at least one node"},
		{"nil-logger", &Config{Nodes: three}, "logger cannot be nil"},
		{"quorum-too-large", &Config{Nodes: three, Quorum: 4, Logger: logger}, "out of range"},
		{"quorum-negative", &Config{Nodes: three, Quorum: -1, Logger: logger}, "out of range"},
		{"quorum-not-majority", &Config{Nodes: nodes(yes, yes, yes, yes), Quorum: 2, Logger: logger}, "strict majority"},
		{"duplicate-ids", &Config{Nodes: []Node{&stubNode{id: "a"}, &stubNode{id: "a"}}, Logger: logger}, "duplicate node id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestRun_Unanimous(t *testing.T) {
	tests := []struct {
		name      string
		nodes     []Node
		want      *types.Verdict
		wantErr   error
		agreeings int
	}{
		{"all-identical", nodes(yes, yes, yes), &yes, nil, 3},
		{"one-different-outcome", nodes(yes, yes, no), nil, ErrNoConsensus, 2},
		{"same-outcome-different-confidence", nodes(yes, yesLow, yes), nil, ErrNoConsensus, 2},
		{"one-node-error", nodes(yes, errNode, yes), nil, ErrNodeFailed, 2},
		{"single-node", nodes(no), &no, nil, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCoordinator(t, 0, time.Second, tt.nodes)
			require.True(t, c.Unanimous())

			res, err := c.Run(context.Background(), testMarket())
			if tt.wantErr != nil {
				assert.Nil(t, res)
				assert.ErrorIs(t, err, tt.wantErr)
				var roundErr *RoundError
				require.True(t, errors.As(err, &roundErr))
				assert.Equal(t, tt.agreeings, roundErr.Agreeing)
				assert.Equal(t, len(tt.nodes), roundErr.Nodes)
				assert.Equal(t, uint64(7), roundErr.MarketID)
				assert.NotEmpty(t, roundErr.RoundID)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, *tt.want, res.Verdict)
			assert.Equal(t, tt.agreeings, res.Agreeing)
			assert.Equal(t, len(tt.nodes), res.Nodes)
			assert.Equal(t, 2, res.RealSources)
			assert.Len(t, res.Results, len(tt.nodes))
			assert.NotEmpty(t, res.RoundID)
		})
	}
}

func TestRun_Quorum(t *testing.T) {
	tests := []struct {
		name     string
		quorum   int
		nodes    []Node
		wantOK   bool
		wantErr  error
		agreeing int
	}{
		{"two-of-three-agree", 2, nodes(yes, no, yesLow), true, nil, 2},
		{"two-of-three-with-failure", 2, nodes(yes, errNode, yesLow), true, nil, 2},
		{"split", 3, nodes(yes, no, yes, no, yes), true, nil, 3},
		{"below-quorum", 3, nodes(yes, no, yes, no, errNode), false, ErrNoConsensus, 2},
		{"all-failed", 2, nodes(errNode, errNode, errNode), false, ErrNodeFailed, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCoordinator(t, tt.quorum, time.Second, tt.nodes)
			require.False(t, c.Unanimous())

			res, err := c.Run(context.Background(), testMarket())
			if !tt.wantOK {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Yes", res.Verdict.Outcome)
			assert.Equal(t, tt.agreeing, res.Agreeing)
			assert.Len(t, res.Results, tt.agreeing)
		})
	}
}

func TestRun_QuorumTakesLowestConfidence(t *testing.T) {
	c := newCoordinator(t, 2, time.Second, nodes(yes, yesLow, no))
	res, err := c.Run(context.Background(), testMarket())
	require.NoError(t, err)
	assert.Equal(t, 0.75, res.Verdict.Confidence)
	assert.Equal(t, "r", res.Verdict.Reasoning)
}

func TestRun_TimeoutIsNodeFailure(t *testing.T) {
	slow := &stubNode{id: "slow", verdict: yes, delay: time.Second}
	c := newCoordinator(t, 0, 20*time.Millisecond, []Node{
		&stubNode{id: "a", verdict: yes},
		slow,
		&stubNode{id: "b", verdict: yes},
	})

	start := time.Now()
	_, err := c.Run(context.Background(), testMarket())
	assert.ErrorIs(t, err, ErrNodeFailed)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRun_CanceledRoundDiscardsResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newCoordinator(t, 0, 0, []Node{
		&stubNode{id: "a", verdict: yes},
		&stubNode{id: "b", verdict: yes, delay: time.Second},
	})

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res, err := c.Run(ctx, testMarket())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_NodesAreIsolated(t *testing.T) {
	a := &stubNode{id: "a", verdict: yes}
	b := &stubNode{id: "b", verdict: yes}
	market := testMarket()

	_, err := newCoordinator(t, 0, time.Second, []Node{a, b}).Run(context.Background(), market)
	require.NoError(t, err)

	assert.Equal(t, "Yes", market.Outcomes[0])
	assert.NotSame(t, a.seen, b.seen)
	assert.Equal(t, "mutated-by-a", a.seen.Outcomes[0])
	assert.Equal(t, "mutated-by-b", b.seen.Outcomes[0])
}

func TestRun_NodesRunInParallel(t *testing.T) {
	var running, peak atomic.Int32
	var mu sync.Mutex
	ns := make([]Node, 4)
	for i := range ns {
		ns[i] = &funcNode{id: fmt.Sprintf("n%d", i), fn: func(ctx context.Context, _ *types.Market) (types.NodeResult, error) {
			cur := running.Add(1)
			mu.Lock()
			if cur > peak.Load() {
				peak.Store(cur)
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return types.NodeResult{Verdict: yes}, nil
		}}
	}

	_, err := newCoordinator(t, 0, time.Second, ns).Run(context.Background(), testMarket())
	require.NoError(t, err)
	assert.Greater(t, peak.Load(), int32(1))
}

type funcNode struct {
	id string
	fn func(ctx context.Context, m *types.Market) (types.NodeResult, error)
}

func (f *funcNode) ID() string { return f.id }

func (f *funcNode) Evaluate(ctx context.Context, m *types.Market) (types.NodeResult, error) {
	return f.fn(ctx, m)
}

type staticReasoner struct{ reply string }

func (s staticReasoner) Complete(context.Context, string, string) (string, error) {
	return s.reply, nil
}

type staticSource struct{ payload string }

func (s staticSource) Name() string { return "static" }

func (s staticSource) Fetch(context.Context, string) (types.Evidence, error) {
	return types.Evidence{Payload: s.payload, Confidence: 0.8, CapturedAt: time.Now()}, nil
}

func pipelineNode(t *testing.T, id string, reply string) *PipelineNode {
	t.Helper()
	logger := zaptest.NewLogger(t)
	agg, err := evidence.New(&evidence.Config{Sources: []evidence.Source{staticSource{"fact"}}, Logger: logger})
	require.NoError(t, err)
	inf, err := inference.New(&inference.Config{Reasoner: staticReasoner{reply}, Logger: logger})
	require.NoError(t, err)
	return NewPipelineNode(id, agg, inf)
}

func TestPipelineNodes_EndToEnd(t *testing.T) {
	agreeReply := `{"outcome":"yes","confidence":0.92,"reasoning":"closed at 101k"}`

	c := newCoordinator(t, 0, time.Second, []Node{
		pipelineNode(t, "n0", agreeReply),
		pipelineNode(t, "n1", agreeReply),
		pipelineNode(t, "n2", agreeReply),
	})
	res, err := c.Run(context.Background(), testMarket())
	require.NoError(t, err)
	assert.Equal(t, types.Verdict{Outcome: "Yes", OutcomeIndex: 0, Confidence: 0.92, Reasoning: "closed at 101k"}, res.Verdict)
	assert.Equal(t, 1, res.RealSources)
	assert.Equal(t, []string{"n0", "n1", "n2"}, []string{res.Results[0].NodeID, res.Results[1].NodeID, res.Results[2].NodeID})

	c = newCoordinator(t, 0, time.Second, []Node{
		pipelineNode(t, "n0", agreeReply),
		pipelineNode(t, "n1", `{"outcome":"No","confidence":0.92,"reasoning":"closed at 99k"}`),
		pipelineNode(t, "n2", agreeReply),
	})
	_, err = c.Run(context.Background(), testMarket())
	assert.ErrorIs(t, err, ErrNoConsensus)
}
