package consensus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mselser95/phantombet/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoConsensus means the nodes finished but did not agree.
	ErrNoConsensus = errors.New("no consensus")
	// ErrNodeFailed means a node errored or timed out where every node was required.
	ErrNodeFailed = errors.New("node failed")
)

// RoundError describes a round that produced no value.
type RoundError struct {
	RoundID  string
	MarketID uint64
	Agreeing int // size of the largest agreeing group
	Nodes    int
	Err      error // ErrNoConsensus or ErrNodeFailed
}

func (e *RoundError) Error() string {
	return fmt.Sprintf("round %s market %d: %s (%d/%d agreeing)", e.RoundID, e.MarketID, e.Err, e.Agreeing, e.Nodes)
}

func (e *RoundError) Unwrap() error {
	return e.Err
}

// Coordinator runs one round per market across all nodes and accepts a
// verdict only on identical agreement.
type Coordinator struct {
	nodes       []Node
	quorum      int
	nodeTimeout time.Duration
	logger      *zap.Logger
}

// Config holds coordinator configuration.
type Config struct {
	Nodes []Node
	// Quorum of 0 (or len(Nodes)) requires every node to return an identical
	// verdict. Anything else compares only the outcome and needs a strict majority.
	Quorum      int
	NodeTimeout time.Duration
	Logger      *zap.Logger
}

// New creates a coordinator.
func New(cfg *Config) (*Coordinator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("at least one node is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	n := len(cfg.Nodes)
	quorum := cfg.Quorum
	if quorum == 0 {
		quorum = n
	}
	if quorum < 0 || quorum > n {
		return nil, fmt.Errorf("quorum %d out of range for %d nodes", cfg.Quorum, n)
	}
	if quorum*2 <= n {
		return nil, fmt.Errorf("quorum %d must be a strict majority of %d nodes", quorum, n)
	}

	seen := make(map[string]struct{}, n)
	for _, node := range cfg.Nodes {
		if _, dup := seen[node.ID()]; dup {
			return nil, fmt.Errorf("duplicate node id %q", node.ID())
		}
		seen[node.ID()] = struct{}{}
	}

	return &Coordinator{
		nodes:       cfg.Nodes,
		quorum:      quorum,
		nodeTimeout: cfg.NodeTimeout,
		logger:      cfg.Logger,
	}, nil
}

// Nodes returns the number of participating nodes.
func (c *Coordinator) Nodes() int {
	return len(c.nodes)
}

// Unanimous reports whether every node must return an identical verdict.
func (c *Coordinator) Unanimous() bool {
	return c.quorum == len(c.nodes)
}

// Run executes the pipeline once per node in parallel and compares the results.
// Nothing is returned unless agreement is reached; results of a canceled round
// are discarded.
func (c *Coordinator) Run(ctx context.Context, market *types.Market) (*types.RoundResult, error) {
	roundID := uuid.NewString()
	start := time.Now()
	n := len(c.nodes)

	results := make([]types.NodeResult, n)
	errs := make([]error, n)

	var g errgroup.Group
	for i, node := range c.nodes {
		// Each node gets its own copy of the market.
		snapshot := market.Clone()
		g.Go(func() error {
			results[i], errs[i] = c.evaluate(ctx, node, snapshot)
			return nil
		})
	}
	_ = g.Wait()

	RoundDurationSeconds.Observe(time.Since(start).Seconds())

	err := ctx.Err()
	if err != nil {
		RoundsTotal.WithLabelValues("canceled").Inc()
		return nil, err
	}

	for i, nodeErr := range errs {
		if nodeErr != nil {
			NodeFailuresTotal.WithLabelValues(c.nodes[i].ID()).Inc()
			c.logger.Warn("node-failed",
				zap.String("round-id", roundID),
				zap.Uint64("market-id", market.ID),
				zap.String("node", c.nodes[i].ID()),
				zap.Error(nodeErr))
		}
	}

	if c.Unanimous() {
		return c.unanimous(roundID, market.ID, results, errs)
	}
	return c.byQuorum(roundID, market.ID, results, errs)
}

func (c *Coordinator) evaluate(ctx context.Context, node Node, market *types.Market) (types.NodeResult, error) {
	if c.nodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.nodeTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := node.Evaluate(ctx, market)
	NodeDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return types.NodeResult{}, err
	}
	if ctx.Err() != nil {
		// Finished after its deadline: treat as a timeout.
		return types.NodeResult{}, ctx.Err()
	}
	res.NodeID = node.ID()
	return res, nil
}

func (c *Coordinator) unanimous(roundID string, marketID uint64, results []types.NodeResult, errs []error) (*types.RoundResult, error) {
	n := len(results)

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed > 0 {
		return nil, c.fail(roundID, marketID, n-failed, ErrNodeFailed, "node-failed")
	}

	first := results[0].Verdict
	realSources := results[0].RealSources
	for _, r := range results[1:] {
		if r.Verdict != first {
			return nil, c.fail(roundID, marketID, largestGroup(results, errs, sameVerdict), ErrNoConsensus, "disagreed")
		}
		realSources = min(realSources, r.RealSources)
	}

	return c.agree(&types.RoundResult{
		RoundID:     roundID,
		MarketID:    marketID,
		Verdict:     first,
		Agreeing:    n,
		Nodes:       n,
		RealSources: realSources,
		Results:     results,
	}), nil
}

func (c *Coordinator) byQuorum(roundID string, marketID uint64, results []types.NodeResult, errs []error) (*types.RoundResult, error) {
	n := len(results)

	// Group successful results by outcome, keeping node order.
	var leader *types.NodeResult
	best := 0
	for i := range results {
		if errs[i] != nil {
			continue
		}
		count := 0
		for j := range results {
			if errs[j] == nil && sameOutcome(results[i], results[j]) {
				count++
			}
		}
		if count > best {
			best = count
			leader = &results[i]
		}
	}

	if best < c.quorum {
		reason := "disagreed"
		sentinel := ErrNoConsensus
		if leader == nil {
			reason = "node-failed"
			sentinel = ErrNodeFailed
		}
		return nil, c.fail(roundID, marketID, best, sentinel, reason)
	}

	// The agreed verdict takes the lowest confidence and evidence count among
	// the agreeing nodes, and the first agreeing node's justification.
	verdict := leader.Verdict
	realSources := leader.RealSources
	agreeing := make([]types.NodeResult, 0, best)
	for i := range results {
		if errs[i] != nil || !sameOutcome(*leader, results[i]) {
			continue
		}
		agreeing = append(agreeing, results[i])
		verdict.Confidence = min(verdict.Confidence, results[i].Verdict.Confidence)
		realSources = min(realSources, results[i].RealSources)
	}

	return c.agree(&types.RoundResult{
		RoundID:     roundID,
		MarketID:    marketID,
		Verdict:     verdict,
		Agreeing:    best,
		Nodes:       n,
		RealSources: realSources,
		Results:     agreeing,
	}), nil
}

func (c *Coordinator) agree(res *types.RoundResult) *types.RoundResult {
	RoundsTotal.WithLabelValues("agreed").Inc()
	c.logger.Info("consensus-reached",
		zap.String("round-id", res.RoundID),
		zap.Uint64("market-id", res.MarketID),
		zap.String("outcome", res.Verdict.Outcome),
		zap.Float64("confidence", res.Verdict.Confidence),
		zap.Int("agreeing", res.Agreeing),
		zap.Int("nodes", res.Nodes))
	return res
}

func (c *Coordinator) fail(roundID string, marketID uint64, agreeing int, sentinel error, label string) error {
	RoundsTotal.WithLabelValues(label).Inc()
	c.logger.Info("consensus-failed",
		zap.String("round-id", roundID),
		zap.Uint64("market-id", marketID),
		zap.String("result", label),
		zap.Int("agreeing", agreeing),
		zap.Int("nodes", len(c.nodes)),
		zap.Int("required", c.quorum))
	return &RoundError{RoundID: roundID, MarketID: marketID, Agreeing: agreeing, Nodes: len(c.nodes), Err: sentinel}
}

func sameVerdict(a, b types.NodeResult) bool {
	return a.Verdict == b.Verdict
}

func sameOutcome(a, b types.NodeResult) bool {
	return a.Verdict.OutcomeIndex == b.Verdict.OutcomeIndex && a.Verdict.Outcome == b.Verdict.Outcome
}

func largestGroup(results []types.NodeResult, errs []error, eq func(a, b types.NodeResult) bool) int {
	best := 0
	for i := range results {
		if errs[i] != nil {
			continue
		}
		count := 0
		for j := range results {
			if errs[j] == nil && eq(results[i], results[j]) {
				count++
			}
		}
		best = max(best, count)
	}
	return best
}
