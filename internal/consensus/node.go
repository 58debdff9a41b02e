package consensus

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/phantombet/pkg/types"
)

// Node is one oracle node's isolated execution of the settlement pipeline.
type Node interface {
	ID() string
	Evaluate(ctx context.Context, market *types.Market) (types.NodeResult, error)
}

// EvidenceGatherer is the evidence stage of the pipeline.
type EvidenceGatherer interface {
	Aggregate(ctx context.Context, question string, asOf time.Time) (*types.EvidenceBundle, error)
}

// VerdictInferrer is the inference stage of the pipeline.
type VerdictInferrer interface {
	Infer(ctx context.Context, question string, outcomes []string, bundle *types.EvidenceBundle) types.Verdict
}

// PipelineNode runs evidence aggregation then outcome inference. Each node
// owns its own stages; nodes never share them.
type PipelineNode struct {
	id       string
	evidence EvidenceGatherer
	inferrer VerdictInferrer
}

// NewPipelineNode creates a node.
func NewPipelineNode(id string, evidence EvidenceGatherer, inferrer VerdictInferrer) *PipelineNode {
	return &PipelineNode{id: id, evidence: evidence, inferrer: inferrer}
}

// ID implements Node.
func (n *PipelineNode) ID() string {
	return n.id
}

// Evaluate implements Node. Evidence is stamped with the market's reveal
// deadline so every node sees the same capture time.
func (n *PipelineNode) Evaluate(ctx context.Context, market *types.Market) (types.NodeResult, error) {
	bundle, err := n.evidence.Aggregate(ctx, market.Question, market.RevealDeadline)
	if err != nil {
		return types.NodeResult{}, fmt.Errorf("aggregate evidence: %w", err)
	}

	verdict := n.inferrer.Infer(ctx, market.Question, market.Outcomes, bundle)
	err = ctx.Err()
	if err != nil {
		return types.NodeResult{}, err
	}

	return types.NodeResult{
		NodeID:      n.id,
		Verdict:     verdict,
		RealSources: bundle.RealSources(),
	}, nil
}
