package consensus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// RoundsTotal counts consensus rounds by result (agreed, disagreed, node-failed, canceled).
	RoundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantombet_consensus_rounds_total",
		Help: "Consensus rounds by result",
	}, []string{"result"})

	// NodeFailuresTotal counts node executions that errored or timed out.
	NodeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantombet_consensus_node_failures_total",
		Help: "Oracle node executions that failed, by node",
	}, []string{"node"})

	// RoundDurationSeconds tracks whole-round latency.
	RoundDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "phantombet_consensus_round_duration_seconds",
		Help:    "Duration of consensus rounds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	// NodeDurationSeconds tracks single node execution latency.
	NodeDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "phantombet_consensus_node_duration_seconds",
		Help:    "Duration of single oracle node executions",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	})
)
