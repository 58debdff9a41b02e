package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// CyclesTotal counts discovery cycles by result (ok, error).
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantombet_orchestrator_cycles_total",
		Help: "Discovery cycles by result",
	}, []string{"result"})

	// AttemptsTotal counts per-market attempts by status and skip/failure reason.
	AttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantombet_orchestrator_attempts_total",
		Help: "Per-market settlement attempts by status and reason",
	}, []string{"status", "reason"})

	SettleableMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phantombet_orchestrator_settleable_markets",
		Help: "Markets found settleable in the last discovery cycle",
	})

	CycleDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "phantombet_orchestrator_cycle_duration_seconds",
		Help:    "Duration of a full discovery cycle",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
	})
)
