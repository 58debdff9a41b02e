package inference

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// InferencesTotal counts inference calls by result (ok, malformed, error).
	InferencesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantombet_inference_total",
		Help: "Outcome inference calls by result",
	}, []string{"result"})

	// InferenceDurationSeconds tracks reasoning service latency.
	InferenceDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "phantombet_inference_duration_seconds",
		Help:    "Duration of reasoning service calls",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
	})
)
