package evidence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// SourceFetchesTotal counts source calls by result (ok, no-data, error).
	SourceFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantombet_evidence_fetches_total",
		Help: "Evidence source calls by source and result",
	}, []string{"source", "result"})

	// SourceRetriesTotal counts retried source calls.
	SourceRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantombet_evidence_retries_total",
		Help: "Evidence source call retries by source",
	}, []string{"source"})

	// FallbackBundlesTotal counts bundles that fell back to background knowledge.
	FallbackBundlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phantombet_evidence_fallback_total",
		Help: "Evidence bundles built from the synthetic fallback entry only",
	})

	// FetchDurationSeconds tracks source call latency.
	FetchDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "phantombet_evidence_fetch_duration_seconds",
		Help:    "Duration of evidence source calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})
)
