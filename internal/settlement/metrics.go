package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// SubmissionsTotal counts settlement submissions by result (success, error, breaker-open).
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantombet_settlement_submissions_total",
		Help: "Settlement submissions by result",
	}, []string{"result"})

	SubmissionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "phantombet_settlement_submission_duration_seconds",
		Help:    "Time from report build to gateway acknowledgement",
		Buckets: prometheus.DefBuckets,
	})

	// VerificationMismatchesTotal counts submissions whose effect was not visible on re-read.
	VerificationMismatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phantombet_settlement_verification_mismatches_total",
		Help: "Submitted settlements not visible on the ledger afterwards",
	})

	// BreakerEnabled indicates whether the gas breaker allows submissions.
	BreakerEnabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phantombet_gas_breaker_enabled",
		Help: "Whether the gas breaker allows submissions (1=enabled, 0=disabled)",
	})

	BreakerBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phantombet_gas_breaker_balance_ether",
		Help: "Last checked oracle node balance",
	})

	BreakerDisableThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phantombet_gas_breaker_disable_threshold_ether",
		Help: "Balance below which submissions stop",
	})

	BreakerEnableThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phantombet_gas_breaker_enable_threshold_ether",
		Help: "Balance at which submissions resume",
	})

	// BreakerStateChanges counts enable/disable transitions.
	BreakerStateChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phantombet_gas_breaker_state_changes_total",
		Help: "Total number of gas breaker state changes",
	})

	BreakerCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "phantombet_gas_breaker_check_duration_seconds",
		Help:    "Time taken to check the node balance",
		Buckets: prometheus.DefBuckets,
	})
)
