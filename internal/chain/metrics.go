package chain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// CallsTotal counts read-only contract calls by method.
	CallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantombet_chain_calls_total",
		Help: "Contract view calls by method",
	}, []string{"method"})

	CallErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantombet_chain_call_errors_total",
		Help: "Failed contract view calls by method",
	}, []string{"method"})

	// TransactionsTotal counts sent transactions by method and result.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantombet_chain_transactions_total",
		Help: "Transactions by method and result",
	}, []string{"method", "result"})

	TransactionDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "phantombet_chain_transaction_duration_seconds",
		Help:    "Time from packing to receipt",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"method"})

	ScanDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "phantombet_chain_scan_duration_seconds",
		Help:    "Duration of a full settleable-market scan",
		Buckets: prometheus.DefBuckets,
	})
)
