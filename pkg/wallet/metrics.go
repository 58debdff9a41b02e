package wallet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// NodeBalance tracks the oracle node's native balance for gas.
	NodeBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phantombet_wallet_node_balance_ether",
		Help: "Oracle node native balance (ether)",
	})

	// LedgerEscrow tracks the value held by the ledger contract.
	LedgerEscrow = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phantombet_wallet_ledger_escrow_ether",
		Help: "Native balance held by the ledger contract (ether)",
	})

	// UpdateErrorsTotal tracks the number of failed update attempts.
	UpdateErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phantombet_wallet_update_errors_total",
		Help: "Total number of failed wallet update attempts",
	})

	// UpdateDuration tracks the time taken to fetch wallet data.
	UpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "phantombet_wallet_update_duration_seconds",
		Help:    "Time taken to fetch wallet data (seconds)",
		Buckets: prometheus.DefBuckets,
	})

	// LastUpdateTimestamp tracks the Unix timestamp of the last successful update.
	LastUpdateTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phantombet_wallet_last_update_timestamp",
		Help: "Unix timestamp of last successful wallet update",
	})
)
