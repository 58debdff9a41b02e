package ledger

import (
	"errors"

	"github.com/mselser95/phantombet/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation names used in errors and metric labels.
const (
	OpCreateMarket  = "createMarket"
	OpPlaceBet      = "placeBet"
	OpRevealBet     = "revealBet"
	OpSettle        = "settle"
	OpClaimWinnings = "claimWinnings"
	OpSetOracle     = "setOracle"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// OperationsTotal counts ledger operations by name and result.
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantombet_ledger_operations_total",
		Help: "Ledger operations by operation and result (ok or the rejection name)",
	}, []string{"op", "result"})

	// EventsEmittedTotal counts notifications by kind.
	EventsEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantombet_ledger_events_total",
		Help: "Ledger notifications emitted by kind",
	}, []string{"kind"})

	// EventsDroppedTotal counts notifications a slow subscriber missed.
	EventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phantombet_ledger_events_dropped_total",
		Help: "Ledger notifications dropped because a subscriber buffer was full",
	})
)

func observe(op string, err error) {
	if err == nil {
		OperationsTotal.WithLabelValues(op, "ok").Inc()
		return
	}

	result := "error"
	var ledgerErr *types.LedgerError
	if errors.As(err, &ledgerErr) {
		result = ledgerErr.Err.Error()
	}
	OperationsTotal.WithLabelValues(op, result).Inc()
}
