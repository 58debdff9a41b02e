package gateway

import (
	"errors"

	"github.com/mselser95/phantombet/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// CallsTotal counts gateway calls by operation and result.
	CallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phantombet_gateway_calls_total",
		Help: "Gateway calls by operation and result (ok or the rejection name)",
	}, []string{"op", "result"})
)

func observe(op string, err error) {
	if err == nil {
		CallsTotal.WithLabelValues(op, "ok").Inc()
		return
	}

	result := "error"
	var ledgerErr *types.LedgerError
	if errors.As(err, &ledgerErr) {
		result = ledgerErr.Err.Error()
	}
	CallsTotal.WithLabelValues(op, result).Inc()
}
