package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mselser95/phantombet/pkg/types"
	"go.uber.org/zap"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// ConsoleStorage implements Storage by pretty-printing to console.
type ConsoleStorage struct {
	out    io.Writer
	logger *zap.Logger
}

// NewConsoleStorage creates a new console storage writing to stdout.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{
		out:    os.Stdout,
		logger: logger,
	}
}

// StoreAttempt pretty-prints a settlement attempt. Skips print a single line.
func (c *ConsoleStorage) StoreAttempt(ctx context.Context, a *types.SettlementAttempt) error {
	ts := a.AttemptedAt.Format("2006-01-02 15:04:05")

	if a.Status == types.AttemptSkipped {
		fmt.Fprintf(c.out, "⏭  market #%d skipped (%s) at %s\n", a.MarketID, a.Reason, ts)
		return nil
	}

	fmt.Fprintln(c.out, "\n"+rule)
	if a.Status == types.AttemptSubmitted {
		fmt.Fprintf(c.out, "✅ MARKET #%d SETTLED\n", a.MarketID)
	} else {
		fmt.Fprintf(c.out, "❌ MARKET #%d SETTLEMENT FAILED\n", a.MarketID)
	}
	fmt.Fprintln(c.out, rule)
	fmt.Fprintf(c.out, "Round:      %s\n", a.RoundID)
	fmt.Fprintf(c.out, "Outcome:    %s\n", a.Outcome)
	fmt.Fprintf(c.out, "Confidence: %.2f\n", a.Confidence)
	fmt.Fprintf(c.out, "Agreement:  %d/%d nodes\n", a.Agreeing, a.Nodes)
	fmt.Fprintf(c.out, "Time:       %s\n", ts)
	if a.TxHash != "" {
		fmt.Fprintf(c.out, "Tx:         %s\n", a.TxHash)
	}
	if a.Error != "" {
		fmt.Fprintf(c.out, "Error:      %s\n", a.Error)
	}
	fmt.Fprintln(c.out, rule)

	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}
