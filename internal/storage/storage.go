package storage

import (
	"context"

	"github.com/mselser95/phantombet/pkg/types"
)

// Storage is the audit log of settlement attempts.
type Storage interface {
	// StoreAttempt records one orchestrator cycle's outcome for one market.
	StoreAttempt(ctx context.Context, attempt *types.SettlementAttempt) error

	// Close closes the storage connection.
	Close() error
}
