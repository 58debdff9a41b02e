package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/mselser95/phantombet/pkg/types"
	"go.uber.org/zap"
)

const schema = `
	CREATE TABLE IF NOT EXISTS settlement_attempts (
		id           UUID PRIMARY KEY,
		market_id    BIGINT NOT NULL,
		round_id     TEXT,
		status       TEXT NOT NULL,
		reason       TEXT,
		outcome      TEXT,
		confidence   DOUBLE PRECISION NOT NULL,
		agreeing     INTEGER NOT NULL,
		nodes        INTEGER NOT NULL,
		tx_hash      TEXT,
		error        TEXT,
		attempted_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS settlement_attempts_market_idx
		ON settlement_attempts (market_id, attempted_at DESC);
`

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStorage connects and makes sure the attempts table exists.
func NewPostgresStorage(ctx context.Context, cfg *PostgresConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := &PostgresStorage{db: db, logger: cfg.Logger}
	err = p.EnsureSchema(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return p, nil
}

// EnsureSchema creates the attempts table if missing.
func (p *PostgresStorage) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// StoreAttempt inserts one settlement attempt.
func (p *PostgresStorage) StoreAttempt(ctx context.Context, a *types.SettlementAttempt) error {
	query := `
		INSERT INTO settlement_attempts (
			id, market_id, round_id, status, reason, outcome,
			confidence, agreeing, nodes, tx_hash, error, attempted_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	_, err := p.db.ExecContext(ctx, query,
		a.ID,
		int64(a.MarketID),
		nullable(a.RoundID),
		a.Status,
		nullable(a.Reason),
		nullable(a.Outcome),
		a.Confidence,
		a.Agreeing,
		a.Nodes,
		nullable(a.TxHash),
		nullable(a.Error),
		a.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	p.logger.Debug("attempt-stored",
		zap.String("attempt-id", a.ID),
		zap.Uint64("market-id", a.MarketID),
		zap.String("status", a.Status))

	return nil
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
