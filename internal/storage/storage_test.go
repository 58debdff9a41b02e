package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mselser95/phantombet/pkg/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func submittedAttempt() *types.SettlementAttempt {
	return &types.SettlementAttempt{
		ID:          "2b0c5d52-5a53-4a59-9d8e-8f4e1c2d6b11",
		MarketID:    7,
		RoundID:     "round-1",
		Status:      types.AttemptSubmitted,
		Outcome:     "Yes",
		Confidence:  0.92,
		Agreeing:    3,
		Nodes:       3,
		TxHash:      "0xabc",
		AttemptedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestConsoleStorage_New(t *testing.T) {
	storage := NewConsoleStorage(zap.NewNop())

	if storage == nil {
		t.Fatal("expected non-nil storage")
	}
	if storage.logger == nil {
		t.Error("expected non-nil logger")
	}
}

func TestConsoleStorage_StoreAttempt(t *testing.T) {
	var buf bytes.Buffer
	storage := &ConsoleStorage{out: &buf, logger: zaptest.NewLogger(t)}

	err := storage.StoreAttempt(context.Background(), submittedAttempt())
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	output := buf.String()
	for _, want := range []string{"MARKET #7 SETTLED", "Outcome:    Yes", "Agreement:  3/3 nodes", "Tx:         0xabc"} {
		if !bytes.Contains([]byte(output), []byte(want)) {
			t.Errorf("expected output to contain %q, got:\n%s", want, output)
		}
	}
}

func TestConsoleStorage_StoreAttempt_Skipped(t *testing.T) {
	var buf bytes.Buffer
	storage := &ConsoleStorage{out: &buf, logger: zaptest.NewLogger(t)}

	err := storage.StoreAttempt(context.Background(), &types.SettlementAttempt{
		MarketID: 4,
		Status:   types.AttemptSkipped,
		Reason:   types.ReasonNoConsensus,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !bytes.Contains(buf.Bytes(), []byte("market #4 skipped (no-consensus)")) {
		t.Errorf("unexpected output %q", buf.String())
	}
	if bytes.Count(buf.Bytes(), []byte("\n")) != 1 {
		t.Errorf("expected a single line, got %q", buf.String())
	}
}

func TestConsoleStorage_Close(t *testing.T) {
	storage := NewConsoleStorage(zap.NewNop())

	err := storage.Close()
	if err != nil {
		t.Errorf("expected no error on close, got %v", err)
	}
}

func TestPostgresStorage_StoreAttempt(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	storage := &PostgresStorage{db: db, logger: zaptest.NewLogger(t)}
	a := submittedAttempt()

	mock.ExpectExec("INSERT INTO settlement_attempts").
		WithArgs(
			a.ID,
			int64(7),
			"round-1",
			types.AttemptSubmitted,
			nil, // reason
			"Yes",
			0.92,
			3,
			3,
			"0xabc",
			nil, // error
			a.AttemptedAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = storage.StoreAttempt(context.Background(), a)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStorage_StoreAttempt_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	storage := &PostgresStorage{db: db, logger: zaptest.NewLogger(t)}

	mock.ExpectExec("INSERT INTO settlement_attempts").
		WillReturnError(errors.New("connection refused"))

	err = storage.StoreAttempt(context.Background(), submittedAttempt())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("insert attempt")) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestPostgresStorage_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	storage := &PostgresStorage{db: db, logger: zaptest.NewLogger(t)}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS settlement_attempts").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := storage.EnsureSchema(context.Background()); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStorage_Close(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	storage := &PostgresStorage{db: db, logger: zaptest.NewLogger(t)}
	mock.ExpectClose()

	if err := storage.Close(); err != nil {
		t.Errorf("expected no error on close, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
