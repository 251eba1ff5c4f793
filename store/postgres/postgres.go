/*
Package postgres provides a PostgreSQL-backed implementation of store.Store.

PURPOSE:
  Durable transactions table with a unique key on transaction_id, an
  atomic insert-or-skip, and a conditional field-patch update. This is
  the only component that talks to the database.

KEY TABLE:
  transactions: one row per unique transaction_id, mutated only through
  UpdateConditional's guarded UPDATE.

INDEXES:
  - unique on transaction_id (idx_transactions_transaction_id)
  - non-unique on status (idx_transactions_status)
  - composite on (status, processing_started_at), for future stale scans
    (idx_transactions_status_processing_started_at)

TIMEZONE:
  New runs SET TIME ZONE with the configured zone (default
  Asia/Kolkata) once, through the pool. It takes effect on the one
  pooled connection that executed it; connections the pool opens
  later use the server's default zone.

CONCURRENCY:
  database/sql's own pool handles concurrent access; no additional
  locking is needed here. Pool sizing is set by New's caller.

MIGRATION:
  Schema is auto-created on New(). For a real deployment this would be
  replaced by versioned migrations (golang-migrate, goose); auto-create
  is adequate for this service's scope.

SEE ALSO:
  - store/store.go: interface definition
  - store/memory: in-memory implementation for testing
*/
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/warp/txwebhook/store"
)

// Store implements store.Store over PostgreSQL via database/sql.
type Store struct {
	db *sql.DB
}

// Config controls pool sizing, per the suggested defaults in the
// connection pooling policy (10 base, 20 overflow, 1800s recycle), and
// the timezone New sets once at startup.
type Config struct {
	DSN             string
	Timezone        string // e.g. "Asia/Kolkata"
	MaxOpenConns    int    // base + overflow
	MaxIdleConns    int    // base
	ConnMaxLifetime time.Duration
}

// New opens a pooled connection to dsn, runs SET TIME ZONE once (it
// applies only to the pooled connection that executed it), and ensures
// the schema exists.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	s := &Store{db: db}

	if cfg.Timezone != "" {
		if _, err := db.Exec(fmt.Sprintf("SET TIME ZONE '%s'", cfg.Timezone)); err != nil {
			db.Close()
			return nil, fmt.Errorf("postgres: set time zone: %w", err)
		}
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transactions (
		id BIGSERIAL PRIMARY KEY,
		transaction_id TEXT NOT NULL UNIQUE,
		source_account TEXT NOT NULL,
		destination_account TEXT NOT NULL,
		amount NUMERIC(18,2) NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('PROCESSING', 'PROCESSED', 'FAILED')),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		processing_started_at TIMESTAMPTZ,
		processed_at TIMESTAMPTZ,
		error_message TEXT,
		payload_hash TEXT NOT NULL,
		duplicate_conflict_count INTEGER NOT NULL DEFAULT 0,
		last_conflict_at TIMESTAMPTZ
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_transaction_id ON transactions(transaction_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
	CREATE INDEX IF NOT EXISTS idx_transactions_status_processing_started_at ON transactions(status, processing_started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) InsertIfAbsent(ctx context.Context, row store.NewRow) (store.Transaction, bool, error) {
	const q = `
	INSERT INTO transactions
		(transaction_id, source_account, destination_account, amount, currency,
		 status, created_at, updated_at, processing_started_at, payload_hash)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8, $9)
	ON CONFLICT (transaction_id) DO NOTHING
	RETURNING id, created_at, updated_at
	`
	var tx store.Transaction
	row2 := s.db.QueryRowContext(ctx, q,
		row.TransactionID, row.SourceAccount, row.DestinationAccount, row.Amount, row.Currency,
		string(row.Status), row.Now, row.ProcessingStartedAt, row.PayloadHash,
	)
	var id int64
	var createdAt, updatedAt time.Time
	if err := row2.Scan(&id, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Transaction{}, false, nil
		}
		return store.Transaction{}, false, fmt.Errorf("postgres: insert if absent: %w", err)
	}

	tx = store.Transaction{
		ID:                  id,
		TransactionID:       row.TransactionID,
		SourceAccount:       row.SourceAccount,
		DestinationAccount:  row.DestinationAccount,
		Amount:              row.Amount,
		Currency:            row.Currency,
		Status:              row.Status,
		CreatedAt:           createdAt,
		UpdatedAt:           updatedAt,
		ProcessingStartedAt: row.ProcessingStartedAt,
		PayloadHash:         row.PayloadHash,
	}
	return tx, true, nil
}

func (s *Store) GetByTransactionID(ctx context.Context, id string) (store.Transaction, bool, error) {
	const q = `
	SELECT id, transaction_id, source_account, destination_account, amount, currency,
	       status, created_at, updated_at, processing_started_at, processed_at,
	       error_message, payload_hash, duplicate_conflict_count, last_conflict_at
	FROM transactions
	WHERE transaction_id = $1
	`
	var tx store.Transaction
	var status string
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&tx.ID, &tx.TransactionID, &tx.SourceAccount, &tx.DestinationAccount, &tx.Amount, &tx.Currency,
		&status, &tx.CreatedAt, &tx.UpdatedAt, &tx.ProcessingStartedAt, &tx.ProcessedAt,
		&tx.ErrorMessage, &tx.PayloadHash, &tx.DuplicateConflictCount, &tx.LastConflictAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Transaction{}, false, nil
		}
		return store.Transaction{}, false, fmt.Errorf("postgres: get by transaction id: %w", err)
	}
	tx.Status = store.Status(status)
	return tx, true, nil
}

// UpdateConditional implements the conditional-UPDATE redesign: rather
// than loading the row, mutating it in memory, and committing an ORM
// session, it issues a single guarded UPDATE and inspects the affected
// row count to decide whether the transition took effect.
func (s *Store) UpdateConditional(ctx context.Context, rowID int64, guard store.Status, patch store.Patch) (bool, error) {
	set := []string{"updated_at = $1"}
	args := []interface{}{patch.UpdatedAt}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.Status != nil {
		set = append(set, "status = "+arg(string(*patch.Status)))
	}
	if patch.ClearProcessingStarted {
		set = append(set, "processing_started_at = NULL")
	} else if patch.ProcessingStartedAt != nil {
		set = append(set, "processing_started_at = "+arg(*patch.ProcessingStartedAt))
	}
	if patch.ProcessedAt != nil {
		set = append(set, "processed_at = "+arg(*patch.ProcessedAt))
	}
	if patch.ClearErrorMessage {
		set = append(set, "error_message = NULL")
	} else if patch.ErrorMessage != nil {
		set = append(set, "error_message = "+arg(*patch.ErrorMessage))
	}
	if patch.DuplicateConflictDelta != 0 {
		set = append(set, fmt.Sprintf("duplicate_conflict_count = duplicate_conflict_count + %s", arg(patch.DuplicateConflictDelta)))
	}
	if patch.LastConflictAt != nil {
		set = append(set, "last_conflict_at = "+arg(*patch.LastConflictAt))
	}

	idPlaceholder := arg(rowID)
	guardPlaceholder := arg(string(guard))

	q := fmt.Sprintf(
		"UPDATE transactions SET %s WHERE id = %s AND status = %s",
		joinSet(set), idPlaceholder, guardPlaceholder,
	)

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("postgres: update conditional: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: update conditional rows affected: %w", err)
	}
	return n == 1, nil
}

func joinSet(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}
