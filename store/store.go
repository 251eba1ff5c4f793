/*
store.go - Durable transaction row contract

PURPOSE:
  Defines the narrow interface every storage backend (Postgres,
  in-memory) must satisfy, and the Transaction row shape shared by
  all of them. Unlike a typical append-only ledger store, the
  Transaction row here is mutable by design: it moves through a small
  status lifecycle (PROCESSING -> PROCESSED/FAILED) and the store must
  expose a way to apply a targeted field patch under a status guard.

GUARANTEES A CONFORMING IMPLEMENTATION MUST PROVIDE:
  - InsertIfAbsent is atomic on the unique key TransactionID; no row
    is ever partially visible to a concurrent reader.
  - GetByTransactionID observes the latest committed state.
  - UpdateConditional only applies patch fields when the row's current
    status matches the supplied guard; it reports whether it applied.
  - All writes commit before the call returns.

SEE ALSO:
  - store/postgres: durable implementation over database/sql + lib/pq
  - store/memory: in-memory test double
  - internal/txrepo: the only caller; encodes legal transitions
*/
package store

import (
	"context"
	"time"
)

// Status is the transaction's position in its state machine. The three
// literals are part of the external contract (persisted verbatim).
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusProcessed  Status = "PROCESSED"
	StatusFailed     Status = "FAILED"
)

// Transaction is the single core entity: a row in the durable
// transactions table plus its idempotency bookkeeping.
type Transaction struct {
	ID                     int64
	TransactionID          string
	SourceAccount          string
	DestinationAccount     string
	Amount                 string // fixed-point decimal, scale 2, rendered as text to avoid float drift in transit
	Currency               string
	Status                 Status
	CreatedAt              time.Time
	UpdatedAt              time.Time
	ProcessingStartedAt    *time.Time
	ProcessedAt            *time.Time
	ErrorMessage           *string
	PayloadHash            string
	DuplicateConflictCount int
	LastConflictAt         *time.Time
}

// NewRow describes the fields supplied on first insert. UpdatedAt and
// CreatedAt are stamped by the store itself.
type NewRow struct {
	TransactionID       string
	SourceAccount       string
	DestinationAccount  string
	Amount              string
	Currency            string
	Status              Status
	ProcessingStartedAt *time.Time
	PayloadHash         string
	Now                 time.Time
}

// Patch is a field-level update. Only non-nil pointer fields are
// applied; Clear* flags explicitly null out a nullable column (a nil
// pointer alone is ambiguous between "leave as-is" and "set to null").
type Patch struct {
	Status                 *Status
	ProcessingStartedAt    *time.Time
	ClearProcessingStarted bool
	ProcessedAt            *time.Time
	ErrorMessage           *string
	ClearErrorMessage      bool
	DuplicateConflictDelta int
	LastConflictAt         *time.Time
	UpdatedAt              time.Time
}

// Store is the durable storage contract. Implementations must be safe
// for concurrent use by multiple goroutines.
type Store interface {
	// InsertIfAbsent attempts to create a row with the given fields.
	// It returns the created row and inserted=true on success, or
	// inserted=false (with a zero Transaction) if a row with the same
	// TransactionID already exists. It never overwrites an existing row.
	InsertIfAbsent(ctx context.Context, row NewRow) (tx Transaction, inserted bool, err error)

	// GetByTransactionID returns the row for id, or found=false if none
	// exists.
	GetByTransactionID(ctx context.Context, id string) (tx Transaction, found bool, err error)

	// UpdateConditional applies patch to the row identified by
	// rowID, but only if the row's current status equals guard.
	// It returns applied=false (not an error) if the guard did not
	// match - the caller's re-read-before-terminal-write discipline
	// depends on this being a normal, expected outcome.
	UpdateConditional(ctx context.Context, rowID int64, guard Status, patch Patch) (applied bool, err error)

	// Close releases any resources held by the store.
	Close() error
}
