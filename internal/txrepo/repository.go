/*
repository.go - Typed operations over the Store

PURPOSE:
  Encodes the only legal mutations on a Transaction row. Nothing above
  this layer is allowed to call store.Store.UpdateConditional directly;
  every transition has a named method here that expresses intent.

SEE ALSO:
  - store/store.go: the underlying contract
  - internal/webhook: the only caller of CreateIfNotExists/RecordDuplicateConflict/MarkForRetryIfStale
  - internal/processor: the only caller of EnsureProcessingStarted/MarkInterrupted/MarkProcessed/MarkFailed
*/
package txrepo

import (
	"context"
	"time"

	"github.com/warp/txwebhook/store"
)

// Repository wraps a store.Store with transition-specific methods.
type Repository struct {
	Store store.Store
}

// New returns a Repository backed by s.
func New(s store.Store) *Repository {
	return &Repository{Store: s}
}

// CreateIfNotExists attempts to insert a new PROCESSING row stamped
// with now and payloadHash. It returns the created row and
// created=true, or created=false if a row with this transactionID
// already exists - it never overwrites.
func (r *Repository) CreateIfNotExists(
	ctx context.Context,
	transactionID, sourceAccount, destinationAccount, amount, currency, payloadHash string,
	now time.Time,
) (store.Transaction, bool, error) {
	startedAt := now
	row := store.NewRow{
		TransactionID:       transactionID,
		SourceAccount:       sourceAccount,
		DestinationAccount:  destinationAccount,
		Amount:              amount,
		Currency:            currency,
		Status:              store.StatusProcessing,
		ProcessingStartedAt: &startedAt,
		PayloadHash:         payloadHash,
		Now:                 now,
	}
	return r.Store.InsertIfAbsent(ctx, row)
}

// GetByTransactionID fetches the current row for id.
func (r *Repository) GetByTransactionID(ctx context.Context, id string) (store.Transaction, bool, error) {
	return r.Store.GetByTransactionID(ctx, id)
}

// RecordDuplicateConflict increments duplicate_conflict_count and sets
// last_conflict_at on row. It never touches business fields and never
// fails on a lost race - the count is best-effort, the conflict's
// existence is what must be durable.
func (r *Repository) RecordDuplicateConflict(ctx context.Context, row store.Transaction, now time.Time) error {
	_, err := r.Store.UpdateConditional(ctx, row.ID, row.Status, store.Patch{
		DuplicateConflictDelta: 1,
		LastConflictAt:         &now,
		UpdatedAt:              now,
	})
	return err
}

// MarkForRetryIfStale returns true, and reopens the row for
// processing, iff row is PROCESSING, has no processed_at, and its
// processing_started_at is either null or older than staleTimeout. On
// false it is a no-op.
func (r *Repository) MarkForRetryIfStale(ctx context.Context, row store.Transaction, now time.Time, staleTimeout time.Duration) (bool, error) {
	if row.Status != store.StatusProcessing || row.ProcessedAt != nil {
		return false, nil
	}
	stale := row.ProcessingStartedAt == nil || now.Sub(*row.ProcessingStartedAt) > staleTimeout
	if !stale {
		return false, nil
	}

	applied, err := r.Store.UpdateConditional(ctx, row.ID, store.StatusProcessing, store.Patch{
		ProcessingStartedAt: &now,
		ClearErrorMessage:   true,
		UpdatedAt:           now,
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// EnsureProcessingStarted stamps processing_started_at=now iff it is
// null on row. The null check is made on the row passed in; the store
// update is guarded by status only. Calling it again with a freshly
// loaded row is a no-op; calling it again with the same stale copy
// re-stamps processing_started_at. The processor calls it once per task.
func (r *Repository) EnsureProcessingStarted(ctx context.Context, row store.Transaction, now time.Time) error {
	if row.ProcessingStartedAt != nil {
		return nil
	}
	_, err := r.Store.UpdateConditional(ctx, row.ID, store.StatusProcessing, store.Patch{
		ProcessingStartedAt: &now,
		UpdatedAt:           now,
	})
	return err
}

// MarkInterrupted clears processing_started_at and sets error_message,
// leaving status at PROCESSING so the row remains retry-eligible. It
// reports whether the write took effect (false means the row had
// already left PROCESSING by the time this ran).
func (r *Repository) MarkInterrupted(ctx context.Context, row store.Transaction, message string, now time.Time) (bool, error) {
	return r.Store.UpdateConditional(ctx, row.ID, store.StatusProcessing, store.Patch{
		ClearProcessingStarted: true,
		ErrorMessage:           &message,
		UpdatedAt:              now,
	})
}

// MarkProcessed transitions row to PROCESSED. It reports whether the
// write took effect; false means a concurrent writer already moved the
// row out of PROCESSING, and this call is correctly a no-op.
func (r *Repository) MarkProcessed(ctx context.Context, row store.Transaction, processedAt time.Time) (bool, error) {
	status := store.StatusProcessed
	return r.Store.UpdateConditional(ctx, row.ID, store.StatusProcessing, store.Patch{
		Status:            &status,
		ProcessedAt:       &processedAt,
		ClearErrorMessage: true,
		UpdatedAt:         processedAt,
	})
}

// MarkFailed transitions row to FAILED with the given message.
// processed_at is left null. It reports whether the write took effect.
func (r *Repository) MarkFailed(ctx context.Context, row store.Transaction, message string, now time.Time) (bool, error) {
	status := store.StatusFailed
	return r.Store.UpdateConditional(ctx, row.ID, store.StatusProcessing, store.Patch{
		Status:       &status,
		ErrorMessage: &message,
		UpdatedAt:    now,
	})
}
