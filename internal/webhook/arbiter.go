/*
arbiter.go - Idempotency Arbiter

PURPOSE:
  Pure decision logic classifying an inbound payload against the
  possibly-existing row for its transaction_id. Ordering-sensitive: it
  must attempt insert-if-absent first and only fetch the existing row
  on conflict, so the store's unique constraint is the linearization
  point even under a burst of concurrent deliveries.

SEE ALSO:
  - internal/txrepo: CreateIfNotExists/RecordDuplicateConflict/MarkForRetryIfStale
  - internal/webhook/service.go: orchestrates Classify within Ingest
*/
package webhook

import (
	"context"
	"time"

	"github.com/warp/txwebhook/internal/apperr"
	"github.com/warp/txwebhook/internal/txrepo"
	"github.com/warp/txwebhook/store"
)

// Outcome is the Arbiter's classification of an inbound delivery.
type Outcome int

const (
	// Fresh: no row existed; a new row was inserted. Schedule processing.
	Fresh Outcome = iota
	// SameDuplicate: row exists with an identical canonical hash.
	SameDuplicate
	// ConflictingDuplicate: row exists with a different canonical hash.
	ConflictingDuplicate
)

// Arbiter classifies inbound deliveries against the Repository.
type Arbiter struct {
	Repo         *txrepo.Repository
	StaleTimeout time.Duration
}

// NewArbiter returns an Arbiter over repo with the given stale timeout.
func NewArbiter(repo *txrepo.Repository, staleTimeout time.Duration) *Arbiter {
	return &Arbiter{Repo: repo, StaleTimeout: staleTimeout}
}

// Classification is the Arbiter's result for a single delivery.
type Classification struct {
	Outcome       Outcome
	Row           store.Transaction
	ShouldSchedule bool
}

// Classify attempts insert-if-absent first; on conflict it fetches the
// existing row, records a conflict if the hash differs, and decides
// whether the row is stale-retry-eligible.
func (a *Arbiter) Classify(
	ctx context.Context,
	transactionID, sourceAccount, destinationAccount, amount, currency, payloadHash string,
	now time.Time,
) (Classification, error) {
	row, created, err := a.Repo.CreateIfNotExists(ctx, transactionID, sourceAccount, destinationAccount, amount, currency, payloadHash, now)
	if err != nil {
		return Classification{}, err
	}
	if created {
		return Classification{Outcome: Fresh, Row: row, ShouldSchedule: true}, nil
	}

	existing, found, err := a.Repo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return Classification{}, err
	}
	if !found {
		// Insert reported a conflict but the row is now gone: this is
		// not expected absent external deletion.
		return Classification{}, apperr.ErrInternalInconsistency
	}

	outcome := SameDuplicate
	if existing.PayloadHash != payloadHash {
		outcome = ConflictingDuplicate
		if err := a.Repo.RecordDuplicateConflict(ctx, existing, now); err != nil {
			return Classification{}, err
		}
		existing.DuplicateConflictCount++
		existing.LastConflictAt = &now
	}

	retry, err := a.Repo.MarkForRetryIfStale(ctx, existing, now, a.StaleTimeout)
	if err != nil {
		return Classification{}, err
	}

	return Classification{Outcome: outcome, Row: existing, ShouldSchedule: retry}, nil
}
