/*
memory.go - In-memory Store implementation (for testing)

PURPOSE:
  A mutex-guarded map standing in for store/postgres in unit tests, so
  the repository and service layers can be exercised without a live
  database. Mirrors the conditional-update semantics Postgres provides
  via "UPDATE ... WHERE status = $guard" plus an affected-row check.
*/
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/warp/txwebhook/store"
)

// Store is an in-memory, concurrency-safe store.Store implementation.
type Store struct {
	mu      sync.RWMutex
	byTxnID map[string]*store.Transaction
	nextID  int64
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		byTxnID: make(map[string]*store.Transaction),
	}
}

func (s *Store) InsertIfAbsent(_ context.Context, row store.NewRow) (store.Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byTxnID[row.TransactionID]; exists {
		return store.Transaction{}, false, nil
	}

	id := atomic.AddInt64(&s.nextID, 1)
	tx := &store.Transaction{
		ID:                  id,
		TransactionID:       row.TransactionID,
		SourceAccount:       row.SourceAccount,
		DestinationAccount:  row.DestinationAccount,
		Amount:              row.Amount,
		Currency:            row.Currency,
		Status:              row.Status,
		CreatedAt:           row.Now,
		UpdatedAt:           row.Now,
		ProcessingStartedAt: row.ProcessingStartedAt,
		PayloadHash:         row.PayloadHash,
	}
	s.byTxnID[row.TransactionID] = tx
	return *tx, true, nil
}

func (s *Store) GetByTransactionID(_ context.Context, id string) (store.Transaction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.byTxnID[id]
	if !ok {
		return store.Transaction{}, false, nil
	}
	return *tx, true, nil
}

func (s *Store) UpdateConditional(_ context.Context, rowID int64, guard store.Status, patch store.Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var target *store.Transaction
	for _, tx := range s.byTxnID {
		if tx.ID == rowID {
			target = tx
			break
		}
	}
	if target == nil {
		return false, nil
	}
	if target.Status != guard {
		return false, nil
	}

	if patch.Status != nil {
		target.Status = *patch.Status
	}
	if patch.ClearProcessingStarted {
		target.ProcessingStartedAt = nil
	} else if patch.ProcessingStartedAt != nil {
		t := *patch.ProcessingStartedAt
		target.ProcessingStartedAt = &t
	}
	if patch.ProcessedAt != nil {
		t := *patch.ProcessedAt
		target.ProcessedAt = &t
	}
	if patch.ClearErrorMessage {
		target.ErrorMessage = nil
	} else if patch.ErrorMessage != nil {
		m := *patch.ErrorMessage
		target.ErrorMessage = &m
	}
	if patch.DuplicateConflictDelta != 0 {
		target.DuplicateConflictCount += patch.DuplicateConflictDelta
	}
	if patch.LastConflictAt != nil {
		t := *patch.LastConflictAt
		target.LastConflictAt = &t
	}
	target.UpdatedAt = patch.UpdatedAt
	return true, nil
}

func (s *Store) Close() error {
	return nil
}
