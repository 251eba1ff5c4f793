package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warp/txwebhook/store"
)

func TestInsertIfAbsent_FirstInsertSucceeds(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	tx, inserted, err := s.InsertIfAbsent(ctx, store.NewRow{
		TransactionID:      "txn_1",
		SourceAccount:      "a",
		DestinationAccount: "b",
		Amount:             "10.00",
		Currency:           "USD",
		Status:             store.StatusProcessing,
		PayloadHash:        "hash1",
		Now:                now,
	})
	require.NoError(t, err)
	require.True(t, inserted, "expected first insert to succeed")
	require.Equal(t, "txn_1", tx.TransactionID)
}

func TestInsertIfAbsent_SecondInsertIsNoop(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()
	row := store.NewRow{TransactionID: "txn_dup", Amount: "1.00", Currency: "USD", Status: store.StatusProcessing, PayloadHash: "h", Now: now}

	_, inserted, err := s.InsertIfAbsent(ctx, row)
	require.NoError(t, err)
	require.True(t, inserted, "first insert should succeed")

	_, inserted, err = s.InsertIfAbsent(ctx, row)
	require.NoError(t, err)
	require.False(t, inserted, "expected second insert to report inserted=false")
}

func TestUpdateConditional_GuardMismatchIsNoop(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	tx, _, err := s.InsertIfAbsent(ctx, store.NewRow{TransactionID: "txn_guard", Amount: "1.00", Currency: "USD", Status: store.StatusProcessing, PayloadHash: "h", Now: now})
	require.NoError(t, err)

	status := store.StatusProcessed
	applied, err := s.UpdateConditional(ctx, tx.ID, store.StatusFailed, store.Patch{Status: &status, UpdatedAt: now})
	require.NoError(t, err)
	require.False(t, applied, "expected guard mismatch to report applied=false")

	got, found, err := s.GetByTransactionID(ctx, "txn_guard")
	require.NoError(t, err)
	require.True(t, found, "expected row to exist")
	require.Equal(t, store.StatusProcessing, got.Status)
}

func TestUpdateConditional_AppliesPatchOnMatch(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	tx, _, err := s.InsertIfAbsent(ctx, store.NewRow{TransactionID: "txn_match", Amount: "1.00", Currency: "USD", Status: store.StatusProcessing, PayloadHash: "h", Now: now})
	require.NoError(t, err)

	processed := store.StatusProcessed
	applied, err := s.UpdateConditional(ctx, tx.ID, store.StatusProcessing, store.Patch{
		Status:      &processed,
		ProcessedAt: &now,
		UpdatedAt:   now,
	})
	require.NoError(t, err)
	require.True(t, applied, "expected update to apply")

	got, _, err := s.GetByTransactionID(ctx, "txn_match")
	require.NoError(t, err)
	require.Equal(t, store.StatusProcessed, got.Status)
	require.NotNil(t, got.ProcessedAt, "expected processed_at to be set")
}
