package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warp/txwebhook/internal/txrepo"
	"github.com/warp/txwebhook/store/memory"
)

func newTestArbiter(staleTimeout time.Duration) *Arbiter {
	repo := txrepo.New(memory.New())
	return NewArbiter(repo, staleTimeout)
}

func TestClassify_FreshOnFirstDelivery(t *testing.T) {
	a := newTestArbiter(2 * time.Minute)
	now := time.Now().UTC()

	c, err := a.Classify(context.Background(), "txn_1", "a", "b", "10.00", "USD", "hash1", now)
	require.NoError(t, err)
	require.Equal(t, Fresh, c.Outcome)
	require.True(t, c.ShouldSchedule, "expected ShouldSchedule=true on fresh delivery")
}

func TestClassify_SameDuplicateDoesNotIncrementConflict(t *testing.T) {
	a := newTestArbiter(2 * time.Minute)
	now := time.Now().UTC()

	_, err := a.Classify(context.Background(), "txn_dup", "a", "b", "10.00", "USD", "hash_same", now)
	require.NoError(t, err)
	c, err := a.Classify(context.Background(), "txn_dup", "a", "b", "10.00", "USD", "hash_same", now)
	require.NoError(t, err)
	require.Equal(t, SameDuplicate, c.Outcome)
	require.Equal(t, 0, c.Row.DuplicateConflictCount)
}

func TestClassify_ConflictingDuplicateRecordsConflictAndPreservesOriginal(t *testing.T) {
	a := newTestArbiter(2 * time.Minute)
	now := time.Now().UTC()

	_, err := a.Classify(context.Background(), "txn_conf", "a", "b", "10.00", "USD", "hash_a", now)
	require.NoError(t, err)
	c, err := a.Classify(context.Background(), "txn_conf", "a", "b", "16.00", "USD", "hash_b", now)
	require.NoError(t, err)
	require.Equal(t, ConflictingDuplicate, c.Outcome)
	require.Equal(t, 1, c.Row.DuplicateConflictCount)
	require.Equal(t, "10.00", c.Row.Amount, "expected first-wins amount to be preserved")
}

func TestClassify_StaleDuplicateSchedulesRetry(t *testing.T) {
	a := newTestArbiter(1 * time.Minute)
	past := time.Now().UTC().Add(-5 * time.Minute)

	_, err := a.Classify(context.Background(), "txn_stale", "a", "b", "10.00", "USD", "hash_a", past)
	require.NoError(t, err)
	c, err := a.Classify(context.Background(), "txn_stale", "a", "b", "10.00", "USD", "hash_a", time.Now().UTC())
	require.NoError(t, err)
	require.True(t, c.ShouldSchedule, "expected stale row to be rescheduled")
}

func TestClassify_FreshDuplicateDoesNotReschedule(t *testing.T) {
	a := newTestArbiter(2 * time.Minute)
	now := time.Now().UTC()

	_, err := a.Classify(context.Background(), "txn_nostale", "a", "b", "10.00", "USD", "hash_a", now)
	require.NoError(t, err)
	c, err := a.Classify(context.Background(), "txn_nostale", "a", "b", "10.00", "USD", "hash_a", now)
	require.NoError(t, err)
	require.False(t, c.ShouldSchedule, "expected non-stale duplicate to not be rescheduled")
}
