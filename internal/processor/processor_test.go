package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warp/txwebhook/internal/runtime"
	"github.com/warp/txwebhook/internal/txrepo"
	"github.com/warp/txwebhook/store"
	"github.com/warp/txwebhook/store/memory"
)

func newTestScheduler(delay time.Duration) (*Scheduler, *txrepo.Repository, *runtime.Signal, *runtime.Registry) {
	repo := txrepo.New(memory.New())
	sig := runtime.NewSignal()
	reg := runtime.NewRegistry()
	sched := NewScheduler(repo, sig, reg, delay, nil)
	return sched, repo, sig, reg
}

func TestSchedule_NormalCompletionMarksProcessed(t *testing.T) {
	sched, repo, _, reg := newTestScheduler(10 * time.Millisecond)
	ctx := context.Background()
	now := time.Now().UTC()

	_, _, err := repo.CreateIfNotExists(ctx, "txn_ok", "a", "b", "1.00", "USD", "h", now)
	require.NoError(t, err)
	sched.Schedule("txn_ok")

	waitDrained(t, reg)

	got, found, err := repo.GetByTransactionID(ctx, "txn_ok")
	require.NoError(t, err)
	require.True(t, found, "expected row to exist")
	require.Equal(t, store.StatusProcessed, got.Status)
	require.NotNil(t, got.ProcessedAt, "expected processed_at to be set")
}

func TestSchedule_ShutdownInterruptsInsteadOfFailing(t *testing.T) {
	sched, repo, sig, reg := newTestScheduler(time.Hour)
	ctx := context.Background()
	now := time.Now().UTC()

	_, _, err := repo.CreateIfNotExists(ctx, "txn_shutdown", "a", "b", "1.00", "USD", "h", now)
	require.NoError(t, err)
	sched.Schedule("txn_shutdown")

	// give the goroutine time to reach the select before signalling.
	time.Sleep(20 * time.Millisecond)
	sig.Set()

	waitDrained(t, reg)

	got, found, err := repo.GetByTransactionID(ctx, "txn_shutdown")
	require.NoError(t, err)
	require.True(t, found, "expected row to exist")
	require.Equal(t, store.StatusProcessing, got.Status, "expected row to remain PROCESSING after interruption")
	require.Nil(t, got.ProcessingStartedAt, "expected processing_started_at to be cleared after interruption")
	require.NotNil(t, got.ErrorMessage, "expected error_message to be set on interruption")
}

func TestSchedule_FailForTestingMarksFailed(t *testing.T) {
	sched, repo, _, reg := newTestScheduler(5 * time.Millisecond)
	ctx := context.Background()
	now := time.Now().UTC()

	sched.SetFailForTesting(func(transactionID string) bool { return transactionID == "txn_fail" })

	_, _, err := repo.CreateIfNotExists(ctx, "txn_fail", "a", "b", "1.00", "USD", "h", now)
	require.NoError(t, err)
	sched.Schedule("txn_fail")

	waitDrained(t, reg)

	got, found, err := repo.GetByTransactionID(ctx, "txn_fail")
	require.NoError(t, err)
	require.True(t, found, "expected row to exist")
	require.Equal(t, store.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage, "expected error_message to be set")
}

func TestSchedule_AbsentRowExitsQuietly(t *testing.T) {
	sched, _, _, reg := newTestScheduler(5 * time.Millisecond)

	sched.Schedule("txn_never_existed")

	waitDrained(t, reg)
	// no assertions beyond "does not panic or hang" - absent rows are a defensive no-op.
}

func waitDrained(t *testing.T, reg *runtime.Registry) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, reg.Shutdown(ctx), "background task did not drain in time")
}
