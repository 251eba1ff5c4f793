/*
processor.go - Background Processor: one task per scheduled transaction

PURPOSE:
  Drives a single PROCESSING row through a terminal transition
  (PROCESSED or FAILED), or, on shutdown, leaves it retry-eligible.
  Scheduling is fire-and-forget from the request path: the HTTP
  handler never awaits this.

STATE MACHINE (per task):
  a. load row by transaction_id; if absent or status != PROCESSING, exit.
  b. ensure_processing_started(row, now).
  c. race: wait on the shutdown signal for at most the processing delay.
       - shutdown fires first: reload row; if still PROCESSING, mark_interrupted; exit.
       - delay elapses first: proceed.
  d. reload row; if status != PROCESSING, exit; else mark_processed.
  e. any non-shutdown error from (c)/(d): reload row; if still PROCESSING, mark_failed; else exit.

DESIGN RATIONALE:
  Reloading the row at every step prevents lost updates - a concurrent
  retry scheduling against a stale view is safe because terminal writes
  are guarded by re-reading status==PROCESSING at write time, not
  assumed from the in-memory copy taken at task start.

SEE ALSO:
  - internal/runtime: Signal and Registry this scheduler depends on
  - internal/txrepo: the repository methods driving each transition
*/
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/txwebhook/internal/canon"
	"github.com/warp/txwebhook/internal/metrics"
	"github.com/warp/txwebhook/internal/runtime"
	"github.com/warp/txwebhook/internal/txrepo"
	"github.com/warp/txwebhook/store"
)

// Scheduler launches and tracks one goroutine per scheduled transaction.
type Scheduler struct {
	Repo             *txrepo.Repository
	Signal           *runtime.Signal
	Registry         *runtime.Registry
	ProcessingDelay  time.Duration
	Logger           *zap.Logger

	// failForTesting, when non-nil, is consulted at the terminal
	// transition: if it returns true for a transactionID the task
	// marks the row FAILED instead of PROCESSED. Exists solely so
	// tests can exercise the FAILED path deterministically; it is set
	// only through SetFailForTesting.
	failForTesting func(transactionID string) bool
}

// NewScheduler returns a Scheduler with the given collaborators.
func NewScheduler(repo *txrepo.Repository, sig *runtime.Signal, reg *runtime.Registry, delay time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Repo:            repo,
		Signal:          sig,
		Registry:        reg,
		ProcessingDelay: delay,
		Logger:          logger,
	}
}

// SetFailForTesting installs a hook consulted at the terminal
// transition to force the FAILED path deterministically. Intended for
// use by tests only.
func (s *Scheduler) SetFailForTesting(fn func(transactionID string) bool) {
	s.failForTesting = fn
}

// Schedule registers and launches the background task for
// transactionID. It returns immediately; the handler must not wait on
// it. A fresh task_id correlates every log line this task emits across
// its (a)-(e) steps, independent of the transaction_id it acts on.
func (s *Scheduler) Schedule(transactionID string) {
	taskID := uuid.New().String()
	s.Registry.Go(func() {
		s.run(context.Background(), transactionID, taskID)
	})
}

func (s *Scheduler) run(ctx context.Context, transactionID, taskID string) {
	log := s.Logger.With(zap.String("transaction_id", transactionID), zap.String("task_id", taskID))

	// (a) load row; exit if absent or not PROCESSING.
	row, found, err := s.Repo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		log.Error("processor: load failed", zap.Error(err))
		return
	}
	if !found || row.Status != store.StatusProcessing {
		return
	}

	// (b) ensure processing_started_at is stamped.
	now := canon.Now()
	if err := s.Repo.EnsureProcessingStarted(ctx, row, now); err != nil {
		log.Error("processor: ensure processing started failed", zap.Error(err))
		s.failSafely(ctx, transactionID, taskID, err.Error())
		return
	}

	// (c) race shutdown against the processing delay.
	select {
	case <-s.Signal.Done():
		s.interrupt(ctx, transactionID, taskID, "interrupted by shutdown")
		metrics.ProcessorTransitions.WithLabelValues("interrupted").Inc()
		return
	case <-time.After(s.ProcessingDelay):
		// proceed to terminal transition
	}

	// (d) reload and attempt the terminal transition.
	reloaded, found, err := s.Repo.GetByTransactionID(ctx, transactionID)
	if err != nil {
		log.Error("processor: reload before terminal transition failed", zap.Error(err))
		s.failSafely(ctx, transactionID, taskID, err.Error())
		return
	}
	if !found || reloaded.Status != store.StatusProcessing {
		return
	}

	if s.failForTesting != nil && s.failForTesting(transactionID) {
		s.fail(ctx, reloaded, taskID, "simulated processing failure for testing")
		metrics.ProcessorTransitions.WithLabelValues("failed").Inc()
		return
	}

	applied, err := s.Repo.MarkProcessed(ctx, reloaded, canon.Now())
	if err != nil {
		log.Error("processor: mark processed failed", zap.Error(err))
		// (e) any unhandled error: reload and mark failed if still PROCESSING.
		s.failSafely(ctx, transactionID, taskID, err.Error())
		metrics.ProcessorTransitions.WithLabelValues("failed").Inc()
		return
	}
	if !applied {
		// concurrent writer already moved the row out of PROCESSING; no-op.
		return
	}
	metrics.ProcessorTransitions.WithLabelValues("processed").Inc()
	log.Info("processor: transaction processed")
}

// interrupt implements step (c)'s shutdown branch: reload in a fresh
// call and mark_interrupted if the row is still PROCESSING.
func (s *Scheduler) interrupt(ctx context.Context, transactionID, taskID, message string) {
	row, found, err := s.Repo.GetByTransactionID(ctx, transactionID)
	if err != nil || !found || row.Status != store.StatusProcessing {
		return
	}
	if _, err := s.Repo.MarkInterrupted(ctx, row, message, canon.Now()); err != nil {
		s.Logger.Error("processor: mark interrupted failed",
			zap.String("transaction_id", transactionID), zap.String("task_id", taskID), zap.Error(err))
	}
}

// fail applies mark_failed to an already-loaded row.
func (s *Scheduler) fail(ctx context.Context, row store.Transaction, taskID, message string) {
	if _, err := s.Repo.MarkFailed(ctx, row, message, canon.Now()); err != nil {
		s.Logger.Error("processor: mark failed failed",
			zap.String("transaction_id", row.TransactionID), zap.String("task_id", taskID), zap.Error(err))
	}
}

// failSafely implements step (e): reload by id and mark_failed only if
// the row is still PROCESSING; otherwise the task exits quietly.
func (s *Scheduler) failSafely(ctx context.Context, transactionID, taskID, message string) {
	row, found, err := s.Repo.GetByTransactionID(ctx, transactionID)
	if err != nil || !found || row.Status != store.StatusProcessing {
		return
	}
	s.fail(ctx, row, taskID, fmt.Sprintf("processing error: %s", message))
}
