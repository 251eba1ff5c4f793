/*
service.go - Ingest Service

PURPOSE:
  Single operation Ingest(ctx, payload) -> (transactionID, shouldSchedule, err),
  wrapping validation, canonical hashing, and the Arbiter within a
  bounded deadline. This is the only entry point the HTTP handler
  calls; it never touches the Store or Repository directly.

SEE ALSO:
  - internal/webhook/arbiter.go: the decision logic this orchestrates
  - internal/canon: payload hashing
  - internal/apperr: the error kinds this surfaces
*/
package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/warp/txwebhook/internal/apperr"
	"github.com/warp/txwebhook/internal/canon"
)

var validate = validator.New()

// Service orchestrates validation, hashing, and arbitration for a
// single inbound webhook delivery within a bounded deadline.
type Service struct {
	Arbiter *Arbiter
	Timeout time.Duration
}

// NewService returns a Service over arb with the given per-request
// deadline.
func NewService(arb *Arbiter, timeout time.Duration) *Service {
	return &Service{Arbiter: arb, Timeout: timeout}
}

// Ingest validates req, computes its canonical hash, and arbitrates it
// against any existing row for the same transaction_id. It returns the
// transaction_id and whether a background processing task should be
// scheduled.
func (s *Service) Ingest(ctx context.Context, req WebhookRequest) (transactionID string, shouldSchedule bool, err error) {
	req = req.Normalized()

	if err := validateRequest(req); err != nil {
		return "", false, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	payload := canon.Payload{
		TransactionID:      req.TransactionID,
		SourceAccount:      req.SourceAccount,
		DestinationAccount: req.DestinationAccount,
		Amount:             req.DecimalAmount(),
		Currency:           req.Currency,
	}
	hash := canon.PayloadHash(payload)
	now := canon.Now()

	resultCh := make(chan ingestResult, 1)
	go func() {
		classification, err := s.Arbiter.Classify(
			ctx,
			req.TransactionID, req.SourceAccount, req.DestinationAccount,
			req.DecimalAmount().StringFixed(2), req.Currency, hash, now,
		)
		resultCh <- ingestResult{classification: classification, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", false, fmt.Errorf("ingest: deadline exceeded: %w", apperr.ErrStoreUnavailable)
	case r := <-resultCh:
		if r.err != nil {
			if apperr.IsInternalInconsistency(r.err) {
				return "", false, r.err
			}
			return "", false, fmt.Errorf("ingest: %w: %v", apperr.ErrStoreUnavailable, r.err)
		}
		return req.TransactionID, r.classification.ShouldSchedule, nil
	}
}

type ingestResult struct {
	classification Classification
	err            error
}

// validateRequest applies the struct-tag rules plus the checks a
// validator tag cannot express cleanly: amount must be strictly
// positive (validator has no first-class decimal.Decimal comparator).
func validateRequest(req WebhookRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	if !req.DecimalAmount().IsPositive() {
		return &apperr.ValidationError{Field: "amount", Message: "must be strictly positive"}
	}
	return nil
}
