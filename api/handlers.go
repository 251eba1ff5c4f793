/*
handlers.go - HTTP API handlers for the webhook ingestion service

PURPOSE:
  Exposes the ingestion/processing core via REST. Parses requests,
  delegates to internal/webhook and internal/processor, serializes
  responses. Holds no business logic of its own.

ENDPOINTS:
  POST /v1/webhooks/transactions      Ingest a transaction webhook
  GET  /v1/transactions/{transaction_id}  Read-only lookup
  GET  /                              Health probe

ERROR HANDLING:
  Errors from the ingestion core are mapped via apperr.HTTPStatus:
  - 422: validation failure
  - 503: store unavailable / internal inconsistency / deadline expiry

SEE ALSO:
  - dto.go: response data structures
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/txwebhook/internal/apperr"
	"github.com/warp/txwebhook/internal/metrics"
	"github.com/warp/txwebhook/internal/processor"
	"github.com/warp/txwebhook/internal/txrepo"
	"github.com/warp/txwebhook/internal/webhook"
)

// Handler holds every collaborator an HTTP request needs.
type Handler struct {
	Service   *webhook.Service
	Scheduler *processor.Scheduler
	Repo      *txrepo.Repository
	Logger    *zap.Logger
}

// NewHandler wires a Handler from its collaborators.
func NewHandler(service *webhook.Service, scheduler *processor.Scheduler, repo *txrepo.Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Service: service, Scheduler: scheduler, Repo: repo, Logger: logger}
}

// IngestWebhook handles POST /v1/webhooks/transactions. Every log line
// this handler writes for the request carries a fresh request_id. The
// request_id is not passed to a scheduled processor task, which logs
// its own task_id; transaction_id is the field both share.
func (h *Handler) IngestWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.New().String()
	log := h.Logger.With(zap.String("request_id", requestID))
	defer func() {
		metrics.RequestDuration.WithLabelValues("ingest_webhook").Observe(time.Since(start).Seconds())
	}()

	var req webhook.WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("ingest: malformed request body", zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	transactionID, shouldSchedule, err := h.Service.Ingest(r.Context(), req)
	if err != nil {
		log.Error("ingest failed", zap.String("transaction_id", req.TransactionID), zap.Error(err))
		metrics.IngestOutcomes.WithLabelValues("error").Inc()
		writeError(w, apperr.HTTPStatus(err), err)
		return
	}

	if shouldSchedule {
		log.Info("ingest: scheduling background processing",
			zap.String("transaction_id", transactionID))
		h.Scheduler.Schedule(transactionID)
	}
	metrics.IngestOutcomes.WithLabelValues(outcomeLabel(shouldSchedule)).Inc()

	ack := webhook.WebhookAck{
		StatusCode:     http.StatusAccepted,
		Acknowledged:   true,
		TransactionID:  transactionID,
		ResponseTimeMs: float64(time.Since(start)) / float64(time.Millisecond),
	}
	writeJSON(w, http.StatusAccepted, ack)
}

func outcomeLabel(scheduled bool) string {
	if scheduled {
		return "scheduled"
	}
	return "no_schedule"
}

// GetTransaction handles GET /v1/transactions/{transaction_id}. It
// always returns 200: an empty array signals "not found".
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.New().String()
	log := h.Logger.With(zap.String("request_id", requestID))
	defer func() {
		metrics.RequestDuration.WithLabelValues("get_transaction").Observe(time.Since(start).Seconds())
	}()

	id := chi.URLParam(r, "transaction_id")

	tx, found, err := h.Repo.GetByTransactionID(r.Context(), id)
	if err != nil {
		log.Error("get transaction failed", zap.String("transaction_id", id), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, []TransactionDTO{})
		return
	}
	writeJSON(w, http.StatusOK, []TransactionDTO{ToTransactionDTO(tx)})
}

// Health handles GET /.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthDTO{
		Status:      "HEALTHY",
		CurrentTime: time.Now().In(presentationLocation).Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
