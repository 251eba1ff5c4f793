/*
dto.go - Webhook request/response shapes

NAMING CONVENTION (matches the pack's *DTO/*Request/*Response split):
  WebhookRequest  - inbound POST body
  WebhookAck      - 202 response body
*/
package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// WebhookRequest is the inbound POST /v1/webhooks/transactions body.
type WebhookRequest struct {
	TransactionID      string          `json:"transaction_id" validate:"required,max=128"`
	SourceAccount      string          `json:"source_account" validate:"required,max=128"`
	DestinationAccount string          `json:"destination_account" validate:"required,max=128"`
	Amount             flexibleAmount  `json:"amount" validate:"required"`
	Currency           string          `json:"currency" validate:"required,len=3"`
}

// flexibleAmount accepts either a JSON integer or a JSON decimal
// literal and stores it as a decimal.Decimal - preserving the
// equivalence 1500 == 1500.0 == 1500.00 the canonicalization contract
// requires (spec P8), regardless of which numeric representation the
// client sent.
type flexibleAmount struct {
	decimal.Decimal
}

func (a *flexibleAmount) UnmarshalJSON(b []byte) error {
	var raw json.Number
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	d, err := decimal.NewFromString(raw.String())
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	a.Decimal = d
	return nil
}

// DecimalAmount returns the parsed amount.
func (r WebhookRequest) DecimalAmount() decimal.Decimal {
	return r.Amount.Decimal
}

// Normalized returns a copy of r with string fields trimmed and
// currency upper-cased, matching the canonicalization the service
// applies before hashing and storage.
func (r WebhookRequest) Normalized() WebhookRequest {
	r.TransactionID = strings.TrimSpace(r.TransactionID)
	r.SourceAccount = strings.TrimSpace(r.SourceAccount)
	r.DestinationAccount = strings.TrimSpace(r.DestinationAccount)
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	return r
}

// WebhookAck is the 202 response body.
type WebhookAck struct {
	StatusCode      int     `json:"status_code"`
	Acknowledged    bool    `json:"acknowledged"`
	TransactionID   string  `json:"transaction_id"`
	ResponseTimeMs  float64 `json:"response_time_ms"`
}
