/*
dto.go - Outbound response shapes

NAMING CONVENTION:
  *DTO    - data transfer shape returned to clients
  *Request/*Ack - defined alongside their service in internal/webhook

TIMEZONE:
  Timestamps are presented in Asia/Kolkata regardless of the storage
  zone, per the external interface contract.
*/
package api

import (
	"time"

	"github.com/warp/txwebhook/store"
)

var presentationLocation = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// fixed +05:30 offset, no DST, so this is a safe fallback if the
		// platform's tzdata is unavailable.
		return time.FixedZone("IST", 5*60*60+30*60)
	}
	return loc
}()

// TransactionDTO is the public shape of a Transaction row.
type TransactionDTO struct {
	TransactionID      string  `json:"transaction_id"`
	SourceAccount      string  `json:"source_account"`
	DestinationAccount string  `json:"destination_account"`
	Amount             string  `json:"amount"`
	Currency           string  `json:"currency"`
	Status             string  `json:"status"`
	CreatedAt          string  `json:"created_at"`
	ProcessedAt        *string `json:"processed_at"`
}

// ToTransactionDTO converts a store row into its presentation shape,
// converting timestamps to Asia/Kolkata-local ISO-8601.
func ToTransactionDTO(tx store.Transaction) TransactionDTO {
	dto := TransactionDTO{
		TransactionID:      tx.TransactionID,
		SourceAccount:      tx.SourceAccount,
		DestinationAccount: tx.DestinationAccount,
		Amount:             tx.Amount,
		Currency:           tx.Currency,
		Status:             string(tx.Status),
		CreatedAt:          tx.CreatedAt.In(presentationLocation).Format(time.RFC3339),
	}
	if tx.ProcessedAt != nil {
		s := tx.ProcessedAt.In(presentationLocation).Format(time.RFC3339)
		dto.ProcessedAt = &s
	}
	return dto
}

// HealthDTO is the GET / response body.
type HealthDTO struct {
	Status      string `json:"status"`
	CurrentTime string `json:"current_time"`
}
