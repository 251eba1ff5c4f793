/*
canon.go - Wall clock and canonical payload fingerprinting

PURPOSE:
  The only two primitives the rest of the service needs that touch
  time or hashing: Now() for a consistent UTC timestamp source, and
  PayloadHash() for the idempotency fingerprint stamped on every
  transaction row at insert.

CANONICALIZATION:
  The canonical form of a webhook payload is a fixed ordered mapping of
  the five business fields: transaction_id, source_account,
  destination_account, amount, currency. String fields are trimmed,
  amount is rendered with exactly two fractional digits, currency is
  upper-cased and trimmed. The mapping is serialized with sorted keys
  and compact separators before hashing, so byte-identical output is
  the only thing that matters - not the Go types used to get there.

SEE ALSO:
  - internal/webhook/service.go: calls PayloadHash before every insert
  - internal/txrepo: stores the result verbatim, never recomputes it
*/
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Now returns the current wall-clock time in UTC. Every timestamp the
// service stamps onto a row flows through this function.
func Now() time.Time {
	return time.Now().UTC()
}

// Payload holds the five business fields that participate in the
// idempotency fingerprint. Callers are responsible for populating it
// from whatever wire representation they parsed.
type Payload struct {
	TransactionID      string
	SourceAccount      string
	DestinationAccount string
	Amount             decimal.Decimal
	Currency           string
}

// canonicalForm is the sorted-key, fixed-precision shape that gets
// marshaled before hashing. Field order here matters: encoding/json
// sorts only map keys and writes struct fields in declaration order, so
// the fields are declared alphabetically by json tag. A struct with
// explicit json tags keeps the key set unambiguous and reviewable.
type canonicalForm struct {
	Amount             string `json:"amount"`
	Currency           string `json:"currency"`
	DestinationAccount string `json:"destination_account"`
	SourceAccount      string `json:"source_account"`
	TransactionID      string `json:"transaction_id"`
}

// Canonicalize normalizes p into the fixed representation used for
// hashing: trimmed strings, two-decimal amount, upper-cased currency.
func Canonicalize(p Payload) canonicalForm {
	return canonicalForm{
		TransactionID:      strings.TrimSpace(p.TransactionID),
		SourceAccount:      strings.TrimSpace(p.SourceAccount),
		DestinationAccount: strings.TrimSpace(p.DestinationAccount),
		Amount:             p.Amount.StringFixed(2),
		Currency:           strings.ToUpper(strings.TrimSpace(p.Currency)),
	}
}

// PayloadHash computes the SHA-256 hex digest of p's canonical form.
// Two payloads that differ only in whitespace padding, currency case,
// or amount representation (1500, 1500.0, 1500.00) hash identically.
func PayloadHash(p Payload) string {
	canonical := Canonicalize(p)
	// struct field order is fixed above and already alphabetical by
	// json tag, so json.Marshal's output is already the sorted-key,
	// compact-separator form the contract requires.
	raw, err := json.Marshal(canonical)
	if err != nil {
		// canonicalForm only contains strings; Marshal cannot fail.
		panic("canon: unexpected marshal failure: " + err.Error())
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
