// Package domain defines the core types of the credit admission engine:
// the in-flight Transaction, its type and status vocabularies, and the
// persisted AuditRecord. Transaction is a value passed between validation
// stages; only AuditRecord is mapped with GORM.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType enumerates the kinds of credit movement the engine admits.
type TransactionType string

// Valid transaction types. The set is closed; submissions carrying anything
// else are rejected before any stateful work happens.
const (
	TypePurchase TransactionType = "purchase"
	TypeReward   TransactionType = "reward"
	TypeBurn     TransactionType = "burn"
	TypeTransfer TransactionType = "transfer"
	TypeRefund   TransactionType = "refund"
)

// TransactionTypes returns the closed set of admissible types in a stable
// order, for error messages and config validation.
func TransactionTypes() []TransactionType {
	return []TransactionType{TypePurchase, TypeReward, TypeBurn, TypeTransfer, TypeRefund}
}

// Valid reports whether t is a member of the closed type set.
func (t TransactionType) Valid() bool {
	switch t {
	case TypePurchase, TypeReward, TypeBurn, TypeTransfer, TypeRefund:
		return true
	}
	return false
}

// Status tracks a transaction through admission.
type Status string

// Transaction lifecycle states. A transaction enters the pipeline PENDING
// and leaves it either VALIDATED (dedup keys registered, safe to commit)
// or REJECTED (a stage failed; nothing was written).
const (
	StatusPending   Status = "PENDING"
	StatusValidated Status = "VALIDATED"
	StatusRejected  Status = "REJECTED"
)

// Transaction is a credit movement under admission. Amount is an exact
// decimal; binary floats never touch monetary values.
//
// Fields:
//   - ID: UUID string, time-sortable (version 7) when minted here; any
//     RFC-4122 UUID is accepted on submission.
//   - FromUser / ToUser: ledger account identifiers.
//   - Amount: exact decimal amount; sign conventions are the caller's,
//     subject to the configured amount rules.
//   - Type: one of the closed TransactionType set.
//   - Metadata: optional JSON object supplied by the caller, size-capped.
//   - ReferenceID: optional external correlation key, length-capped.
//   - Timestamp: client-asserted creation time (UTC); bounded by the
//     configured validity window.
//   - Status: admission lifecycle state.
type Transaction struct {
	ID          string          `json:"id"`
	FromUser    string          `json:"from_user_id"`
	ToUser      string          `json:"to_user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"transaction_type"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	ReferenceID string          `json:"reference_id,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Status      Status          `json:"status"`
}

// NewID mints a time-sortable UUID (version 7) for submissions that arrive
// without an id. Falls back to a random UUID in the unlikely event the
// monotonic source fails.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
