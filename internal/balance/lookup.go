// Package balance resolves payer balances for debit validation. The engine
// only ever reads balances; applying the movement is the ledger's job.
package balance

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrUserNotFound indicates the payer has no wallet row.
var ErrUserNotFound = errors.New("user not found")

// Lookup resolves the current balance of one user as an exact decimal.
type Lookup interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
}

// StaticLookup serves balances from a fixed map, for tests and local runs
// without a database. Missing users report ErrUserNotFound.
type StaticLookup map[string]decimal.Decimal

// GetBalance implements Lookup.
func (s StaticLookup) GetBalance(_ context.Context, userID string) (decimal.Decimal, error) {
	b, ok := s[userID]
	if !ok {
		return decimal.Zero, ErrUserNotFound
	}
	return b, nil
}
