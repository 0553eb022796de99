// Package validation implements the stateless admission rules for credit
// transactions: exact-decimal amount checks, the transaction-type
// allowlist, metadata and reference-id ceilings, and submission binding.
// This file centralizes the validation error values so callers can branch
// with errors.Is; mapping them to transport responses is the enclosing
// request layer's job.
package validation

import "errors"

// Amount errors.
var (
	// ErrNotFinite is returned when an amount cannot be parsed as a finite
	// decimal number (malformed literals, NaN, infinities).
	ErrNotFinite = errors.New("amount must be a finite number")

	// ErrTooManyDecimals is returned when an amount carries more fractional
	// digits than the configured precision.
	ErrTooManyDecimals = errors.New("amount exceeds allowed decimal places")

	// ErrOutOfRange is returned when an amount's magnitude falls outside
	// the configured [min, max] interval.
	ErrOutOfRange = errors.New("amount out of allowed range")

	// ErrNegativeNotAllowed is returned for negative amounts when the
	// configuration does not permit debits.
	ErrNegativeNotAllowed = errors.New("negative amounts are not allowed")

	// ErrInsufficientBalance is returned when a debit would take the payer
	// balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance for transaction")
)

// Shape errors.
var (
	// ErrInvalidType is returned when a transaction type is not in the
	// allowlist.
	ErrInvalidType = errors.New("invalid transaction type")

	// ErrMetadataTooLarge is returned when serialized metadata exceeds the
	// configured size ceiling.
	ErrMetadataTooLarge = errors.New("metadata too large")

	// ErrMetadataType is returned when metadata is present but not a JSON
	// object.
	ErrMetadataType = errors.New("metadata must be an object")

	// ErrReferenceID is returned when a supplied reference id is empty
	// after trimming or longer than the configured maximum.
	ErrReferenceID = errors.New("invalid reference id")

	// ErrMissingFields is returned when a submission lacks one or more
	// required fields.
	ErrMissingFields = errors.New("missing required fields")

	// ErrBadTimestamp is returned when a supplied timestamp is not valid
	// RFC 3339.
	ErrBadTimestamp = errors.New("invalid timestamp format")
)
