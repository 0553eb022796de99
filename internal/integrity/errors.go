// Package integrity enforces exactly-once admission of credit transactions:
// identity and timestamp checks, content fingerprinting, and replay
// protection through dedup keys in the shared store.
// This file centralizes the integrity error values so callers can branch
// with errors.Is; mapping them to transport responses is the enclosing
// request layer's job.
package integrity

import "errors"

// Integrity errors.
var (
	// ErrMissingFields is returned when a transaction reaches the guard
	// without an id, party, or timestamp.
	ErrMissingFields = errors.New("missing required fields")

	// ErrMalformedID is returned when a transaction id is not a valid UUID.
	ErrMalformedID = errors.New("invalid transaction id format")

	// ErrTooOld is returned when a transaction timestamp precedes the
	// validity window.
	ErrTooOld = errors.New("transaction timestamp is too old")

	// ErrFutureTimestamp is returned when a transaction timestamp lies
	// ahead of the engine clock beyond the tolerated skew.
	ErrFutureTimestamp = errors.New("transaction timestamp is in the future")

	// ErrDuplicateTransaction is returned when a transaction id was already
	// admitted within the replay window. Callers must not retry the same
	// payload.
	ErrDuplicateTransaction = errors.New("transaction has already been processed")

	// ErrReplayedFingerprint is returned when a content-identical
	// transaction was already admitted within the replay window, under this
	// or any other id. Logged as a possible abuse signal.
	ErrReplayedFingerprint = errors.New("transaction content has been seen before")

	// ErrRegistrationFailed is returned when dedup keys could not be
	// written or checked. The transaction is rejected: admitting without
	// replay protection is never acceptable for money movement.
	ErrRegistrationFailed = errors.New("transaction registration failed")
)
