// Package store defines the shared atomic key/value contract the admission
// engine coordinates through, plus its Redis and in-memory implementations.
//
// Rate limiting and replay protection both reduce to a handful of
// primitives: create-or-increment a counter with a TTL, read a TTL, test
// existence, set-if-absent, and delete. Every primitive is a single atomic
// round trip so concurrent admissions racing on the same key observe a
// consistent outcome without any client-side locking.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable wraps every transport or backend failure raised by a
// Store implementation. Callers branch on it with errors.Is to decide
// their degradation policy (the rate limiter fails open, the integrity
// guard fails closed).
var ErrUnavailable = errors.New("counter store unavailable")

// Store is the shared counter/flag store used for rate-limit windows and
// transaction dedup keys. Implementations must make Increment and
// SetIfAbsent atomic with respect to concurrent callers on the same key.
type Store interface {
	// Increment adds one to the counter at key and returns the new value.
	// When the key does not exist it is created at 1 and, if window > 0,
	// given a TTL of window. Subsequent increments within the window must
	// not extend the TTL.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)

	// TTL returns the remaining lifetime of key, or 0 when the key does
	// not exist or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Exists reports whether key is present (and unexpired).
	Exists(ctx context.Context, key string) (bool, error)

	// SetIfAbsent writes value under key with the given TTL only when the
	// key is not already present. It reports whether this call created the
	// key; false means another writer got there first.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
}

// unavailable tags a backend failure with ErrUnavailable, preserving the
// operation, key, and underlying cause in the message.
func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, op, key, err)
}
