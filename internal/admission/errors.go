// Package admission composes the full transaction admission pipeline:
// rate limiting, payload binding, stateless validation, balance
// enforcement, and integrity registration, with an audit event per stage.
// This file defines the pipeline's error surface. Every rejection comes
// wrapped in a *Rejection naming the stage that stopped it, so callers can
// map outcomes to transport responses with a single errors.As.
package admission

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tbourn/go-credit-gate/internal/ratelimit"
)

// Pipeline stage names, in execution order. They label rejections, audit
// events, metrics, and trace attributes.
const (
	StageRateLimit   = "rate_limit"
	StageBind        = "bind"
	StageType        = "type"
	StageAmount      = "amount"
	StageBalance     = "balance"
	StageMetadata    = "metadata"
	StageReferenceID = "reference_id"
	StageIntegrity   = "integrity"

	// StageAdmitted labels the terminal success observation; it is not a
	// checking stage.
	StageAdmitted = "admitted"
)

// ErrBalanceUnavailable is returned when balance enforcement is on and the
// payer balance cannot be resolved. The submission is rejected: a debit
// must never be admitted unverified.
var ErrBalanceUnavailable = errors.New("balance lookup unavailable")

// Rejection is the uniform failure wrapper for Pipeline.Submit. Stage names
// the pipeline stage that rejected the submission; Err carries the
// stage-specific cause and supports errors.Is/As through Unwrap.
type Rejection struct {
	Stage string
	Err   error
}

// Error implements error.
func (r *Rejection) Error() string {
	return fmt.Sprintf("admission rejected at %s: %v", r.Stage, r.Err)
}

// Unwrap exposes the stage cause to errors.Is and errors.As.
func (r *Rejection) Unwrap() error { return r.Err }

// RateLimitedError is the cause inside a rate_limit Rejection. It carries
// which identity types were exceeded, how long until every exceeded window
// resets, and the full limiter result for response headers.
type RateLimitedError struct {
	Exceeded   []ratelimit.IdentityType
	RetryAfter time.Duration
	Result     ratelimit.Result
}

// Error implements error.
func (e *RateLimitedError) Error() string {
	types := make([]string, 0, len(e.Exceeded))
	for _, t := range e.Exceeded {
		types = append(types, string(t))
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s (retry after %s)", strings.Join(types, ", "), e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %s", strings.Join(types, ", "))
}
