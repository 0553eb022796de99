// Package ratelimit implements multi-identity fixed-window admission
// throttling on top of the shared counter store.
//
// Each submission may carry up to three identities (client IP, user ID,
// API key), each checked against its own window and ceiling. A window is a
// single store counter created with a TTL on first increment; the counter
// expiring IS the window reset. All identities must be within quota for the
// submission to pass.
//
// The limiter degrades open: when the store cannot be reached the affected
// identity is allowed through and the gap is surfaced via the Degraded
// flag, a warn log, and the store-error counter rather than hidden.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-credit-gate/internal/config"
	"github.com/tbourn/go-credit-gate/internal/metrics"
	"github.com/tbourn/go-credit-gate/internal/store"
)

// IdentityType names one rate-limited identity class.
type IdentityType string

// The identity classes with independent windows and ceilings.
const (
	TypeIP     IdentityType = "ip"
	TypeUser   IdentityType = "user"
	TypeAPIKey IdentityType = "api_key"
)

// Unlimited is the Remaining sentinel reported when no limit applies to an
// identity: limiting disabled, type disabled, or degraded store.
const Unlimited int64 = -1

// Identity is one caller identity to count against its type's window.
type Identity struct {
	Type  IdentityType
	Value string
}

// Result is the combined limiter decision across all checked identities.
type Result struct {
	// Allowed is the AND over every checked identity.
	Allowed bool

	// Remaining holds requests left in the current window per checked
	// type; Unlimited (-1) when no limit applied.
	Remaining map[IdentityType]int64

	// ResetAt holds the store-authoritative window expiry per checked
	// type. Types whose TTL could not be read are absent.
	ResetAt map[IdentityType]time.Time

	// Exceeded lists the types over their ceiling, in check order.
	Exceeded []IdentityType

	// Degraded reports that at least one identity was allowed through
	// because the store could not be reached.
	Degraded bool
}

// RetryAfter returns how long the caller must wait until every exceeded
// window has reset. Zero when nothing was exceeded or no expiry is known.
func (r Result) RetryAfter(now time.Time) time.Duration {
	var wait time.Duration
	for _, t := range r.Exceeded {
		reset, ok := r.ResetAt[t]
		if !ok {
			continue
		}
		if d := reset.Sub(now); d > wait {
			wait = d
		}
	}
	return wait
}

// Limiter checks submissions against per-identity fixed windows.
type Limiter struct {
	store store.Store
	cfg   config.RateLimitConfig
	log   zerolog.Logger
	now   func() time.Time
}

// New returns a Limiter enforcing cfg against st.
func New(st store.Store, cfg config.RateLimitConfig, log zerolog.Logger) *Limiter {
	return &Limiter{store: st, cfg: cfg, log: log, now: time.Now}
}

// policy maps an identity type onto its configured window.
func (l *Limiter) policy(t IdentityType) (config.IdentityLimit, bool) {
	switch t {
	case TypeIP:
		return l.cfg.IP, true
	case TypeUser:
		return l.cfg.User, true
	case TypeAPIKey:
		return l.cfg.APIKey, true
	}
	return config.IdentityLimit{}, false
}

// key builds the store key for an identity under its policy prefix.
func key(pol config.IdentityLimit, value string) string {
	return pol.Prefix + ":" + value
}

// Check counts each identity against its window and combines the outcomes.
//
// The counter is incremented even when the identity is already over its
// ceiling, so sustained abuse stays visible in the window counts. Unknown
// types, disabled types, and empty identity values are skipped. Check never
// fails: store trouble converts to an allow with Degraded set.
func (l *Limiter) Check(ctx context.Context, identities []Identity) Result {
	res := Result{
		Allowed:   true,
		Remaining: make(map[IdentityType]int64, len(identities)),
		ResetAt:   make(map[IdentityType]time.Time, len(identities)),
	}

	if !l.cfg.Enabled {
		for _, id := range identities {
			res.Remaining[id.Type] = Unlimited
		}
		return res
	}

	for _, id := range identities {
		pol, known := l.policy(id.Type)
		if !known || !pol.Enabled || id.Value == "" {
			continue
		}

		count, err := l.store.Increment(ctx, key(pol, id.Value), pol.Window)
		if err != nil {
			res.Degraded = true
			res.Remaining[id.Type] = Unlimited
			metrics.IncStoreError("incr")
			metrics.ObserveRateLimit(string(id.Type), metrics.OutcomeDegraded)
			l.log.Warn().Err(err).
				Str("identity_type", string(id.Type)).
				Msg("rate limit check degraded, allowing")
			continue
		}

		remaining := pol.Requests - count
		if remaining < 0 {
			remaining = 0
		}
		res.Remaining[id.Type] = remaining

		if ttl, err := l.store.TTL(ctx, key(pol, id.Value)); err != nil {
			metrics.IncStoreError("ttl")
		} else if ttl > 0 {
			res.ResetAt[id.Type] = l.now().Add(ttl)
		}

		if count > pol.Requests {
			res.Allowed = false
			res.Exceeded = append(res.Exceeded, id.Type)
			metrics.ObserveRateLimit(string(id.Type), metrics.OutcomeBlocked)
			continue
		}
		metrics.ObserveRateLimit(string(id.Type), metrics.OutcomeAllowed)
	}
	return res
}

// Reset drops the window counter for one identity, restoring its full
// quota immediately. It reports whether a counter existed.
func (l *Limiter) Reset(ctx context.Context, t IdentityType, value string) (bool, error) {
	pol, known := l.policy(t)
	if !known {
		return false, fmt.Errorf("unknown identity type %q", t)
	}
	existed, err := l.store.Delete(ctx, key(pol, value))
	if err != nil {
		metrics.IncStoreError("del")
		return false, err
	}
	return existed, nil
}
