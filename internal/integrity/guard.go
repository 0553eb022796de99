package integrity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-credit-gate/internal/domain"
	"github.com/tbourn/go-credit-gate/internal/metrics"
	"github.com/tbourn/go-credit-gate/internal/store"
)

// Dedup key prefixes in the shared store.
const (
	idKeyPrefix   = "tx:id:"
	hashKeyPrefix = "tx:hash:"
)

// clockSkew is how far ahead of the engine clock a client-asserted
// timestamp may sit before it counts as future-dated.
const clockSkew = 5 * time.Second

// Guard admits each transaction exactly once within the replay window.
//
// Admission registers two dedup keys: one under the transaction id, one
// under the content fingerprint, both with TTL equal to the replay window.
// Registration runs through the store's atomic set-if-absent, so among any
// number of concurrent identical submissions exactly one wins; separate
// exists+set would let two racers both pass the check.
//
// The guard fails closed: when the store cannot confirm or register a key
// the transaction is rejected with ErrRegistrationFailed, the opposite of
// the rate limiter's fail-open stance. Admitting a possibly duplicate money
// movement is worse than refusing a legitimate one.
type Guard struct {
	store           store.Store
	replayWindow    time.Duration
	timestampWindow time.Duration
	log             zerolog.Logger
	now             func() time.Time
}

// NewGuard returns a Guard registering dedup keys with TTL replayWindow and
// bounding client timestamps by timestampWindow.
func NewGuard(st store.Store, replayWindow, timestampWindow time.Duration, log zerolog.Logger) *Guard {
	return &Guard{
		store:           st,
		replayWindow:    replayWindow,
		timestampWindow: timestampWindow,
		log:             log,
		now:             time.Now,
	}
}

// Admit validates the transaction's identity and timestamp, then registers
// its dedup keys. A nil return means this exact transaction, by id and by
// content, was observed for the first time within the replay window and
// its keys are now held.
//
// Checks run cheapest-first; the set-if-absent registration is the only
// stateful step and always comes last.
func (g *Guard) Admit(ctx context.Context, tx *domain.Transaction) error {
	var missing []string
	if tx.ID == "" {
		missing = append(missing, "id")
	}
	if tx.FromUser == "" {
		missing = append(missing, "from_user_id")
	}
	if tx.ToUser == "" {
		missing = append(missing, "to_user_id")
	}
	if tx.Timestamp.IsZero() {
		missing = append(missing, "timestamp")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}

	if _, err := uuid.Parse(tx.ID); err != nil {
		return fmt.Errorf("%w: %q", ErrMalformedID, tx.ID)
	}

	now := g.now()
	if now.Sub(tx.Timestamp) > g.timestampWindow {
		return fmt.Errorf("%w: older than %s", ErrTooOld, g.timestampWindow)
	}
	if tx.Timestamp.After(now.Add(clockSkew)) {
		return ErrFutureTimestamp
	}

	fp, err := Fingerprint(tx)
	if err != nil {
		return err
	}
	idKey := idKeyPrefix + tx.ID
	hashKey := hashKeyPrefix + fp

	// Fail-fast existence checks. The set-if-absent below is the real
	// serialization point; these only spare the common duplicate the
	// second round trip.
	if seen, err := g.store.Exists(ctx, idKey); err != nil {
		metrics.IncStoreError("exists")
		return fmt.Errorf("%w: id check: %w", ErrRegistrationFailed, err)
	} else if seen {
		return fmt.Errorf("%w: id %s", ErrDuplicateTransaction, tx.ID)
	}
	if seen, err := g.store.Exists(ctx, hashKey); err != nil {
		metrics.IncStoreError("exists")
		return fmt.Errorf("%w: fingerprint check: %w", ErrRegistrationFailed, err)
	} else if seen {
		return fmt.Errorf("%w: fingerprint %s", ErrReplayedFingerprint, fp)
	}

	created, err := g.store.SetIfAbsent(ctx, idKey, "1", g.replayWindow)
	if err != nil {
		metrics.IncStoreError("setnx")
		return fmt.Errorf("%w: register id: %w", ErrRegistrationFailed, err)
	}
	if !created {
		return fmt.Errorf("%w: id %s", ErrDuplicateTransaction, tx.ID)
	}

	created, err = g.store.SetIfAbsent(ctx, hashKey, "1", g.replayWindow)
	if err != nil {
		g.releaseID(ctx, idKey)
		metrics.IncStoreError("setnx")
		return fmt.Errorf("%w: register fingerprint: %w", ErrRegistrationFailed, err)
	}
	if !created {
		// A content-identical submission under another id won the race.
		// Free our id key so a corrected retry of this id is not judged a
		// duplicate of a transaction that was never admitted.
		g.releaseID(ctx, idKey)
		return fmt.Errorf("%w: fingerprint %s", ErrReplayedFingerprint, fp)
	}
	return nil
}

// releaseID drops a freshly registered id key after the fingerprint
// registration lost. Best effort: on failure the key simply expires with
// the replay window.
func (g *Guard) releaseID(ctx context.Context, idKey string) {
	if _, err := g.store.Delete(ctx, idKey); err != nil {
		metrics.IncStoreError("del")
		g.log.Warn().Err(err).Str("key", idKey).Msg("could not release id key after losing fingerprint race")
	}
}
