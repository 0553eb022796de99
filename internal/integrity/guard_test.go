package integrity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tbourn/go-credit-gate/internal/domain"
	"github.com/tbourn/go-credit-gate/internal/store"
)

func newTestGuard(st store.Store) *Guard {
	return NewGuard(st, time.Hour, time.Hour, zerolog.Nop())
}

func guardTx() *domain.Transaction {
	return &domain.Transaction{
		ID:        domain.NewID(),
		FromUser:  "user-1",
		ToUser:    "user-2",
		Amount:    decimal.RequireFromString("25.00"),
		Type:      domain.TypePurchase,
		Timestamp: time.Now().UTC().Add(-time.Minute),
		Status:    domain.StatusPending,
	}
}

// failingStore fails every operation, standing in for an unreachable backend.
type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, store.ErrUnavailable
}
func (failingStore) TTL(context.Context, string) (time.Duration, error) {
	return 0, store.ErrUnavailable
}
func (failingStore) Exists(context.Context, string) (bool, error) {
	return false, store.ErrUnavailable
}
func (failingStore) SetIfAbsent(context.Context, string, string, time.Duration) (bool, error) {
	return false, store.ErrUnavailable
}
func (failingStore) Delete(context.Context, string) (bool, error) {
	return false, store.ErrUnavailable
}

// blindStore delegates to a real MemoryStore but reports every key as
// absent, forcing admissions into the set-if-absent registration path the
// way a concurrent racer slipping between check and set would.
type blindStore struct {
	*store.MemoryStore
}

func (blindStore) Exists(context.Context, string) (bool, error) { return false, nil }

func TestAdmit_FirstSubmission_RegistersBothKeys(t *testing.T) {
	st := store.NewMemoryStore()
	g := newTestGuard(st)
	tx := guardTx()
	ctx := context.Background()

	if err := g.Admit(ctx, tx); err != nil {
		t.Fatalf("Admit: %v", err)
	}

	if seen, _ := st.Exists(ctx, idKeyPrefix+tx.ID); !seen {
		t.Fatalf("id key should be registered")
	}
	fp, _ := Fingerprint(tx)
	if seen, _ := st.Exists(ctx, hashKeyPrefix+fp); !seen {
		t.Fatalf("fingerprint key should be registered")
	}
}

func TestAdmit_MissingFields(t *testing.T) {
	g := newTestGuard(store.NewMemoryStore())
	tx := guardTx()
	tx.ID = ""
	tx.FromUser = ""
	tx.Timestamp = time.Time{}

	err := g.Admit(context.Background(), tx)
	if !errors.Is(err, ErrMissingFields) {
		t.Fatalf("err = %v; want ErrMissingFields", err)
	}
	for _, f := range []string{"id", "from_user_id", "timestamp"} {
		if !strings.Contains(err.Error(), f) {
			t.Fatalf("error should name %q: %v", f, err)
		}
	}
}

func TestAdmit_MalformedID(t *testing.T) {
	g := newTestGuard(store.NewMemoryStore())
	tx := guardTx()
	tx.ID = "not-a-uuid"

	if err := g.Admit(context.Background(), tx); !errors.Is(err, ErrMalformedID) {
		t.Fatalf("err = %v; want ErrMalformedID", err)
	}
}

func TestAdmit_TimestampWindow(t *testing.T) {
	st := store.NewMemoryStore()
	g := NewGuard(st, time.Hour, 30*time.Minute, zerolog.Nop())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	tooOld := guardTx()
	tooOld.Timestamp = now.Add(-31 * time.Minute)
	if err := g.Admit(ctx, tooOld); !errors.Is(err, ErrTooOld) {
		t.Fatalf("err = %v; want ErrTooOld", err)
	}

	future := guardTx()
	future.Timestamp = now.Add(10 * time.Second)
	if err := g.Admit(ctx, future); !errors.Is(err, ErrFutureTimestamp) {
		t.Fatalf("err = %v; want ErrFutureTimestamp", err)
	}

	// Slight clock drift ahead of the engine is tolerated.
	drifted := guardTx()
	drifted.Timestamp = now.Add(2 * time.Second)
	if err := g.Admit(ctx, drifted); err != nil {
		t.Fatalf("timestamp within skew should be admitted: %v", err)
	}

	// Boundary: exactly at the window edge is still valid.
	edge := guardTx()
	edge.Timestamp = now.Add(-30 * time.Minute)
	if err := g.Admit(ctx, edge); err != nil {
		t.Fatalf("timestamp at window edge should be admitted: %v", err)
	}
}

func TestAdmit_DuplicateID(t *testing.T) {
	g := newTestGuard(store.NewMemoryStore())
	tx := guardTx()
	ctx := context.Background()

	if err := g.Admit(ctx, tx); err != nil {
		t.Fatalf("first Admit: %v", err)
	}
	if err := g.Admit(ctx, tx); !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("err = %v; want ErrDuplicateTransaction", err)
	}
}

func TestAdmit_ReplayUnderFreshID_ReleasesIDKey(t *testing.T) {
	st := store.NewMemoryStore()
	g := newTestGuard(st)
	ctx := context.Background()

	tx := guardTx()
	if err := g.Admit(ctx, tx); err != nil {
		t.Fatalf("first Admit: %v", err)
	}

	// Identical content under a freshly minted id.
	replay := *tx
	replay.ID = domain.NewID()
	err := g.Admit(ctx, &replay)
	if !errors.Is(err, ErrReplayedFingerprint) {
		t.Fatalf("err = %v; want ErrReplayedFingerprint", err)
	}

	// The loser's id key must not stay registered: nothing was admitted
	// under it.
	if seen, _ := st.Exists(ctx, idKeyPrefix+replay.ID); seen {
		t.Fatalf("rejected submission left its id key registered")
	}

	// A corrected retry under the same id goes through.
	retry := replay
	retry.Amount = decimal.RequireFromString("26.00")
	if err := g.Admit(ctx, &retry); err != nil {
		t.Fatalf("corrected retry should be admitted: %v", err)
	}
}

func TestAdmit_RaceOnID_FailsAtRegistration(t *testing.T) {
	mem := store.NewMemoryStore()
	g := newTestGuard(blindStore{mem})
	ctx := context.Background()
	tx := guardTx()

	// Another racer registered the id between check and set.
	if _, err := mem.SetIfAbsent(ctx, idKeyPrefix+tx.ID, "1", time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := g.Admit(ctx, tx); !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("err = %v; want ErrDuplicateTransaction from registration", err)
	}
}

func TestAdmit_RaceOnFingerprint_FailsAtRegistration(t *testing.T) {
	mem := store.NewMemoryStore()
	g := newTestGuard(blindStore{mem})
	ctx := context.Background()
	tx := guardTx()

	fp, _ := Fingerprint(tx)
	if _, err := mem.SetIfAbsent(ctx, hashKeyPrefix+fp, "1", time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := g.Admit(ctx, tx); !errors.Is(err, ErrReplayedFingerprint) {
		t.Fatalf("err = %v; want ErrReplayedFingerprint from registration", err)
	}
	// Losing the fingerprint race releases the id key it had just won.
	if seen, _ := mem.Exists(ctx, idKeyPrefix+tx.ID); seen {
		t.Fatalf("id key should have been released")
	}
}

func TestAdmit_ConcurrentIdenticalContent_SingleWinner(t *testing.T) {
	st := store.NewMemoryStore()
	g := newTestGuard(st)
	ctx := context.Background()
	base := guardTx()

	const racers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted, replayed := 0, 0

	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func() {
			defer wg.Done()
			tx := *base
			tx.ID = domain.NewID()
			switch err := g.Admit(ctx, &tx); {
			case err == nil:
				mu.Lock()
				admitted++
				mu.Unlock()
			case errors.Is(err, ErrReplayedFingerprint):
				mu.Lock()
				replayed++
				mu.Unlock()
			default:
				t.Errorf("Admit: %v", err)
			}
		}()
	}
	wg.Wait()

	if admitted != 1 {
		t.Fatalf("admitted = %d; want exactly 1", admitted)
	}
	if replayed != racers-1 {
		t.Fatalf("replayed = %d; want %d", replayed, racers-1)
	}
}

func TestAdmit_FailsClosedOnStoreError(t *testing.T) {
	g := newTestGuard(failingStore{})
	err := g.Admit(context.Background(), guardTx())
	if !errors.Is(err, ErrRegistrationFailed) {
		t.Fatalf("err = %v; want ErrRegistrationFailed", err)
	}
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("err should carry the store cause: %v", err)
	}
}

func TestAdmit_ResubmissionAfterWindowExpiry(t *testing.T) {
	st := store.NewMemoryStore()
	g := NewGuard(st, 40*time.Millisecond, time.Hour, zerolog.Nop())
	ctx := context.Background()
	tx := guardTx()

	if err := g.Admit(ctx, tx); err != nil {
		t.Fatalf("first Admit: %v", err)
	}
	if err := g.Admit(ctx, tx); !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("inside the window: err = %v; want ErrDuplicateTransaction", err)
	}

	time.Sleep(80 * time.Millisecond)

	if err := g.Admit(ctx, tx); err != nil {
		t.Fatalf("after window expiry resubmission should succeed: %v", err)
	}
}
