package store

import (
	"context"
	"sync"
	"time"
)

// entry is one live key: a counter value for Increment keys, an opaque
// string for SetIfAbsent keys. expiresAt is the zero time for keys
// without expiry.
type entry struct {
	count     int64
	value     string
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is a process-local Store for single-instance deployments and
// tests. A single mutex serializes all operations, which gives the same
// per-key atomicity the Redis implementation gets from single-command
// round trips.
//
// Expired entries are dropped lazily on access, with a full sweep every
// few thousand operations to bound memory between touches.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	sweepN  uint64

	nowFunc func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		nowFunc: time.Now,
	}
}

// live returns the unexpired entry for key, evicting it if stale.
// Callers must hold mu.
func (s *MemoryStore) live(key string, now time.Time) *entry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if e.expired(now) {
		delete(s.entries, key)
		return nil
	}
	return e
}

// sweep drops all expired entries once per ~4096 operations.
// Callers must hold mu.
func (s *MemoryStore) sweep(now time.Time) {
	s.sweepN++
	if s.sweepN < 4096 {
		return
	}
	s.sweepN = 0
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
		}
	}
}

// Increment implements Store.
func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	s.sweep(now)

	if e := s.live(key, now); e != nil {
		e.count++
		return e.count, nil
	}

	e := &entry{count: 1}
	if window > 0 {
		e.expiresAt = now.Add(window)
	}
	s.entries[key] = e
	return 1, nil
}

// TTL implements Store.
func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	e := s.live(key, now)
	if e == nil || e.expiresAt.IsZero() {
		return 0, nil
	}
	return e.expiresAt.Sub(now), nil
}

// Exists implements Store.
func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.live(key, s.nowFunc()) != nil, nil
}

// SetIfAbsent implements Store.
func (s *MemoryStore) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	s.sweep(now)

	if s.live(key, now) != nil {
		return false, nil
	}

	e := &entry{value: value}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	s.entries[key] = e
	return true, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live(key, s.nowFunc()) == nil {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}
