// Package memory provides an in-process coordination store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/getpup/pupsourcing-migrator/coordination"
)

type entry struct {
	value     string
	hash      map[string]string
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Store is an in-memory implementation of coordination.Store for testing
// and single-host use. It provides thread-safe access using a sync.Mutex.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry

	// now returns the current time. Overridden by tests through SetClock.
	now func() time.Time
}

var _ coordination.Store = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// SetClock replaces the clock used for expiry.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// lookup returns the live entry for key, evicting it if expired. Callers hold mu.
func (s *Store) lookup(key string) (entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if e.expired(s.now()) {
		delete(s.entries, key)
		return entry{}, false
	}
	return e, true
}

func (s *Store) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

// SetNX sets key to value with ttl only if key does not exist.
func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(key); ok {
		return false, nil
	}
	s.entries[key] = entry{value: value, expiresAt: s.deadline(ttl)}
	return true, nil
}

// Get returns the value of key.
// Returns coordination.ErrKeyNotFound if the key does not exist.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok || e.hash != nil {
		return "", coordination.ErrKeyNotFound
	}
	return e.value, nil
}

// Set sets key to value. A ttl of zero means the key does not expire.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry{value: value, expiresAt: s.deadline(ttl)}
	return nil
}

// CompareAndDelete deletes key if its value equals expected.
func (s *Store) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok || e.hash != nil || e.value != expected {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

// CompareAndExpire resets the ttl of key if its value equals expected.
func (s *Store) CompareAndExpire(ctx context.Context, key, expected string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok || e.hash != nil || e.value != expected {
		return false, nil
	}
	e.expiresAt = s.deadline(ttl)
	s.entries[key] = e
	return true, nil
}

// HSet sets the given fields of the hash at key.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok || e.hash == nil {
		e = entry{hash: make(map[string]string)}
	}
	for k, v := range fields {
		e.hash[k] = v
	}
	s.entries[key] = e
	return nil
}

// HGetAll returns a copy of every field of the hash at key.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string)
	e, ok := s.lookup(key)
	if !ok {
		return out, nil
	}
	for k, v := range e.hash {
		out[k] = v
	}
	return out, nil
}

// Del removes the given keys.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}
