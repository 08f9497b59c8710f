// Package memory provides a mutex-guarded in-process token store. It
// does not survive restarts; deployments that need single-use guarantees
// across restarts should use the redis or postgres driver.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/vending-service/internal/store"
)

// Store is an in-memory store.Store implementation.
type Store struct {
	mu     sync.Mutex
	tokens map[string]store.Record
}

// New creates an empty store.
func New() *Store {
	return &Store{tokens: make(map[string]store.Record)}
}

// Put stores or replaces the record for a token.
func (s *Store) Put(_ context.Context, token string, rec store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = rec
	return nil
}

// Get returns the record for a token, if present.
func (s *Store) Get(_ context.Context, token string) (store.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tokens[token]
	return rec, ok, nil
}

// MarkConsumed flips the consumed flag under the store lock, so of two
// racing confirmations exactly one wins.
func (s *Store) MarkConsumed(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tokens[token]
	if !ok {
		return store.ErrNotFound
	}
	if rec.Consumed {
		return store.ErrAlreadyConsumed
	}
	rec.Consumed = true
	s.tokens[token] = rec
	return nil
}

// Delete removes the record for a token.
func (s *Store) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

// SweepExpired removes every record whose expiry has passed.
func (s *Store) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for token, rec := range s.tokens {
		if !rec.ExpiresAt.After(now) {
			delete(s.tokens, token)
			removed++
		}
	}
	return removed, nil
}

// Ping always succeeds for the in-process store.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }
