package auth

import (
	"context"
	"sync"
)

// NewInMemorySessionStore returns a SessionStore that keeps the session in
// process memory.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{}
}

// InMemorySessionStore implements SessionStore for tests and short-lived
// command runs.
type InMemorySessionStore struct {
	mu      sync.RWMutex
	session *Session
}

// Save replaces the stored session.
func (s *InMemorySessionStore) Save(_ context.Context, session Session) error {
	s.mu.Lock()
	s.session = &session
	s.mu.Unlock()
	return nil
}

// Current returns the stored session.
func (s *InMemorySessionStore) Current(_ context.Context) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return Session{}, ErrNoSession
	}
	return *s.session, nil
}

// Delete removes the stored session.
func (s *InMemorySessionStore) Delete(_ context.Context) error {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	return nil
}

// Has reports whether a session is stored. Useful for tests.
func (s *InMemorySessionStore) Has() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session != nil
}
