// Package callstore maps call sessions to their call control ids so webhook
// handlers can issue commands against legs they did not create.
package callstore

import (
	"context"
	"sync"
)

// Store tracks the call control id for each live call session. Entries are
// written when a call is placed or answered and removed on hangup, so the
// store only ever holds in-flight sessions.
type Store interface {
	// Put records the control id for a session, replacing any previous entry.
	Put(ctx context.Context, sessionID, controlID string) error

	// Get returns the control id for a session, or "" if the session is
	// unknown.
	Get(ctx context.Context, sessionID string) (string, error)

	// Delete removes a session. Deleting an unknown session is a no-op.
	Delete(ctx context.Context, sessionID string) error

	// Count returns the number of tracked sessions.
	Count(ctx context.Context) (int, error)
}

// MemoryStore is the default Store, backed by a map. Sessions do not survive
// a restart, which is acceptable: the provider hangs up orphaned legs on its
// own and webhook handlers tolerate unknown sessions.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]string
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]string)}
}

func (s *MemoryStore) Put(_ context.Context, sessionID, controlID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = controlID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sessionID], nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}
