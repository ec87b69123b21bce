// Package memory keeps session snapshots in process memory for single-instance mode.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/mathreel/internal/domain"
)

type storedSnapshot struct {
	snapshot  domain.SessionSnapshot
	expiresAt time.Time
}

// SessionStore holds snapshots until their TTL passes. Expired entries are dropped on read and
// by EvictExpired.
type SessionStore struct {
	clock clockwork.Clock
	ttl   time.Duration

	mu        sync.Mutex
	snapshots map[uuid.UUID]storedSnapshot
}

var _ domain.SessionStore = (*SessionStore)(nil)

func NewSessionStore(clock clockwork.Clock, ttl time.Duration) *SessionStore {
	return &SessionStore{
		clock:     clock,
		ttl:       ttl,
		snapshots: make(map[uuid.UUID]storedSnapshot),
	}
}

func (s *SessionStore) Load(_ context.Context, id uuid.UUID) (*domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.snapshots[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if !s.clock.Now().Before(stored.expiresAt) {
		delete(s.snapshots, id)
		return nil, domain.ErrSessionNotFound
	}

	snapshot := stored.snapshot
	return &snapshot, nil
}

// Save stores the snapshot and restarts its TTL.
func (s *SessionStore) Save(_ context.Context, snapshot domain.SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snapshot.ID] = storedSnapshot{
		snapshot:  snapshot,
		expiresAt: s.clock.Now().Add(s.ttl),
	}
	return nil
}

// EvictExpired removes expired snapshots and returns how many were removed.
func (s *SessionStore) EvictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	evicted := 0
	for id, stored := range s.snapshots {
		if !now.Before(stored.expiresAt) {
			delete(s.snapshots, id)
			evicted++
		}
	}
	return evicted
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}
