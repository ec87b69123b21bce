package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/mathreel/internal/domain"
)

const sessionKeyPrefix = "mathreel:session:"

// SessionStore keeps JSON session snapshots under mathreel:session:<id>. Every save restarts
// the key's TTL.
type SessionStore struct {
	rdb goredis.Cmdable
	ttl time.Duration
}

var _ domain.SessionStore = (*SessionStore)(nil)

func NewSessionStore(rdb goredis.Cmdable, ttl time.Duration) *SessionStore {
	return &SessionStore{rdb: rdb, ttl: ttl}
}

func sessionKey(id uuid.UUID) string {
	return sessionKeyPrefix + id.String()
}

func (s *SessionStore) Load(ctx context.Context, id uuid.UUID) (*domain.SessionSnapshot, error) {
	data, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	var snapshot domain.SessionSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &snapshot, nil
}

func (s *SessionStore) Save(ctx context.Context, snapshot domain.SessionSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", snapshot.ID, err)
	}
	if err := s.rdb.Set(ctx, sessionKey(snapshot.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session %s: %w", snapshot.ID, err)
	}
	return nil
}
