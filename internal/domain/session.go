package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// View selects which of the two mutually exclusive pages the browser gets.
type View string

const (
	ViewGeneration View = "generation"
	ViewMint       View = "mint"
)

// SessionSnapshot is the storable state of one browser session. In-flight flags are
// process-local and never stored.
type SessionSnapshot struct {
	ID         uuid.UUID       `json:"id"`
	Generation GenerationState `json:"generation"`
	Mint       MintState       `json:"mint"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// SessionStore keeps session snapshots for the lifetime of a browser session.
type SessionStore interface {
	Load(ctx context.Context, id uuid.UUID) (*SessionSnapshot, error)
	Save(ctx context.Context, snapshot SessionSnapshot) error
}
