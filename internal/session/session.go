package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/pscheid92/mathreel/internal/domain"
)

// ErrMintUnavailable is returned when a mint is attempted while generation quota remains.
var ErrMintUnavailable = errors.New("minting is only available once the generation limit is reached")

// Quotas configures the starting quota and the value a successful mint restores.
type Quotas struct {
	Initial   int
	Replenish int
}

// Session is the state of one browser session.
type Session struct {
	ID         uuid.UUID
	Generation *Generation
	Mint       *Mint
}

func New(id uuid.UUID, generator domain.VideoGenerator, minter domain.Minter, quotas Quotas) *Session {
	gen := NewGeneration(generator, quotas.Initial)
	return &Session{
		ID:         id,
		Generation: gen,
		Mint:       NewMint(minter, gen, quotas.Replenish),
	}
}

// Restore rebuilds a session from a stored snapshot.
func Restore(snapshot domain.SessionSnapshot, generator domain.VideoGenerator, minter domain.Minter, quotas Quotas) *Session {
	gen := restoreGeneration(generator, snapshot.Generation)
	return &Session{
		ID:         snapshot.ID,
		Generation: gen,
		Mint:       restoreMint(minter, gen, quotas.Replenish, snapshot.Mint),
	}
}

// View picks the page to render: the mint view while the quota is exhausted.
func (s *Session) View() domain.View {
	if s.Generation.IsExhausted() {
		return domain.ViewMint
	}
	return domain.ViewGeneration
}

func (s *Session) SubmitGeneration(ctx context.Context, payload domain.SubmissionPayload) (GenerationOutcome, error) {
	return s.Generation.Submit(ctx, payload)
}

// SubmitMint is only accepted in the mint view.
func (s *Session) SubmitMint(ctx context.Context, walletAddress string) (domain.MintOutcome, error) {
	if !s.Generation.IsExhausted() {
		return domain.MintOutcome{}, ErrMintUnavailable
	}
	return s.Mint.Submit(ctx, walletAddress)
}

func (s *Session) CheckTransactionDetails(ctx context.Context, transactionID string) (string, error) {
	return s.Mint.CheckTransactionDetails(ctx, transactionID)
}

// Snapshot copies the current state. UpdatedAt is left for the caller to stamp.
func (s *Session) Snapshot() domain.SessionSnapshot {
	return domain.SessionSnapshot{
		ID:         s.ID,
		Generation: s.Generation.Snapshot(),
		Mint:       s.Mint.Snapshot(),
	}
}
