package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pscheid92/mathreel/internal/domain"
)

// exhaustedQuota is stored once a submit finds no quota left. Any negative value means exhausted.
const exhaustedQuota = -1

var errMissingVideoURL = errors.New("generation backend returned no video URL")

// GenerationOutcome describes how a generation submit settled.
type GenerationOutcome struct {
	// Exhausted is set when no request was made because the quota is used up.
	// The caller should switch to the mint view.
	Exhausted bool
	// Result is set on success.
	Result *domain.GenerationResult
	// Failure holds the backend error when the attempt failed. It is already reflected in
	// the session status and is only reported for logging and metrics.
	Failure error
}

// Generation gates video generation attempts against the remaining quota.
type Generation struct {
	generator domain.VideoGenerator
	inFlight  atomic.Bool

	mu       sync.Mutex
	quota    int
	phase    domain.Phase
	status   domain.Status
	videoURL string
}

func NewGeneration(generator domain.VideoGenerator, quota int) *Generation {
	return &Generation{
		generator: generator,
		quota:     quota,
		phase:     domain.PhaseIdle,
	}
}

// restoreGeneration rebuilds a generation from a stored state. A stored submitting phase can
// only come from an interrupted process and is reset to idle.
func restoreGeneration(generator domain.VideoGenerator, state domain.GenerationState) *Generation {
	g := &Generation{
		generator: generator,
		quota:     state.Quota,
		phase:     state.Phase,
		status:    state.Status,
		videoURL:  state.VideoURL,
	}
	if g.phase == domain.PhaseSubmitting || g.phase == "" {
		g.phase = domain.PhaseIdle
		g.status = domain.StatusIdle
	}
	return g
}

// Submit runs one generation attempt.
//
// The quota check comes first: with no quota left the session moves to the exhausted state
// without validating the payload or calling the backend. Otherwise the payload must carry an
// image or text, and exactly one backend request is made. Backend failures are absorbed into
// the session status; the returned error is reserved for rejected submits
// (domain.ErrRequestInFlight and payload validation errors), which leave the state untouched.
func (g *Generation) Submit(ctx context.Context, payload domain.SubmissionPayload) (GenerationOutcome, error) {
	if !g.inFlight.CompareAndSwap(false, true) {
		return GenerationOutcome{}, domain.ErrRequestInFlight
	}
	defer g.inFlight.Store(false)

	g.mu.Lock()
	if g.quota <= 0 {
		g.quota = exhaustedQuota
		g.phase = domain.PhaseExhausted
		g.status = domain.StatusLimitReached
		g.mu.Unlock()
		return GenerationOutcome{Exhausted: true}, nil
	}
	if err := payload.Validate(); err != nil {
		g.mu.Unlock()
		return GenerationOutcome{}, err
	}
	g.videoURL = ""
	g.phase = domain.PhaseSubmitting
	g.status = domain.StatusGenerating
	g.mu.Unlock()

	result, err := g.generator.GenerateVideo(ctx, payload)
	if err == nil && (result == nil || result.VideoURL == "") {
		err = errMissingVideoURL
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err != nil {
		g.phase = domain.PhaseFailed
		g.status = domain.StatusGenerationError
		return GenerationOutcome{Failure: err}, nil
	}

	g.videoURL = result.VideoURL
	g.phase = domain.PhaseSucceeded
	g.status = domain.StatusIdle
	g.quota--
	return GenerationOutcome{Result: result}, nil
}

// IsExhausted reports whether the quota has gone negative.
func (g *Generation) IsExhausted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.quota < 0
}

// Replenish sets the quota to amount and leaves the exhausted state.
func (g *Generation) Replenish(amount int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.quota = amount
	if g.phase == domain.PhaseExhausted {
		g.phase = domain.PhaseIdle
		g.status = domain.StatusIdle
	}
}

func (g *Generation) Quota() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.quota
}

func (g *Generation) Snapshot() domain.GenerationState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return domain.GenerationState{
		Quota:    g.quota,
		Phase:    g.phase,
		Status:   g.status,
		VideoURL: g.videoURL,
		InFlight: g.inFlight.Load(),
	}
}
