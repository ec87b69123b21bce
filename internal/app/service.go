package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/pscheid92/mathreel/internal/domain"
	"github.com/pscheid92/mathreel/internal/session"
)

const (
	evictionInterval = 1 * time.Minute
	persistTimeout   = 5 * time.Second
)

// Recorder receives submit outcomes. metrics.SessionMetrics satisfies it.
type Recorder interface {
	GenerationSubmitted(outcome string)
	MintSubmitted(outcome string)
	QuotaReplenished()
	SetActiveSessions(n int)
}

type nopRecorder struct{}

func (nopRecorder) GenerationSubmitted(string) {}
func (nopRecorder) MintSubmitted(string)       {}
func (nopRecorder) QuotaReplenished()          {}
func (nopRecorder) SetActiveSessions(int)      {}

// expirer is implemented by stores that need a periodic sweep.
type expirer interface {
	EvictExpired() int
}

// Options configures the service.
type Options struct {
	Quotas         session.Quotas
	BackendTimeout time.Duration
	IdleTimeout    time.Duration
}

// SessionState is what the browser sees of its session.
type SessionState struct {
	ID         uuid.UUID              `json:"id"`
	View       domain.View            `json:"view"`
	Generation domain.GenerationState `json:"generation"`
	Mint       domain.MintState       `json:"mint"`
}

type entry struct {
	session  *session.Session
	lastSeen time.Time
}

// Service is the application layer. It owns every live session; handlers only pass ids.
type Service struct {
	generator domain.VideoGenerator
	minter    domain.Minter
	store     domain.SessionStore
	recorder  Recorder
	clock     clockwork.Clock
	opts      Options

	restoreGroup singleflight.Group

	mu       sync.Mutex
	sessions map[uuid.UUID]*entry

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewService creates the service and starts the idle eviction loop. recorder may be nil.
func NewService(generator domain.VideoGenerator, minter domain.Minter, store domain.SessionStore, recorder Recorder, clock clockwork.Clock, opts Options) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}

	s := &Service{
		generator: generator,
		minter:    minter,
		store:     store,
		recorder:  recorder,
		clock:     clock,
		opts:      opts,
		sessions:  make(map[uuid.UUID]*entry),
		stopCh:    make(chan struct{}),
	}

	s.startEvictionTimer()
	return s
}

// State returns the session's current state, creating the session on first use.
func (s *Service) State(ctx context.Context, id uuid.UUID) (*SessionState, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	return stateOf(sess), nil
}

// SubmitGeneration runs one generation attempt and returns the resulting state. Validation
// and in-flight rejections are returned as errors and leave the session unchanged.
func (s *Service) SubmitGeneration(ctx context.Context, id uuid.UUID, payload domain.SubmissionPayload) (*SessionState, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}

	backendCtx, cancel := s.backendContext(ctx)
	defer cancel()

	outcome, err := sess.SubmitGeneration(backendCtx, payload)
	if err != nil {
		s.recorder.GenerationSubmitted(rejectionOutcome(err))
		return nil, err
	}

	switch {
	case outcome.Exhausted:
		s.recorder.GenerationSubmitted("exhausted")
		slog.InfoContext(ctx, "Generation limit reached", "session_id", id.String())
	case outcome.Failure != nil:
		s.recorder.GenerationSubmitted("failed")
		slog.WarnContext(ctx, "Video generation failed", "session_id", id.String(), "error", outcome.Failure)
	default:
		s.recorder.GenerationSubmitted("succeeded")
		slog.InfoContext(ctx, "Video generated", "session_id", id.String(), "quota", sess.Generation.Quota())
	}

	s.persist(backendCtx, sess)
	return stateOf(sess), nil
}

// SubmitMint mints to walletAddress. It is rejected with session.ErrMintUnavailable while
// generation quota remains.
func (s *Service) SubmitMint(ctx context.Context, id uuid.UUID, walletAddress string) (*SessionState, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}

	backendCtx, cancel := s.backendContext(ctx)
	defer cancel()

	outcome, err := sess.SubmitMint(backendCtx, walletAddress)
	if err != nil {
		s.recorder.MintSubmitted(rejectionOutcome(err))
		return nil, err
	}

	s.recorder.MintSubmitted(string(outcome.Kind))
	if outcome.Kind == domain.MintSucceeded {
		s.recorder.QuotaReplenished()
		slog.InfoContext(ctx, "NFT minted", "session_id", id.String(), "quota", sess.Generation.Quota())
	} else {
		slog.WarnContext(ctx, "Mint did not succeed", "session_id", id.String(), "kind", string(outcome.Kind), "message", outcome.Message)
	}

	s.persist(backendCtx, sess)
	return stateOf(sess), nil
}

// CheckTransactionDetails returns the backend's message for transactionID, or for the last
// receipt when transactionID is empty.
func (s *Service) CheckTransactionDetails(ctx context.Context, id uuid.UUID, transactionID string) (string, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return "", err
	}

	backendCtx, cancel := s.backendContext(ctx)
	defer cancel()

	return sess.CheckTransactionDetails(backendCtx, transactionID)
}

// ActiveSessions returns the number of sessions held in memory.
func (s *Service) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// session returns the live session for id, restoring it from the store or creating it.
// Concurrent restores of the same id are collapsed.
func (s *Service) session(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	if sess, ok := s.touch(id); ok {
		return sess, nil
	}

	v, err, _ := s.restoreGroup.Do(id.String(), func() (any, error) {
		if sess, ok := s.touch(id); ok {
			return sess, nil
		}

		var sess *session.Session
		snapshot, err := s.store.Load(ctx, id)
		switch {
		case err == nil:
			sess = session.Restore(*snapshot, s.generator, s.minter, s.opts.Quotas)
			slog.DebugContext(ctx, "Session restored", "session_id", id.String())
		case errors.Is(err, domain.ErrSessionNotFound):
			sess = session.New(id, s.generator, s.minter, s.opts.Quotas)
			slog.DebugContext(ctx, "Session created", "session_id", id.String())
		default:
			return nil, fmt.Errorf("failed to load session: %w", err)
		}

		s.mu.Lock()
		s.sessions[id] = &entry{session: sess, lastSeen: s.clock.Now()}
		count := len(s.sessions)
		s.mu.Unlock()

		s.recorder.SetActiveSessions(count)
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*session.Session), nil
}

func (s *Service) touch(id uuid.UUID) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = s.clock.Now()
	return e.session, true
}

// backendContext detaches from the request so a closed browser tab does not abort a
// generation or mint that is already running.
func (s *Service) backendContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if s.opts.BackendTimeout <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, s.opts.BackendTimeout)
}

// persist saves the settled state. Failures are logged; the in-memory session stays
// authoritative.
func (s *Service) persist(ctx context.Context, sess *session.Session) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	snapshot := sess.Snapshot()
	snapshot.UpdatedAt = s.clock.Now()
	snapshot.Generation.InFlight = false
	snapshot.Mint.InFlight = false

	if err := s.store.Save(ctx, snapshot); err != nil {
		slog.ErrorContext(ctx, "Failed to persist session", "session_id", sess.ID.String(), "error", err)
	}
}

// EvictIdle drops sessions not seen for longer than the idle timeout. Sessions with a request
// in flight are kept.
func (s *Service) EvictIdle() int {
	s.mu.Lock()
	evicted := 0
	for id, e := range s.sessions {
		if s.clock.Since(e.lastSeen) <= s.opts.IdleTimeout {
			continue
		}
		snapshot := e.session.Snapshot()
		if snapshot.Generation.InFlight || snapshot.Mint.InFlight {
			continue
		}
		delete(s.sessions, id)
		evicted++
	}
	count := len(s.sessions)
	s.mu.Unlock()

	s.recorder.SetActiveSessions(count)

	if exp, ok := s.store.(expirer); ok {
		if n := exp.EvictExpired(); n > 0 {
			slog.Debug("Evicted expired stored sessions", "count", n)
		}
	}
	if evicted > 0 {
		slog.Info("Evicted idle sessions", "count", evicted, "remaining", count)
	}
	return evicted
}

func (s *Service) startEvictionTimer() {
	if s.opts.IdleTimeout <= 0 {
		return
	}

	ticker := s.clock.NewTicker(evictionInterval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ticker.Chan():
				s.EvictIdle()
			case <-s.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
	slog.Info("Idle session eviction started", "interval", evictionInterval.String(), "idle_timeout", s.opts.IdleTimeout.String())
}

// Stop stops the eviction loop and waits for it to exit.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

func stateOf(sess *session.Session) *SessionState {
	snapshot := sess.Snapshot()
	return &SessionState{
		ID:         sess.ID,
		View:       sess.View(),
		Generation: snapshot.Generation,
		Mint:       snapshot.Mint,
	}
}

func rejectionOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrRequestInFlight):
		return "in_flight"
	case errors.Is(err, session.ErrMintUnavailable):
		return "unavailable"
	default:
		return "invalid"
	}
}
