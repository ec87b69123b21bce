package app

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/pscheid92/mathreel/internal/domain"
)

type mockGenerator struct {
	generateFn func(ctx context.Context, payload domain.SubmissionPayload) (*domain.GenerationResult, error)
}

func (m *mockGenerator) GenerateVideo(ctx context.Context, payload domain.SubmissionPayload) (*domain.GenerationResult, error) {
	if m.generateFn != nil {
		return m.generateFn(ctx, payload)
	}
	return &domain.GenerationResult{VideoURL: "https://cdn.example.com/v/default.mp4"}, nil
}

type mockMinter struct {
	mintFn    func(ctx context.Context, req domain.MintRequest) (*domain.MintOutcome, error)
	detailsFn func(ctx context.Context, transactionID string) (string, error)
}

func (m *mockMinter) Mint(ctx context.Context, req domain.MintRequest) (*domain.MintOutcome, error) {
	if m.mintFn != nil {
		return m.mintFn(ctx, req)
	}
	id := "tx-default"
	return &domain.MintOutcome{Kind: domain.MintSucceeded, Receipt: &domain.MintReceipt{TransactionID: &id}}, nil
}

func (m *mockMinter) TransactionDetails(ctx context.Context, transactionID string) (string, error) {
	if m.detailsFn != nil {
		return m.detailsFn(ctx, transactionID)
	}
	return "confirmed", nil
}

// mockStore keeps snapshots in a map unless loadFn or saveFn override it.
type mockStore struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]domain.SessionSnapshot
	loads     int
	saves     int
	loadFn    func(ctx context.Context, id uuid.UUID) (*domain.SessionSnapshot, error)
	saveFn    func(ctx context.Context, snapshot domain.SessionSnapshot) error
}

func newMockStore() *mockStore {
	return &mockStore{snapshots: make(map[uuid.UUID]domain.SessionSnapshot)}
}

func (m *mockStore) Load(ctx context.Context, id uuid.UUID) (*domain.SessionSnapshot, error) {
	m.mu.Lock()
	m.loads++
	m.mu.Unlock()

	if m.loadFn != nil {
		return m.loadFn(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot, ok := m.snapshots[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &snapshot, nil
}

func (m *mockStore) Save(ctx context.Context, snapshot domain.SessionSnapshot) error {
	m.mu.Lock()
	m.saves++
	m.mu.Unlock()

	if m.saveFn != nil {
		return m.saveFn(ctx, snapshot)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.ID] = snapshot
	return nil
}

func (m *mockStore) saved(id uuid.UUID) (domain.SessionSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot, ok := m.snapshots[id]
	return snapshot, ok
}

type recordingRecorder struct {
	mu             sync.Mutex
	generation     []string
	mint           []string
	replenishments int
	active         int
}

func (r *recordingRecorder) GenerationSubmitted(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation = append(r.generation, outcome)
}

func (r *recordingRecorder) MintSubmitted(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mint = append(r.mint, outcome)
}

func (r *recordingRecorder) QuotaReplenished() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replenishments++
}

func (r *recordingRecorder) SetActiveSessions(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = n
}
