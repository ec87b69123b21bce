package session

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/pscheid92/mathreel/internal/domain"
)

// --- Mock implementations ---

type mockGenerator struct {
	calls      atomic.Int32
	generateFn func(ctx context.Context, payload domain.SubmissionPayload) (*domain.GenerationResult, error)
}

func (m *mockGenerator) GenerateVideo(ctx context.Context, payload domain.SubmissionPayload) (*domain.GenerationResult, error) {
	m.calls.Add(1)
	if m.generateFn != nil {
		return m.generateFn(ctx, payload)
	}
	return nil, errors.New("not implemented")
}

func videoAt(url string) *mockGenerator {
	return &mockGenerator{
		generateFn: func(_ context.Context, _ domain.SubmissionPayload) (*domain.GenerationResult, error) {
			return &domain.GenerationResult{VideoURL: url}, nil
		},
	}
}

type mockMinter struct {
	mintCalls atomic.Int32
	mintFn    func(ctx context.Context, req domain.MintRequest) (*domain.MintOutcome, error)
	detailsFn func(ctx context.Context, transactionID string) (string, error)
}

func (m *mockMinter) Mint(ctx context.Context, req domain.MintRequest) (*domain.MintOutcome, error) {
	m.mintCalls.Add(1)
	if m.mintFn != nil {
		return m.mintFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockMinter) TransactionDetails(ctx context.Context, transactionID string) (string, error) {
	if m.detailsFn != nil {
		return m.detailsFn(ctx, transactionID)
	}
	return "", errors.New("not implemented")
}

func strPtr(s string) *string { return &s }

func receiptOutcome(id, hash, explorer *string) *domain.MintOutcome {
	return &domain.MintOutcome{
		Kind: domain.MintSucceeded,
		Receipt: &domain.MintReceipt{
			TransactionID:   id,
			TransactionHash: hash,
			BlockExplorer:   explorer,
		},
	}
}

type recordingReplenisher struct {
	amounts []int
}

func (r *recordingReplenisher) Replenish(amount int) {
	r.amounts = append(r.amounts, amount)
}
