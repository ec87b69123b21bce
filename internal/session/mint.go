package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pscheid92/mathreel/internal/domain"
)

// Replenisher refills the generation quota after a successful mint.
type Replenisher interface {
	Replenish(amount int)
}

// Mint submits a wallet address to the minting backend and keeps the receipt or error.
type Mint struct {
	minter          domain.Minter
	replenisher     Replenisher
	replenishAmount int
	inFlight        atomic.Bool

	mu      sync.Mutex
	phase   domain.Phase
	wallet  string
	receipt *domain.MintReceipt
	errMsg  string
}

func NewMint(minter domain.Minter, replenisher Replenisher, replenishAmount int) *Mint {
	return &Mint{
		minter:          minter,
		replenisher:     replenisher,
		replenishAmount: replenishAmount,
		phase:           domain.PhaseIdle,
	}
}

func restoreMint(minter domain.Minter, replenisher Replenisher, replenishAmount int, state domain.MintState) *Mint {
	m := NewMint(minter, replenisher, replenishAmount)
	m.phase = state.Phase
	m.wallet = state.WalletAddress
	m.receipt = state.Receipt
	m.errMsg = state.Error
	if m.phase == domain.PhaseSubmitting || m.phase == "" {
		m.phase = domain.PhaseIdle
	}
	return m
}

// Submit mints to walletAddress.
//
// The receipt of a previous mint stays visible until a new one replaces it. Only a
// transaction-details response refills the quota; rejected and failed mints leave it alone.
func (m *Mint) Submit(ctx context.Context, walletAddress string) (domain.MintOutcome, error) {
	walletAddress = strings.TrimSpace(walletAddress)
	if walletAddress == "" {
		return domain.MintOutcome{}, domain.ErrEmptyWallet
	}
	if !m.inFlight.CompareAndSwap(false, true) {
		return domain.MintOutcome{}, domain.ErrRequestInFlight
	}
	defer m.inFlight.Store(false)

	m.mu.Lock()
	m.phase = domain.PhaseSubmitting
	m.wallet = walletAddress
	m.errMsg = ""
	m.mu.Unlock()

	outcome, err := m.minter.Mint(ctx, domain.MintRequest{WalletAddress: walletAddress})
	if err != nil {
		slog.WarnContext(ctx, "Mint request failed", "error", err)
		outcome = &domain.MintOutcome{Kind: domain.MintUnreachable}
	}
	if outcome.Kind == domain.MintSucceeded && outcome.Receipt == nil {
		outcome = &domain.MintOutcome{Kind: domain.MintUnreachable}
	}
	if outcome.Kind != domain.MintSucceeded && outcome.Message == "" {
		outcome.Message = domain.MintFailureMessage
	}

	m.mu.Lock()
	switch outcome.Kind {
	case domain.MintSucceeded:
		m.phase = domain.PhaseSucceeded
		m.receipt = outcome.Receipt
	default:
		m.phase = domain.PhaseFailed
		m.errMsg = outcome.Message
	}
	m.mu.Unlock()

	// Outside m.mu: the generation takes its own lock.
	if outcome.Kind == domain.MintSucceeded {
		m.replenisher.Replenish(m.replenishAmount)
	}

	return *outcome, nil
}

// CheckTransactionDetails looks up a transaction and returns the backend's message. An empty
// transactionID falls back to the id of the last receipt. Lookup failures produce a generic
// message and never change the mint state.
func (m *Mint) CheckTransactionDetails(ctx context.Context, transactionID string) (string, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		m.mu.Lock()
		if m.receipt != nil && m.receipt.TransactionID != nil {
			transactionID = *m.receipt.TransactionID
		}
		m.mu.Unlock()
	}
	if transactionID == "" {
		return "", domain.ErrEmptyTransaction
	}

	message, err := m.minter.TransactionDetails(ctx, transactionID)
	if err != nil {
		slog.WarnContext(ctx, "Transaction details lookup failed", "transaction_id", transactionID, "error", err)
		return domain.TransactionLookupFailure, nil
	}
	return message, nil
}

func (m *Mint) Snapshot() domain.MintState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.MintState{
		Phase:         m.phase,
		WalletAddress: m.wallet,
		Receipt:       m.receipt,
		Error:         m.errMsg,
		InFlight:      m.inFlight.Load(),
	}
}
