package domain

import "context"

const (
	MintFailureMessage       = "Failed to mint NFT. Please try again."
	TransactionLookupFailure = "Failed to fetch transaction details"
)

// MintRequest is the destination wallet for a mint.
type MintRequest struct {
	WalletAddress string `json:"walletAddress"`
}

// MintReceipt holds the identifiers of a successful mint. Each field is nil when the
// backend omitted it.
type MintReceipt struct {
	TransactionID   *string `json:"transaction_id,omitempty"`
	TransactionHash *string `json:"transaction_hash,omitempty"`
	BlockExplorer   *string `json:"block_explorer,omitempty"`
}

// MintOutcomeKind discriminates MintOutcome.
type MintOutcomeKind string

const (
	// MintSucceeded: the backend returned transaction details.
	MintSucceeded MintOutcomeKind = "succeeded"
	// MintRejected: the backend returned an error envelope.
	MintRejected MintOutcomeKind = "rejected"
	// MintUnreachable: the request did not complete or the response was unusable.
	MintUnreachable MintOutcomeKind = "unreachable"
)

// MintOutcome is the settled result of one mint request.
// Receipt is set only for MintSucceeded, Message only for the other kinds.
type MintOutcome struct {
	Kind    MintOutcomeKind `json:"kind"`
	Receipt *MintReceipt    `json:"receipt,omitempty"`
	Message string          `json:"message,omitempty"`
}

// MintState is a point-in-time copy of a mint session.
type MintState struct {
	Phase         Phase        `json:"phase"`
	WalletAddress string       `json:"wallet_address,omitempty"`
	Receipt       *MintReceipt `json:"receipt,omitempty"`
	Error         string       `json:"error,omitempty"`
	InFlight      bool         `json:"in_flight"`
}

// Minter talks to the minting backend.
//
// Mint reports backend-level results through MintOutcome; a non-nil error means the request
// could not be completed.
type Minter interface {
	Mint(ctx context.Context, req MintRequest) (*MintOutcome, error)
	TransactionDetails(ctx context.Context, transactionID string) (string, error)
}
