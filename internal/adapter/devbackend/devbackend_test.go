package devbackend

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/mathreel/internal/adapter/generator"
	"github.com/pscheid92/mathreel/internal/adapter/minter"
	"github.com/pscheid92/mathreel/internal/domain"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(Config{VideoURL: "https://cdn.example.com/demo.mp4"}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerate_ReturnsConfiguredVideo(t *testing.T) {
	srv := newBackend(t)
	client, err := generator.NewClient(srv.URL, srv.Client(), nil)
	require.NoError(t, err)

	result, err := client.GenerateVideo(context.Background(), domain.SubmissionPayload{Text: "x^2"})

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/demo.mp4", result.VideoURL)
}

func TestMint_Succeeds(t *testing.T) {
	srv := newBackend(t)
	client, err := minter.NewClient(srv.URL, srv.Client(), nil)
	require.NoError(t, err)

	outcome, err := client.Mint(context.Background(), domain.MintRequest{WalletAddress: "0xabc"})

	require.NoError(t, err)
	assert.Equal(t, domain.MintSucceeded, outcome.Kind)
	require.NotNil(t, outcome.Receipt)
	require.NotNil(t, outcome.Receipt.TransactionID)
	require.NotNil(t, outcome.Receipt.BlockExplorer)
	assert.Contains(t, *outcome.Receipt.BlockExplorer, explorerBase)
}

func TestMint_BlankWalletIsRejected(t *testing.T) {
	srv := newBackend(t)
	client, err := minter.NewClient(srv.URL, srv.Client(), nil)
	require.NoError(t, err)

	outcome, err := client.Mint(context.Background(), domain.MintRequest{WalletAddress: "  "})

	require.NoError(t, err)
	assert.Equal(t, domain.MintRejected, outcome.Kind)
	assert.Equal(t, "Wallet address is required", outcome.Message)
}

func TestTransactionDetails(t *testing.T) {
	srv := newBackend(t)
	client, err := minter.NewClient(srv.URL, srv.Client(), nil)
	require.NoError(t, err)

	message, err := client.TransactionDetails(context.Background(), "tx-1")

	require.NoError(t, err)
	assert.Equal(t, "Transaction tx-1 confirmed", message)
}
