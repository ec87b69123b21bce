// Package minter is the HTTP client for the NFT minting backend.
package minter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/pscheid92/mathreel/internal/adapter/httpclient"
	"github.com/pscheid92/mathreel/internal/domain"
)

const (
	backendName      = "minter"
	mintPath         = "mint"
	detailsPath      = "transactionDetails"
	maxResponseBytes = 1 << 20

	operationMint    = "mint"
	operationDetails = "transaction_details"
)

var errNoMessage = errors.New("transaction details response has no message")

// flexString accepts a JSON string or number. Anything else decodes to empty.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	*f = ""
	return nil
}

func (f flexString) ptr() *string {
	s := strings.TrimSpace(string(f))
	if s == "" {
		return nil
	}
	return &s
}

type mintEnvelope struct {
	Response *struct {
		TransactionDetails *struct {
			TransactionID   flexString `json:"transactionID"`
			TransactionHash flexString `json:"transactionHash"`
			BlockExplorer   flexString `json:"blockExplorer"`
		} `json:"transaction_details"`
	} `json:"response"`
	Error *struct {
		Message flexString `json:"message"`
	} `json:"error"`
}

type detailsRequest struct {
	TransactionID string `json:"transactionId"`
}

type detailsResponse struct {
	Message *flexString `json:"message"`
}

// Client sends JSON requests to the minting backend.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	observer httpclient.Observer
}

var _ domain.Minter = (*Client)(nil)

func NewClient(baseURL string, httpClient *http.Client, observer httpclient.Observer) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid mint base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	observer = httpclient.OrNop(observer)
	return &Client{
		baseURL:  u,
		http:     httpClient,
		breaker:  httpclient.NewBreaker(backendName, observer),
		observer: observer,
	}, nil
}

// Mint posts the wallet address and maps the response envelope to an outcome.
//
// The envelope is read whatever the status code: a transaction_details object is a success and
// an error object is a rejection. A response with neither is unreachable, or a StatusError when
// the status was not 2xx. Rejections count as breaker successes.
func (c *Client) Mint(ctx context.Context, req domain.MintRequest) (*domain.MintOutcome, error) {
	start := time.Now()
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.mint(ctx, req)
	})

	outcome := httpclient.Outcome(err)
	if err == nil && res.(*domain.MintOutcome).Kind != domain.MintSucceeded {
		outcome = httpclient.OutcomeRejected
	}
	c.observer.ObserveRequest(backendName, operationMint, outcome, time.Since(start))

	if err != nil {
		return nil, err
	}
	return res.(*domain.MintOutcome), nil
}

func (c *Client) mint(ctx context.Context, req domain.MintRequest) (*domain.MintOutcome, error) {
	var envelope mintEnvelope
	status, err := c.postJSON(ctx, mintPath, req, &envelope)
	if err != nil {
		return nil, err
	}

	switch {
	case envelope.Response != nil && envelope.Response.TransactionDetails != nil:
		details := envelope.Response.TransactionDetails
		return &domain.MintOutcome{
			Kind: domain.MintSucceeded,
			Receipt: &domain.MintReceipt{
				TransactionID:   details.TransactionID.ptr(),
				TransactionHash: details.TransactionHash.ptr(),
				BlockExplorer:   details.BlockExplorer.ptr(),
			},
		}, nil
	case envelope.Error != nil:
		return &domain.MintOutcome{Kind: domain.MintRejected, Message: string(envelope.Error.Message)}, nil
	case status < 200 || status > 299:
		return nil, &httpclient.StatusError{Backend: backendName, StatusCode: status}
	default:
		return &domain.MintOutcome{Kind: domain.MintUnreachable}, nil
	}
}

// TransactionDetails posts the transaction id and returns the backend's message verbatim.
func (c *Client) TransactionDetails(ctx context.Context, transactionID string) (string, error) {
	start := time.Now()
	res, err := c.breaker.Execute(func() (interface{}, error) {
		var resp detailsResponse
		status, err := c.postJSON(ctx, detailsPath, detailsRequest{TransactionID: transactionID}, &resp)
		if err != nil {
			return nil, err
		}
		if resp.Message == nil {
			if status < 200 || status > 299 {
				return nil, &httpclient.StatusError{Backend: backendName, StatusCode: status}
			}
			return nil, errNoMessage
		}
		return string(*resp.Message), nil
	})
	c.observer.ObserveRequest(backendName, operationDetails, httpclient.Outcome(err), time.Since(start))

	if err != nil {
		return "", err
	}
	return res.(string), nil
}

// postJSON sends body and decodes the response into out. A body that is not JSON is an error
// regardless of the status code.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.JoinPath(path).String(), bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s request failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return resp.StatusCode, &httpclient.StatusError{Backend: backendName, StatusCode: resp.StatusCode}
		}
		return resp.StatusCode, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return resp.StatusCode, nil
}
