// Package generator is the HTTP client for the video generation backend.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/pscheid92/mathreel/internal/adapter/httpclient"
	"github.com/pscheid92/mathreel/internal/domain"
)

const (
	backendName       = "generator"
	generatePath      = "generate-video"
	maxResponseBytes  = 1 << 20
	defaultFilename   = "upload"
	defaultImageType  = "application/octet-stream"
	operationGenerate = "generate_video"
)

var errNoVideoURL = errors.New("generation response has no videoUrl")

type generateResponse struct {
	VideoURL string `json:"videoUrl"`
}

// Client posts generation requests as multipart forms.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	observer httpclient.Observer
}

var _ domain.VideoGenerator = (*Client)(nil)

func NewClient(baseURL string, httpClient *http.Client, observer httpclient.Observer) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid generator base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:  u,
		http:     httpClient,
		breaker:  httpclient.NewBreaker(backendName, observer),
		observer: httpclient.OrNop(observer),
	}, nil
}

// GenerateVideo sends the image and text as form fields "image" and "text" and returns the
// video location. A relative videoUrl is resolved against the base URL.
func (c *Client) GenerateVideo(ctx context.Context, payload domain.SubmissionPayload) (*domain.GenerationResult, error) {
	start := time.Now()
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.generate(ctx, payload)
	})
	c.observer.ObserveRequest(backendName, operationGenerate, httpclient.Outcome(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return res.(*domain.GenerationResult), nil
}

func (c *Client) generate(ctx context.Context, payload domain.SubmissionPayload) (*domain.GenerationResult, error) {
	body, contentType, err := encodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.JoinPath(generatePath).String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build generation request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, &httpclient.StatusError{Backend: backendName, StatusCode: resp.StatusCode}
	}

	var decoded generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode generation response: %w", err)
	}
	if decoded.VideoURL == "" {
		return nil, errNoVideoURL
	}

	videoURL, err := c.resolve(decoded.VideoURL)
	if err != nil {
		return nil, err
	}
	return &domain.GenerationResult{VideoURL: videoURL}, nil
}

func (c *Client) resolve(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid videoUrl %q: %w", raw, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	return c.baseURL.ResolveReference(u).String(), nil
}

func encodePayload(payload domain.SubmissionPayload) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if img := payload.Image; img != nil && len(img.Data) > 0 {
		filename := img.Filename
		if filename == "" {
			filename = defaultFilename
		}
		contentType := img.ContentType
		if contentType == "" {
			contentType = defaultImageType
		}

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
			"name":     "image",
			"filename": filename,
		}))
		header.Set("Content-Type", contentType)

		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", err
		}
	}

	if payload.Text != "" {
		if err := w.WriteField("text", payload.Text); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
