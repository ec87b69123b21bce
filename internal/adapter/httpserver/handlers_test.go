package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/mathreel/internal/app"
	"github.com/pscheid92/mathreel/internal/domain"
	apperrors "github.com/pscheid92/mathreel/internal/platform/errors"
	"github.com/pscheid92/mathreel/internal/session"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func formRequest(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

func asJSON(req *http.Request) *http.Request {
	req.Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.ErrorResponse {
	t.Helper()
	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandleIndex_GenerationView(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, callHandler(srv.handleIndex, c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "generate left=2")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Header().Get("Set-Cookie"), sessionName)
}

func TestHandleIndex_MintView(t *testing.T) {
	srv := newTestServer(t, &mockAppService{
		stateFn: func(ctx context.Context, id uuid.UUID) (*app.SessionState, error) {
			state := mintState(id)
			state.Mint.Error = "Insufficient credits"
			return state, nil
		},
	})
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, callHandler(srv.handleIndex, c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mint error=Insufficient credits")
}

func TestHandleIndex_ExhaustedQuotaShowsZeroLeft(t *testing.T) {
	srv := newTestServer(t, &mockAppService{
		stateFn: func(ctx context.Context, id uuid.UUID) (*app.SessionState, error) {
			state := generationState(id, -1)
			return state, nil
		},
	})
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, callHandler(srv.handleIndex, c))
	assert.Contains(t, rec.Body.String(), "generate left=0")
}

func TestHandleIndex_ReusesBrowserSession(t *testing.T) {
	var seen []uuid.UUID
	srv := newTestServer(t, &mockAppService{
		stateFn: func(ctx context.Context, id uuid.UUID) (*app.SessionState, error) {
			seen = append(seen, id)
			return generationState(id, 2), nil
		},
	})

	first := httptest.NewRecorder()
	require.NoError(t, callHandler(srv.handleIndex, srv.echo.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), first)))

	req := withCookies(httptest.NewRequest(http.MethodGet, "/", nil), first)
	second := httptest.NewRecorder()
	require.NoError(t, callHandler(srv.handleIndex, srv.echo.NewContext(req, second)))

	require.Len(t, seen, 2)
	assert.Equal(t, seen[0], seen[1])
	assert.Equal(t, seen[0], sessionIDFrom(t, srv, first))
}

func TestHandleIndex_TamperedCookieStartsNewSession(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionName, Value: "forged"})
	rec := httptest.NewRecorder()

	require.NoError(t, callHandler(srv.handleIndex, srv.echo.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, uuid.Nil, sessionIDFrom(t, srv, rec))
}

func TestHandleIndex_StoreFailure(t *testing.T) {
	srv := newTestServer(t, &mockAppService{
		stateFn: func(ctx context.Context, id uuid.UUID) (*app.SessionState, error) {
			return nil, errors.New("failed to load session: redis down")
		},
	})
	rec := httptest.NewRecorder()

	require.NoError(t, callHandler(srv.handleIndex, srv.echo.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, apperrors.TypeInternal, decodeError(t, rec).Type)
}

func TestHandleGenerate_JSON(t *testing.T) {
	var got domain.SubmissionPayload
	srv := newTestServer(t, &mockAppService{
		submitGenerationFn: func(ctx context.Context, id uuid.UUID, payload domain.SubmissionPayload) (*app.SessionState, error) {
			got = payload
			state := generationState(id, 1)
			state.Generation.VideoURL = "https://cdn.example.com/v/1.mp4"
			return state, nil
		},
	})
	req := asJSON(multipartRequest(t, &imagePart{filename: "eq.png", contentType: "image/png", data: pngHeader}, "solve it"))
	rec := httptest.NewRecorder()

	require.NoError(t, callHandler(srv.handleGenerate, srv.echo.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	var state app.SessionState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, 1, state.Generation.Quota)
	assert.Equal(t, "https://cdn.example.com/v/1.mp4", state.Generation.VideoURL)

	assert.Equal(t, "solve it", got.Text)
	require.NotNil(t, got.Image)
	assert.Equal(t, "eq.png", got.Image.Filename)
	assert.Equal(t, "image/png", got.Image.ContentType)
	assert.Equal(t, pngHeader, got.Image.Data)
}

func TestHandleGenerate_TextOnly(t *testing.T) {
	var got domain.SubmissionPayload
	srv := newTestServer(t, &mockAppService{
		submitGenerationFn: func(ctx context.Context, id uuid.UUID, payload domain.SubmissionPayload) (*app.SessionState, error) {
			got = payload
			return generationState(id, 1), nil
		},
	})
	req := asJSON(multipartRequest(t, nil, "integrate x^2"))
	rec := httptest.NewRecorder()

	require.NoError(t, callHandler(srv.handleGenerate, srv.echo.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, got.Image)
	assert.Equal(t, "integrate x^2", got.Text)
}

func TestHandleGenerate_SniffsGenericContentType(t *testing.T) {
	var got domain.SubmissionPayload
	srv := newTestServer(t, &mockAppService{
		submitGenerationFn: func(ctx context.Context, id uuid.UUID, payload domain.SubmissionPayload) (*app.SessionState, error) {
			got = payload
			return generationState(id, 1), nil
		},
	})
	req := asJSON(multipartRequest(t, &imagePart{filename: "eq", contentType: "application/octet-stream", data: pngHeader}, ""))
	rec := httptest.NewRecorder()

	require.NoError(t, callHandler(srv.handleGenerate, srv.echo.NewContext(req, rec)))

	require.NotNil(t, got.Image)
	assert.Equal(t, "image/png", got.Image.ContentType)
}

func TestHandleGenerate_FormRedirects(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})
	rec := httptest.NewRecorder()

	require.NoError(t, callHandler(srv.handleGenerate, srv.echo.NewContext(multipartRequest(t, nil, "x"), rec)))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get(echo.HeaderLocation))
}

func TestHandleGenerate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   apperrors.ErrorType
	}{
		{"empty payload", domain.ErrEmptyPayload, http.StatusBadRequest, apperrors.TypeValidation},
		{"not an image", domain.ErrNotAnImage, http.StatusBadRequest, apperrors.TypeValidation},
		{"in flight", domain.ErrRequestInFlight, http.StatusConflict, apperrors.TypeConflict},
		{"store failure", errors.New("failed to load session"), http.StatusInternalServerError, apperrors.TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &mockAppService{
				submitGenerationFn: func(ctx context.Context, id uuid.UUID, payload domain.SubmissionPayload) (*app.SessionState, error) {
					return nil, tt.err
				},
			})
			rec := httptest.NewRecorder()

			require.NoError(t, callHandler(srv.handleGenerate, srv.echo.NewContext(asJSON(multipartRequest(t, nil, "x")), rec)))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantType, decodeError(t, rec).Type)
		})
	}
}

func TestHandleGenerate_FormRejectionIsFlashed(t *testing.T) {
	srv := newTestServer(t, &mockAppService{
		submitGenerationFn: func(ctx context.Context, id uuid.UUID, payload domain.SubmissionPayload) (*app.SessionState, error) {
			return nil, domain.ErrEmptyPayload
		},
	})
	post := httptest.NewRecorder()
	require.NoError(t, callHandler(srv.handleGenerate, srv.echo.NewContext(multipartRequest(t, nil, ""), post)))
	require.Equal(t, http.StatusSeeOther, post.Code)

	get := httptest.NewRecorder()
	require.NoError(t, callHandler(srv.handleIndex, srv.echo.NewContext(withCookies(httptest.NewRequest(http.MethodGet, "/", nil), post), get)))
	assert.Contains(t, get.Body.String(), "error=Please upload an image or enter a prompt")

	again := httptest.NewRecorder()
	require.NoError(t, callHandler(srv.handleIndex, srv.echo.NewContext(withCookies(httptest.NewRequest(http.MethodGet, "/", nil), get), again)))
	assert.NotContains(t, again.Body.String(), "error=")
}

func TestHandleGenerate_ImageTooLarge(t *testing.T) {
	called := false
	srv := newTestServer(t, &mockAppService{
		submitGenerationFn: func(ctx context.Context, id uuid.UUID, payload domain.SubmissionPayload) (*app.SessionState, error) {
			called = true
			return generationState(id, 1), nil
		},
	}, withMaxUploadBytes(8))
	req := asJSON(multipartRequest(t, &imagePart{filename: "eq.png", contentType: "image/png", data: pngHeader}, ""))
	rec := httptest.NewRecorder()

	require.NoError(t, callHandler(srv.handleGenerate, srv.echo.NewContext(req, rec)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, apperrors.TypeTooLarge, decodeError(t, rec).Type)
	assert.False(t, called)
}

func TestHandleMint_JSON(t *testing.T) {
	var gotWallet string
	srv := newTestServer(t, &mockAppService{
		submitMintFn: func(ctx context.Context, id uuid.UUID, walletAddress string) (*app.SessionState, error) {
			gotWallet = walletAddress
			state := generationState(id, 5)
			txID := "tx-1"
			state.Mint.Receipt = &domain.MintReceipt{TransactionID: &txID}
			return state, nil
		},
	})
	req := asJSON(formRequest("/mint", url.Values{"wallet_address": {"0xabc"}}))
	rec := httptest.NewRecorder()

	require.NoError(t, callHandler(srv.handleMint, srv.echo.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0xabc", gotWallet)
	var state app.SessionState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, 5, state.Generation.Quota)
	require.NotNil(t, state.Mint.Receipt)
	assert.Equal(t, "tx-1", *state.Mint.Receipt.TransactionID)
}

func TestHandleMint_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"empty wallet", domain.ErrEmptyWallet, http.StatusBadRequest},
		{"quota remaining", session.ErrMintUnavailable, http.StatusConflict},
		{"in flight", domain.ErrRequestInFlight, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &mockAppService{
				submitMintFn: func(ctx context.Context, id uuid.UUID, walletAddress string) (*app.SessionState, error) {
					return nil, tt.err
				},
			})
			rec := httptest.NewRecorder()
			req := asJSON(formRequest("/mint", url.Values{"wallet_address": {""}}))

			require.NoError(t, callHandler(srv.handleMint, srv.echo.NewContext(req, rec)))

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestHandleTransactionDetails_JSON(t *testing.T) {
	srv := newTestServer(t, &mockAppService{
		transactionDetailsFn: func(ctx context.Context, id uuid.UUID, transactionID string) (string, error) {
			assert.Equal(t, "tx-1", transactionID)
			return "Transaction confirmed in block 42", nil
		},
	})
	req := asJSON(formRequest("/mint/transaction-details", url.Values{"transaction_id": {"tx-1"}}))
	rec := httptest.NewRecorder()

	require.NoError(t, callHandler(srv.handleTransactionDetails, srv.echo.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Transaction confirmed in block 42"}`, rec.Body.String())
}

func TestHandleTransactionDetails_FormFlash(t *testing.T) {
	srv := newTestServer(t, &mockAppService{
		transactionDetailsFn: func(ctx context.Context, id uuid.UUID, transactionID string) (string, error) {
			return domain.TransactionLookupFailure, nil
		},
	})
	post := httptest.NewRecorder()
	require.NoError(t, callHandler(srv.handleTransactionDetails, srv.echo.NewContext(formRequest("/mint/transaction-details", url.Values{"transaction_id": {"tx-1"}}), post)))
	require.Equal(t, http.StatusSeeOther, post.Code)

	get := httptest.NewRecorder()
	require.NoError(t, callHandler(srv.handleIndex, srv.echo.NewContext(withCookies(httptest.NewRequest(http.MethodGet, "/", nil), post), get)))
	assert.Contains(t, get.Body.String(), "details=Failed to fetch transaction details")
}

func TestHandleTransactionDetails_NothingToLookUp(t *testing.T) {
	srv := newTestServer(t, &mockAppService{
		transactionDetailsFn: func(ctx context.Context, id uuid.UUID, transactionID string) (string, error) {
			return "", domain.ErrEmptyTransaction
		},
	})
	rec := httptest.NewRecorder()

	require.NoError(t, callHandler(srv.handleTransactionDetails, srv.echo.NewContext(asJSON(formRequest("/mint/transaction-details", url.Values{})), rec)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSessionState(t *testing.T) {
	srv := newTestServer(t, &mockAppService{
		stateFn: func(ctx context.Context, id uuid.UUID) (*app.SessionState, error) {
			return mintState(id), nil
		},
	})
	rec := httptest.NewRecorder()

	require.NoError(t, callHandler(srv.handleSessionState, srv.echo.NewContext(httptest.NewRequest(http.MethodGet, "/api/session", nil), rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	var state app.SessionState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, domain.ViewMint, state.View)
	assert.Equal(t, -1, state.Generation.Quota)
}

func TestRoutes_SubmitRequiresCSRFToken(t *testing.T) {
	called := false
	srv := newTestServer(t, &mockAppService{
		submitGenerationFn: func(ctx context.Context, id uuid.UUID, payload domain.SubmissionPayload) (*app.SessionState, error) {
			called = true
			return generationState(id, 1), nil
		},
	})
	rec := httptest.NewRecorder()

	srv.echo.ServeHTTP(rec, multipartRequest(t, nil, "x"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}

func TestRoutes_SubmitWithCSRFToken(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	page := httptest.NewRecorder()
	srv.echo.ServeHTTP(page, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, page.Code)

	var token string
	for _, cookie := range page.Result().Cookies() {
		if cookie.Name == "csrf_token" {
			token = cookie.Value
		}
	}
	require.NotEmpty(t, token)

	req := withCookies(asJSON(formRequest("/mint", url.Values{"wallet_address": {"0xabc"}})), page)
	req.Header.Set("X-CSRF-Token", token)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoutes_RequestID(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Len(t, rec.Header().Get("X-Request-ID"), 8)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "upstream-id-42")
	rec = httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	assert.Equal(t, "upstream-id-42", rec.Header().Get("X-Request-ID"))
}

func TestNewServer_RendersEmbeddedTemplates(t *testing.T) {
	txID := "tx-9"
	explorer := "https://explorer.example.com/tx/9"
	state := mintState(uuid.New())
	state.Mint.Receipt = &domain.MintReceipt{TransactionID: &txID, BlockExplorer: &explorer}

	srv, err := NewServer(testConfig(), &mockAppService{
		stateFn: func(ctx context.Context, id uuid.UUID) (*app.SessionState, error) {
			return state, nil
		},
	}, nil, nil, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="wallet_address"`)
	assert.Contains(t, rec.Body.String(), "tx-9")
	assert.Contains(t, rec.Body.String(), explorer)
}
