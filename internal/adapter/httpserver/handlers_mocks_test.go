package httpserver

import (
	"bytes"
	"context"
	"html/template"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/mathreel/internal/app"
	"github.com/pscheid92/mathreel/internal/domain"
	"github.com/pscheid92/mathreel/internal/platform/config"
)

// --- Mock implementations ---

type mockAppService struct {
	stateFn              func(ctx context.Context, id uuid.UUID) (*app.SessionState, error)
	submitGenerationFn   func(ctx context.Context, id uuid.UUID, payload domain.SubmissionPayload) (*app.SessionState, error)
	submitMintFn         func(ctx context.Context, id uuid.UUID, walletAddress string) (*app.SessionState, error)
	transactionDetailsFn func(ctx context.Context, id uuid.UUID, transactionID string) (string, error)
}

func generationState(id uuid.UUID, quota int) *app.SessionState {
	return &app.SessionState{
		ID:         id,
		View:       domain.ViewGeneration,
		Generation: domain.GenerationState{Quota: quota, Phase: domain.PhaseIdle},
		Mint:       domain.MintState{Phase: domain.PhaseIdle},
	}
}

func mintState(id uuid.UUID) *app.SessionState {
	return &app.SessionState{
		ID:         id,
		View:       domain.ViewMint,
		Generation: domain.GenerationState{Quota: -1, Phase: domain.PhaseExhausted, Status: domain.StatusLimitReached},
		Mint:       domain.MintState{Phase: domain.PhaseIdle},
	}
}

func (m *mockAppService) State(ctx context.Context, id uuid.UUID) (*app.SessionState, error) {
	if m.stateFn != nil {
		return m.stateFn(ctx, id)
	}
	return generationState(id, 2), nil
}

func (m *mockAppService) SubmitGeneration(ctx context.Context, id uuid.UUID, payload domain.SubmissionPayload) (*app.SessionState, error) {
	if m.submitGenerationFn != nil {
		return m.submitGenerationFn(ctx, id, payload)
	}
	return generationState(id, 1), nil
}

func (m *mockAppService) SubmitMint(ctx context.Context, id uuid.UUID, walletAddress string) (*app.SessionState, error) {
	if m.submitMintFn != nil {
		return m.submitMintFn(ctx, id, walletAddress)
	}
	return generationState(id, 5), nil
}

func (m *mockAppService) CheckTransactionDetails(ctx context.Context, id uuid.UUID, transactionID string) (string, error) {
	if m.transactionDetailsFn != nil {
		return m.transactionDetailsFn(ctx, id, transactionID)
	}
	return "confirmed", nil
}

// --- Test helpers ---

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:             "development",
		Port:               "0",
		SessionSecret:      "test-secret-key-32-bytes-long!!!",
		SessionMaxAge:      time.Hour,
		MaxUploadBytes:     1 << 20,
		RateLimitPerSecond: 1000,
		RateLimitBurst:     1000,
	}
}

func newTestServer(t *testing.T, app appService, opts ...func(*Server)) *Server {
	t.Helper()

	tmpl := template.Must(template.New("generate.html").Parse(
		`generate left={{.GenerationsLeft}} status={{.State.Generation.Status}} video={{.State.Generation.VideoURL}}` +
			`{{range .Errors}} error={{.}}{{end}}{{range .TransactionDetails}} details={{.}}{{end}}`))
	template.Must(tmpl.New("mint.html").Parse(
		`mint error={{.State.Mint.Error}}{{range .Errors}} error={{.}}{{end}}{{range .TransactionDetails}} details={{.}}{{end}}`))

	store := sessions.NewCookieStore([]byte("test-secret-key-32-bytes-long!!!"))
	store.Options = &sessions.Options{
		Path:   "/",
		MaxAge: 3600,
	}

	srv := &Server{
		echo:         echo.New(),
		config:       testConfig(),
		app:          app,
		sessionStore: store,
		templates:    tmpl,
		startTime:    time.Now(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()

	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withMaxUploadBytes(n int64) func(*Server) {
	return func(s *Server) {
		s.config.MaxUploadBytes = n
	}
}

// callHandler wraps a handler with error middleware, matching production behavior
func callHandler(handler echo.HandlerFunc, c echo.Context) error {
	return ErrorHandlingMiddleware(nil)(handler)(c)
}

type imagePart struct {
	filename    string
	contentType string
	data        []byte
}

// multipartRequest builds a POST /generate request. A nil image omits the file part.
func multipartRequest(t *testing.T, image *imagePart, text string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if image != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="image"; filename="`+image.filename+`"`)
		if image.contentType != "" {
			header.Set("Content-Type", image.contentType)
		}
		part, err := w.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(image.data)
		require.NoError(t, err)
	}
	if text != "" {
		require.NoError(t, w.WriteField("text", text))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/generate", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

// withCookies copies the cookies set on rec into req. The last cookie of a name wins, as in
// a browser.
func withCookies(req *http.Request, rec *httptest.ResponseRecorder) *http.Request {
	latest := make(map[string]*http.Cookie)
	var order []string
	for _, cookie := range rec.Result().Cookies() {
		if _, seen := latest[cookie.Name]; !seen {
			order = append(order, cookie.Name)
		}
		latest[cookie.Name] = cookie
	}
	for _, name := range order {
		req.AddCookie(latest[name])
	}
	return req
}

// sessionIDFrom reads the browser session id set on rec.
func sessionIDFrom(t *testing.T, srv *Server, rec *httptest.ResponseRecorder) uuid.UUID {
	t.Helper()
	req := withCookies(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	sess, err := srv.sessionStore.Get(req, sessionName)
	require.NoError(t, err)
	id, err := uuid.Parse(sess.Values[sessionKeyID].(string))
	require.NoError(t, err)
	return id
}
