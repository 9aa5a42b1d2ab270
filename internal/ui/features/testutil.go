// Package features provides shared test utilities for UI feature tests.
package features

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/querypad/internal/query"
	"github.com/leapstack-labs/querypad/internal/session"
	"github.com/leapstack-labs/querypad/internal/testutil"
	"github.com/leapstack-labs/querypad/internal/ui/browser"
	"github.com/leapstack-labs/querypad/internal/ui/features/common"
	"github.com/leapstack-labs/querypad/internal/ui/notifier"
)

// TinyPNG is a 1x1 transparent PNG, base64 encoded.
const TinyPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

// FakeStructured answers SQL with canned rows. A query containing "fail"
// produces an error result; "LIMIT n" controls the row count (default 3).
type FakeStructured struct{}

// Execute implements query.StructuredRunner.
func (FakeStructured) Execute(_ context.Context, q string, ec query.ExecutionContext) *query.Result {
	if strings.Contains(q, "fail") {
		return query.Failure(query.ModeStructured, "Parser Error: syntax error at or near \"fail\"", time.Millisecond)
	}
	n := 3
	if i := strings.Index(strings.ToUpper(q), "LIMIT "); i >= 0 {
		_, _ = fmt.Sscanf(q[i+len("LIMIT "):], "%d", &n)
	}
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{"id": int64(i + 1), "name": fmt.Sprintf("row-%d", i+1), "file": filepath.Base(ec.FilePath)}
	}
	return query.Structured([]string{"id", "name", "file"}, rows, time.Millisecond)
}

// FakeScript echoes code to stdout. The code "figure" returns an image and
// "save(x)" calls save with x.
type FakeScript struct{}

// Execute implements query.ScriptRunner.
func (FakeScript) Execute(_ context.Context, code string, _ query.ExecutionContext, save query.SaveFunc) *query.Result {
	switch {
	case code == "figure":
		return query.Scripted("", query.Return{Kind: query.ReturnImage, Image: TinyPNG}, time.Millisecond)
	case save != nil && strings.HasPrefix(code, "save(") && strings.HasSuffix(code, ")"):
		save(strings.TrimSuffix(strings.TrimPrefix(code, "save("), ")"))
		return query.Scripted("", query.Return{}, time.Millisecond)
	}
	return query.Scripted(code+"\n", query.Return{}, time.Millisecond)
}

// TestFixture holds all dependencies needed for UI handler tests.
type TestFixture struct {
	Deps         common.Deps
	Registry     *browser.Registry
	Notifier     *notifier.Notifier
	SessionStore *sessions.CookieStore

	// Saved records save() write-backs by path.
	Saved map[string]string
	// Opened records files reported through Deps.Opened.
	Opened []string

	t *testing.T
}

// SetupTestFixture creates a registry of fake-backed sessions, a notifier
// and a cookie store.
func SetupTestFixture(t *testing.T) *TestFixture {
	t.Helper()

	logger := testutil.NewTestLogger(t)
	fx := &TestFixture{
		Notifier:     notifier.New(),
		SessionStore: NewTestSessionStore(),
		Saved:        make(map[string]string),
		t:            t,
	}
	fx.Registry = browser.NewRegistry(fx.SessionStore, func() *session.Session {
		return session.New(session.Config{
			Structured: FakeStructured{},
			Scripting:  FakeScript{},
			Logger:     logger,
			OnSave: func(path, content string) error {
				fx.Saved[path] = content
				return nil
			},
		})
	}, logger)
	fx.Deps = common.Deps{
		Sessions: fx.Registry,
		Notifier: fx.Notifier,
		Logger:   logger,
		IsDev:    true,
		Opened: func(path string) {
			fx.Opened = append(fx.Opened, path)
		},
	}
	return fx
}

// Browser starts a browser session and returns its cookie and session.
func (fx *TestFixture) Browser() (*http.Cookie, *session.Session) {
	fx.t.Helper()

	rec := httptest.NewRecorder()
	_, s := fx.Registry.Resolve(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	require.Len(fx.t, cookies, 1)
	return cookies[0], s
}

// Request builds a request carrying cookie. A non-empty body is sent as
// JSON, which is how datastar posts signals.
func (fx *TestFixture) Request(method, target, body string, cookie *http.Cookie) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

// RequestWithPathParam wraps a request with chi URL params.
func RequestWithPathParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// RequestWithTimeout wraps a request with a context timeout.
func RequestWithTimeout(r *http.Request, timeout time.Duration) *http.Request {
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	_ = cancel // released when the timeout fires
	return r.WithContext(ctx)
}

// NewTestSessionStore creates a session store for testing.
func NewTestSessionStore() *sessions.CookieStore {
	return sessions.NewCookieStore([]byte("test-secret-key-32-bytes-long!!"))
}
