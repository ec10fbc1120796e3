package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/marcogenualdo/edge-bridge/internal/auth"
	"github.com/marcogenualdo/edge-bridge/internal/cache"
	"github.com/marcogenualdo/edge-bridge/internal/config"
	"github.com/marcogenualdo/edge-bridge/internal/proxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv       *Server
	sessions  *auth.SessionStore
	syncCalls atomic.Int32
	authz     atomic.Value
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{}

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.authz.Store(r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/users/sync":
			env.syncCalls.Add(1)
			w.WriteHeader(http.StatusOK)
		case "/api/health":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"ok": true}`))
		case "/events":
			w.Header().Set("Content-Type", "text/event-stream")
			for i := 1; i <= 3; i++ {
				fmt.Fprintf(w, "data: %d\n\n", i)
				w.(http.Flusher).Flush()
			}
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(backend.Close)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Backend.URL = backend.URL
	cfg.Bridge.AllowedHosts = []string{"app.example.com"}
	require.NoError(t, cfg.Validate())

	mc := cache.NewMemoryCache()
	t.Cleanup(func() { mc.Close() })

	env.srv, err = New(*cfg, mc, map[string]auth.Provider{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	env.sessions = auth.NewSessionStore(mc, cfg.Server.SessionTTL)
	return env
}

func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRoutes_ProxyHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/backend/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"ok": true}`, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRoutes_Status(t *testing.T) {
	env := newTestEnv(t)
	ref, err := env.sessions.Create(context.Background(), &auth.Session{Identity: auth.Identity{UserID: "user-42"}})
	require.NoError(t, err)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/backend/_status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status proxy.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, proxy.StatusResponse{BackendConfigured: true}, status)

	req := httptest.NewRequest(http.MethodGet, "/api/backend/_status", nil)
	req.AddCookie(&http.Cookie{Name: "bridge_session", Value: ref})
	rec = env.do(req)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.SessionDetected)
	assert.True(t, status.IdentityResolved)
	assert.NotContains(t, rec.Body.String(), "dev-insecure")
}

func TestRoutes_BridgeThenProxy(t *testing.T) {
	env := newTestEnv(t)
	ref, err := env.sessions.Create(context.Background(), &auth.Session{Identity: auth.Identity{UserID: "user-42"}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/bridge?return_to="+url.QueryEscape("https://app.example.com/home"), nil)
	req.AddCookie(&http.Cookie{Name: "bridge_session", Value: ref})
	rec := env.do(req)
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", loc.Host)

	rec = env.do(httptest.NewRequest(http.MethodGet, loc.RequestURI(), nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, ref, cookies[0].Value)

	req = httptest.NewRequest(http.MethodGet, "/api/backend/api/health", nil)
	req.AddCookie(cookies[0])
	rec = env.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), env.syncCalls.Load())
	assert.True(t, strings.HasPrefix(env.authz.Load().(string), "Bearer "))
}

func TestRoutes_StreamingThroughMiddleware(t *testing.T) {
	env := newTestEnv(t)
	edge := httptest.NewServer(env.srv.Handler())
	defer edge.Close()

	resp, err := edge.Client().Get(edge.URL + "/api/backend/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	reader := bufio.NewReader(resp.Body)
	for i := 1; i <= 3; i++ {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("data: %d\n", i), line)
		_, err = reader.ReadString('\n')
		require.NoError(t, err)
	}
}

func TestRoutes_EstablishSessionAndErrors(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/session", strings.NewReader(`{"session":"abc123"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "abc123")

	rec = env.do(httptest.NewRequest(http.MethodGet, "/auth/session", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/auth/error?error=no_session", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/nothing-here", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
