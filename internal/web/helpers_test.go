package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"radar/internal/api"
	"radar/internal/config"
	"radar/internal/models"
	"radar/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testCookieName = "radar_session"

// backendStub is a fake radar backend. It counts every request so tests can
// assert that certain flows never reach the network.
type backendStub struct {
	mu      sync.Mutex
	hits    int
	handler http.HandlerFunc
}

func (b *backendStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.hits++
	b.mu.Unlock()

	if b.handler == nil {
		http.NotFound(w, r)
		return
	}
	b.handler(w, r)
}

func (b *backendStub) requests() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits
}

// newTestApp wires a full Fiber app against the stub backend with an
// in-memory session store the test can seed and inspect.
func newTestApp(t *testing.T, backend *backendStub) (*fiber.App, *session.MemoryStore) {
	t.Helper()

	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	client, err := api.New(srv.URL, 5*time.Second)
	require.NoError(t, err)

	store := session.NewMemoryStore()
	cfg := &config.Config{
		Port:            "3000",
		APIBaseURL:      srv.URL,
		SessionStore:    "memory",
		SessionTTL:      time.Hour,
		CookieName:      testCookieName,
		Env:             "test",
		UpstreamTimeout: 5 * time.Second,
	}

	s := NewServerWithDeps(cfg, client, session.NewManager(client, store, cfg.SessionTTL))
	return s.App(), store
}

func apiClientFor(baseURL string) (*api.Client, error) {
	return api.New(baseURL, 2*time.Second)
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Port:            "3000",
		APIBaseURL:      baseURL,
		SessionStore:    "memory",
		SessionTTL:      time.Hour,
		CookieName:      testCookieName,
		Env:             "test",
		UpstreamTimeout: 2 * time.Second,
	}
}

// seedSession stores an authenticated session and returns its cookie value.
func seedSession(t *testing.T, store *session.MemoryStore, user *models.User) string {
	t.Helper()
	sid := uuid.NewString()
	require.NoError(t, store.Put(context.Background(), sid,
		&session.Record{Token: "test-token", User: user}, time.Hour))
	return sid
}

func withSession(req *http.Request, sid string) *http.Request {
	req.AddCookie(&http.Cookie{Name: testCookieName, Value: sid})
	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
