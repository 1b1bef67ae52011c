package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/rampart/internal/clock"
	"github.com/BradenHooton/rampart/internal/inspector"
	"github.com/BradenHooton/rampart/internal/lockout"
	"github.com/BradenHooton/rampart/internal/policy"
	"github.com/BradenHooton/rampart/internal/store"
	pkghttp "github.com/BradenHooton/rampart/pkg/http"
)

func newTestEngine(t *testing.T) *policy.Engine {
	t.Helper()
	s := store.NewMemoryStore(clock.NewFake(time.Unix(1_700_000_000, 0)))
	deps := policy.Deps{Counters: s, Locks: lockout.NewManager(s, 0)}
	rules := inspector.DefaultRuleSets()

	reg, err := policy.NewRegistry(
		policy.NewWAF(policy.WAFConfig{Rules: rules.WAF}, deps),
		policy.NewRate(policy.RateConfig{
			Login:  policy.Limits{Threshold: 3, Window: time.Minute, LockDuration: 5 * time.Minute},
			Routes: policy.DefaultRoutes(),
		}, deps),
		policy.NewNotFound(policy.NotFoundConfig{
			Limits:         policy.Limits{Threshold: 3, Window: 2 * time.Minute, LockDuration: 30 * time.Minute},
			SampleEvery:    5,
			IgnorePrefixes: []string{"/favicon.ico"},
			Rules:          rules.NotFound,
		}, deps),
	)
	require.NoError(t, err)
	return policy.NewEngine(reg, nil)
}

// guarded wires Client and Guard in front of a mux that 404s everything
// except /ok and /auth/login
func guarded(engine *policy.Engine, privileged func(*http.Request) bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	})
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/", http.NotFound)

	return Client(pkghttp.NewIPConfig(nil), privileged)(Guard(engine, GuardConfig{})(mux))
}

func do(h http.Handler, method, target, ip, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	req.RemoteAddr = ip + ":40000"
	if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGuard_WAFBlocksAndHandlerKeepsBody(t *testing.T) {
	h := guarded(newTestEngine(t), nil)

	rec := do(h, http.MethodGet, "/ok?q=%3Cscript%3Ealert(1)", "203.0.113.9", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "blocked")

	rec = do(h, http.MethodPost, "/ok", "203.0.113.9", "comment=hello")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "comment=hello", rec.Body.String())

	rec = do(h, http.MethodPost, "/ok", "203.0.113.9", "q=1 union select password from users")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(h, http.MethodPost, "/ok", "203.0.113.9", "id=1+union+select+pass")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(h, http.MethodGet, "/search?id=1+union+select+pass", "203.0.113.9", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGuard_RateLimitsLogin(t *testing.T) {
	h := guarded(newTestEngine(t), nil)

	for i := 0; i < 3; i++ {
		rec := do(h, http.MethodPost, "/auth/login", "203.0.113.9", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := do(h, http.MethodPost, "/auth/login", "203.0.113.9", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "300", rec.Header().Get("Retry-After"))

	rec = do(h, http.MethodPost, "/auth/login", "198.51.100.7", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuard_NotFoundLockout(t *testing.T) {
	h := guarded(newTestEngine(t), nil)

	for i := 0; i < 3; i++ {
		rec := do(h, http.MethodGet, "/missing", "203.0.113.9", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}
	// the fourth miss locks; its own response was already sent
	rec := do(h, http.MethodGet, "/missing", "203.0.113.9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, http.MethodGet, "/ok", "203.0.113.9", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(h, http.MethodGet, "/ok", "198.51.100.7", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuard_IgnoredPathsAreNotCounted(t *testing.T) {
	h := guarded(newTestEngine(t), nil)

	for i := 0; i < 10; i++ {
		do(h, http.MethodGet, "/favicon.ico", "203.0.113.9", "")
	}
	rec := do(h, http.MethodGet, "/ok", "203.0.113.9", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuard_PrivilegedBypass(t *testing.T) {
	admin := func(r *http.Request) bool { return r.Header.Get("X-Test-Admin") == "1" }
	h := guarded(newTestEngine(t), admin)

	req := httptest.NewRequest(http.MethodGet, "/ok?q=%3Cscript%3E", nil)
	req.RemoteAddr = "203.0.113.9:40000"
	req.Header.Set("X-Test-Admin", "1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
