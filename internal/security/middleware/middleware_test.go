package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MdWarishh/visa-management-backend/internal/domain"
	"github.com/MdWarishh/visa-management-backend/internal/security"
	"github.com/MdWarishh/visa-management-backend/internal/security/audit"
	"github.com/MdWarishh/visa-management-backend/internal/security/ratelimit"
)

type fakeSessions map[string]domain.PrincipalSummary

func (f fakeSessions) VerifySession(_ context.Context, token string) (domain.PrincipalSummary, error) {
	switch token {
	case "expired":
		return domain.PrincipalSummary{}, domain.ErrSessionExpired
	case "disabled":
		return domain.PrincipalSummary{}, domain.ErrDisabled
	}
	p, ok := f[token]
	if !ok {
		return domain.PrincipalSummary{}, domain.ErrSessionInvalid
	}
	return p, nil
}

type fakeTenants map[string]bool

func (f fakeTenants) IsTenant(_ context.Context, id string) (bool, error) { return f[id], nil }

func newAuthHandler(t *testing.T, got *domain.Caller) http.Handler {
	t.Helper()
	sessions := fakeSessions{
		"owner": {ID: "o1", Tier: domain.TierOwner, Email: "owner@x.com"},
		"admin": {ID: "a1", Tier: domain.TierAdmin, Email: "admin@x.com"},
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := CallerFromContext(r.Context())
		if !ok {
			t.Fatalf("caller missing from context")
		}
		*got = c
		w.WriteHeader(http.StatusOK)
	})
	return Authenticate(sessions, fakeTenants{"a1": true}, security.NewTenancyResolver(nil), nil)(next)
}

func TestAuthenticateRejectsBadSessions(t *testing.T) {
	var caller domain.Caller
	h := newAuthHandler(t, &caller)
	for _, header := range []string{"", "Token abc", "Bearer nope", "Bearer expired", "Bearer disabled"} {
		r := httptest.NewRequest(http.MethodGet, "/api/candidates", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%q: expected 401, got %d", header, w.Code)
		}
	}
}

func TestAuthenticateResolvesScope(t *testing.T) {
	var caller domain.Caller
	h := newAuthHandler(t, &caller)

	r := httptest.NewRequest(http.MethodGet, "/api/candidates", nil)
	r.Header.Set("Authorization", "Bearer owner")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK || caller.Scope.Kind != domain.ScopeAll {
		t.Fatalf("owner without target should see all, got %d %+v", w.Code, caller.Scope)
	}

	r.Header.Set(TenantHeader, "a1")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if caller.Scope.Kind != domain.ScopeTenant || caller.Scope.TenantID != "a1" {
		t.Fatalf("owner with target should be narrowed, got %+v", caller.Scope)
	}

	r.Header.Set(TenantHeader, "ghost")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown tenant should be rejected, got %d", w.Code)
	}

	// admins cannot widen or move their scope
	r = httptest.NewRequest(http.MethodGet, "/api/candidates", nil)
	r.Header.Set("Authorization", "Bearer admin")
	r.Header.Set(TenantHeader, "ghost")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK || caller.Scope.TenantID != "a1" {
		t.Fatalf("admin scope should ignore the header, got %d %+v", w.Code, caller.Scope)
	}
}

func TestRateLimitReturns429(t *testing.T) {
	limiter := ratelimit.NewLimiter(1, 1)
	defer limiter.Stop()
	h := RateLimit(limiter, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 2)
	for i := range codes {
		r := httptest.NewRequest(http.MethodPost, "/api/public/track", nil)
		r.RemoteAddr = "198.51.100.7:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		codes[i] = w.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
}

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	h := RequestID(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = audit.RequestIDFromContext(r.Context())
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if seen == "" || w.Header().Get("X-Request-ID") != seen {
		t.Fatalf("request id not propagated: %q vs %q", seen, w.Header().Get("X-Request-ID"))
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"http://localhost:5173"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("preflight should not reach the handler")
	}))
	r := httptest.NewRequest(http.MethodOptions, "/api/candidates", nil)
	r.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("unexpected preflight response %d %v", w.Code, w.Header())
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), TenantHeader) {
		t.Fatalf("tenant header should be allowed")
	}
}

func TestRequireJSON(t *testing.T) {
	h := RequireJSON(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	r := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("a=b"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", w.Code)
	}

	r = httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{}"))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected json accepted, got %d", w.Code)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
