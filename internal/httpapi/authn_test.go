package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func doRequest(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return body
}

func TestAuthMissingToken(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/me/permissions", nil)
	rec := doRequest(t, env.api.Handler(), req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "authentication required" {
		t.Fatalf("error = %q", got)
	}
}

func TestAuthGarbageToken(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/me/permissions", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec := doRequest(t, env.api.Handler(), req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "invalid or expired token" {
		t.Fatalf("error = %q", got)
	}
}

func TestAuthRevokedToken(t *testing.T) {
	env := newTestEnv(t)
	token := env.issue(t, "u-alice", "alice@station.example", "t-1")
	if err := env.tokens.RevokeAllForUser(context.Background(), "alice@station.example", env.tokens.TokenTTL()); err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/me/permissions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := doRequest(t, env.api.Handler(), req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "session expired, log in again" {
		t.Fatalf("error = %q", got)
	}
}

func TestAuthCookieBeatsHeader(t *testing.T) {
	env := newTestEnv(t)
	good := env.issue(t, "u-alice", "alice@station.example", "t-1")

	req := httptest.NewRequest(http.MethodGet, "/v1/me/permissions", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: good})
	req.Header.Set("Authorization", "Bearer garbage")
	rec := doRequest(t, env.api.Handler(), req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestAuthSuspendedTenant(t *testing.T) {
	env := newTestEnv(t)
	token := env.issue(t, "u-alice", "alice@station.example", "t-suspended")

	req := httptest.NewRequest(http.MethodGet, "/v1/me/permissions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := doRequest(t, env.api.Handler(), req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "tenant suspended" {
		t.Fatalf("error = %q", got)
	}
}

func TestAuthUnreachableTenant(t *testing.T) {
	env := newTestEnv(t)
	token := env.issue(t, "u-alice", "alice@station.example", "t-down")

	req := httptest.NewRequest(http.MethodGet, "/v1/me/permissions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := doRequest(t, env.api.Handler(), req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "tenant unavailable" {
		t.Fatalf("error = %q", got)
	}
}

func TestPublicPathsSkipAuth(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/healthz", "/v1/info"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := doRequest(t, env.api.Handler(), req)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestRequestIDEchoed(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := doRequest(t, env.api.Handler(), req)

	if got := rec.Header().Get("X-Request-Id"); got != "req-42" {
		t.Fatalf("X-Request-Id = %q, want req-42", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = doRequest(t, env.api.Handler(), req)
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected a generated X-Request-Id")
	}
}
