package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nexuspos/backend/internal/domain"
	"nexuspos/backend/internal/store"
)

var errTimeout = errors.New("dial tcp 10.0.0.1:5432: i/o timeout")

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := do(t, api.Handler(), http.MethodGet, "/healthz", nil)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := rec.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestPreflightReturns204(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := do(t, api.Handler(), http.MethodOptions, "/api/v1/checkout", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "DELETE") {
		t.Fatalf("expected DELETE in allowed methods, got %q", got)
	}
}

func TestSignInRateLimitReturns429(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	body := domain.SignInRequest{Email: "demo@nexuspos.local", Password: "wrong-pass"}

	for i := 0; i < 6; i++ {
		rec := do(t, h, http.MethodPost, "/api/v1/auth/signin", body)
		if i < 5 && rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, rec.Code)
		}
		if i == 5 && rec.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", rec.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api, _ := newTestAPI(t)
	veryLong := strings.Repeat("a", maxBodyBytes+1024)
	body := fmt.Sprintf(`{"email":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", rec.Code)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	api, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signin", strings.NewReader(`{"email":"a@b.test","password":"x","role":"admin"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestInternalErrorsAreHidden(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusInternalServerError, errors.New("pq: relation \"products\" does not exist"))
	if strings.Contains(rec.Body.String(), "relation") {
		t.Fatalf("expected internal detail to be hidden, got %s", rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrNoIdentity, http.StatusUnauthorized},
		{domain.ErrEmptyCart, http.StatusBadRequest},
		{fmt.Errorf("product p1: %w", store.ErrNotFound), http.StatusNotFound},
		{domain.Remote("list products", errTimeout), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestAttemptLimiterWindow(t *testing.T) {
	l := newAttemptLimiter(2, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("expected first two attempts to pass")
	}
	if l.Allow("a") {
		t.Fatalf("expected third attempt to be limited")
	}
	if !l.Allow("b") {
		t.Fatalf("expected other keys to be unaffected")
	}
	now = now.Add(61 * time.Second)
	if !l.Allow("a") {
		t.Fatalf("expected attempts to expire after the window")
	}
	l.Reset("a")
	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("expected reset to clear history")
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.20:51515"
	if got := clientKey(req); got != "192.168.1.20" {
		t.Fatalf("unexpected client key %q", got)
	}
}

func TestRequestsWithoutActiveSessionTokenAreRejected(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	token := signInDemo(t, h)

	for _, path := range []string{"/api/v1/auth/signout", "/api/v1/sync/flush"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set("Origin", "https://shop.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s without token: expected 401, got %d", path, rec.Code)
		}
	}
	if rec := doAuth(t, h, "not-a-token", http.MethodGet, "/api/v1/transactions", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", rec.Code)
	}
	if rec := doAuth(t, h, token, http.MethodGet, "/api/v1/transactions", nil); rec.Code != http.StatusOK {
		t.Fatalf("session token: expected 200, got %d", rec.Code)
	}

	fresh := signInDemo(t, h)
	if fresh == token {
		t.Fatalf("expected a new token for the new session")
	}
	if rec := doAuth(t, h, token, http.MethodGet, "/api/v1/transactions", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("replaced token: expected 401, got %d", rec.Code)
	}
}

func TestNonJSONBodiesRejected(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	token := signInDemo(t, h)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"payment_method":"cash","amount_paid_cents":100000}`))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415 for text/plain body, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/signin", strings.NewReader(`{"email":"a@b.test","password":"x"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected JSON with charset to reach the handler, got %d", rec.Code)
	}
}

func TestPreflightAllowsAuthorizationHeader(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := do(t, api.Handler(), http.MethodOptions, "/api/v1/cart", nil)
	if got := rec.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Authorization") {
		t.Fatalf("expected Authorization in allowed headers, got %q", got)
	}
}
