package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-record-locks/app/service"
)

func serveWith(mw []echo.MiddlewareFunc, req *http.Request) (*httptest.ResponseRecorder, service.Identity) {
	e := echo.New()
	var seen service.Identity
	e.GET("/", func(c echo.Context) error {
		seen, _ = service.IdentityFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	}, mw...)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, seen
}

func TestParseStaticTokens(t *testing.T) {
	t.Parallel()

	tokens, err := ParseStaticTokens("t1=alice, t2=bob:admin,")
	if err != nil {
		t.Fatalf("ParseStaticTokens: %v", err)
	}
	if tokens["t1"].HolderID != "alice" || tokens["t1"].Privileged {
		t.Fatalf("unexpected t1 identity %+v", tokens["t1"])
	}
	if tokens["t2"].HolderID != "bob" || !tokens["t2"].Privileged {
		t.Fatalf("unexpected t2 identity %+v", tokens["t2"])
	}

	if _, err := ParseStaticTokens("broken"); err == nil {
		t.Fatalf("expected error for entry without holder")
	}
}

func TestIdentityMiddleware(t *testing.T) {
	t.Parallel()

	mw := []echo.MiddlewareFunc{Identity(StaticTokens{"t1": {HolderID: "alice"}})}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if rec, _ := serveWith(mw, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer nope")
	if rec, _ := serveWith(mw, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "bearer t1")
	rec, identity := serveWith(mw, req)
	if rec.Code != http.StatusOK || identity.HolderID != "alice" {
		t.Fatalf("expected alice, got %d %+v", rec.Code, identity)
	}
}

func TestGatewayIdentityMiddleware(t *testing.T) {
	t.Parallel()

	mw := []echo.MiddlewareFunc{GatewayIdentity()}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if rec, _ := serveWith(mw, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "carol")
	req.Header.Set(HeaderUserRole, "Admin")
	rec, identity := serveWith(mw, req)
	if rec.Code != http.StatusOK || identity.HolderID != "carol" || !identity.Privileged {
		t.Fatalf("expected privileged carol, got %d %+v", rec.Code, identity)
	}
}

func TestRateLimitPerHolder(t *testing.T) {
	t.Parallel()

	limiter := NewHolderLimiter(0.001, 2)
	mw := []echo.MiddlewareFunc{GatewayIdentity(), RateLimit(limiter)}

	send := func(holder string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderUserID, holder)
		rec, _ := serveWith(mw, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("alice"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := send("alice"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", code)
	}
	if code := send("bob"); code != http.StatusOK {
		t.Fatalf("other holders must have their own budget, got %d", code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	t.Parallel()

	limiter := NewHolderLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !limiter.Allow("alice") {
			t.Fatalf("disabled limiter rejected request %d", i)
		}
	}
}

func TestHolderLimiterEvictsIdleHolders(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	limiter := NewHolderLimiter(1, 1)
	limiter.now = func() time.Time { return now }

	if !limiter.Allow("alice") {
		t.Fatalf("first request must pass")
	}
	if limiter.Allow("alice") {
		t.Fatalf("second request must exceed the burst")
	}

	now = now.Add(limiterIdleAfter + time.Second)
	if !limiter.Allow("bob") {
		t.Fatalf("bob must pass")
	}
	if _, ok := limiter.limiters["alice"]; ok || len(limiter.limiters) != 1 {
		t.Fatalf("expected only bob to be tracked, got %d holders", len(limiter.limiters))
	}
}

func TestHolderLimiterKeepsDrainedHolders(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	limiter := NewHolderLimiter(0.001, 2)
	limiter.now = func() time.Time { return now }

	limiter.Allow("alice")
	limiter.Allow("alice")

	now = now.Add(limiterIdleAfter + time.Second)
	limiter.Allow("bob")
	if _, ok := limiter.limiters["alice"]; !ok {
		t.Fatalf("a bucket that has not refilled must not be evicted")
	}
	if limiter.Allow("alice") {
		t.Fatalf("alice must still be over budget")
	}
}
