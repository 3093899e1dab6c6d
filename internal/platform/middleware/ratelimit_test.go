package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRateLimit_AllowsWithinBurst(t *testing.T) {
	e := echo.New()
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})
	handler := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	h := mw(handler)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/claims", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := h(c); err != nil {
			t.Fatalf("request %d: unexpected error %v", i, err)
		}
	}
}

func TestRateLimit_RejectsBeyondBurst(t *testing.T) {
	e := echo.New()
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1})
	handler := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	h := mw(handler)

	req := httptest.NewRequest(http.MethodGet, "/claims", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	if err := h(c); err != nil {
		t.Fatalf("first request: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/claims", nil)
	rec := httptest.NewRecorder()
	c = e.NewContext(req, rec)
	err := h(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimit_KeysByUser(t *testing.T) {
	e := echo.New()
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1})
	handler := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	h := mw(handler)

	for _, user := range []string{"user-a", "user-b"} {
		req := httptest.NewRequest(http.MethodGet, "/claims", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		c.Set("user_id", user)
		if err := h(c); err != nil {
			t.Fatalf("user %s: unexpected error %v", user, err)
		}
	}
}
