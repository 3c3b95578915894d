package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiterWithConfig(10, 5) // 10 per minute, burst of 5
	defer rl.Stop()

	// First 5 requests should be allowed (burst)
	for i := 0; i < 5; i++ {
		if !rl.Allow(1) {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	// 6th request should be rate limited (exceeded burst)
	if rl.Allow(1) {
		t.Error("Request 6 should be rate limited")
	}
}

func TestRateLimiter_DifferentWorkspaces(t *testing.T) {
	rl := NewRateLimiterWithConfig(10, 3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow(1) {
			t.Errorf("Workspace 1 request %d should be allowed", i+1)
		}
	}

	if rl.Allow(1) {
		t.Error("Workspace 1 should be rate limited")
	}

	// Workspace 2 should still have its full burst
	for i := 0; i < 3; i++ {
		if !rl.Allow(2) {
			t.Errorf("Workspace 2 request %d should be allowed", i+1)
		}
	}
}

func TestRateLimiter_GetState(t *testing.T) {
	rl := NewRateLimiterWithConfig(60, 4)
	defer rl.Stop()

	remaining, _ := rl.GetState(9)
	if remaining != 4 {
		t.Errorf("Expected full burst for unseen workspace, got %d", remaining)
	}

	rl.Allow(9)
	rl.Allow(9)

	remaining, reset := rl.GetState(9)
	if remaining != 2 {
		t.Errorf("Expected 2 remaining, got %d", remaining)
	}
	if !reset.After(time.Now()) {
		t.Error("Expected reset time in the future")
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl := NewRateLimiterWithConfig(60, 4)
	defer rl.Stop()

	rl.Allow(1)
	rl.Allow(2)

	if removed := rl.sweep(time.Now()); removed != 0 {
		t.Errorf("Expected no limiter removed, got %d", removed)
	}
	if removed := rl.sweep(time.Now().Add(LimiterTTL + time.Second)); removed != 2 {
		t.Errorf("Expected 2 limiters removed, got %d", removed)
	}
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := NewRateLimiter()
	rl.Stop()
	rl.Stop()
}

func withWorkspace(c echo.Context, workspaceID int32) {
	ctx := context.WithValue(c.Request().Context(), WorkspaceIDKey, workspaceID)
	c.SetRequest(c.Request().WithContext(ctx))
}

func TestRateLimitMiddleware_SkipsUnauthenticated(t *testing.T) {
	e := echo.New()
	rl := NewRateLimiterWithConfig(1, 1)
	defer rl.Stop()

	mw := RateLimitMiddleware(rl)
	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if err := handler(c); err != nil {
			t.Fatalf("Request %d: unexpected error %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("Request %d: expected 200, got %d", i+1, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "" {
			t.Error("Expected no rate limit headers without a workspace")
		}
	}
}

func TestRateLimitMiddleware_EnforcesPerWorkspace(t *testing.T) {
	e := echo.New()
	rl := NewRateLimiterWithConfig(30, 2)
	defer rl.Stop()

	mw := RateLimitMiddleware(rl)
	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		withWorkspace(c, 5)

		if err := handler(c); err != nil {
			t.Fatalf("Request %d: unexpected error %v", i+1, err)
		}
		codes = append(codes, rec.Code)
		last = rec
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("Expected first two requests allowed, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("Expected third request limited, got %d", codes[2])
	}
	if last.Header().Get("X-RateLimit-Limit") != "30" {
		t.Errorf("Expected limit header 30, got %q", last.Header().Get("X-RateLimit-Limit"))
	}
	if last.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("Expected remaining 0, got %q", last.Header().Get("X-RateLimit-Remaining"))
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}

	// Another workspace is unaffected
	req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	withWorkspace(c, 6)
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("Expected other workspace allowed, got %d", rec.Code)
	}
}
