package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAllow_UnderLimit(t *testing.T) {
	rl := New(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}
}

func TestAllow_OverLimit(t *testing.T) {
	rl := New(2, time.Minute)

	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.1")

	if rl.Allow("10.0.0.1") {
		t.Error("Third request should be rejected")
	}
}

func TestAllow_SeparateClients(t *testing.T) {
	rl := New(1, time.Minute)

	if !rl.Allow("10.0.0.1") {
		t.Error("First client should be allowed")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("Second client should have its own window")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("First client should now be over limit")
	}
}

func TestAllow_WindowReset(t *testing.T) {
	rl := New(1, 10*time.Millisecond)

	if !rl.Allow("10.0.0.1") {
		t.Fatal("First request should be allowed")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatal("Second request in window should be rejected")
	}

	time.Sleep(15 * time.Millisecond)

	if !rl.Allow("10.0.0.1") {
		t.Error("Request after window expiry should be allowed")
	}
}

func TestAllow_ZeroLimit(t *testing.T) {
	rl := New(0, time.Minute)

	if rl.Allow("10.0.0.1") {
		t.Error("Zero-limit limiter must reject everything")
	}
}

func TestMiddleware(t *testing.T) {
	rl := New(1, time.Minute)
	handler := Middleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/licenses/verify", nil)
	req.RemoteAddr = "10.0.0.1:54321"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("First request should pass, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Second request should be limited, got %d", w.Code)
	}

	// Same client on another port is still the same window.
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/licenses/verify", nil)
	req2.RemoteAddr = "10.0.0.1:6000"

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req2)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Same client on a new port should share the window, got %d", w.Code)
	}
}
