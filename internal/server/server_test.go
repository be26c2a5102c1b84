package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AyushMusale/TripSense/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(config.Config{JWTSecret: "secret", ServerPort: ":0"}, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s
}

func decodeError(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body
}

func TestHealthRoute(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 status")
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/trips/", "/analytics/insights", "/auth/me", "/trips/stats/summary", "/stream/ws/0c5d7c1e-2f71-4a4b-b1f6-3b4e0a6f6d21"} {
		resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, path, nil))
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, resp.StatusCode)
		}
		body := decodeError(t, resp)
		if body["success"] != false || body["message"] != "missing bearer token" {
			t.Fatalf("%s: unexpected body %v", path, body)
		}
	}
}

func TestErrorHandlerHidesServerErrors(t *testing.T) {
	s := newTestServer(t)
	s.App.Get("/boom", func(*fiber.Ctx) error { return errInternal })
	s.App.Get("/panic", func(*fiber.Ctx) error { panic("kaput") })

	for _, path := range []string{"/boom", "/panic"} {
		resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, path, nil))
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if resp.StatusCode != http.StatusInternalServerError {
			t.Fatalf("%s: expected 500, got %d", path, resp.StatusCode)
		}
		if body := decodeError(t, resp); body["message"] != "internal server error" {
			t.Fatalf("%s: leaked details %v", path, body)
		}
	}

	resp, err := s.App.Test(httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %v %v", resp.StatusCode, err)
	}
}

func TestNewServerRejectsBadFactorFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "factors.yaml")
	if err := os.WriteFile(path, []byte("base:\n  car: -1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewServer(config.Config{CarbonFactorsFile: path}, nil, nil, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for negative factor")
	}
}

func TestStartStreamSubscribes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s, err := NewServer(config.Config{JWTSecret: "secret"}, nil, rdb, zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartStream(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for !s.Stream.Subscribed() {
		if time.Now().After(deadline) {
			t.Fatalf("stream hub never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var errInternal = context.DeadlineExceeded
