package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthHandler(t *testing.T) {
	w := httptest.NewRecorder()
	HealthHandler(nil)(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthy: %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	failing := func(context.Context) error { return errors.New("connection refused") }
	HealthHandler(failing)(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "connection refused") {
		t.Fatalf("unhealthy: %d %q", w.Code, w.Body.String())
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	srv := New("127.0.0.1:0", http.NewServeMux(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv, nil) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Serve: %v", err)
	}
}

func TestNewRegistersRoutes(t *testing.T) {
	srv := New(":0", http.NewServeMux(), nil)
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "physics tutor") {
		t.Fatalf("root: %d %q", w.Code, w.Body.String())
	}
}
