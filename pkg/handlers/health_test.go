package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-projections/pkg/config"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		wantStatus int
	}{
		{"no database", nil, http.StatusOK},
		{"database up", stubPinger{}, http.StatusOK},
		{"database down", stubPinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(&config.Config{}, tt.db, zap.NewNop())

			rec := httptest.NewRecorder()
			handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus == http.StatusOK && rec.Body.String() != "ok" {
				t.Errorf("expected body 'ok', got %q", rec.Body.String())
			}
		})
	}
}

func TestHealthHandler_Ping(t *testing.T) {
	cfg := &config.Config{
		Version: "test-version",
		Env:     "test",
	}
	handler := NewHealthHandler(cfg, stubPinger{err: errors.New("down")}, zap.NewNop())

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response PingResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Status != "ok" {
		t.Errorf("expected status 'ok', got %q", response.Status)
	}
	if response.Version != "test-version" {
		t.Errorf("expected version 'test-version', got %q", response.Version)
	}
	if response.Service != ServiceName {
		t.Errorf("expected service %q, got %q", ServiceName, response.Service)
	}
	if response.GoVersion != runtime.Version() {
		t.Errorf("expected go version %q, got %q", runtime.Version(), response.GoVersion)
	}
	if response.Environment != "test" {
		t.Errorf("expected environment 'test', got %q", response.Environment)
	}
	if response.Database != "unavailable" {
		t.Errorf("expected database 'unavailable', got %q", response.Database)
	}
}
