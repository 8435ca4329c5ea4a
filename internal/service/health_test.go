package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthMux_LiveAlwaysOK(t *testing.T) {
	mux := NewHealthMux(&Readiness{})
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHealthMux_ReadyReflectsFlags(t *testing.T) {
	r := &Readiness{}
	mux := NewHealthMux(r)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before readiness, got %d", rec.Code)
	}

	r.SetDatabaseConnected(true)
	r.SetEmbeddingInitialized(true)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 once both flags are set, got %d", rec.Code)
	}

	var body readinessBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.DatabaseConnected || !body.EmbeddingInitialized {
		t.Fatalf("unexpected readiness body: %+v", body)
	}
}

func TestHealthMux_UnknownPathIs404(t *testing.T) {
	mux := NewHealthMux(&Readiness{})
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
