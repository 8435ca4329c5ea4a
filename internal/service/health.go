package service

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Readiness tracks the three independent flags the health surface reports:
// store connectivity, embedding provider installation, and whether the
// background auto-population sweep has been spawned (not necessarily
// finished — readiness does not wait on completion).
type Readiness struct {
	databaseConnected      atomic.Bool
	embeddingInitialized   atomic.Bool
	autoPopulationComplete atomic.Bool
}

func (r *Readiness) SetDatabaseConnected(v bool)      { r.databaseConnected.Store(v) }
func (r *Readiness) SetEmbeddingInitialized(v bool)   { r.embeddingInitialized.Store(v) }
func (r *Readiness) SetAutoPopulationComplete(v bool) { r.autoPopulationComplete.Store(v) }

func (r *Readiness) Ready() bool {
	return r.databaseConnected.Load() && r.embeddingInitialized.Load()
}

type readinessBody struct {
	DatabaseConnected      bool `json:"database_connected"`
	EmbeddingInitialized   bool `json:"embedding_initialized"`
	AutoPopulationComplete bool `json:"auto_population_complete"`
}

// NewHealthMux builds the health HTTP surface: GET /health/live,
// GET /health/ready, and GET /health as a liveness alias. All other paths
// 404, matching net/http's ServeMux method-pattern routing.
func NewHealthMux(r *Readiness) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	mux.HandleFunc("GET /health/ready", func(w http.ResponseWriter, req *http.Request) {
		body := readinessBody{
			DatabaseConnected:      r.databaseConnected.Load(),
			EmbeddingInitialized:   r.embeddingInitialized.Load(),
			AutoPopulationComplete: r.autoPopulationComplete.Load(),
		}
		status := http.StatusOK
		if !r.Ready() {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, body)
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
