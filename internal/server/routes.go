package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisterRoutes mounts the event channel and health endpoints.
func RegisterRoutes(router *mux.Router, wsPath string, ws http.Handler, ready *Readiness) {
	router.Handle(wsPath, ws).Methods(http.MethodGet)
	router.HandleFunc("/healthz", healthz).Methods(http.MethodGet)
	router.HandleFunc("/readyz", ready.ServeHTTP).Methods(http.MethodGet)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness answers /readyz from the store and the engine loop.
type Readiness struct {
	Store   Pinger
	Running func() bool
	Peers   func() int
}

func (r *Readiness) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()

	if r.Running != nil && !r.Running() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "engine not running",
		})
		return
	}
	if err := r.Store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "store unreachable",
		})
		return
	}

	body := map[string]any{"status": "ready"}
	if r.Peers != nil {
		body["peers"] = r.Peers()
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
