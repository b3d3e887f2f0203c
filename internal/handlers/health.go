package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dreadlabs/dread-engine/internal/storage"
)

// HealthResponse reports liveness of the API and its dependencies.
type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

type HealthHandler struct {
	store  storage.Store
	logger *slog.Logger
}

func NewHealthHandler(logger *slog.Logger, store storage.Store) *HealthHandler {
	return &HealthHandler{store: store, logger: logger}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	resp := HealthResponse{Status: "ok", Storage: "ok"}
	status := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Error("Storage health check failed", "error", err)
		resp.Status = "degraded"
		resp.Storage = err.Error()
		status = http.StatusServiceUnavailable
	}

	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}
