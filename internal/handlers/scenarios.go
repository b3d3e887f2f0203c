package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dreadlabs/dread-engine/internal/storage"
)

// ScenarioHandler lists the scenario presets available for new sessions.
type ScenarioHandler struct {
	store  storage.Store
	logger *slog.Logger
}

func NewScenarioHandler(logger *slog.Logger, store storage.Store) *ScenarioHandler {
	return &ScenarioHandler{store: store, logger: logger}
}

// ServeHTTP handles GET /v1/scenarios, returning a map of scenario display
// names to filenames.
func (h *ScenarioHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Method not allowed. Use GET"}); err != nil {
			h.logger.Error("Failed to encode error response", "error", err)
		}
		return
	}

	scenarios, err := h.store.ListScenarios(r.Context())
	if err != nil {
		h.logger.Error("Failed to list scenarios", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Failed to list scenarios"}); err != nil {
			h.logger.Error("Failed to encode error response", "error", err)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(scenarios); err != nil {
		h.logger.Error("Failed to encode scenarios response", "error", err)
	}
}
