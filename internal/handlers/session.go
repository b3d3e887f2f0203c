package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dreadlabs/dread-engine/internal/services/events"
	"github.com/dreadlabs/dread-engine/internal/services/queue"
	"github.com/dreadlabs/dread-engine/internal/storage"
	"github.com/dreadlabs/dread-engine/pkg/world"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateSessionRequest defines the request body for creating a new session
type CreateSessionRequest struct {
	Scenario string `json:"scenario,omitempty"` // Optional: scenario filename
}

// ActionRequest defines the request body for submitting a player action
type ActionRequest struct {
	Action string `json:"action"`
}

// ActionAccepted is the 202 response for an enqueued action
type ActionAccepted struct {
	RequestID string `json:"request_id"`
	FeedID    int    `json:"feed_id"`
}

// FeedResponse is the incremental feed poll response
type FeedResponse struct {
	Entries []world.FeedEntry `json:"entries"`
	LastID  int               `json:"last_id"`
}

// SessionHandler serves the session resource and its sub-resources.
type SessionHandler struct {
	store       storage.Store
	queue       *queue.ActionQueue
	broadcaster *events.Broadcaster
	logger      *slog.Logger
}

func NewSessionHandler(logger *slog.Logger, store storage.Store, actionQueue *queue.ActionQueue, broadcaster *events.Broadcaster) *SessionHandler {
	return &SessionHandler{
		store:       store,
		queue:       actionQueue,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// ServeHTTP handles HTTP requests for session operations
// Routes:
// POST /v1/session               - Create new session
// GET /v1/session/{id}           - Read session state by ID
// DELETE /v1/session/{id}        - Delete session (state, history, media ref)
// POST /v1/session/{id}/action   - Submit a player action (async, 202)
// GET /v1/session/{id}/feed      - Poll the feed incrementally (?after=N)
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/session"), "/")
	parts := strings.Split(path, "/")

	if path == "" {
		if r.Method != http.MethodPost {
			h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Use POST to create a session")
			return
		}
		h.handleCreate(w, r)
		return
	}

	sessionID, err := uuid.Parse(parts[0])
	if err != nil {
		h.logger.Warn("Invalid session ID", "id", parts[0], "error", err)
		h.writeError(w, http.StatusBadRequest, "Invalid session ID format")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleRead(w, r, sessionID)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.handleDelete(w, r, sessionID)
	case len(parts) == 2 && parts[1] == "action" && r.Method == http.MethodPost:
		h.handleAction(w, r, sessionID)
	case len(parts) == 2 && parts[1] == "feed" && r.Method == http.MethodGet:
		h.handleFeed(w, r, sessionID)
	default:
		h.writeError(w, http.StatusNotFound, "Unknown session route")
	}
}

func (h *SessionHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.logger.Warn("Invalid JSON in request body", "error", err)
			h.writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
			return
		}
	}

	scen, err := h.store.GetScenario(r.Context(), req.Scenario)
	if err != nil {
		h.logger.Warn("Failed to load scenario", "scenario", req.Scenario, "error", err)
		h.writeError(w, http.StatusBadRequest, "Failed to load scenario: "+err.Error())
		return
	}

	ws := world.NewWorldState(req.Scenario, scen.OpeningContext, scen.Survivor.MaxHP)
	ws.AppendFeed(world.FeedNarrative, scen.OpeningContext)

	if err := h.store.SaveWorldState(r.Context(), ws); err != nil {
		h.logger.Error("Failed to save new session", "error", err, "id", ws.ID.String())
		h.writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	h.logger.Debug("Session created", "id", ws.ID.String(), "scenario", scen.Name)
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(ws); err != nil {
		h.logger.Error("Failed to encode session response", "error", err)
	}
}

func (h *SessionHandler) handleRead(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) {
	ws, err := h.store.LoadWorldState(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to load session", "error", err, "id", sessionID.String())
		h.writeError(w, http.StatusInternalServerError, "Failed to load session")
		return
	}
	if ws == nil {
		h.writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(ws); err != nil {
		h.logger.Error("Failed to encode session response", "error", err)
	}
}

func (h *SessionHandler) handleDelete(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) {
	if err := h.store.DeleteWorldState(r.Context(), sessionID); err != nil {
		h.logger.Error("Failed to delete session", "error", err, "id", sessionID.String())
		h.writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	h.logger.Debug("Session deleted", "id", sessionID.String())
	w.WriteHeader(http.StatusNoContent)
}

// handleAction accepts a player action, records it in the feed, and
// enqueues the turn for background processing. The feed entry is written
// before the request is queued so the feed always shows the action even if
// the turn later fails.
func (h *SessionHandler) handleAction(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) {
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid JSON in request body", "error", err)
		h.writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	action := strings.TrimSpace(req.Action)
	if action == "" {
		h.writeError(w, http.StatusBadRequest, "action field is required")
		return
	}

	var feedID int
	err := func() error {
		unlock := h.store.LockSession(sessionID)
		defer unlock()

		ws, err := h.store.LoadWorldState(r.Context(), sessionID)
		if err != nil {
			return err
		}
		if ws == nil {
			return errSessionNotFound
		}
		entry := ws.AppendFeed(world.FeedPlayerAction, action)
		feedID = entry.ID
		return h.store.SaveWorldState(r.Context(), ws)
	}()
	if err == errSessionNotFound {
		h.writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to record player action", "error", err, "id", sessionID.String())
		h.writeError(w, http.StatusInternalServerError, "Failed to record action")
		return
	}

	turnReq := queue.NewRequest(sessionID, action)
	if err := h.queue.Enqueue(r.Context(), turnReq); err != nil {
		h.logger.Error("Failed to enqueue turn request", "error", err, "id", sessionID.String())
		h.writeError(w, http.StatusInternalServerError, "Failed to queue action")
		return
	}

	if h.broadcaster != nil {
		if err := h.broadcaster.PublishTurnQueued(r.Context(), sessionID, turnReq.RequestID, action); err != nil {
			h.logger.Warn("Failed to publish queued event", "error", err)
		}
	}

	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(ActionAccepted{RequestID: turnReq.RequestID, FeedID: feedID}); err != nil {
		h.logger.Error("Failed to encode action response", "error", err)
	}
}

func (h *SessionHandler) handleFeed(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) {
	after := 0
	if v := r.URL.Query().Get("after"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		after = parsed
	}

	ws, err := h.store.LoadWorldState(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to load session for feed", "error", err, "id", sessionID.String())
		h.writeError(w, http.StatusInternalServerError, "Failed to load session")
		return
	}
	if ws == nil {
		h.writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	resp := FeedResponse{
		Entries: ws.FeedAfter(after),
		LastID:  ws.LastFeedID(),
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode feed response", "error", err)
	}
}

func (h *SessionHandler) writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: msg}); err != nil {
		h.logger.Error("Failed to encode error response", "error", err)
	}
}

var errSessionNotFound = errors.New("session not found")
