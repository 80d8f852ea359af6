// Package session exposes the REST surface for roleplay sessions: creation,
// inspection, and transcript recovery. The conversation itself happens over
// the websocket endpoint.
package session

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	roleplaysvc "github.com/dealdojo/backend/internal/service/roleplay"
	sessionsvc "github.com/dealdojo/backend/internal/service/session"
)

// Handler is the HTTP handler for session resources.
type Handler struct {
	svc *roleplaysvc.Service
}

// New creates the session handler.
func New(svc *roleplaysvc.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Get("/sessions/{sessionID}/transcript", h.handleGetTranscript)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID  string `json:"sessionId"`
		ScenarioID string `json:"scenarioId"`
		UserID     string `json:"userId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.SessionID == "" && payload.ScenarioID == "" {
		respondError(w, http.StatusBadRequest, "scenarioId or sessionId is required")
		return
	}

	sess, err := h.svc.CreateOrResume(r.Context(), payload.SessionID, payload.ScenarioID, payload.UserID)
	if err != nil {
		switch {
		case errors.Is(err, roleplaysvc.ErrScenarioNotFound):
			respondError(w, http.StatusBadRequest, "scenario not found")
		case errors.Is(err, sessionsvc.ErrInvalidSessionState):
			respondError(w, http.StatusGone, "session cannot be resumed")
		case errors.Is(err, sessionsvc.ErrDraining):
			respondError(w, http.StatusServiceUnavailable, "server is shutting down")
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	status := http.StatusCreated
	if payload.SessionID != "" {
		status = http.StatusOK
	}
	respondJSON(w, status, sess)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	turns, err := h.svc.Transcript(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"sessionId": chi.URLParam(r, "sessionID"),
		"turns":     turns,
	})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
