// Package scenario exposes the scenario catalog over HTTP.
package scenario

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dealdojo/backend/internal/model/scenario"
	"github.com/dealdojo/backend/pkg/utils"
)

// Handler is the HTTP handler for the scenario catalog.
type Handler struct {
	scenarios scenario.Store
}

// New creates the scenario handler.
func New(scenarios scenario.Store) *Handler {
	return &Handler{scenarios: scenarios}
}

// RegisterRoutes registers scenario routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/scenarios", h.handleListScenarios)
	r.Get("/scenarios/{scenarioID}", h.handleGetScenario)
}

func (h *Handler) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.scenarios.List())
}

func (h *Handler) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.scenarios.FindByID(chi.URLParam(r, "scenarioID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "scenario not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, sc)
}
