package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/auth"
	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/services"
)

// FiltersHandler handles the caller's saved catalogue filters.
type FiltersHandler struct {
	filterService services.FilterService
	logger        *zap.Logger
}

// NewFiltersHandler creates a new filters handler.
func NewFiltersHandler(filterService services.FilterService, logger *zap.Logger) *FiltersHandler {
	return &FiltersHandler{filterService: filterService, logger: logger}
}

// RegisterRoutes registers the filters handler's routes on the given mux.
func (h *FiltersHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/filters", authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("PUT /api/filters/{name}", authMiddleware.RequireAuth(h.Save))
	mux.HandleFunc("DELETE /api/filters/{name}", authMiddleware.RequireAuth(h.Delete))
}

// List handles GET /api/filters
func (h *FiltersHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	filters, err := h.filterService.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, "list filters", err, h.logger)
		return
	}
	if filters == nil {
		filters = []*models.FilterConfig{}
	}
	writeData(w, http.StatusOK, filters, h.logger)
}

// Save handles PUT /api/filters/{name}. The body is a player filter.
func (h *FiltersHandler) Save(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var filter models.PlayerFilter
	if !decodeJSON(w, r, &filter, h.logger) {
		return
	}
	if !checkSearchTerms(w, r, h.logger, map[string]string{
		"q":           filter.Query,
		"team":        filter.Team,
		"position":    filter.Position,
		"nationality": filter.Nationality,
		"foot":        filter.Foot,
	}) {
		return
	}

	saved, err := h.filterService.Save(r.Context(), userID, strings.TrimSpace(r.PathValue("name")), filter)
	if err != nil {
		writeServiceError(w, r, "save filter", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, saved, h.logger)
}

// Delete handles DELETE /api/filters/{name}
func (h *FiltersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := h.filterService.Delete(r.Context(), userID, strings.TrimSpace(r.PathValue("name"))); err != nil {
		writeServiceError(w, r, "delete filter", err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FiltersHandler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := auth.RequireUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", h.logger)
		return 0, false
	}
	return id, true
}
