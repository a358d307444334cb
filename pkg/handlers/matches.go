package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/auth"
	"github.com/cac-scouting/scout-engine/pkg/dedupe"
	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/services"
)

// MatchesHandler handles fixtures and lineups.
type MatchesHandler struct {
	matchService services.MatchService
	logger       *zap.Logger
}

// NewMatchesHandler creates a new matches handler.
func NewMatchesHandler(matchService services.MatchService, logger *zap.Logger) *MatchesHandler {
	return &MatchesHandler{
		matchService: matchService,
		logger:       logger,
	}
}

// RegisterRoutes registers the matches handler's routes on the given mux.
func (h *MatchesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/matches"

	mux.HandleFunc("GET "+base, authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("POST "+base, authMiddleware.RequireAuth(h.Create))
	mux.HandleFunc("POST "+base+"/import", authMiddleware.RequireAuth(h.Import))
	mux.HandleFunc("GET "+base+"/{id}", authMiddleware.RequireAuth(h.Get))
	mux.HandleFunc("GET "+base+"/{id}/lineup", authMiddleware.RequireAuth(h.Lineup))
	mux.HandleFunc("POST "+base+"/{id}/lineup/fetch", authMiddleware.RequireAuth(h.FetchLineup))
	mux.HandleFunc("POST "+base+"/{id}/lineup/{entryId}/player", authMiddleware.RequireAuth(h.PlayerFromLineup))
}

// List handles GET /api/matches?date=YYYY-MM-DD
func (h *MatchesHandler) List(w http.ResponseWriter, r *http.Request) {
	matches, err := h.matchService.ListByDate(r.Context(), strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		writeServiceError(w, r, "list matches", err, h.logger)
		return
	}
	if matches == nil {
		matches = []*models.Match{}
	}
	writeData(w, http.StatusOK, matches, h.logger)
}

// Create handles POST /api/matches
func (h *MatchesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var match models.Match
	if !decodeJSON(w, r, &match, h.logger) {
		return
	}
	match.ID = 0

	if err := h.matchService.Create(r.Context(), &match); err != nil {
		writeServiceError(w, r, "create match", err, h.logger)
		return
	}
	writeData(w, http.StatusCreated, &match, h.logger)
}

// Import handles POST /api/matches/import?date=YYYY-MM-DD
func (h *MatchesHandler) Import(w http.ResponseWriter, r *http.Request) {
	result, err := h.matchService.Import(r.Context(), strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		writeServiceError(w, r, "import matches", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, result, h.logger)
}

// Get handles GET /api/matches/{id}
func (h *MatchesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	match, err := h.matchService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "get match", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, match, h.logger)
}

// Lineup handles GET /api/matches/{id}/lineup
func (h *MatchesHandler) Lineup(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	entries, err := h.matchService.Lineup(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "get lineup", err, h.logger)
		return
	}
	if entries == nil {
		entries = []*models.LineupEntry{}
	}
	writeData(w, http.StatusOK, entries, h.logger)
}

// FetchLineup handles POST /api/matches/{id}/lineup/fetch
func (h *MatchesHandler) FetchLineup(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	entries, err := h.matchService.FetchLineup(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "fetch lineup", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, entries, h.logger)
}

// PlayerFromLineup handles POST /api/matches/{id}/lineup/{entryId}/player
func (h *MatchesHandler) PlayerFromLineup(w http.ResponseWriter, r *http.Request) {
	matchID, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	entryID, ok := ParseID(w, r, "entryId", h.logger)
	if !ok {
		return
	}

	result, err := h.matchService.PlayerFromLineup(r.Context(), matchID, entryID)
	if err != nil {
		writeServiceError(w, r, "player from lineup", err, h.logger)
		return
	}
	if result.Merge.Outcome == dedupe.Ambiguous {
		writeAmbiguous(w, result.Merge, h.logger)
		return
	}
	status := http.StatusOK
	if result.Merge.Created {
		status = http.StatusCreated
	}
	writeData(w, status, result, h.logger)
}
