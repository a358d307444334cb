package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/auth"
	"github.com/cac-scouting/scout-engine/pkg/dedupe"
	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/repositories"
	"github.com/cac-scouting/scout-engine/pkg/services"
)

// ImportPlayerRequest is the body of POST /api/players/import.
type ImportPlayerRequest struct {
	URL string `json:"url"`
}

// CreatePlayerResponse is returned by create_or_merge style endpoints.
type CreatePlayerResponse struct {
	Merge        *repositories.MergeResult `json:"merge"`
	Player       *models.Player            `json:"player"`
	SeasonsAdded int                       `json:"seasons_added"`
}

// PlayersHandler handles the player catalogue and per-player views.
type PlayersHandler struct {
	playerService services.PlayerService
	reportService services.ReportService
	logger        *zap.Logger
}

// NewPlayersHandler creates a new players handler.
func NewPlayersHandler(playerService services.PlayerService, reportService services.ReportService, logger *zap.Logger) *PlayersHandler {
	return &PlayersHandler{
		playerService: playerService,
		reportService: reportService,
		logger:        logger,
	}
}

// RegisterRoutes registers the players handler's routes on the given mux.
func (h *PlayersHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/players"

	mux.HandleFunc("GET "+base, authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("POST "+base, authMiddleware.RequireAuth(h.Create))
	mux.HandleFunc("POST "+base+"/import", authMiddleware.RequireAuth(h.Import))
	mux.HandleFunc("GET "+base+"/{id}", authMiddleware.RequireAuth(h.Get))
	mux.HandleFunc("PUT "+base+"/{id}", authMiddleware.RequireAuth(h.Update))
	mux.HandleFunc("DELETE "+base+"/{id}", authMiddleware.RequireAuth(h.Delete))
	mux.HandleFunc("POST "+base+"/{id}/merge", authMiddleware.RequireAuth(h.Merge))
	mux.HandleFunc("GET "+base+"/{id}/seasons", authMiddleware.RequireAuth(h.Seasons))
	mux.HandleFunc("POST "+base+"/{id}/seasons", authMiddleware.RequireAuth(h.AddSeason))
	mux.HandleFunc("GET "+base+"/{id}/reports", authMiddleware.RequireAuth(h.Reports))
	mux.HandleFunc("GET "+base+"/{id}/aggregate", authMiddleware.RequireAuth(h.Aggregate))
	mux.HandleFunc("GET "+base+"/{id}/stats", authMiddleware.RequireAuth(h.Stats))
	mux.HandleFunc("GET /api/teams", authMiddleware.RequireAuth(h.Teams))
}

// List handles GET /api/players
func (h *PlayersHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, ok := ParsePlayerFilter(w, r, h.logger)
	if !ok {
		return
	}
	players, err := h.playerService.Find(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, "list players", err, h.logger)
		return
	}
	if players == nil {
		players = []*models.Player{}
	}
	writeData(w, http.StatusOK, players, h.logger)
}

// Create handles POST /api/players. The candidate is merged into an existing
// player when it is unambiguously the same person; an ambiguous candidate is
// refused with 409 and the ids it could be.
func (h *PlayersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var candidate models.Player
	if !decodeJSON(w, r, &candidate, h.logger) {
		return
	}
	candidate.ID = 0

	merge, err := h.playerService.CreateOrMerge(r.Context(), &candidate)
	if err != nil {
		writeServiceError(w, r, "create player", err, h.logger)
		return
	}
	if merge.Outcome == dedupe.Ambiguous {
		writeAmbiguous(w, merge, h.logger)
		return
	}

	player, err := h.playerService.Get(r.Context(), merge.PlayerID)
	if err != nil {
		writeServiceError(w, r, "get player", err, h.logger)
		return
	}
	status := http.StatusOK
	if merge.Created {
		status = http.StatusCreated
	}
	writeData(w, status, CreatePlayerResponse{Merge: merge, Player: player}, h.logger)
}

// Import handles POST /api/players/import
func (h *PlayersHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req ImportPlayerRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	result, err := h.playerService.Import(r.Context(), req.URL)
	if err != nil {
		writeServiceError(w, r, "import player", err, h.logger)
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
	writeData(w, status, CreatePlayerResponse{
		Merge:        result.Merge,
		Player:       result.Player,
		SeasonsAdded: result.SeasonsAdded,
	}, h.logger)
}

// Get handles GET /api/players/{id}
func (h *PlayersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	player, err := h.playerService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "get player", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, player, h.logger)
}

// Update handles PUT /api/players/{id}. The body replaces every field.
func (h *PlayersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	var player models.Player
	if !decodeJSON(w, r, &player, h.logger) {
		return
	}
	player.ID = id

	if err := h.playerService.Update(r.Context(), &player); err != nil {
		writeServiceError(w, r, "update player", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, &player, h.logger)
}

// Delete handles DELETE /api/players/{id}
func (h *PlayersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	if err := h.playerService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, "delete player", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, map[string]int64{"deleted": id}, h.logger)
}

// Merge handles POST /api/players/{id}/merge: the body's non-empty fields
// fill or overwrite the stored player.
func (h *PlayersHandler) Merge(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	var candidate models.Player
	if !decodeJSON(w, r, &candidate, h.logger) {
		return
	}

	player, err := h.playerService.MergeInto(r.Context(), id, &candidate)
	if err != nil {
		writeServiceError(w, r, "merge player", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, player, h.logger)
}

// Seasons handles GET /api/players/{id}/seasons
func (h *PlayersHandler) Seasons(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	seasons, err := h.playerService.Seasons(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "list seasons", err, h.logger)
		return
	}
	if seasons == nil {
		seasons = []*models.SeasonRecord{}
	}
	writeData(w, http.StatusOK, seasons, h.logger)
}

// AddSeason handles POST /api/players/{id}/seasons
func (h *PlayersHandler) AddSeason(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	var record models.SeasonRecord
	if !decodeJSON(w, r, &record, h.logger) {
		return
	}
	record.ID = 0

	if err := h.playerService.AddSeason(r.Context(), id, &record); err != nil {
		writeServiceError(w, r, "add season", err, h.logger)
		return
	}
	writeData(w, http.StatusCreated, &record, h.logger)
}

// Reports handles GET /api/players/{id}/reports
func (h *PlayersHandler) Reports(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	reports, err := h.reportService.ListByPlayer(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "list player reports", err, h.logger)
		return
	}
	if reports == nil {
		reports = []*models.Report{}
	}
	writeData(w, http.StatusOK, reports, h.logger)
}

// Aggregate handles GET /api/players/{id}/aggregate
func (h *PlayersHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	agg, err := h.reportService.Aggregate(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "aggregate reports", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, agg, h.logger)
}

// Stats handles GET /api/players/{id}/stats
func (h *PlayersHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	stats, err := h.playerService.Stats(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "player stats", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, stats, h.logger)
}

// Teams handles GET /api/teams, the distinct teams in the catalogue.
func (h *PlayersHandler) Teams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.playerService.Teams(r.Context())
	if err != nil {
		writeServiceError(w, r, "list teams", err, h.logger)
		return
	}
	if teams == nil {
		teams = []string{}
	}
	writeData(w, http.StatusOK, teams, h.logger)
}

// writeAmbiguous refuses a candidate that could be several stored players.
func writeAmbiguous(w http.ResponseWriter, merge *repositories.MergeResult, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"error":      "ambiguous_match",
		"message":    "The player may already exist; merge into one of the candidates explicitly",
		"candidates": merge.Candidates,
	}); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
