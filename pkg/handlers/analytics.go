package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/auth"
	"github.com/cac-scouting/scout-engine/pkg/services"
)

// AnalyticsHandler serves season comparisons across the catalogue.
type AnalyticsHandler struct {
	analyticsService services.AnalyticsService
	logger           *zap.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(analyticsService services.AnalyticsService, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
		logger:           logger,
	}
}

// RegisterRoutes registers the analytics handler's routes on the given mux.
func (h *AnalyticsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	base := "/api/analytics"

	mux.HandleFunc("GET "+base+"/metrics", authMiddleware.RequireAuth(h.Catalogue))
	mux.HandleFunc("GET "+base+"/teams", authMiddleware.RequireAuth(h.Teams))
	mux.HandleFunc("GET "+base+"/scatter", authMiddleware.RequireAuth(h.Scatter))
	mux.HandleFunc("GET "+base+"/correlations", authMiddleware.RequireAuth(h.Correlations))
	mux.HandleFunc("GET /api/players/compare", authMiddleware.RequireAuth(h.Compare))
	mux.HandleFunc("GET /api/players/{id}/percentiles", authMiddleware.RequireAuth(h.Percentiles))
}

// Catalogue handles GET /api/analytics/metrics
func (h *AnalyticsHandler) Catalogue(w http.ResponseWriter, r *http.Request) {
	cat, err := h.analyticsService.Catalogue(r.Context())
	if err != nil {
		writeServiceError(w, r, "list metrics", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, cat, h.logger)
}

// Percentiles handles GET /api/players/{id}/percentiles?metrics=goals,assists
func (h *AnalyticsHandler) Percentiles(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	filter, ok := ParsePopulationFilter(w, r, h.logger)
	if !ok {
		return
	}
	profile, err := h.analyticsService.Percentiles(r.Context(), id, filter, splitList(r.URL.Query().Get("metrics")))
	if err != nil {
		writeServiceError(w, r, "player percentiles", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, profile, h.logger)
}

// Compare handles GET /api/players/compare?ids=1,2,3
func (h *AnalyticsHandler) Compare(w http.ResponseWriter, r *http.Request) {
	var ids []int64
	for _, raw := range splitList(r.URL.Query().Get("ids")) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_ids", fmt.Sprintf("Invalid player id %q", raw), h.logger)
			return
		}
		ids = append(ids, id)
	}
	filter, ok := ParsePopulationFilter(w, r, h.logger)
	if !ok {
		return
	}
	cmp, err := h.analyticsService.Compare(r.Context(), ids, filter, splitList(r.URL.Query().Get("metrics")))
	if err != nil {
		writeServiceError(w, r, "compare players", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, cmp, h.logger)
}

// Teams handles GET /api/analytics/teams?metric=goals&agg=mean
func (h *AnalyticsHandler) Teams(w http.ResponseWriter, r *http.Request) {
	filter, ok := ParsePopulationFilter(w, r, h.logger)
	if !ok {
		return
	}
	q := r.URL.Query()
	agg, err := h.analyticsService.TeamAggregates(r.Context(), filter, q.Get("metric"), strings.TrimSpace(q.Get("agg")))
	if err != nil {
		writeServiceError(w, r, "team aggregates", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, agg, h.logger)
}

// Scatter handles GET /api/analytics/scatter?x=minutes&y=goals
func (h *AnalyticsHandler) Scatter(w http.ResponseWriter, r *http.Request) {
	filter, ok := ParsePopulationFilter(w, r, h.logger)
	if !ok {
		return
	}
	q := r.URL.Query()
	data, err := h.analyticsService.Scatter(r.Context(), filter, q.Get("x"), q.Get("y"))
	if err != nil {
		writeServiceError(w, r, "scatter", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, data, h.logger)
}

// Correlations handles GET /api/analytics/correlations?metrics=goals,assists,minutes
func (h *AnalyticsHandler) Correlations(w http.ResponseWriter, r *http.Request) {
	filter, ok := ParsePopulationFilter(w, r, h.logger)
	if !ok {
		return
	}
	m, err := h.analyticsService.Correlations(r.Context(), filter, splitList(r.URL.Query().Get("metrics")))
	if err != nil {
		writeServiceError(w, r, "correlations", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, m, h.logger)
}

// ParsePopulationFilter reads the query parameters that narrow a comparison
// population. Free-text values that look like SQL injection are rejected.
func ParsePopulationFilter(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (services.PopulationFilter, bool) {
	q := r.URL.Query()
	filter := services.PopulationFilter{
		Season:      strings.TrimSpace(q.Get("season")),
		Team:        strings.TrimSpace(q.Get("team")),
		Position:    strings.TrimSpace(q.Get("position")),
		Competition: strings.TrimSpace(q.Get("competition")),
	}

	if !checkSearchTerms(w, r, logger, map[string]string{
		"season":      filter.Season,
		"team":        filter.Team,
		"position":    filter.Position,
		"competition": filter.Competition,
	}) {
		return filter, false
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"min_age", &filter.MinAge},
		{"max_age", &filter.MaxAge},
		{"min_minutes", &filter.MinMinutes},
		{"min_matches", &filter.MinAppearances},
	}
	for _, p := range ints {
		v, ok := queryInt(q, p.name)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_"+p.name, fmt.Sprintf("Invalid %s", p.name), logger)
			return filter, false
		}
		*p.dst = v
	}
	return filter, true
}

// splitList splits a comma separated query value, dropping empty items.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
