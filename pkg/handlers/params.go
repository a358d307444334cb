package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/models"
	sqlcheck "github.com/cac-scouting/scout-engine/pkg/sql"
)

// maxPageSize bounds the limit query parameter.
const maxPageSize = 500

// ParseID extracts a positive integer id from the named path parameter.
// Returns the id and true on success, or 0 and false after writing a 400.
func ParseID(w http.ResponseWriter, r *http.Request, pathParam string, logger *zap.Logger) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(pathParam), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_"+pathParam, fmt.Sprintf("Invalid %s", pathParam), logger)
		return 0, false
	}
	return id, true
}

// ParsePlayerFilter reads the catalogue query parameters. Free-text values
// that look like SQL injection are rejected with a 400.
func ParsePlayerFilter(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (models.PlayerFilter, bool) {
	q := r.URL.Query()
	filter := models.PlayerFilter{
		Query:       strings.TrimSpace(q.Get("q")),
		Team:        strings.TrimSpace(q.Get("team")),
		Position:    strings.TrimSpace(q.Get("position")),
		Nationality: strings.TrimSpace(q.Get("nationality")),
		Foot:        strings.TrimSpace(q.Get("foot")),
		WithReports: q.Get("with_reports") == "true",
	}

	if !checkSearchTerms(w, r, logger, map[string]string{
		"q":           filter.Query,
		"team":        filter.Team,
		"position":    filter.Position,
		"nationality": filter.Nationality,
		"foot":        filter.Foot,
	}) {
		return filter, false
	}

	ints := []struct {
		name string
		dst  *int
		max  int
	}{
		{"min_age", &filter.MinAge, 100},
		{"max_age", &filter.MaxAge, 100},
		{"limit", &filter.Limit, maxPageSize},
		{"offset", &filter.Offset, 0},
	}
	for _, p := range ints {
		v, ok := queryInt(q, p.name)
		if !ok || (p.max > 0 && v > p.max) {
			writeError(w, http.StatusBadRequest, "invalid_"+p.name, fmt.Sprintf("Invalid %s", p.name), logger)
			return filter, false
		}
		*p.dst = v
	}
	return filter, true
}

// checkSearchTerms writes a 400 and returns false when any value looks like SQL.
func checkSearchTerms(w http.ResponseWriter, r *http.Request, logger *zap.Logger, params map[string]string) bool {
	results := sqlcheck.CheckAllParameters(params)
	if len(results) == 0 {
		return true
	}
	logger.Warn("Rejected injection-shaped search term",
		zap.String("path", r.URL.Path),
		zap.String("param", results[0].ParamName),
		zap.String("fingerprint", results[0].Fingerprint))
	writeError(w, http.StatusBadRequest, "invalid_search", fmt.Sprintf("Invalid value for %s", results[0].ParamName), logger)
	return false
}

// queryInt parses a non-negative integer query parameter; absent means 0.
func queryInt(q url.Values, name string) (int, bool) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
