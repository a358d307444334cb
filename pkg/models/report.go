package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Recommendation values for scouting reports
const (
	RecommendationSign    = "sign"    // FICHAR
	RecommendationFollow  = "follow"  // SEGUIMIENTO
	RecommendationDiscard = "discard" // DESCARTAR
)

// ValidRecommendations lists the accepted recommendation values ("" means none given).
var ValidRecommendations = []string{RecommendationSign, RecommendationFollow, RecommendationDiscard}

// Ratings holds a report's valuations: category -> metric -> score.
//
// In JSON a category may also be a bare number, for reports that score whole
// categories rather than individual metrics. {"pace": 7} is stored as
// {"pace": {"pace": 7}} so every score has a metric.
type Ratings map[string]map[string]float64

// UnmarshalJSON accepts both nested and flat category scores.
func (r *Ratings) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Ratings, len(raw))
	for category, value := range raw {
		trimmed := strings.TrimSpace(string(value))
		if trimmed == "null" {
			continue
		}
		if strings.HasPrefix(trimmed, "{") {
			var metrics map[string]float64
			if err := json.Unmarshal(value, &metrics); err != nil {
				return fmt.Errorf("ratings[%q]: %w", category, err)
			}
			if len(metrics) > 0 {
				out[category] = metrics
			}
			continue
		}
		var score float64
		if err := json.Unmarshal(value, &score); err != nil {
			return fmt.Errorf("ratings[%q]: expected number or object", category)
		}
		out[category] = map[string]float64{category: score}
	}
	*r = out
	return nil
}

// Count returns the number of individual scores.
func (r Ratings) Count() int {
	n := 0
	for _, metrics := range r {
		n += len(metrics)
	}
	return n
}

// Overall returns the mean of every score, and false when there are none.
func (r Ratings) Overall() (float64, bool) {
	sum, n := 0.0, 0
	for _, metrics := range r {
		for _, v := range metrics {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// CategoryMean returns the mean of the scores in one category.
func (r Ratings) CategoryMean(category string) (float64, bool) {
	metrics := r[category]
	if len(metrics) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range metrics {
		sum += v
	}
	return sum / float64(len(metrics)), true
}

// Categories returns category names in sorted order.
func (r Ratings) Categories() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Report is a scouting report about one player. Stored in the reports table.
type Report struct {
	ID              int64     `json:"id"`
	PlayerID        int64     `json:"player_id"`
	MatchID         *int64    `json:"match_id,omitempty"`
	AuthorID        *int64    `json:"author_id,omitempty"` // nil once the author account is deleted
	AuthorName      string    `json:"author_name"`         // snapshot taken at creation
	Template        string    `json:"template,omitempty"`
	Season          string    `json:"season,omitempty"`
	MatchDate       string    `json:"match_date,omitempty"` // YYYY-MM-DD
	Opponent        string    `json:"opponent,omitempty"`
	MinutesObserved *int      `json:"minutes_observed,omitempty"`
	Ratings         Ratings   `json:"ratings"`
	Traits          []string  `json:"traits"`
	Observations    string    `json:"observations"`
	Recommendation  string    `json:"recommendation,omitempty"`
	Confidence      *int      `json:"confidence,omitempty"` // 0-100
	Revision        int       `json:"revision"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasContent reports whether the report carries at least one valuation or a
// non-blank observation.
func (r *Report) HasContent() bool {
	return r.Ratings.Count() > 0 || strings.TrimSpace(r.Observations) != ""
}

// SeriesDate is the day used to place the report on a timeline: the match
// date when known, otherwise the creation day.
func (r *Report) SeriesDate() string {
	if r.MatchDate != "" {
		return r.MatchDate
	}
	if r.CreatedAt.IsZero() {
		return ""
	}
	return r.CreatedAt.Format(DateLayout)
}

// ScorePoint is one report's overall score on a player's timeline.
type ScorePoint struct {
	ReportID int64   `json:"report_id"`
	Date     string  `json:"date"`
	Score    float64 `json:"score"`
}

// Aggregate summarises all reports of one player.
type Aggregate struct {
	PlayerID      int64              `json:"player_id"`
	ReportCount   int                `json:"report_count"`
	CategoryMeans map[string]float64 `json:"category_means"`
	Series        []ScorePoint       `json:"series"`
}

// ReportFilter narrows report listings.
type ReportFilter struct {
	PlayerID       int64  `json:"player_id,omitempty"`
	AuthorID       int64  `json:"author_id,omitempty"`
	MatchID        int64  `json:"match_id,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
}
