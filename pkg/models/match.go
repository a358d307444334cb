package models

import "time"

// Match status values
const (
	MatchStatusScheduled = "scheduled"
	MatchStatusLive      = "live"
	MatchStatusFinished  = "finished"
)

// Lineup sides
const (
	SideHome = "home"
	SideAway = "away"
)

// Match is a fixture, scraped from a livescore page or entered by hand.
type Match struct {
	ID          int64     `json:"id"`
	ExternalID  string    `json:"external_id,omitempty"`
	HomeTeam    string    `json:"home_team"`
	AwayTeam    string    `json:"away_team"`
	MatchDate   string    `json:"match_date"` // YYYY-MM-DD
	KickOff     string    `json:"kick_off,omitempty"`
	Competition string    `json:"competition,omitempty"`
	Season      string    `json:"season,omitempty"`
	Status      string    `json:"status"`
	HomeScore   *int      `json:"home_score,omitempty"`
	AwayScore   *int      `json:"away_score,omitempty"`
	HomeCrest   string    `json:"home_crest,omitempty"`
	AwayCrest   string    `json:"away_crest,omitempty"`
	SourceURL   string    `json:"source_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LineupEntry is one player listed for one side of a match.
type LineupEntry struct {
	ID          int64  `json:"id"`
	MatchID     int64  `json:"match_id"`
	Side        string `json:"side"`
	PlayerName  string `json:"player_name"`
	ShirtNumber *int   `json:"shirt_number,omitempty"`
	Position    string `json:"position,omitempty"`
	IsStarter   bool   `json:"is_starter"`
	ProfileURL  string `json:"profile_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}
