package models

import "time"

// Source values for season records
const (
	SeasonSourceManual  = "manual"    // entered by a scout
	SeasonSourceScrape  = "besoccer"  // imported from a BeSoccer profile
	SeasonSourceCatalog = "catalogue" // imported from a catalogue spreadsheet
)

// Player is a scouted footballer. Stored in the players table.
// Optional numeric attributes are pointers so "unknown" and zero stay distinct
// through create_or_merge.
type Player struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	NormalizedName  string    `json:"-"`
	ExternalID      string    `json:"external_id,omitempty"` // BeSoccer or catalogue id; unique when set
	SourceURL       string    `json:"source_url,omitempty"`
	BirthDate       string    `json:"birth_date,omitempty"` // YYYY-MM-DD
	Nationality     string    `json:"nationality,omitempty"`
	HeightCM        *int      `json:"height_cm,omitempty"`
	WeightKG        *int      `json:"weight_kg,omitempty"`
	Foot            string    `json:"foot,omitempty"`
	Position        string    `json:"position,omitempty"`
	Team            string    `json:"team,omitempty"`
	ShirtNumber     *int      `json:"shirt_number,omitempty"`
	MarketValueKEUR *float64  `json:"market_value_keur,omitempty"`
	ELO             *int      `json:"elo,omitempty"`
	PhotoURL        string    `json:"photo_url,omitempty"`
	Revision        int       `json:"revision"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AgeAt returns the player's age in whole years on the given day,
// or nil when the birth date is unknown or malformed.
func (p *Player) AgeAt(now time.Time) *int {
	if p.BirthDate == "" {
		return nil
	}
	born, err := time.Parse(DateLayout, p.BirthDate)
	if err != nil {
		return nil
	}
	age := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	return &age
}

// PlayerFilter narrows Player Find/Search. Zero values mean "any".
type PlayerFilter struct {
	Query       string `json:"q,omitempty"` // matched against the normalised name
	Team        string `json:"team,omitempty"`
	Position    string `json:"position,omitempty"`
	Nationality string `json:"nationality,omitempty"`
	Foot        string `json:"foot,omitempty"`
	MinAge      int    `json:"min_age,omitempty"`
	MaxAge      int    `json:"max_age,omitempty"`
	WithReports bool   `json:"with_reports,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
}

// SeasonRecord is one season line of a player's career. Stored in season_records.
type SeasonRecord struct {
	ID          int64     `json:"id"`
	PlayerID    int64     `json:"player_id"`
	Season      string    `json:"season"`
	Team        string    `json:"team"`
	Competition string    `json:"competition"`
	Appearances *int      `json:"appearances,omitempty"`
	Goals       *int      `json:"goals,omitempty"`
	Assists     *int      `json:"assists,omitempty"`
	YellowCards *int      `json:"yellow_cards,omitempty"`
	RedCards    *int      `json:"red_cards,omitempty"`
	Minutes     *int      `json:"minutes,omitempty"`
	Age         *int      `json:"age,omitempty"`
	ELO         *int      `json:"elo,omitempty"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}

// SeasonLine is a season record together with the identity of its player.
// It is the raw material for comparisons across the catalogue.
type SeasonLine struct {
	SeasonRecord
	PlayerName string
	Position   string
	BirthDate  string
	PlayerTeam string // the player's current team, not the season's
}
