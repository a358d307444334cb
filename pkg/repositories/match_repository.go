package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cac-scouting/scout-engine/pkg/apperrors"
	"github.com/cac-scouting/scout-engine/pkg/database"
	"github.com/cac-scouting/scout-engine/pkg/models"
)

// MatchRepository defines the interface for fixtures and their lineups.
type MatchRepository interface {
	Create(ctx context.Context, match *models.Match) error
	// Upsert inserts match or, when its external id is already stored, refreshes
	// that row. Returns true when a new row was created.
	Upsert(ctx context.Context, match *models.Match) (bool, error)
	GetByID(ctx context.Context, id int64) (*models.Match, error)
	FindByDate(ctx context.Context, date string) ([]*models.Match, error)
	Delete(ctx context.Context, id int64) error

	// ReplaceLineup swaps the whole lineup of a match in one transaction.
	ReplaceLineup(ctx context.Context, matchID int64, entries []*models.LineupEntry) error
	ListLineup(ctx context.Context, matchID int64) ([]*models.LineupEntry, error)
	GetLineupEntry(ctx context.Context, matchID, entryID int64) (*models.LineupEntry, error)
}

type matchRepository struct {
	db *database.DB
}

// NewMatchRepository creates a new match repository.
func NewMatchRepository(db *database.DB) MatchRepository {
	return &matchRepository{db: db}
}

const matchColumns = `id, external_id, home_team, away_team, match_date, kick_off, competition, season,
	status, home_score, away_score, home_crest, away_crest, source_url, created_at, updated_at`

func scanMatch(row rowScanner) (*models.Match, error) {
	var m models.Match
	var externalID sql.NullString
	var home, away sql.NullInt64
	var createdAt, updatedAt string
	err := row.Scan(&m.ID, &externalID, &m.HomeTeam, &m.AwayTeam, &m.MatchDate, &m.KickOff, &m.Competition,
		&m.Season, &m.Status, &home, &away, &m.HomeCrest, &m.AwayCrest, &m.SourceURL, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	m.ExternalID = externalID.String
	m.HomeScore = intFrom(home)
	m.AwayScore = intFrom(away)
	m.CreatedAt = models.ParseTimestamp(createdAt)
	m.UpdatedAt = models.ParseTimestamp(updatedAt)
	return &m, nil
}

func validateMatch(m *models.Match) error {
	m.HomeTeam = strings.TrimSpace(m.HomeTeam)
	m.AwayTeam = strings.TrimSpace(m.AwayTeam)
	if m.HomeTeam == "" {
		return apperrors.NewValidationError("home_team", "is required")
	}
	if m.AwayTeam == "" {
		return apperrors.NewValidationError("away_team", "is required")
	}
	if m.MatchDate == "" || !models.ValidDate(m.MatchDate) {
		return apperrors.NewValidationError("match_date", "must be YYYY-MM-DD")
	}
	switch m.Status {
	case "":
		m.Status = models.MatchStatusScheduled
	case models.MatchStatusScheduled, models.MatchStatusLive, models.MatchStatusFinished:
	default:
		return apperrors.NewValidationError("status", "unknown status %q", m.Status)
	}
	return nil
}

func (r *matchRepository) Create(ctx context.Context, match *models.Match) error {
	if err := validateMatch(match); err != nil {
		return err
	}
	return r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		return insertMatch(ctx, q, match)
	})
}

func insertMatch(ctx context.Context, q database.Querier, m *models.Match) error {
	now := time.Now().UTC()
	res, err := q.ExecContext(ctx, `
		INSERT INTO matches (external_id, home_team, away_team, match_date, kick_off, competition, season,
			status, home_score, away_score, home_crest, away_crest, source_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullText(m.ExternalID), m.HomeTeam, m.AwayTeam, m.MatchDate, m.KickOff, m.Competition, m.Season,
		m.Status, nullInt(m.HomeScore), nullInt(m.AwayScore), m.HomeCrest, m.AwayCrest, m.SourceURL,
		models.FormatTimestamp(now), models.FormatTimestamp(now))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("match with external id %q already exists: %w", m.ExternalID, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create match: %w", err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read match id: %w", err)
	}
	m.CreatedAt, m.UpdatedAt = now, now
	return nil
}

func (r *matchRepository) Upsert(ctx context.Context, match *models.Match) (bool, error) {
	if err := validateMatch(match); err != nil {
		return false, err
	}

	created := false
	err := r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		var existing *models.Match
		if ext := strings.TrimSpace(match.ExternalID); ext != "" {
			row := q.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE external_id = ?`, ext)
			m, err := scanMatch(row)
			switch {
			case errors.Is(err, sql.ErrNoRows):
			case err != nil:
				return fmt.Errorf("failed to look up match: %w", err)
			default:
				existing = m
			}
		}

		if existing == nil {
			created = true
			return insertMatch(ctx, q, match)
		}

		now := time.Now().UTC()
		_, err := q.ExecContext(ctx, `
			UPDATE matches SET home_team = ?, away_team = ?, match_date = ?, kick_off = ?,
				competition = COALESCE(NULLIF(?, ''), competition), season = COALESCE(NULLIF(?, ''), season),
				status = ?, home_score = ?, away_score = ?,
				home_crest = COALESCE(NULLIF(?, ''), home_crest), away_crest = COALESCE(NULLIF(?, ''), away_crest),
				source_url = COALESCE(NULLIF(?, ''), source_url), updated_at = ?
			WHERE id = ?`,
			match.HomeTeam, match.AwayTeam, match.MatchDate, match.KickOff, match.Competition, match.Season,
			match.Status, nullInt(match.HomeScore), nullInt(match.AwayScore), match.HomeCrest, match.AwayCrest,
			match.SourceURL, models.FormatTimestamp(now), existing.ID)
		if err != nil {
			return fmt.Errorf("failed to update match: %w", err)
		}

		row := q.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, existing.ID)
		stored, err := scanMatch(row)
		if err != nil {
			return fmt.Errorf("failed to reload match: %w", err)
		}
		*match = *stored
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (r *matchRepository) GetByID(ctx context.Context, id int64) (*models.Match, error) {
	var match *models.Match
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		var err error
		match, err = getMatch(ctx, q, id)
		return err
	})
	return match, err
}

func getMatch(ctx context.Context, q database.Querier, id int64) (*models.Match, error) {
	row := q.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("match %d: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return m, nil
}

// FindByDate returns the fixtures of one day ordered by kick-off.
func (r *matchRepository) FindByDate(ctx context.Context, date string) ([]*models.Match, error) {
	if !models.ValidDate(date) {
		return nil, apperrors.NewValidationError("date", "must be YYYY-MM-DD")
	}
	query := `SELECT ` + matchColumns + ` FROM matches`
	var args []any
	if date != "" {
		query += ` WHERE match_date = ?`
		args = append(args, date)
	}
	query += ` ORDER BY match_date DESC, kick_off, id`

	var matches []*models.Match
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			m, err := scanMatch(rows)
			if err != nil {
				return err
			}
			matches = append(matches, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find matches: %w", err)
	}
	return matches, nil
}

// Delete removes the match and its lineup. Reports keep their content and lose the link.
func (r *matchRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		res, err := q.ExecContext(ctx, `DELETE FROM matches WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete match: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("match %d: %w", id, apperrors.ErrNotFound)
		}
		return nil
	})
}

func (r *matchRepository) ReplaceLineup(ctx context.Context, matchID int64, entries []*models.LineupEntry) error {
	for i, e := range entries {
		e.PlayerName = strings.TrimSpace(e.PlayerName)
		if e.PlayerName == "" {
			return apperrors.NewValidationError(fmt.Sprintf("lineup[%d].player_name", i), "is required")
		}
		if e.Side != models.SideHome && e.Side != models.SideAway {
			return apperrors.NewValidationError(fmt.Sprintf("lineup[%d].side", i), "must be home or away")
		}
	}

	return r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		if _, err := getMatch(ctx, q, matchID); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM match_lineups WHERE match_id = ?`, matchID); err != nil {
			return fmt.Errorf("failed to clear lineup: %w", err)
		}
		for _, e := range entries {
			res, err := q.ExecContext(ctx, `
				INSERT INTO match_lineups (match_id, side, player_name, shirt_number, position, is_starter, profile_url, image_url)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				matchID, e.Side, e.PlayerName, nullInt(e.ShirtNumber), e.Position, boolInt(e.IsStarter),
				e.ProfileURL, e.ImageURL)
			if err != nil {
				return fmt.Errorf("failed to insert lineup entry: %w", err)
			}
			e.ID, _ = res.LastInsertId()
			e.MatchID = matchID
		}
		return nil
	})
}

const lineupColumns = `id, match_id, side, player_name, shirt_number, position, is_starter, profile_url, image_url`

func scanLineupEntry(row rowScanner) (*models.LineupEntry, error) {
	var e models.LineupEntry
	var shirt sql.NullInt64
	var starter int
	if err := row.Scan(&e.ID, &e.MatchID, &e.Side, &e.PlayerName, &shirt, &e.Position, &starter, &e.ProfileURL, &e.ImageURL); err != nil {
		return nil, err
	}
	e.ShirtNumber = intFrom(shirt)
	e.IsStarter = starter != 0
	return &e, nil
}

// ListLineup returns home before away, starters before substitutes.
func (r *matchRepository) ListLineup(ctx context.Context, matchID int64) ([]*models.LineupEntry, error) {
	var entries []*models.LineupEntry
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		if _, err := getMatch(ctx, q, matchID); err != nil {
			return err
		}
		rows, err := q.QueryContext(ctx, `SELECT `+lineupColumns+` FROM match_lineups WHERE match_id = ?
			ORDER BY CASE side WHEN 'home' THEN 0 ELSE 1 END, is_starter DESC, id`, matchID)
		if err != nil {
			return fmt.Errorf("failed to list lineup: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanLineupEntry(rows)
			if err != nil {
				return fmt.Errorf("failed to scan lineup entry: %w", err)
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *matchRepository) GetLineupEntry(ctx context.Context, matchID, entryID int64) (*models.LineupEntry, error) {
	var entry *models.LineupEntry
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		row := q.QueryRowContext(ctx, `SELECT `+lineupColumns+` FROM match_lineups WHERE id = ? AND match_id = ?`, entryID, matchID)
		e, err := scanLineupEntry(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lineup entry %d: %w", entryID, apperrors.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get lineup entry: %w", err)
		}
		entry = e
		return nil
	})
	return entry, err
}
