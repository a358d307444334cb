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

// SeasonRecordRepository defines the interface for career line data access.
// Imports are append-only: AppendMany never rewrites an existing season.
type SeasonRecordRepository interface {
	AppendMany(ctx context.Context, playerID int64, records []*models.SeasonRecord) (int, error)
	ListByPlayer(ctx context.Context, playerID int64) ([]*models.SeasonRecord, error)
	// ListSeasons returns the distinct seasons on record, most recent first.
	ListSeasons(ctx context.Context) ([]string, error)
	// ListLines returns every record of one season joined with its player.
	ListLines(ctx context.Context, season string) ([]*models.SeasonLine, error)
	Update(ctx context.Context, record *models.SeasonRecord) error
	Delete(ctx context.Context, id int64) error
}

type seasonRecordRepository struct {
	db *database.DB
}

// NewSeasonRecordRepository creates a new season record repository.
func NewSeasonRecordRepository(db *database.DB) SeasonRecordRepository {
	return &seasonRecordRepository{db: db}
}

const seasonColumns = `id, player_id, season, team, competition, appearances, goals, assists,
	yellow_cards, red_cards, minutes, age, elo, source, created_at`

func scanSeasonRecord(row rowScanner) (*models.SeasonRecord, error) {
	var s models.SeasonRecord
	var apps, goals, assists, yellow, red, minutes, age, elo sql.NullInt64
	var createdAt string
	err := row.Scan(&s.ID, &s.PlayerID, &s.Season, &s.Team, &s.Competition, &apps, &goals, &assists,
		&yellow, &red, &minutes, &age, &elo, &s.Source, &createdAt)
	if err != nil {
		return nil, err
	}
	s.Appearances = intFrom(apps)
	s.Goals = intFrom(goals)
	s.Assists = intFrom(assists)
	s.YellowCards = intFrom(yellow)
	s.RedCards = intFrom(red)
	s.Minutes = intFrom(minutes)
	s.Age = intFrom(age)
	s.ELO = intFrom(elo)
	s.CreatedAt = models.ParseTimestamp(createdAt)
	return &s, nil
}

func validateSeasonRecord(s *models.SeasonRecord) error {
	s.Season = strings.TrimSpace(s.Season)
	s.Team = strings.TrimSpace(s.Team)
	s.Competition = strings.TrimSpace(s.Competition)
	if s.Season == "" {
		return apperrors.NewValidationError("season", "is required")
	}
	for field, v := range map[string]*int{
		"appearances": s.Appearances, "goals": s.Goals, "assists": s.Assists,
		"yellow_cards": s.YellowCards, "red_cards": s.RedCards, "minutes": s.Minutes,
	} {
		if v != nil && *v < 0 {
			return apperrors.NewValidationError(field, "must not be negative")
		}
	}
	if s.Source == "" {
		s.Source = models.SeasonSourceManual
	}
	return nil
}

// AppendMany inserts the records that are not already stored, keyed by
// (season, team, competition), and returns how many were added.
func (r *seasonRecordRepository) AppendMany(ctx context.Context, playerID int64, records []*models.SeasonRecord) (int, error) {
	for _, rec := range records {
		if err := validateSeasonRecord(rec); err != nil {
			return 0, err
		}
	}

	added := 0
	err := r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		if _, err := getPlayer(ctx, q, playerID); err != nil {
			return err
		}
		now := models.FormatTimestamp(time.Now())
		for _, rec := range records {
			res, err := q.ExecContext(ctx, `
				INSERT OR IGNORE INTO season_records (player_id, season, team, competition, appearances,
					goals, assists, yellow_cards, red_cards, minutes, age, elo, source, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				playerID, rec.Season, rec.Team, rec.Competition, nullInt(rec.Appearances),
				nullInt(rec.Goals), nullInt(rec.Assists), nullInt(rec.YellowCards), nullInt(rec.RedCards),
				nullInt(rec.Minutes), nullInt(rec.Age), nullInt(rec.ELO), rec.Source, now)
			if err != nil {
				return fmt.Errorf("failed to append season %s: %w", rec.Season, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				rec.ID, _ = res.LastInsertId()
				rec.PlayerID = playerID
				added++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// ListByPlayer returns the player's career, most recent season first.
func (r *seasonRecordRepository) ListByPlayer(ctx context.Context, playerID int64) ([]*models.SeasonRecord, error) {
	var records []*models.SeasonRecord
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		rows, err := q.QueryContext(ctx, `SELECT `+seasonColumns+` FROM season_records
			WHERE player_id = ? ORDER BY season DESC, team, competition, id`, playerID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			s, err := scanSeasonRecord(rows)
			if err != nil {
				return err
			}
			records = append(records, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list season records: %w", err)
	}
	return records, nil
}

func (r *seasonRecordRepository) ListSeasons(ctx context.Context) ([]string, error) {
	var seasons []string
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		rows, err := q.QueryContext(ctx, `SELECT DISTINCT season FROM season_records ORDER BY season DESC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var season string
			if err := rows.Scan(&season); err != nil {
				return err
			}
			seasons = append(seasons, season)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list seasons: %w", err)
	}
	return seasons, nil
}

func (r *seasonRecordRepository) ListLines(ctx context.Context, season string) ([]*models.SeasonLine, error) {
	var lines []*models.SeasonLine
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT s.id, s.player_id, s.season, s.team, s.competition, s.appearances, s.goals, s.assists,
				s.yellow_cards, s.red_cards, s.minutes, s.age, s.elo, s.source, s.created_at,
				p.name, p.position, p.birth_date, p.team
			FROM season_records s JOIN players p ON p.id = s.player_id
			WHERE s.season = ?
			ORDER BY s.player_id, s.team, s.competition, s.id`, season)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			line, err := scanSeasonLine(rows)
			if err != nil {
				return err
			}
			lines = append(lines, line)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list season %s: %w", season, err)
	}
	return lines, nil
}

func scanSeasonLine(row rowScanner) (*models.SeasonLine, error) {
	var l models.SeasonLine
	var apps, goals, assists, yellow, red, minutes, age, elo sql.NullInt64
	var createdAt string
	err := row.Scan(&l.ID, &l.PlayerID, &l.Season, &l.Team, &l.Competition, &apps, &goals, &assists,
		&yellow, &red, &minutes, &age, &elo, &l.Source, &createdAt,
		&l.PlayerName, &l.Position, &l.BirthDate, &l.PlayerTeam)
	if err != nil {
		return nil, err
	}
	l.Appearances = intFrom(apps)
	l.Goals = intFrom(goals)
	l.Assists = intFrom(assists)
	l.YellowCards = intFrom(yellow)
	l.RedCards = intFrom(red)
	l.Minutes = intFrom(minutes)
	l.Age = intFrom(age)
	l.ELO = intFrom(elo)
	l.CreatedAt = models.ParseTimestamp(createdAt)
	return &l, nil
}

func (r *seasonRecordRepository) Update(ctx context.Context, record *models.SeasonRecord) error {
	if err := validateSeasonRecord(record); err != nil {
		return err
	}
	return r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		res, err := q.ExecContext(ctx, `
			UPDATE season_records SET season = ?, team = ?, competition = ?, appearances = ?, goals = ?,
				assists = ?, yellow_cards = ?, red_cards = ?, minutes = ?, age = ?, elo = ?, source = ?
			WHERE id = ?`,
			record.Season, record.Team, record.Competition, nullInt(record.Appearances), nullInt(record.Goals),
			nullInt(record.Assists), nullInt(record.YellowCards), nullInt(record.RedCards),
			nullInt(record.Minutes), nullInt(record.Age), nullInt(record.ELO), record.Source, record.ID)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("season %s already recorded: %w", record.Season, apperrors.ErrConflict)
			}
			return fmt.Errorf("failed to update season record: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("season record %d: %w", record.ID, apperrors.ErrNotFound)
		}

		row := q.QueryRowContext(ctx, `SELECT `+seasonColumns+` FROM season_records WHERE id = ?`, record.ID)
		stored, err := scanSeasonRecord(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("season record %d: %w", record.ID, apperrors.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to reload season record: %w", err)
		}
		*record = *stored
		return nil
	})
}

func (r *seasonRecordRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		res, err := q.ExecContext(ctx, `DELETE FROM season_records WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete season record: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("season record %d: %w", id, apperrors.ErrNotFound)
		}
		return nil
	})
}
