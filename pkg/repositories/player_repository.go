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
	"github.com/cac-scouting/scout-engine/pkg/dedupe"
	"github.com/cac-scouting/scout-engine/pkg/models"
)

// MergeResult reports what CreateOrMerge did with a candidate.
type MergeResult struct {
	PlayerID   int64          `json:"player_id,omitempty"`
	Created    bool           `json:"created"`
	Outcome    dedupe.Outcome `json:"outcome"`
	Candidates []int64        `json:"candidates,omitempty"` // set when Outcome is Ambiguous
}

// PlayerRepository defines the interface for player data access.
type PlayerRepository interface {
	Create(ctx context.Context, player *models.Player) error
	GetByID(ctx context.Context, id int64) (*models.Player, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Player, error)
	Find(ctx context.Context, filter models.PlayerFilter) ([]*models.Player, error)
	Update(ctx context.Context, player *models.Player) error
	Delete(ctx context.Context, id int64) error

	// CreateOrMerge stores candidate as a new player or merges it into the one
	// stored player it matches. Ambiguous matches write nothing and return the
	// candidate ids for manual confirmation.
	CreateOrMerge(ctx context.Context, candidate *models.Player) (*MergeResult, error)
	// MergeInto merges candidate into player id regardless of the matcher.
	MergeInto(ctx context.Context, id int64, candidate *models.Player) (*models.Player, error)

	ListTeams(ctx context.Context) ([]string, error)
	// BackfillNormalizedNames fills normalized_name for rows written before it existed.
	BackfillNormalizedNames(ctx context.Context) (int, error)
}

type playerRepository struct {
	db  *database.DB
	now func() time.Time
}

// NewPlayerRepository creates a new player repository.
func NewPlayerRepository(db *database.DB) PlayerRepository {
	return &playerRepository{db: db, now: time.Now}
}

const playerColumns = `id, name, normalized_name, external_id, source_url, birth_date, nationality,
	height_cm, weight_kg, foot, position, team, shirt_number, market_value_keur, elo, photo_url,
	revision, created_at, updated_at`

func scanPlayer(row rowScanner) (*models.Player, error) {
	var p models.Player
	var externalID sql.NullString
	var height, weight, shirt, elo sql.NullInt64
	var value sql.NullFloat64
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.Name, &p.NormalizedName, &externalID, &p.SourceURL, &p.BirthDate,
		&p.Nationality, &height, &weight, &p.Foot, &p.Position, &p.Team, &shirt, &value, &elo,
		&p.PhotoURL, &p.Revision, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	p.ExternalID = externalID.String
	p.HeightCM = intFrom(height)
	p.WeightKG = intFrom(weight)
	p.ShirtNumber = intFrom(shirt)
	p.MarketValueKEUR = floatFrom(value)
	p.ELO = intFrom(elo)
	p.CreatedAt = models.ParseTimestamp(createdAt)
	p.UpdatedAt = models.ParseTimestamp(updatedAt)
	return &p, nil
}

func validatePlayer(p *models.Player) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return apperrors.NewValidationError("name", "is required")
	}
	if dedupe.Normalize(p.Name) == "" {
		return apperrors.NewValidationError("name", "must contain letters or digits")
	}
	if !models.ValidDate(p.BirthDate) {
		return apperrors.NewValidationError("birth_date", "must be YYYY-MM-DD")
	}
	for field, v := range map[string]*int{"height_cm": p.HeightCM, "weight_kg": p.WeightKG, "shirt_number": p.ShirtNumber, "elo": p.ELO} {
		if v != nil && *v < 0 {
			return apperrors.NewValidationError(field, "must not be negative")
		}
	}
	if p.MarketValueKEUR != nil && *p.MarketValueKEUR < 0 {
		return apperrors.NewValidationError("market_value_keur", "must not be negative")
	}
	return nil
}

func (r *playerRepository) Create(ctx context.Context, player *models.Player) error {
	if err := validatePlayer(player); err != nil {
		return err
	}
	return r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		return r.insert(ctx, q, player)
	})
}

func (r *playerRepository) insert(ctx context.Context, q database.Querier, p *models.Player) error {
	now := r.now().UTC()
	p.NormalizedName = dedupe.Normalize(p.Name)
	p.Revision = 1
	p.CreatedAt = now
	p.UpdatedAt = now

	res, err := q.ExecContext(ctx, `
		INSERT INTO players (name, normalized_name, external_id, source_url, birth_date, nationality,
			height_cm, weight_kg, foot, position, team, shirt_number, market_value_keur, elo, photo_url,
			revision, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.NormalizedName, nullText(p.ExternalID), p.SourceURL, p.BirthDate, p.Nationality,
		nullInt(p.HeightCM), nullInt(p.WeightKG), p.Foot, p.Position, p.Team, nullInt(p.ShirtNumber),
		nullFloat(p.MarketValueKEUR), nullInt(p.ELO), p.PhotoURL,
		p.Revision, models.FormatTimestamp(now), models.FormatTimestamp(now))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("player with external id %q already exists: %w", p.ExternalID, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create player: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read player id: %w", err)
	}
	p.ID = id
	return nil
}

func (r *playerRepository) GetByID(ctx context.Context, id int64) (*models.Player, error) {
	var player *models.Player
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		var err error
		player, err = getPlayer(ctx, q, id)
		return err
	})
	return player, err
}

func getPlayer(ctx context.Context, q database.Querier, id int64) (*models.Player, error) {
	row := q.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE id = ?`, id)
	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player %d: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return p, nil
}

func (r *playerRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Player, error) {
	var player *models.Player
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		var err error
		player, err = getPlayerByExternalID(ctx, q, externalID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if player == nil {
		return nil, fmt.Errorf("player with external id %q: %w", externalID, apperrors.ErrNotFound)
	}
	return player, nil
}

// getPlayerByExternalID returns nil, nil when no row carries the id.
func getPlayerByExternalID(ctx context.Context, q database.Querier, externalID string) (*models.Player, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, nil
	}
	row := q.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE external_id = ?`, externalID)
	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player by external id: %w", err)
	}
	return p, nil
}

func (r *playerRepository) Find(ctx context.Context, filter models.PlayerFilter) ([]*models.Player, error) {
	var (
		where []string
		args  []any
	)
	if q := dedupe.Normalize(filter.Query); q != "" {
		where = append(where, "normalized_name LIKE ?")
		args = append(args, "%"+q+"%")
	}
	for column, value := range map[string]string{
		"team":        filter.Team,
		"position":    filter.Position,
		"nationality": filter.Nationality,
		"foot":        filter.Foot,
	} {
		if value = strings.TrimSpace(value); value != "" {
			where = append(where, column+" = ? COLLATE NOCASE")
			args = append(args, value)
		}
	}

	today := r.now().UTC()
	if filter.MinAge > 0 {
		// Old enough: born on or before today minus MinAge years.
		where = append(where, "birth_date != '' AND birth_date <= ?")
		args = append(args, today.AddDate(-filter.MinAge, 0, 0).Format(models.DateLayout))
	}
	if filter.MaxAge > 0 {
		where = append(where, "birth_date != '' AND birth_date > ?")
		args = append(args, today.AddDate(-filter.MaxAge-1, 0, 0).Format(models.DateLayout))
	}
	if filter.WithReports {
		where = append(where, "EXISTS (SELECT 1 FROM reports WHERE reports.player_id = players.id)")
	}

	query := `SELECT ` + playerColumns + ` FROM players`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name COLLATE NOCASE, id"

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, max(filter.Offset, 0))

	var players []*models.Player
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanPlayer(rows)
			if err != nil {
				return err
			}
			players = append(players, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find players: %w", err)
	}
	return players, nil
}

func (r *playerRepository) Update(ctx context.Context, player *models.Player) error {
	if err := validatePlayer(player); err != nil {
		return err
	}
	return r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		return r.update(ctx, q, player)
	})
}

// update writes every column of p and bumps its revision.
func (r *playerRepository) update(ctx context.Context, q database.Querier, p *models.Player) error {
	now := r.now().UTC()
	p.NormalizedName = dedupe.Normalize(p.Name)

	res, err := q.ExecContext(ctx, `
		UPDATE players SET name = ?, normalized_name = ?, external_id = ?, source_url = ?,
			birth_date = ?, nationality = ?, height_cm = ?, weight_kg = ?, foot = ?, position = ?,
			team = ?, shirt_number = ?, market_value_keur = ?, elo = ?, photo_url = ?,
			revision = revision + 1, updated_at = ?
		WHERE id = ?`,
		p.Name, p.NormalizedName, nullText(p.ExternalID), p.SourceURL, p.BirthDate, p.Nationality,
		nullInt(p.HeightCM), nullInt(p.WeightKG), p.Foot, p.Position, p.Team, nullInt(p.ShirtNumber),
		nullFloat(p.MarketValueKEUR), nullInt(p.ELO), p.PhotoURL,
		models.FormatTimestamp(now), p.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("player with external id %q already exists: %w", p.ExternalID, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to update player: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("player %d: %w", p.ID, apperrors.ErrNotFound)
	}

	if err := q.QueryRowContext(ctx, `SELECT revision FROM players WHERE id = ?`, p.ID).Scan(&p.Revision); err != nil {
		return fmt.Errorf("failed to read player revision: %w", err)
	}
	p.UpdatedAt = now
	return nil
}

// Delete removes the player. Season records, reports (and their attachments)
// and cached exports go with it through ON DELETE CASCADE.
func (r *playerRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		res, err := q.ExecContext(ctx, `DELETE FROM players WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete player: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("player %d: %w", id, apperrors.ErrNotFound)
		}
		return nil
	})
}

func (r *playerRepository) CreateOrMerge(ctx context.Context, candidate *models.Player) (*MergeResult, error) {
	if err := validatePlayer(candidate); err != nil {
		return nil, err
	}

	var result *MergeResult
	err := r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		stored, err := getPlayerByExternalID(ctx, q, candidate.ExternalID)
		if err != nil {
			return err
		}
		if stored != nil {
			if err := r.merge(ctx, q, stored, candidate); err != nil {
				return err
			}
			result = &MergeResult{PlayerID: stored.ID, Outcome: dedupe.Same}
			return nil
		}

		namesakes, err := playersByNormalizedName(ctx, q, dedupe.Normalize(candidate.Name))
		if err != nil {
			return err
		}

		incoming := candidateOf(candidate)
		var same, ambiguous []int64
		var target *models.Player
		for _, p := range namesakes {
			switch dedupe.Match(candidateOf(p), incoming) {
			case dedupe.Same:
				same = append(same, p.ID)
				target = p
			case dedupe.Ambiguous:
				ambiguous = append(ambiguous, p.ID)
			}
		}

		switch {
		case len(same) == 1 && len(ambiguous) == 0:
			if err := r.merge(ctx, q, target, candidate); err != nil {
				return err
			}
			result = &MergeResult{PlayerID: target.ID, Outcome: dedupe.Same}
		case len(same) == 0 && len(ambiguous) == 0:
			if err := r.insert(ctx, q, candidate); err != nil {
				return err
			}
			result = &MergeResult{PlayerID: candidate.ID, Created: true, Outcome: dedupe.Different}
		default:
			result = &MergeResult{Outcome: dedupe.Ambiguous, Candidates: append(same, ambiguous...)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *playerRepository) MergeInto(ctx context.Context, id int64, candidate *models.Player) (*models.Player, error) {
	var merged *models.Player
	err := r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		stored, err := getPlayer(ctx, q, id)
		if err != nil {
			return err
		}
		if err := r.merge(ctx, q, stored, candidate); err != nil {
			return err
		}
		merged = stored
		return nil
	})
	return merged, err
}

// merge copies populated incoming fields onto stored and persists the result
// when anything changed.
func (r *playerRepository) merge(ctx context.Context, q database.Querier, stored, incoming *models.Player) error {
	if !mergePlayer(stored, incoming) {
		return nil
	}
	return r.update(ctx, q, stored)
}

// mergePlayer applies incoming onto stored. Empty incoming values never blank a
// populated field, and an external id is only adopted when stored has none.
// It reports whether stored changed.
func mergePlayer(stored, incoming *models.Player) bool {
	changed := false
	text := func(dst *string, src string) {
		if src = strings.TrimSpace(src); src != "" && src != *dst {
			*dst = src
			changed = true
		}
	}
	// Names and teams only change when they differ beyond accents and case.
	label := func(dst *string, src string) {
		if src = strings.TrimSpace(src); src != "" && dedupe.Normalize(src) != dedupe.Normalize(*dst) {
			*dst = src
			changed = true
		}
	}
	number := func(dst **int, src *int) {
		if src != nil && (*dst == nil || **dst != *src) {
			v := *src
			*dst = &v
			changed = true
		}
	}

	if stored.ExternalID == "" {
		text(&stored.ExternalID, incoming.ExternalID)
	}
	label(&stored.Name, incoming.Name)
	text(&stored.SourceURL, incoming.SourceURL)
	text(&stored.BirthDate, incoming.BirthDate)
	text(&stored.Nationality, incoming.Nationality)
	text(&stored.Foot, incoming.Foot)
	text(&stored.Position, incoming.Position)
	label(&stored.Team, incoming.Team)
	text(&stored.PhotoURL, incoming.PhotoURL)
	number(&stored.HeightCM, incoming.HeightCM)
	number(&stored.WeightKG, incoming.WeightKG)
	number(&stored.ShirtNumber, incoming.ShirtNumber)
	number(&stored.ELO, incoming.ELO)
	if v := incoming.MarketValueKEUR; v != nil && (stored.MarketValueKEUR == nil || *stored.MarketValueKEUR != *v) {
		value := *v
		stored.MarketValueKEUR = &value
		changed = true
	}
	return changed
}

func candidateOf(p *models.Player) dedupe.Candidate {
	return dedupe.Candidate{
		Name:       p.Name,
		ExternalID: p.ExternalID,
		BirthDate:  p.BirthDate,
		Team:       p.Team,
	}
}

func playersByNormalizedName(ctx context.Context, q database.Querier, normalized string) ([]*models.Player, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+playerColumns+` FROM players WHERE normalized_name = ? ORDER BY id`, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to look up namesakes: %w", err)
	}
	defer rows.Close()

	var players []*models.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func (r *playerRepository) ListTeams(ctx context.Context) ([]string, error) {
	var teams []string
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		rows, err := q.QueryContext(ctx, `SELECT DISTINCT team FROM players WHERE team != '' ORDER BY team COLLATE NOCASE`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var team string
			if err := rows.Scan(&team); err != nil {
				return err
			}
			teams = append(teams, team)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	return teams, nil
}

func (r *playerRepository) BackfillNormalizedNames(ctx context.Context) (int, error) {
	updated := 0
	err := r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		rows, err := q.QueryContext(ctx, `SELECT id, name FROM players WHERE normalized_name = ''`)
		if err != nil {
			return err
		}
		pending := map[int64]string{}
		for rows.Next() {
			var id int64
			var name string
			if err := rows.Scan(&id, &name); err != nil {
				rows.Close()
				return err
			}
			pending[id] = dedupe.Normalize(name)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for id, normalized := range pending {
			if normalized == "" {
				continue
			}
			if _, err := q.ExecContext(ctx, `UPDATE players SET normalized_name = ? WHERE id = ?`, normalized, id); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to backfill normalized names: %w", err)
	}
	return updated, nil
}
