package repositories

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cac-scouting/scout-engine/pkg/apperrors"
	"github.com/cac-scouting/scout-engine/pkg/database"
	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/templates"
)

// TemplateSource resolves report templates by name. *templates.Registry implements it.
type TemplateSource interface {
	Get(name string) (*templates.Template, bool)
}

// ReportRepository defines the interface for scouting report data access.
// Every write drops the cached exports of the affected players in the same
// transaction.
type ReportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id int64) (*models.Report, error)
	Find(ctx context.Context, filter models.ReportFilter) ([]*models.Report, error)
	ListByPlayer(ctx context.Context, playerID int64) ([]*models.Report, error)
	Update(ctx context.Context, report *models.Report) error
	Delete(ctx context.Context, id int64) error
	CountByPlayer(ctx context.Context, playerID int64) (int, error)

	AggregateForPlayer(ctx context.Context, playerID int64) (*models.Aggregate, error)
	// Fingerprint hashes the player's revision and current report set.
	Fingerprint(ctx context.Context, playerID int64) (string, error)
}

type reportRepository struct {
	db        *database.DB
	templates TemplateSource
	now       func() time.Time
}

// NewReportRepository creates a new report repository. With a nil template
// source, named templates are not checked and scores use the default range.
func NewReportRepository(db *database.DB, tpl TemplateSource) ReportRepository {
	return &reportRepository{db: db, templates: tpl, now: time.Now}
}

const reportColumns = `id, player_id, match_id, author_id, author_name, template, season, match_date, opponent,
	minutes_observed, ratings, traits, observations, recommendation, confidence, revision, created_at, updated_at`

// Reports are listed in timeline order: match day (or creation day), then creation time, then id.
const reportTimelineOrder = `COALESCE(NULLIF(match_date, ''), substr(created_at, 1, 10)), created_at, id`

func scanReport(row rowScanner) (*models.Report, error) {
	var r models.Report
	var matchID, authorID, minutes, confidence sql.NullInt64
	var ratings, traits, createdAt, updatedAt string
	err := row.Scan(&r.ID, &r.PlayerID, &matchID, &authorID, &r.AuthorName, &r.Template, &r.Season,
		&r.MatchDate, &r.Opponent, &minutes, &ratings, &traits, &r.Observations, &r.Recommendation,
		&confidence, &r.Revision, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	r.MatchID = int64From(matchID)
	r.AuthorID = int64From(authorID)
	r.MinutesObserved = intFrom(minutes)
	r.Confidence = intFrom(confidence)
	r.CreatedAt = models.ParseTimestamp(createdAt)
	r.UpdatedAt = models.ParseTimestamp(updatedAt)

	if err := json.Unmarshal([]byte(ratings), &r.Ratings); err != nil {
		return nil, fmt.Errorf("report %d has unreadable ratings: %w", r.ID, err)
	}
	if r.Ratings == nil {
		r.Ratings = models.Ratings{}
	}
	if err := json.Unmarshal([]byte(traits), &r.Traits); err != nil {
		return nil, fmt.Errorf("report %d has unreadable traits: %w", r.ID, err)
	}
	if r.Traits == nil {
		r.Traits = []string{}
	}
	return &r, nil
}

// validate checks everything that does not need the database.
func (r *reportRepository) validate(report *models.Report) error {
	report.Observations = strings.TrimSpace(report.Observations)
	report.Template = strings.TrimSpace(report.Template)

	if report.PlayerID <= 0 {
		return apperrors.NewValidationError("player_id", "is required")
	}
	if !report.HasContent() {
		return apperrors.NewValidationError("ratings", "a report needs at least one rating or an observation")
	}
	if !models.ValidDate(report.MatchDate) {
		return apperrors.NewValidationError("match_date", "must be YYYY-MM-DD")
	}

	lo, hi := float64(templates.DefaultMinScore), float64(templates.DefaultMaxScore)
	var tpl *templates.Template
	if report.Template != "" && r.templates != nil {
		t, ok := r.templates.Get(report.Template)
		if !ok {
			return apperrors.NewValidationError("template", "unknown template %q", report.Template)
		}
		tpl = t
		lo, hi = t.MinScore, t.MaxScore
	}

	for _, category := range report.Ratings.Categories() {
		if strings.TrimSpace(category) == "" {
			return apperrors.NewValidationError("ratings", "category name is required")
		}
		for metric, score := range report.Ratings[category] {
			field := fmt.Sprintf("ratings.%s.%s", category, metric)
			if !templates.InRange(score, lo, hi) {
				return apperrors.NewValidationError(field, "score %v outside %v-%v", score, lo, hi)
			}
			if tpl != nil && !tpl.Allows(category, metric) {
				return apperrors.NewValidationError(field, "not part of template %q", tpl.Name)
			}
		}
	}

	if c := report.Confidence; c != nil && (*c < 0 || *c > 100) {
		return apperrors.NewValidationError("confidence", "must be between 0 and 100")
	}
	if m := report.MinutesObserved; m != nil && *m < 0 {
		return apperrors.NewValidationError("minutes_observed", "must not be negative")
	}
	switch report.Recommendation {
	case "", models.RecommendationSign, models.RecommendationFollow, models.RecommendationDiscard:
	default:
		return apperrors.NewValidationError("recommendation", "must be one of %s", strings.Join(models.ValidRecommendations, ", "))
	}

	if report.Ratings == nil {
		report.Ratings = models.Ratings{}
	}
	if report.Traits == nil {
		report.Traits = []string{}
	}
	return nil
}

// checkReferences verifies the player and optional match exist.
func checkReferences(ctx context.Context, q database.Querier, report *models.Report) error {
	if _, err := getPlayer(ctx, q, report.PlayerID); err != nil {
		return err
	}
	if report.MatchID != nil {
		if _, err := getMatch(ctx, q, *report.MatchID); err != nil {
			return err
		}
	}
	return nil
}

func (r *reportRepository) Create(ctx context.Context, report *models.Report) error {
	if err := r.validate(report); err != nil {
		return err
	}
	ratings, err := marshalJSON(report.Ratings)
	if err != nil {
		return err
	}
	traits, err := marshalJSON(report.Traits)
	if err != nil {
		return err
	}

	return r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		if err := checkReferences(ctx, q, report); err != nil {
			return err
		}
		if report.AuthorID != nil && report.AuthorName == "" {
			user, err := getUser(ctx, q, *report.AuthorID)
			if err != nil {
				return err
			}
			report.AuthorName = user.DisplayName
			if report.AuthorName == "" {
				report.AuthorName = user.Username
			}
		}

		now := r.now().UTC()
		res, err := q.ExecContext(ctx, `
			INSERT INTO reports (player_id, match_id, author_id, author_name, template, season, match_date,
				opponent, minutes_observed, ratings, traits, observations, recommendation, confidence,
				revision, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			report.PlayerID, nullInt64(report.MatchID), nullInt64(report.AuthorID), report.AuthorName,
			report.Template, report.Season, report.MatchDate, report.Opponent, nullInt(report.MinutesObserved),
			ratings, traits, report.Observations, report.Recommendation, nullInt(report.Confidence),
			models.FormatTimestamp(now), models.FormatTimestamp(now))
		if err != nil {
			return fmt.Errorf("failed to create report: %w", err)
		}
		if report.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read report id: %w", err)
		}
		report.Revision = 1
		report.CreatedAt, report.UpdatedAt = now, now

		return invalidateExports(ctx, q, report.PlayerID)
	})
}

func (r *reportRepository) GetByID(ctx context.Context, id int64) (*models.Report, error) {
	var report *models.Report
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		var err error
		report, err = getReport(ctx, q, id)
		return err
	})
	return report, err
}

func getReport(ctx context.Context, q database.Querier, id int64) (*models.Report, error) {
	row := q.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %d: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

func (r *reportRepository) Find(ctx context.Context, filter models.ReportFilter) ([]*models.Report, error) {
	var (
		where []string
		args  []any
	)
	if filter.PlayerID > 0 {
		where = append(where, "player_id = ?")
		args = append(args, filter.PlayerID)
	}
	if filter.AuthorID > 0 {
		where = append(where, "author_id = ?")
		args = append(args, filter.AuthorID)
	}
	if filter.MatchID > 0 {
		where = append(where, "match_id = ?")
		args = append(args, filter.MatchID)
	}
	if filter.Recommendation != "" {
		where = append(where, "recommendation = ?")
		args = append(args, filter.Recommendation)
	}

	query := `SELECT ` + reportColumns + ` FROM reports`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + reportTimelineOrder + " LIMIT ? OFFSET ?"
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, max(filter.Offset, 0))

	var reports []*models.Report
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		var err error
		reports, err = queryReports(ctx, q, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

func queryReports(ctx context.Context, q database.Querier, query string, args ...any) ([]*models.Report, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	reports := []*models.Report{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// ListByPlayer returns the player's reports in timeline order.
func (r *reportRepository) ListByPlayer(ctx context.Context, playerID int64) ([]*models.Report, error) {
	var reports []*models.Report
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		if _, err := getPlayer(ctx, q, playerID); err != nil {
			return err
		}
		var err error
		reports, err = queryReports(ctx, q,
			`SELECT `+reportColumns+` FROM reports WHERE player_id = ? ORDER BY `+reportTimelineOrder, playerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// Update rewrites the editable fields of a report and bumps its revision.
// Author and creation time are kept from the stored row.
func (r *reportRepository) Update(ctx context.Context, report *models.Report) error {
	if err := r.validate(report); err != nil {
		return err
	}
	ratings, err := marshalJSON(report.Ratings)
	if err != nil {
		return err
	}
	traits, err := marshalJSON(report.Traits)
	if err != nil {
		return err
	}

	return r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		stored, err := getReport(ctx, q, report.ID)
		if err != nil {
			return err
		}
		if err := checkReferences(ctx, q, report); err != nil {
			return err
		}

		now := r.now().UTC()
		_, err = q.ExecContext(ctx, `
			UPDATE reports SET player_id = ?, match_id = ?, template = ?, season = ?, match_date = ?,
				opponent = ?, minutes_observed = ?, ratings = ?, traits = ?, observations = ?,
				recommendation = ?, confidence = ?, revision = revision + 1, updated_at = ?
			WHERE id = ?`,
			report.PlayerID, nullInt64(report.MatchID), report.Template, report.Season, report.MatchDate,
			report.Opponent, nullInt(report.MinutesObserved), ratings, traits, report.Observations,
			report.Recommendation, nullInt(report.Confidence), models.FormatTimestamp(now), report.ID)
		if err != nil {
			return fmt.Errorf("failed to update report: %w", err)
		}

		report.AuthorID = stored.AuthorID
		report.AuthorName = stored.AuthorName
		report.CreatedAt = stored.CreatedAt
		report.Revision = stored.Revision + 1
		report.UpdatedAt = now

		if err := invalidateExports(ctx, q, report.PlayerID); err != nil {
			return err
		}
		if stored.PlayerID != report.PlayerID {
			return invalidateExports(ctx, q, stored.PlayerID)
		}
		return nil
	})
}

// Delete removes the report; its attachment rows go with it.
func (r *reportRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		var playerID int64
		err := q.QueryRowContext(ctx, `SELECT player_id FROM reports WHERE id = ?`, id).Scan(&playerID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("report %d: %w", id, apperrors.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get report: %w", err)
		}

		if _, err := q.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete report: %w", err)
		}
		return invalidateExports(ctx, q, playerID)
	})
}

func (r *reportRepository) CountByPlayer(ctx context.Context, playerID int64) (int, error) {
	var n int
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		return q.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports WHERE player_id = ?`, playerID).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	return n, nil
}

// AggregateForPlayer averages every score of each category across the player's
// reports and lists one overall score per rated report in timeline order.
// A player without reports gets an empty aggregate.
func (r *reportRepository) AggregateForPlayer(ctx context.Context, playerID int64) (*models.Aggregate, error) {
	reports, err := r.ListByPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return BuildAggregate(playerID, reports), nil
}

// BuildAggregate computes the aggregate of reports, which must already be in timeline order.
func BuildAggregate(playerID int64, reports []*models.Report) *models.Aggregate {
	agg := &models.Aggregate{
		PlayerID:      playerID,
		ReportCount:   len(reports),
		CategoryMeans: map[string]float64{},
		Series:        []models.ScorePoint{},
	}

	sums := map[string]float64{}
	counts := map[string]int{}
	for _, report := range reports {
		for category, metrics := range report.Ratings {
			for _, v := range metrics {
				sums[category] += v
				counts[category]++
			}
		}
		if overall, ok := report.Ratings.Overall(); ok {
			agg.Series = append(agg.Series, models.ScorePoint{
				ReportID: report.ID,
				Date:     report.SeriesDate(),
				Score:    overall,
			})
		}
	}
	for category, sum := range sums {
		agg.CategoryMeans[category] = sum / float64(counts[category])
	}
	return agg
}

func (r *reportRepository) Fingerprint(ctx context.Context, playerID int64) (string, error) {
	var fp string
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		var err error
		fp, err = fingerprint(ctx, q, playerID)
		return err
	})
	return fp, err
}

type reportStamp struct {
	id        int64
	revision  int
	updatedAt string
}

func fingerprint(ctx context.Context, q database.Querier, playerID int64) (string, error) {
	var playerRevision int
	err := q.QueryRowContext(ctx, `SELECT revision FROM players WHERE id = ?`, playerID).Scan(&playerRevision)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("player %d: %w", playerID, apperrors.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read player revision: %w", err)
	}

	rows, err := q.QueryContext(ctx, `SELECT id, revision, updated_at FROM reports WHERE player_id = ?`, playerID)
	if err != nil {
		return "", fmt.Errorf("failed to read report stamps: %w", err)
	}
	defer rows.Close()

	var stamps []reportStamp
	for rows.Next() {
		var s reportStamp
		if err := rows.Scan(&s.id, &s.revision, &s.updatedAt); err != nil {
			return "", fmt.Errorf("failed to scan report stamp: %w", err)
		}
		stamps = append(stamps, s)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].id < stamps[j].id })

	h := sha256.New()
	fmt.Fprintf(h, "player:%d:%d\n", playerID, playerRevision)
	for _, s := range stamps {
		fmt.Fprintf(h, "report:%d:%d:%s\n", s.id, s.revision, s.updatedAt)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func invalidateExports(ctx context.Context, q database.Querier, playerID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM export_cache WHERE player_id = ?`, playerID); err != nil {
		return fmt.Errorf("failed to invalidate exports: %w", err)
	}
	return nil
}
