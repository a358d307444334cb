package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cac-scouting/scout-engine/pkg/apperrors"
	"github.com/cac-scouting/scout-engine/pkg/database"
	"github.com/cac-scouting/scout-engine/pkg/models"
)

// FilterConfigRepository stores named catalogue filters per user.
type FilterConfigRepository interface {
	// Save creates or replaces the user's filter with the same name.
	Save(ctx context.Context, config *models.FilterConfig) error
	ListByUser(ctx context.Context, userID int64) ([]*models.FilterConfig, error)
	Delete(ctx context.Context, userID int64, name string) error
}

type filterConfigRepository struct {
	db *database.DB
}

// NewFilterConfigRepository creates a new filter config repository.
func NewFilterConfigRepository(db *database.DB) FilterConfigRepository {
	return &filterConfigRepository{db: db}
}

func (r *filterConfigRepository) Save(ctx context.Context, config *models.FilterConfig) error {
	config.Name = strings.TrimSpace(config.Name)
	if config.Name == "" {
		return apperrors.NewValidationError("name", "is required")
	}
	filters, err := marshalJSON(config.Filters)
	if err != nil {
		return err
	}

	return r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		now := time.Now().UTC()
		_, err := q.ExecContext(ctx, `
			INSERT INTO filter_configs (user_id, name, filters, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, name) DO UPDATE SET filters = excluded.filters, updated_at = excluded.updated_at`,
			config.UserID, config.Name, filters, models.FormatTimestamp(now))
		if err != nil {
			if database.IsForeignKeyViolation(err) {
				return fmt.Errorf("user %d: %w", config.UserID, apperrors.ErrNotFound)
			}
			return fmt.Errorf("failed to save filter: %w", err)
		}
		if err := q.QueryRowContext(ctx, `SELECT id FROM filter_configs WHERE user_id = ? AND name = ?`,
			config.UserID, config.Name).Scan(&config.ID); err != nil {
			return fmt.Errorf("failed to read filter id: %w", err)
		}
		config.UpdatedAt = now
		return nil
	})
}

func (r *filterConfigRepository) ListByUser(ctx context.Context, userID int64) ([]*models.FilterConfig, error) {
	configs := []*models.FilterConfig{}
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		rows, err := q.QueryContext(ctx, `SELECT id, user_id, name, filters, updated_at FROM filter_configs
			WHERE user_id = ? ORDER BY name COLLATE NOCASE`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var c models.FilterConfig
			var filters, updatedAt string
			if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &filters, &updatedAt); err != nil {
				return err
			}
			if err := json.Unmarshal([]byte(filters), &c.Filters); err != nil {
				return fmt.Errorf("filter %q has unreadable settings: %w", c.Name, err)
			}
			c.UpdatedAt = models.ParseTimestamp(updatedAt)
			configs = append(configs, &c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list filters: %w", err)
	}
	return configs, nil
}

func (r *filterConfigRepository) Delete(ctx context.Context, userID int64, name string) error {
	return r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		res, err := q.ExecContext(ctx, `DELETE FROM filter_configs WHERE user_id = ? AND name = ?`, userID, strings.TrimSpace(name))
		if err != nil {
			return fmt.Errorf("failed to delete filter: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("filter %q: %w", name, apperrors.ErrNotFound)
		}
		return nil
	})
}
