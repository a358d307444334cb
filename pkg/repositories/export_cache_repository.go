package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cac-scouting/scout-engine/pkg/database"
	"github.com/cac-scouting/scout-engine/pkg/models"
)

// ExportCacheRepository tracks which PDF was generated for which report set.
type ExportCacheRepository interface {
	// GetOrMarkStale returns the cached entry for (playerID, kind). fresh is true
	// only when the stored fingerprint equals fingerprint exactly; a stale entry
	// is returned so callers can remove its file.
	GetOrMarkStale(ctx context.Context, playerID int64, kind, fingerprint string) (entry *models.ExportCacheEntry, fresh bool, err error)
	// Record stores entry, replacing any previous one for the same player and kind.
	Record(ctx context.Context, entry *models.ExportCacheEntry) error
	Invalidate(ctx context.Context, playerID int64) error
	ListPaths(ctx context.Context) ([]string, error)
}

type exportCacheRepository struct {
	db *database.DB
}

// NewExportCacheRepository creates a new export cache repository.
func NewExportCacheRepository(db *database.DB) ExportCacheRepository {
	return &exportCacheRepository{db: db}
}

func (r *exportCacheRepository) GetOrMarkStale(ctx context.Context, playerID int64, kind, fingerprint string) (*models.ExportCacheEntry, bool, error) {
	var entry *models.ExportCacheEntry
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		var e models.ExportCacheEntry
		var withSummary int
		var generatedAt string
		err := q.QueryRowContext(ctx, `
			SELECT player_id, kind, fingerprint, file_path, with_summary, generated_at
			FROM export_cache WHERE player_id = ? AND kind = ?`, playerID, kind).
			Scan(&e.PlayerID, &e.Kind, &e.Fingerprint, &e.FilePath, &withSummary, &generatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		e.WithSummary = withSummary != 0
		e.GeneratedAt = models.ParseTimestamp(generatedAt)
		entry = &e
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to read export cache: %w", err)
	}
	if entry == nil {
		return nil, false, nil
	}
	return entry, fingerprint != "" && entry.Fingerprint == fingerprint, nil
}

func (r *exportCacheRepository) Record(ctx context.Context, entry *models.ExportCacheEntry) error {
	if entry.Kind == "" {
		entry.Kind = models.ExportKindDossier
	}
	if entry.GeneratedAt.IsZero() {
		entry.GeneratedAt = time.Now().UTC()
	}
	return r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO export_cache (player_id, kind, fingerprint, file_path, with_summary, generated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (player_id, kind) DO UPDATE SET
				fingerprint = excluded.fingerprint,
				file_path = excluded.file_path,
				with_summary = excluded.with_summary,
				generated_at = excluded.generated_at`,
			entry.PlayerID, entry.Kind, entry.Fingerprint, entry.FilePath, boolInt(entry.WithSummary),
			models.FormatTimestamp(entry.GeneratedAt))
		if err != nil {
			return fmt.Errorf("failed to record export: %w", err)
		}
		return nil
	})
}

func (r *exportCacheRepository) Invalidate(ctx context.Context, playerID int64) error {
	return r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		return invalidateExports(ctx, q, playerID)
	})
}

// ListPaths returns every cached export file, for cleanup tooling.
func (r *exportCacheRepository) ListPaths(ctx context.Context) ([]string, error) {
	var paths []string
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		rows, err := q.QueryContext(ctx, `SELECT file_path FROM export_cache WHERE file_path != ''`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				return err
			}
			paths = append(paths, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list export paths: %w", err)
	}
	return paths, nil
}
