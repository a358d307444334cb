package database

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/migrations"
	"github.com/cac-scouting/scout-engine/pkg/apperrors"
)

type columnDef struct {
	name string
	decl string // must be valid for ALTER TABLE ADD COLUMN (nullable or with a default)
}

// schemaColumns lists every non-key column the code reads or writes.
// Tables created by older builds are brought up to this shape by adding
// whatever is missing; nothing is ever dropped or retyped.
var schemaColumns = map[string][]columnDef{
	"users": {
		{"password_hash", "TEXT NOT NULL DEFAULT ''"},
		{"display_name", "TEXT NOT NULL DEFAULT ''"},
		{"role", "TEXT NOT NULL DEFAULT 'scout'"},
		{"created_at", "TEXT NOT NULL DEFAULT ''"},
		{"updated_at", "TEXT NOT NULL DEFAULT ''"},
	},
	"players": {
		{"normalized_name", "TEXT NOT NULL DEFAULT ''"},
		{"external_id", "TEXT"},
		{"source_url", "TEXT NOT NULL DEFAULT ''"},
		{"birth_date", "TEXT NOT NULL DEFAULT ''"},
		{"nationality", "TEXT NOT NULL DEFAULT ''"},
		{"height_cm", "INTEGER"},
		{"weight_kg", "INTEGER"},
		{"foot", "TEXT NOT NULL DEFAULT ''"},
		{"position", "TEXT NOT NULL DEFAULT ''"},
		{"team", "TEXT NOT NULL DEFAULT ''"},
		{"shirt_number", "INTEGER"},
		{"market_value_keur", "REAL"},
		{"elo", "INTEGER"},
		{"photo_url", "TEXT NOT NULL DEFAULT ''"},
		{"revision", "INTEGER NOT NULL DEFAULT 1"},
		{"created_at", "TEXT NOT NULL DEFAULT ''"},
		{"updated_at", "TEXT NOT NULL DEFAULT ''"},
	},
	"season_records": {
		{"season", "TEXT NOT NULL DEFAULT ''"},
		{"team", "TEXT NOT NULL DEFAULT ''"},
		{"competition", "TEXT NOT NULL DEFAULT ''"},
		{"appearances", "INTEGER"},
		{"goals", "INTEGER"},
		{"assists", "INTEGER"},
		{"yellow_cards", "INTEGER"},
		{"red_cards", "INTEGER"},
		{"minutes", "INTEGER"},
		{"age", "INTEGER"},
		{"elo", "INTEGER"},
		{"source", "TEXT NOT NULL DEFAULT 'manual'"},
		{"created_at", "TEXT NOT NULL DEFAULT ''"},
	},
	"matches": {
		{"external_id", "TEXT"},
		{"home_team", "TEXT NOT NULL DEFAULT ''"},
		{"away_team", "TEXT NOT NULL DEFAULT ''"},
		{"match_date", "TEXT NOT NULL DEFAULT ''"},
		{"kick_off", "TEXT NOT NULL DEFAULT ''"},
		{"competition", "TEXT NOT NULL DEFAULT ''"},
		{"season", "TEXT NOT NULL DEFAULT ''"},
		{"status", "TEXT NOT NULL DEFAULT 'scheduled'"},
		{"home_score", "INTEGER"},
		{"away_score", "INTEGER"},
		{"home_crest", "TEXT NOT NULL DEFAULT ''"},
		{"away_crest", "TEXT NOT NULL DEFAULT ''"},
		{"source_url", "TEXT NOT NULL DEFAULT ''"},
		{"created_at", "TEXT NOT NULL DEFAULT ''"},
		{"updated_at", "TEXT NOT NULL DEFAULT ''"},
	},
	"match_lineups": {
		{"side", "TEXT NOT NULL DEFAULT 'home'"},
		{"player_name", "TEXT NOT NULL DEFAULT ''"},
		{"shirt_number", "INTEGER"},
		{"position", "TEXT NOT NULL DEFAULT ''"},
		{"is_starter", "INTEGER NOT NULL DEFAULT 0"},
		{"profile_url", "TEXT NOT NULL DEFAULT ''"},
		{"image_url", "TEXT NOT NULL DEFAULT ''"},
	},
	"reports": {
		{"match_id", "INTEGER REFERENCES matches(id) ON DELETE SET NULL"},
		{"author_id", "INTEGER REFERENCES users(id) ON DELETE SET NULL"},
		{"author_name", "TEXT NOT NULL DEFAULT ''"},
		{"template", "TEXT NOT NULL DEFAULT ''"},
		{"season", "TEXT NOT NULL DEFAULT ''"},
		{"match_date", "TEXT NOT NULL DEFAULT ''"},
		{"opponent", "TEXT NOT NULL DEFAULT ''"},
		{"minutes_observed", "INTEGER"},
		{"ratings", "TEXT NOT NULL DEFAULT '{}'"},
		{"traits", "TEXT NOT NULL DEFAULT '[]'"},
		{"observations", "TEXT NOT NULL DEFAULT ''"},
		{"recommendation", "TEXT NOT NULL DEFAULT ''"},
		{"confidence", "INTEGER"},
		{"revision", "INTEGER NOT NULL DEFAULT 1"},
		{"created_at", "TEXT NOT NULL DEFAULT ''"},
		{"updated_at", "TEXT NOT NULL DEFAULT ''"},
	},
	"attachments": {
		{"kind", "TEXT NOT NULL DEFAULT 'document'"},
		{"label", "TEXT NOT NULL DEFAULT ''"},
		{"file_path", "TEXT NOT NULL DEFAULT ''"},
		{"url", "TEXT NOT NULL DEFAULT ''"},
		{"thumbnail_path", "TEXT NOT NULL DEFAULT ''"},
		{"content_type", "TEXT NOT NULL DEFAULT ''"},
		{"size_bytes", "INTEGER NOT NULL DEFAULT 0"},
		{"created_at", "TEXT NOT NULL DEFAULT ''"},
	},
	"export_cache": {
		{"fingerprint", "TEXT NOT NULL DEFAULT ''"},
		{"file_path", "TEXT NOT NULL DEFAULT ''"},
		{"with_summary", "INTEGER NOT NULL DEFAULT 0"},
		{"generated_at", "TEXT NOT NULL DEFAULT ''"},
	},
	"filter_configs": {
		{"filters", "TEXT NOT NULL DEFAULT '{}'"},
		{"updated_at", "TEXT NOT NULL DEFAULT ''"},
	},
}

// EnsureSchema brings the database file to the current schema.
//
// Existing tables first get any missing columns (so indexes in later
// migrations can reference them), then pending migrations run, then the
// column pass repeats for tables the migrations just created. Safe to call on
// every startup; any failure is a FatalStorageError.
func EnsureSchema(ctx context.Context, db *DB, logger *zap.Logger) error {
	logger = logger.Named("schema")

	added, err := db.reconcileColumns(ctx, logger)
	if err != nil {
		return &apperrors.FatalStorageError{Op: "ensure schema", Err: err}
	}

	if err := RunMigrations(db.dsn, migrations.FS, logger); err != nil {
		return &apperrors.FatalStorageError{Op: "ensure schema", Err: err}
	}

	more, err := db.reconcileColumns(ctx, logger)
	if err != nil {
		return &apperrors.FatalStorageError{Op: "ensure schema", Err: err}
	}

	if added+more > 0 {
		logger.Info("Added missing columns", zap.Int("count", added+more))
	}
	return nil
}

// reconcileColumns adds catalogue columns missing from tables that already exist.
// It returns how many columns were added.
func (db *DB) reconcileColumns(ctx context.Context, logger *zap.Logger) (int, error) {
	added := 0
	err := db.WithTx(ctx, func(ctx context.Context, q Querier) error {
		for table, columns := range schemaColumns {
			existing, err := tableColumns(ctx, q, table)
			if err != nil {
				return err
			}
			if len(existing) == 0 {
				continue // created by migrations
			}

			for _, col := range columns {
				if existing[col.name] {
					continue
				}
				stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, col.name, col.decl)
				if _, err := q.ExecContext(ctx, stmt); err != nil {
					if strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
						continue
					}
					return fmt.Errorf("failed to add %s.%s: %w", table, col.name, err)
				}
				logger.Info("Added missing column",
					zap.String("table", table),
					zap.String("column", col.name))
				added++
			}
		}
		return nil
	})
	return added, err
}

// tableColumns returns the set of column names of table, empty if the table does not exist.
func tableColumns(ctx context.Context, q Querier, table string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// TableNames lists user tables, excluding SQLite internals and the migration bookkeeping table.
func (db *DB) TableNames(ctx context.Context) ([]string, error) {
	var names []string
	err := db.WithConnection(ctx, func(q Querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT name FROM sqlite_master
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name != 'schema_migrations'
			ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			names = append(names, name)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return names, nil
}

// Columns returns the column names of table. Exposed for schema tests and the CLI.
func (db *DB) Columns(ctx context.Context, table string) (map[string]bool, error) {
	var cols map[string]bool
	err := db.WithConnection(ctx, func(q Querier) error {
		var err error
		cols, err = tableColumns(ctx, q, table)
		return err
	})
	return cols, err
}
