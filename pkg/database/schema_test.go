package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEnsureSchema_FreshDatabase(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Config{Path: filepath.Join(t.TempDir(), "fresh.db"), WAL: true}, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, EnsureSchema(ctx, db, zap.NewNop()))

	tables, err := db.TableNames(ctx)
	require.NoError(t, err)
	for table := range schemaColumns {
		assert.Contains(t, tables, table)
	}

	for table, columns := range schemaColumns {
		cols, err := db.Columns(ctx, table)
		require.NoError(t, err)
		for _, col := range columns {
			assert.True(t, cols[col.name], "%s.%s should exist", table, col.name)
		}
	}
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Config{Path: filepath.Join(t.TempDir(), "twice.db"), WAL: true}, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, EnsureSchema(ctx, db, zap.NewNop()))
	_, err = db.sql.Exec(`INSERT INTO players (name, created_at, updated_at) VALUES ('Pedri', '', '')`)
	require.NoError(t, err)

	require.NoError(t, EnsureSchema(ctx, db, zap.NewNop()))

	var count int
	require.NoError(t, db.sql.QueryRow(`SELECT COUNT(*) FROM players`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestEnsureSchema_UpgradesLegacyTables(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	db, err := Open(ctx, Config{Path: path}, zap.NewNop())
	require.NoError(t, err)
	_, err = db.sql.Exec(`
		CREATE TABLE players (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			team TEXT
		);
		INSERT INTO players (name, team) VALUES ('Nico Williams', 'Athletic Club');
		CREATE TABLE reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			player_id INTEGER NOT NULL REFERENCES players(id),
			observations TEXT
		);
		INSERT INTO reports (player_id, observations) VALUES (1, 'Desborde constante');
	`)
	require.NoError(t, err)

	require.NoError(t, EnsureSchema(ctx, db, zap.NewNop()))

	cols, err := db.Columns(ctx, "players")
	require.NoError(t, err)
	assert.True(t, cols["normalized_name"])
	assert.True(t, cols["external_id"])
	assert.True(t, cols["revision"])

	var name string
	var revision int
	require.NoError(t, db.sql.QueryRow(`SELECT name, revision FROM players WHERE id = 1`).Scan(&name, &revision))
	assert.Equal(t, "Nico Williams", name, "existing rows are preserved")
	assert.Equal(t, 1, revision, "added columns take their default")

	var ratings string
	require.NoError(t, db.sql.QueryRow(`SELECT ratings FROM reports WHERE id = 1`).Scan(&ratings))
	assert.Equal(t, "{}", ratings)

	tables, err := db.TableNames(ctx)
	require.NoError(t, err)
	assert.Contains(t, tables, "export_cache", "missing tables are created")
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Config{}, zap.NewNop())
	require.Error(t, err)
}
