package testhelpers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/database"
)

// NewTestDB opens a fresh, fully migrated database file under t.TempDir().
// The handle is closed when the test finishes.
func NewTestDB(t *testing.T) *database.DB {
	t.Helper()
	return NewTestDBWithConfig(t, database.Config{WAL: true})
}

// NewTestDBWithConfig is NewTestDB with caller-controlled guard settings.
// Path is always replaced with a temp file.
func NewTestDBWithConfig(t *testing.T, cfg database.Config) *database.DB {
	t.Helper()

	cfg.Path = filepath.Join(t.TempDir(), "scouting.db")
	cfg.SkipIntegrity = true
	if cfg.BusyRetries == 0 {
		cfg.BusyRetries = 10
	}

	ctx := context.Background()
	db, err := database.Open(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.EnsureSchema(ctx, db, zap.NewNop()))
	return db
}
