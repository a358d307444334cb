package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestConfig points the CLI at a fresh database under a temp dir and
// returns the directory.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`env: test
database:
  path: %s
storage:
  export_dir: %s
  upload_dir: %s
`, filepath.Join(dir, "scouting.db"), filepath.Join(dir, "exports"), filepath.Join(dir, "uploads"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return dir
}

// execute runs scoutctl with args and returns its standard output.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	// Flags are package globals; cobra only resets the ones it parses.
	resetYes, resetDryRun, resetBackupDir = false, false, ""
	userPassword, userDisplayName, userRole = "", "", "scout"
	catalogueSeason, catalogueSheet = "", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrateCommand(t *testing.T) {
	dir := writeTestConfig(t)

	out, err := execute(t, "", "migrate", "--config", filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "is current")
	assert.Contains(t, out, "players")
	assert.Contains(t, out, "reports")
	assert.FileExists(t, filepath.Join(dir, "scouting.db"))
}

func TestUserCreateCommand(t *testing.T) {
	dir := writeTestConfig(t)
	config := filepath.Join(dir, "config.yaml")

	out, err := execute(t, "", "user", "create", "marta",
		"--password", "scout-password", "--display-name", "Marta Ruiz", "--config", config)
	require.NoError(t, err)
	assert.Contains(t, out, "Created user marta")
	assert.Contains(t, out, "role scout")

	_, err = execute(t, "", "user", "create", "MARTA", "--password", "scout-password", "--config", config)
	assert.Error(t, err, "usernames are case-insensitive")

	_, err = execute(t, "", "user", "create", "pepe", "--password", "short", "--config", config)
	assert.Error(t, err)

	_, err = execute(t, "", "user", "create", "pepe", "--password", "long-enough", "--role", "owner", "--config", config)
	assert.Error(t, err)
}
