package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cac-scouting/scout-engine/pkg/database"
	"github.com/cac-scouting/scout-engine/pkg/storage"
)

// resetTables are the player, report and match tables, children first.
// Accounts and saved filters survive a reset.
var resetTables = []string{
	"attachments",
	"export_cache",
	"reports",
	"match_lineups",
	"season_records",
	"matches",
	"players",
}

const resetConfirmation = "DELETE"

var (
	resetYes       bool
	resetDryRun    bool
	resetBackupDir string
)

var resetDataCmd = &cobra.Command{
	Use:   "reset-data",
	Short: "Delete every player, report and match",
	Long: `Backs up the database, empties the player, report and match tables in
foreign key order, removes their uploaded and exported files and compacts the
file. User accounts and saved filters are kept.

Examples:
  scoutctl reset-data --dry-run   # Show what would be deleted
  scoutctl reset-data --yes       # Skip the confirmation prompt`,
	Args: cobra.NoArgs,
	RunE: runResetData,
}

func init() {
	resetDataCmd.Flags().BoolVar(&resetYes, "yes", false, "Do not ask for confirmation")
	resetDataCmd.Flags().BoolVar(&resetDryRun, "dry-run", false, "Only show what would be deleted")
	resetDataCmd.Flags().StringVar(&resetBackupDir, "backup-dir", "", "Backup directory (default: backups/ next to the database)")
	rootCmd.AddCommand(resetDataCmd)
}

// resetPlan lists the tables a reset empties and their current row counts.
type resetPlan struct {
	Tables []string
	Rows   map[string]int64
}

// resetResult is what a reset removed.
type resetResult struct {
	Deleted map[string]int64
	Uploads []string // upload-relative paths of attachment files
	Exports []string // export-relative names of cached dossiers
}

func runResetData(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	plan, err := planReset(ctx, a.db)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Tables to empty, in order:")
	for _, t := range plan.Tables {
		fmt.Fprintf(out, "  - %-16s %d rows\n", t, plan.Rows[t])
	}
	if resetDryRun {
		fmt.Fprintln(out, "Dry run: nothing was deleted.")
		return nil
	}

	if !resetYes {
		ok, err := confirm(cmd.InOrStdin(), out)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("reset cancelled")
		}
	}

	dir := resetBackupDir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(a.db.Path()), "backups")
	}
	backup, err := backupDatabase(ctx, a.db, dir, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Backup written to %s\n", backup)

	result, err := wipeData(ctx, a.db, plan)
	if err != nil {
		return err
	}

	store, err := storage.New(storage.Config{
		UploadDir: a.cfg.Storage.UploadDir,
		ExportDir: a.cfg.Storage.ExportDir,
	}, a.logger)
	if err != nil {
		return err
	}
	store.RemoveUploads(result.Uploads)
	store.RemoveExports(result.Exports)

	if err := a.db.Vacuum(ctx); err != nil {
		return err
	}

	for _, t := range plan.Tables {
		fmt.Fprintf(out, "  emptied %-16s %d rows\n", t, result.Deleted[t])
	}
	fmt.Fprintf(out, "Removed %d uploaded and %d exported files. Restore by replacing the database with the backup.\n",
		len(result.Uploads), len(result.Exports))
	return nil
}

// confirm asks the operator to type the confirmation word.
func confirm(in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprintf(out, "This deletes ALL rows of the tables above. Type %s to continue: ", resetConfirmation)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	return strings.TrimSpace(line) == resetConfirmation, nil
}

// planReset returns the reset tables present in the database with their row counts.
func planReset(ctx context.Context, db *database.DB) (*resetPlan, error) {
	existing, err := db.TableNames(ctx)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(existing))
	for _, t := range existing {
		present[t] = true
	}

	plan := &resetPlan{Rows: make(map[string]int64)}
	err = db.WithConnection(ctx, func(q database.Querier) error {
		for _, t := range resetTables {
			if !present[t] {
				continue
			}
			var n int64
			// Table names come from the fixed list above.
			if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t).Scan(&n); err != nil {
				return fmt.Errorf("failed to count %s: %w", t, err)
			}
			plan.Tables = append(plan.Tables, t)
			plan.Rows[t] = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// backupDatabase writes <dir>/<file>.<timestamp>.bak and returns its path.
func backupDatabase(ctx context.Context, db *database.DB, dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.%s.bak", filepath.Base(db.Path()), now.Format("20060102_150405")))
	if err := db.BackupTo(ctx, path); err != nil {
		return "", err
	}
	return path, nil
}

// wipeData empties the planned tables in one transaction and returns the
// stored files the deleted rows referenced.
func wipeData(ctx context.Context, db *database.DB, plan *resetPlan) (*resetResult, error) {
	result := &resetResult{Deleted: make(map[string]int64)}
	err := db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		result.Uploads, result.Exports = nil, nil
		if plan.Rows["attachments"] > 0 {
			rows, err := q.QueryContext(ctx, `SELECT file_path, thumbnail_path FROM attachments`)
			if err != nil {
				return fmt.Errorf("failed to list attachment files: %w", err)
			}
			for rows.Next() {
				var file, thumb string
				if err := rows.Scan(&file, &thumb); err != nil {
					rows.Close()
					return err
				}
				for _, p := range []string{file, thumb} {
					if p != "" {
						result.Uploads = append(result.Uploads, p)
					}
				}
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return err
			}
		}
		if plan.Rows["export_cache"] > 0 {
			rows, err := q.QueryContext(ctx, `SELECT file_path FROM export_cache`)
			if err != nil {
				return fmt.Errorf("failed to list export files: %w", err)
			}
			for rows.Next() {
				var name string
				if err := rows.Scan(&name); err != nil {
					rows.Close()
					return err
				}
				result.Exports = append(result.Exports, name)
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return err
			}
		}

		for _, t := range plan.Tables {
			res, err := q.ExecContext(ctx, "DELETE FROM "+t)
			if err != nil {
				return fmt.Errorf("failed to empty %s: %w", t, err)
			}
			n, _ := res.RowsAffected()
			result.Deleted[t] = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
