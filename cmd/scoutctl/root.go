package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/config"
	"github.com/cac-scouting/scout-engine/pkg/database"
	"github.com/cac-scouting/scout-engine/pkg/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "scoutctl",
	Short: "Operator tasks for scout-engine",
	Long: `scoutctl works directly on the scouting database file. It reads the same
config.yaml and environment variables as the server.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("scoutctl version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to config.yaml")
}

// app is the opened database and its settings, shared by every command.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.DB
}

// openApp loads configuration, opens the database and brings its schema up
// to date. Callers must Close the result.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadFrom(configPath, Version)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WAL:         cfg.Database.WAL,
		BusyRetries: cfg.Database.BusyRetries,
		BusyBackoff: cfg.Database.BusyBackoff(),
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, db: db}, nil
}

func (a *app) Close() {
	_ = a.db.Close()
	_ = a.logger.Sync()
}
