// Package database owns the single embedded SQLite file: opening it with the
// right pragmas, serialising writers, retrying on lock contention and
// keeping the schema current.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/cac-scouting/scout-engine/pkg/apperrors"
)

// Config holds database connection configuration.
type Config struct {
	Path          string
	WAL           bool          // enables concurrent readers alongside the single writer
	BusyTimeout   time.Duration // SQLite-level wait before reporting SQLITE_BUSY
	BusyRetries   int           // guard-level retries after SQLITE_BUSY surfaces
	BusyBackoff   time.Duration // initial delay between guard-level retries
	MaxOpenConns  int
	SkipIntegrity bool // skip PRAGMA quick_check on open (tests with throwaway files)
}

// Observer receives guard events. metrics.Manager implements it.
type Observer interface {
	BusyRetry(op string)
	BusyExhausted(op string)
}

// DB is the connection guard around the embedded database.
// Writers are serialised by writeMu; every repository call goes through
// WithConnection or WithTx.
type DB struct {
	sql      *sql.DB
	dsn      string
	path     string
	wal      bool
	cfg      Config
	writeMu  sync.Mutex
	observer Observer
	logger   *zap.Logger
}

// Querier is the subset of *sql.DB / *sql.Tx used by repositories.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (creating if needed) the database file at cfg.Path.
// Unwritable directories or a corrupt file are reported as FatalStorageError.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*DB, error) {
	if cfg.Path == "" {
		return nil, &apperrors.FatalStorageError{Op: "open", Err: fmt.Errorf("database path is required")}
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 2 * time.Second
	}
	if cfg.BusyBackoff == 0 {
		cfg.BusyBackoff = 25 * time.Millisecond
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 8
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &apperrors.FatalStorageError{Op: "open", Err: fmt.Errorf("failed to create database directory: %w", err)}
		}
	}

	dsn := buildDSN(cfg)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &apperrors.FatalStorageError{Op: "open", Err: err}
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, &apperrors.FatalStorageError{Op: "open", Err: fmt.Errorf("failed to ping database: %w", err)}
	}

	if !cfg.SkipIntegrity {
		var result string
		if err := conn.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
			conn.Close()
			return nil, &apperrors.FatalStorageError{Op: "integrity check", Err: err}
		}
		if result != "ok" {
			conn.Close()
			return nil, &apperrors.FatalStorageError{Op: "integrity check", Err: fmt.Errorf("quick_check: %s", result)}
		}
	}

	return &DB{
		sql:    conn,
		dsn:    dsn,
		path:   cfg.Path,
		wal:    cfg.WAL,
		cfg:    cfg,
		logger: logger.Named("database"),
	}, nil
}

// buildDSN sets pragmas per connection so every pooled handle gets them.
func buildDSN(cfg Config) string {
	pragmas := []string{
		"foreign_keys(1)",
		fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()),
		"synchronous(NORMAL)",
	}
	if cfg.WAL {
		pragmas = append(pragmas, "journal_mode(WAL)")
	}

	var b strings.Builder
	b.WriteString("file:")
	b.WriteString(cfg.Path)
	b.WriteString("?_txlock=immediate")
	for _, p := range pragmas {
		b.WriteString("&_pragma=")
		b.WriteString(p)
	}
	return b.String()
}

// SetObserver installs the receiver for guard events.
func (db *DB) SetObserver(o Observer) {
	db.observer = o
}

// Path returns the database file location.
func (db *DB) Path() string {
	return db.path
}

// WALEnabled reports whether concurrent readers bypass the write lock.
func (db *DB) WALEnabled() bool {
	return db.wal
}

// Close closes the underlying handle. The DB must not be used afterwards.
func (db *DB) Close() error {
	return db.sql.Close()
}

// Ping verifies the file is still reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.sql.PingContext(ctx)
}

// Vacuum rebuilds the file to reclaim space. It holds the write lock and
// cannot run inside a transaction.
func (db *DB) Vacuum(ctx context.Context) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	if _, err := db.sql.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum: %w", err)
	}
	return nil
}

// BackupTo writes a consistent copy of the database to path with VACUUM INTO.
// Unlike a file copy it includes pages still in the WAL. path must not exist.
func (db *DB) BackupTo(ctx context.Context, path string) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	if _, err := db.sql.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("failed to back up to %s: %w", path, err)
	}
	return nil
}
