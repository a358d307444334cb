package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/cac-scouting/scout-engine/pkg/apperrors"
	"github.com/cac-scouting/scout-engine/pkg/retry"
)

// WithConnection runs fn with read access to the database.
//
// Inside a WithTx scope fn runs on that transaction. Otherwise, with WAL
// enabled, fn runs concurrently with the writer; without WAL it takes the
// write lock. Busy errors are retried before surfacing as TransientStorageError.
func (db *DB) WithConnection(ctx context.Context, fn func(q Querier) error) error {
	if scope, ok := GetTxScope(ctx); ok {
		return fn(scope.Tx)
	}

	return db.guarded(ctx, "read", func() error {
		if !db.wal {
			db.writeMu.Lock()
			defer db.writeMu.Unlock()
		}
		return fn(db.sql)
	})
}

// WithTx runs fn inside a single write transaction holding the process-wide
// write lock. The lock is released and the transaction committed or rolled
// back on every exit path, including panics (which are re-raised).
//
// The context passed to fn carries the transaction, so repository calls made
// with it join the same unit of work. Nested WithTx calls reuse the outer
// transaction.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	if scope, ok := GetTxScope(ctx); ok {
		return fn(ctx, scope.Tx)
	}

	return db.guarded(ctx, "write", func() error {
		db.writeMu.Lock()
		defer db.writeMu.Unlock()
		return db.runTx(ctx, fn)
	})
}

func (db *DB) runTx(ctx context.Context, fn func(ctx context.Context, q Querier) error) (err error) {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(SetTxScope(ctx, &TxScope{Tx: tx}), tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("Failed to rollback transaction",
				zap.Error(err),
				zap.NamedError("rollback_error", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// attemptError marks one guarded attempt as retryable only when the store
// reported lock contention. Everything else fails on the first attempt.
type attemptError struct {
	err  error
	busy bool
}

func (e *attemptError) Error() string     { return e.err.Error() }
func (e *attemptError) Unwrap() error     { return e.err }
func (e *attemptError) IsRetryable() bool { return e.busy }

func (db *DB) guarded(ctx context.Context, op string, fn func() error) error {
	attempts := 0
	err := retry.DoIfRetryable(ctx, retry.StorageConfig(db.cfg.BusyRetries, db.cfg.BusyBackoff), func() error {
		attempts++
		if attempts > 1 && db.observer != nil {
			db.observer.BusyRetry(op)
		}
		if err := fn(); err != nil {
			return &attemptError{err: err, busy: IsBusy(err)}
		}
		return nil
	})
	if err == nil {
		return nil
	}

	var ae *attemptError
	if errors.As(err, &ae) {
		if ae.busy {
			if db.observer != nil {
				db.observer.BusyExhausted(op)
			}
			db.logger.Warn("Database stayed busy after retries",
				zap.String("op", op),
				zap.Int("attempts", attempts),
				zap.Error(ae.err))
			return &apperrors.TransientStorageError{Op: op, Err: ae.err}
		}
		return ae.err
	}
	return err
}

// IsBusy reports whether err is SQLite lock contention (SQLITE_BUSY or SQLITE_LOCKED,
// including their extended codes).
func IsBusy(err error) bool {
	if err == nil {
		return false
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsForeignKeyViolation reports whether err is a FOREIGN KEY constraint failure.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}

	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
