package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cac-scouting/scout-engine/pkg/apperrors"
	"github.com/cac-scouting/scout-engine/pkg/database"
	"github.com/cac-scouting/scout-engine/pkg/models"
)

// UserRepository defines the interface for user data access.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	CountAdmins(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
	// Delete removes a user. Their reports stay, with author_id cleared and
	// the author name snapshot kept. Removing the last admin returns ErrLastAdmin.
	Delete(ctx context.Context, id int64) error
}

type userRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *database.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, username, password_hash, display_name, role, created_at, updated_at`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var createdAt, updatedAt string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.DisplayName, &u.Role, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = models.ParseTimestamp(createdAt)
	u.UpdatedAt = models.ParseTimestamp(updatedAt)
	return &u, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" {
		return apperrors.NewValidationError("username", "is required")
	}
	if user.PasswordHash == "" {
		return apperrors.NewValidationError("password", "is required")
	}
	if !models.ValidRole(user.Role) {
		return apperrors.ErrInvalidRole
	}

	return r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		now := time.Now().UTC()
		res, err := q.ExecContext(ctx, `
			INSERT INTO users (username, password_hash, display_name, role, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			user.Username, user.PasswordHash, user.DisplayName, user.Role,
			models.FormatTimestamp(now), models.FormatTimestamp(now))
		if err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("username %q is taken: %w", user.Username, apperrors.ErrConflict)
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		if user.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read user id: %w", err)
		}
		user.CreatedAt, user.UpdatedAt = now, now
		return nil
	})
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user *models.User
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		var err error
		user, err = getUser(ctx, q, id)
		return err
	})
	return user, err
}

func getUser(ctx context.Context, q database.Querier, id int64) (*models.User, error) {
	row := q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user *models.User
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		row := q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ? COLLATE NOCASE`, strings.TrimSpace(username))
		u, err := scanUser(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("user %q: %w", username, apperrors.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}
		user = u
		return nil
	})
	return user, err
}

func (r *userRepository) List(ctx context.Context) ([]*models.User, error) {
	users := []*models.User{}
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		rows, err := q.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username COLLATE NOCASE`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			users = append(users, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	if passwordHash == "" {
		return apperrors.NewValidationError("password", "is required")
	}
	return r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		res, err := q.ExecContext(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
			passwordHash, models.FormatTimestamp(time.Now()), id)
		if err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("user %d: %w", id, apperrors.ErrNotFound)
		}
		return nil
	})
}

func (r *userRepository) CountAdmins(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM users WHERE role = 'admin'`)
}

func (r *userRepository) Count(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM users`)
}

func (r *userRepository) count(ctx context.Context, query string) (int, error) {
	var n int
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		return q.QueryRowContext(ctx, query).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func (r *userRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		user, err := getUser(ctx, q, id)
		if err != nil {
			return err
		}
		if user.IsAdmin() {
			var admins int
			if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = 'admin'`).Scan(&admins); err != nil {
				return fmt.Errorf("failed to count admins: %w", err)
			}
			if admins <= 1 {
				return apperrors.ErrLastAdmin
			}
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		return nil
	})
}
