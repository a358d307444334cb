package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/cac-scouting/scout-engine/pkg/apperrors"
	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/repositories"
)

// MinPasswordLength is the shortest password accepted for new accounts.
const MinPasswordLength = 8

// dummyHash is compared against when the username is unknown, so a failed
// login costs the same either way.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)

// UserService defines the interface for account operations.
type UserService interface {
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	Create(ctx context.Context, username, password, displayName, role string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	ChangePassword(ctx context.Context, id int64, password string) error
	// Delete removes a user. Admins cannot delete themselves and the last
	// admin cannot be deleted.
	Delete(ctx context.Context, actorID, id int64) error
	// SeedAdmin creates the first admin when the users table is empty.
	SeedAdmin(ctx context.Context, username, password string) (bool, error)
}

type userService struct {
	userRepo repositories.UserRepository
	logger   *zap.Logger
}

// NewUserService creates a new user service with dependencies.
func NewUserService(userRepo repositories.UserRepository, logger *zap.Logger) UserService {
	return &userService{
		userRepo: userRepo,
		logger:   logger.Named("users"),
	}
}

// Authenticate returns the user for valid credentials and ErrUnauthorized otherwise.
func (s *userService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, apperrors.ErrUnauthorized
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.ErrUnauthorized
	}
	return user, nil
}

func (s *userService) Create(ctx context.Context, username, password, displayName, role string) (*models.User, error) {
	if role == "" {
		role = models.RoleScout
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username:     username,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(displayName),
		Role:         role,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("Created user", zap.Int64("user_id", user.ID), zap.String("role", user.Role))
	return user, nil
}

func (s *userService) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *userService) List(ctx context.Context) ([]*models.User, error) {
	return s.userRepo.List(ctx)
}

func (s *userService) ChangePassword(ctx context.Context, id int64, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	return s.userRepo.UpdatePassword(ctx, id, hash)
}

func (s *userService) Delete(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return apperrors.NewValidationError("id", "you cannot delete your own account")
	}
	if err := s.userRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Deleted user", zap.Int64("user_id", id), zap.Int64("by", actorID))
	return nil
}

func (s *userService) SeedAdmin(ctx context.Context, username, password string) (bool, error) {
	count, err := s.userRepo.Count(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if username == "" || password == "" {
		return false, fmt.Errorf("no users exist and no admin credentials are configured")
	}
	if _, err := s.Create(ctx, username, password, "Administrador", models.RoleAdmin); err != nil {
		return false, fmt.Errorf("failed to seed admin: %w", err)
	}
	return true, nil
}

func hashPassword(password string) (string, error) {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return "", apperrors.NewValidationError("password", "must be at least %d characters", MinPasswordLength)
	}
	// bcrypt ignores everything past 72 bytes; refuse rather than truncate silently.
	if len(password) > 72 {
		return "", apperrors.NewValidationError("password", "must be at most 72 bytes")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
