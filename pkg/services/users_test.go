package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cac-scouting/scout-engine/pkg/apperrors"
	"github.com/cac-scouting/scout-engine/pkg/models"
)

func TestUserService_CreateAndAuthenticate(t *testing.T) {
	tc := setupServiceTest(t)

	user, err := tc.userSvc.Create(tc.ctx, "marta", "correct-horse", "Marta G.", "")
	require.NoError(t, err)
	assert.Equal(t, models.RoleScout, user.Role)
	assert.NotEqual(t, "correct-horse", user.PasswordHash)

	got, err := tc.userSvc.Authenticate(tc.ctx, "  MARTA ", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = tc.userSvc.Authenticate(tc.ctx, "marta", "wrong-password")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = tc.userSvc.Authenticate(tc.ctx, "nobody", "correct-horse")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestUserService_PasswordRules(t *testing.T) {
	tc := setupServiceTest(t)

	_, err := tc.userSvc.Create(tc.ctx, "short", "1234", "", models.RoleScout)
	assert.True(t, apperrors.IsValidation(err))

	user, err := tc.userSvc.Create(tc.ctx, "pablo", "first-password", "", models.RoleScout)
	require.NoError(t, err)
	require.NoError(t, tc.userSvc.ChangePassword(tc.ctx, user.ID, "second-password"))

	_, err = tc.userSvc.Authenticate(tc.ctx, "pablo", "first-password")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	_, err = tc.userSvc.Authenticate(tc.ctx, "pablo", "second-password")
	assert.NoError(t, err)
}

func TestUserService_InvalidRole(t *testing.T) {
	tc := setupServiceTest(t)
	_, err := tc.userSvc.Create(tc.ctx, "x", "long-enough-pw", "", "owner")
	assert.ErrorIs(t, err, apperrors.ErrInvalidRole)
}

func TestUserService_SeedAdmin(t *testing.T) {
	tc := setupServiceTest(t)

	seeded, err := tc.userSvc.SeedAdmin(tc.ctx, "admin", "admin-password")
	require.NoError(t, err)
	assert.True(t, seeded)

	seeded, err = tc.userSvc.SeedAdmin(tc.ctx, "admin2", "admin-password")
	require.NoError(t, err)
	assert.False(t, seeded, "seeding only happens on an empty table")

	admin, err := tc.userSvc.Authenticate(tc.ctx, "admin", "admin-password")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())
}

func TestUserService_SeedAdminNeedsCredentials(t *testing.T) {
	tc := setupServiceTest(t)
	_, err := tc.userSvc.SeedAdmin(tc.ctx, "", "")
	assert.Error(t, err)
}

func TestUserService_Delete(t *testing.T) {
	tc := setupServiceTest(t)
	admin, err := tc.userSvc.Create(tc.ctx, "admin", "admin-password", "", models.RoleAdmin)
	require.NoError(t, err)
	scout, err := tc.userSvc.Create(tc.ctx, "scout", "scout-password", "", models.RoleScout)
	require.NoError(t, err)

	err = tc.userSvc.Delete(tc.ctx, admin.ID, admin.ID)
	assert.True(t, apperrors.IsValidation(err), "self deletion is refused")

	err = tc.userSvc.Delete(tc.ctx, scout.ID, admin.ID)
	assert.ErrorIs(t, err, apperrors.ErrLastAdmin)

	require.NoError(t, tc.userSvc.Delete(tc.ctx, admin.ID, scout.ID))
	_, err = tc.userSvc.GetByID(tc.ctx, scout.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
