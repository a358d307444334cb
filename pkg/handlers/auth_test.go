package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cac-scouting/scout-engine/pkg/auth"
	"github.com/cac-scouting/scout-engine/pkg/models"
)

func TestAuthHandler_LoginSetsSessionCookie(t *testing.T) {
	tc := setupAPITest(t)

	rec := tc.do(http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "MARTA", Password: "scout-password"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp LoginResponse
	decodeData(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, tc.scout.ID, resp.User.ID)
	assert.False(t, resp.ExpiresAt.IsZero())

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, auth.SessionName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	// The cookie alone authenticates browser requests.
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(cookies[0])
	me := httptest.NewRecorder()
	tc.mux.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code, me.Body.String())
	var user models.User
	decodeData(t, me, &user)
	assert.Equal(t, "marta", user.Username)

	// And the returned token works as a bearer token.
	assert.Equal(t, http.StatusOK, tc.do(http.MethodGet, "/api/auth/me", resp.Token, nil).Code)
}

func TestAuthHandler_LoginFailures(t *testing.T) {
	tc := setupAPITest(t)

	rec := tc.do(http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "marta", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", decodeError(t, rec)["error"])
	assert.Empty(t, rec.Result().Cookies())

	rec = tc.do(http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "nobody", Password: "whatever-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = tc.do(http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "marta"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = tc.do(http.MethodPost, "/api/auth/login", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandler_Logout(t *testing.T) {
	tc := setupAPITest(t)

	rec := tc.do(http.MethodPost, "/api/auth/logout", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestAuthHandler_ProtectedRoutesNeedToken(t *testing.T) {
	tc := setupAPITest(t)

	for _, path := range []string{"/api/auth/me", "/api/players", "/api/templates", "/api/filters"} {
		rec := tc.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	assert.Equal(t, http.StatusUnauthorized, tc.do(http.MethodGet, "/api/players", "not.a.token", nil).Code)
}
