package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/auth"
	"github.com/cac-scouting/scout-engine/pkg/logging"
	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/services"
)

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the access token for API clients. Browser clients
// can ignore it: the same token is set in the session cookie.
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// AuthHandler handles authentication-related HTTP requests.
type AuthHandler struct {
	userService services.UserService
	issuer      *auth.TokenIssuer
	sessions    *auth.SessionStore
	logger      *zap.Logger
}

// NewAuthHandler creates a new auth handler. sessions may be nil, in which
// case only bearer tokens are issued.
func NewAuthHandler(userService services.UserService, issuer *auth.TokenIssuer, sessions *auth.SessionStore, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		issuer:      issuer,
		sessions:    sessions,
		logger:      logger,
	}
}

// RegisterRoutes registers the auth handler's routes on the given mux.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("POST /api/auth/logout", h.Logout)
	mux.HandleFunc("GET /api/auth/me", authMiddleware.RequireAuth(h.Me))
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_parameters", "Username and password are required", h.logger)
		return
	}

	user, err := h.userService.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Info("Login failed", zap.String("username", logging.SanitizeUsername(req.Username)))
		writeServiceError(w, r, "login", err, h.logger)
		return
	}

	token, expires, err := h.issuer.Issue(user)
	if err != nil {
		writeServiceError(w, r, "issue token", err, h.logger)
		return
	}
	if h.sessions != nil {
		if err := h.sessions.SetToken(w, r, token); err != nil {
			writeServiceError(w, r, "save session", err, h.logger)
			return
		}
	}

	h.logger.Info("User logged in", zap.Int64("user_id", user.ID), zap.String("role", user.Role))
	writeData(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expires, User: user}, h.logger)
}

// Logout handles POST /api/auth/logout. Bearer tokens stay valid until they expire.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.sessions != nil {
		if err := h.sessions.Clear(w, r); err != nil {
			h.logger.Warn("Failed to clear session", zap.Error(err))
		}
	}
	writeData(w, http.StatusOK, map[string]bool{"logged_out": true}, h.logger)
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.RequireUserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", h.logger)
		return
	}
	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, "get current user", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, user, h.logger)
}
