package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/auth"
	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/services"
)

// CreateUserRequest is the request body for adding a user.
type CreateUserRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// ChangePasswordRequest is the request body for setting a user's password.
type ChangePasswordRequest struct {
	Password string `json:"password"`
}

// UsersHandler handles account administration. Every route is admin-only.
type UsersHandler struct {
	userService services.UserService
	logger      *zap.Logger
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(userService services.UserService, logger *zap.Logger) *UsersHandler {
	return &UsersHandler{
		userService: userService,
		logger:      logger,
	}
}

// RegisterRoutes registers the users handler's routes on the given mux.
func (h *UsersHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/users", authMiddleware.RequireAdmin(h.List))
	mux.HandleFunc("POST /api/users", authMiddleware.RequireAdmin(h.Create))
	mux.HandleFunc("DELETE /api/users/{id}", authMiddleware.RequireAdmin(h.Delete))
	mux.HandleFunc("PUT /api/users/{id}/password", authMiddleware.RequireAdmin(h.ChangePassword))
}

// List handles GET /api/users
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		writeServiceError(w, r, "list users", err, h.logger)
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	writeData(w, http.StatusOK, users, h.logger)
}

// Create handles POST /api/users
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if req.Role == "" {
		req.Role = models.RoleScout
	}

	user, err := h.userService.Create(r.Context(), req.Username, req.Password, req.DisplayName, req.Role)
	if err != nil {
		writeServiceError(w, r, "create user", err, h.logger)
		return
	}
	writeData(w, http.StatusCreated, user, h.logger)
}

// Delete handles DELETE /api/users/{id}
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	actorID, _ := auth.GetUserIDFromContext(r.Context())

	if err := h.userService.Delete(r.Context(), actorID, id); err != nil {
		writeServiceError(w, r, "delete user", err, h.logger)
		return
	}
	h.logger.Info("User deleted", zap.Int64("user_id", id), zap.Int64("actor_id", actorID))
	writeData(w, http.StatusOK, map[string]int64{"deleted": id}, h.logger)
}

// ChangePassword handles PUT /api/users/{id}/password
func (h *UsersHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	var req ChangePasswordRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if err := h.userService.ChangePassword(r.Context(), id, req.Password); err != nil {
		writeServiceError(w, r, "change password", err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
