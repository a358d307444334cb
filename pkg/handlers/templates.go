package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/auth"
	"github.com/cac-scouting/scout-engine/pkg/templates"
)

// TemplateLister returns the report templates currently in effect.
type TemplateLister interface {
	List() []*templates.Template
}

// TemplatesHandler serves the report templates.
type TemplatesHandler struct {
	registry TemplateLister
	logger   *zap.Logger
}

// NewTemplatesHandler creates a new templates handler.
func NewTemplatesHandler(registry TemplateLister, logger *zap.Logger) *TemplatesHandler {
	return &TemplatesHandler{registry: registry, logger: logger}
}

// RegisterRoutes registers the templates handler's routes on the given mux.
func (h *TemplatesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/templates", authMiddleware.RequireAuth(h.List))
}

// List handles GET /api/templates
func (h *TemplatesHandler) List(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.registry.List(), h.logger)
}
