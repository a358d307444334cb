package handlers

import (
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/auth"
	"github.com/cac-scouting/scout-engine/pkg/services"
)

// ExportsHandler serves player dossier PDFs.
type ExportsHandler struct {
	exportService services.ExportService
	logger        *zap.Logger
}

// NewExportsHandler creates a new exports handler.
func NewExportsHandler(exportService services.ExportService, logger *zap.Logger) *ExportsHandler {
	return &ExportsHandler{
		exportService: exportService,
		logger:        logger,
	}
}

// RegisterRoutes registers the exports handler's routes on the given mux.
func (h *ExportsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/players/{id}/export", authMiddleware.RequireAuth(h.Export))
	mux.HandleFunc("GET /api/players/{id}/export.pdf", authMiddleware.RequireAuth(h.Download))
}

// Export handles POST /api/players/{id}/export. It returns the file name and
// whether the cached dossier was reused.
func (h *ExportsHandler) Export(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	result, err := h.exportService.Export(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "export player", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, result, h.logger)
}

// Download handles GET /api/players/{id}/export.pdf
func (h *ExportsHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	result, err := h.exportService.Export(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "export player", err, h.logger)
		return
	}

	f, err := os.Open(result.Path)
	if err != nil {
		writeServiceError(w, r, "open export", err, h.logger)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeServiceError(w, r, "stat export", err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="informe_jugador_%d.pdf"`, id))
	w.Header().Set("X-Export-Cached", fmt.Sprintf("%t", result.Cached))
	http.ServeContent(w, r, result.File, info.ModTime(), f)
}
