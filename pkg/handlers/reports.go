package handlers

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/auth"
	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/services"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temp files.
const multipartMemory = 8 << 20

// AttachLinkRequest is the JSON body of POST /api/reports/{id}/attachments.
type AttachLinkRequest struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

// ReportsHandler handles scouting reports and their attachments.
type ReportsHandler struct {
	reportService  services.ReportService
	userService    services.UserService
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewReportsHandler creates a new reports handler. maxUploadBytes bounds the
// request body of file uploads.
func NewReportsHandler(reportService services.ReportService, userService services.UserService, maxUploadBytes int64, logger *zap.Logger) *ReportsHandler {
	return &ReportsHandler{
		reportService:  reportService,
		userService:    userService,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// RegisterRoutes registers the reports handler's routes on the given mux.
func (h *ReportsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/reports", authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("POST /api/reports", authMiddleware.RequireAuth(h.Create))
	mux.HandleFunc("GET /api/reports/{id}", authMiddleware.RequireAuth(h.Get))
	mux.HandleFunc("PUT /api/reports/{id}", authMiddleware.RequireAuth(h.Update))
	mux.HandleFunc("DELETE /api/reports/{id}", authMiddleware.RequireAuth(h.Delete))
	mux.HandleFunc("POST /api/reports/{id}/attachments", authMiddleware.RequireAuth(h.Attach))
	mux.HandleFunc("GET /api/reports/{id}/attachments", authMiddleware.RequireAuth(h.Attachments))
	mux.HandleFunc("DELETE /api/attachments/{id}", authMiddleware.RequireAuth(h.DeleteAttachment))
	mux.HandleFunc("GET /api/attachments/{id}/file", authMiddleware.RequireAuth(h.AttachmentFile))
}

// List handles GET /api/reports?player_id=&author_id=&match_id=&recommendation=&limit=&offset=
func (h *ReportsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.ReportFilter{Recommendation: strings.TrimSpace(q.Get("recommendation"))}
	ids := []struct {
		name string
		dst  *int64
	}{
		{"player_id", &filter.PlayerID},
		{"author_id", &filter.AuthorID},
		{"match_id", &filter.MatchID},
	}
	for _, p := range ids {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_"+p.name, "Invalid "+p.name, h.logger)
			return
		}
		*p.dst = v
	}
	var ok bool
	if filter.Limit, ok = queryInt(q, "limit"); !ok || filter.Limit > maxPageSize {
		writeError(w, http.StatusBadRequest, "invalid_limit", "Invalid limit", h.logger)
		return
	}
	if filter.Offset, ok = queryInt(q, "offset"); !ok {
		writeError(w, http.StatusBadRequest, "invalid_offset", "Invalid offset", h.logger)
		return
	}

	reports, err := h.reportService.Find(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, "list reports", err, h.logger)
		return
	}
	if reports == nil {
		reports = []*models.Report{}
	}
	writeData(w, http.StatusOK, reports, h.logger)
}

// Create handles POST /api/reports. The caller becomes the author.
func (h *ReportsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var report models.Report
	if !decodeJSON(w, r, &report, h.logger) {
		return
	}

	var author *models.User
	if userID, ok := auth.GetUserIDFromContext(r.Context()); ok {
		user, err := h.userService.GetByID(r.Context(), userID)
		if err != nil {
			writeServiceError(w, r, "load author", err, h.logger)
			return
		}
		author = user
	}

	if err := h.reportService.Create(r.Context(), author, &report); err != nil {
		writeServiceError(w, r, "create report", err, h.logger)
		return
	}
	writeData(w, http.StatusCreated, &report, h.logger)
}

// Get handles GET /api/reports/{id}
func (h *ReportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	report, err := h.reportService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "get report", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, report, h.logger)
}

// Update handles PUT /api/reports/{id}. The author snapshot is kept.
func (h *ReportsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	var report models.Report
	if !decodeJSON(w, r, &report, h.logger) {
		return
	}
	report.ID = id

	if err := h.reportService.Update(r.Context(), &report); err != nil {
		writeServiceError(w, r, "update report", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, &report, h.logger)
}

// Delete handles DELETE /api/reports/{id}
func (h *ReportsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	if err := h.reportService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, "delete report", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, map[string]int64{"deleted": id}, h.logger)
}

// Attach handles POST /api/reports/{id}/attachments. A multipart body with a
// "file" part uploads a file; a JSON body {url, label} stores a link.
func (h *ReportsHandler) Attach(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		h.attachFile(w, r, id)
		return
	}

	var req AttachLinkRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	attachment, err := h.reportService.AttachLink(r.Context(), id, req.URL, req.Label)
	if err != nil {
		writeServiceError(w, r, "attach link", err, h.logger)
		return
	}
	writeData(w, http.StatusCreated, attachment, h.logger)
}

func (h *ReportsHandler) attachFile(w http.ResponseWriter, r *http.Request, reportID int64) {
	if h.maxUploadBytes > 0 {
		// Multipart framing needs some headroom beyond the file itself.
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+(1<<20))
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", "The file exceeds the upload limit", h.logger)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid multipart body", h.logger)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file", "A file part is required", h.logger)
		return
	}
	defer file.Close()

	attachment, err := h.reportService.AttachFile(r.Context(), reportID, file, header.Filename, r.FormValue("label"))
	if err != nil {
		writeServiceError(w, r, "attach file", err, h.logger)
		return
	}
	writeData(w, http.StatusCreated, attachment, h.logger)
}

// Attachments handles GET /api/reports/{id}/attachments
func (h *ReportsHandler) Attachments(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	attachments, err := h.reportService.Attachments(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "list attachments", err, h.logger)
		return
	}
	if attachments == nil {
		attachments = []*models.Attachment{}
	}
	writeData(w, http.StatusOK, attachments, h.logger)
}

// DeleteAttachment handles DELETE /api/attachments/{id}
func (h *ReportsHandler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	if err := h.reportService.DeleteAttachment(r.Context(), id); err != nil {
		writeServiceError(w, r, "delete attachment", err, h.logger)
		return
	}
	writeData(w, http.StatusOK, map[string]int64{"deleted": id}, h.logger)
}

// AttachmentFile handles GET /api/attachments/{id}/file. Links redirect to
// their target.
func (h *ReportsHandler) AttachmentFile(w http.ResponseWriter, r *http.Request) {
	id, ok := ParseID(w, r, "id", h.logger)
	if !ok {
		return
	}
	attachment, err := h.reportService.GetAttachment(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "get attachment", err, h.logger)
		return
	}
	if attachment.Kind == models.AttachmentLink {
		http.Redirect(w, r, attachment.URL, http.StatusFound)
		return
	}

	_, path, err := h.reportService.AttachmentFile(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "open attachment", err, h.logger)
		return
	}
	if attachment.ContentType != "" {
		w.Header().Set("Content-Type", attachment.ContentType)
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeFile(w, r, path)
}
