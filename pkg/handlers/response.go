package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/apperrors"
	"github.com/cac-scouting/scout-engine/pkg/scraper"
)

// maxJSONBody caps JSON request bodies. Uploads use their own limit.
const maxJSONBody = 1 << 20

// ApiResponse wraps data in the format expected by the frontend.
type ApiResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeData writes data wrapped in a successful ApiResponse.
func writeData(w http.ResponseWriter, statusCode int, data any, logger *zap.Logger) {
	if err := WriteJSON(w, statusCode, ApiResponse{Success: true, Data: data}); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, statusCode int, errorCode, message string, logger *zap.Logger) {
	if err := ErrorResponse(w, statusCode, errorCode, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// decodeJSON reads the request body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		logger.Debug("Invalid request body", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body", logger)
		return false
	}
	return true
}

// errorStatus maps a service error to its HTTP status, error code and the
// message shown to the client. Internal failures get a generic message.
func errorStatus(err error) (int, string, string) {
	var ve *apperrors.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "validation_error", ve.Error()
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, apperrors.ErrAmbiguousMatch):
		return http.StatusConflict, "ambiguous_match", err.Error()
	case errors.Is(err, apperrors.ErrLastAdmin):
		return http.StatusConflict, "last_admin", "Cannot remove the last admin"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict", err.Error()
	case errors.Is(err, apperrors.ErrInvalidRole):
		return http.StatusBadRequest, "invalid_role", "Role must be admin or scout"
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized, "invalid_credentials", "Invalid username or password"
	case errors.Is(err, scraper.ErrUnrecognizedLayout):
		return http.StatusUnprocessableEntity, "unrecognized_layout", "The source page did not have the expected layout"
	case errors.Is(err, scraper.ErrSourceUnreachable):
		return http.StatusBadGateway, "source_unreachable", "The source page could not be fetched"
	case apperrors.IsTransient(err):
		return http.StatusServiceUnavailable, "storage_busy", "The database is busy, try again"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", "The operation timed out"
	default:
		return http.StatusInternalServerError, "internal_error", "Internal server error"
	}
}

// writeServiceError logs err and writes the mapped error response.
// Client errors are logged at debug level, server errors at error level.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error, logger *zap.Logger) {
	status, code, message := errorStatus(err)
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", fields...)
	} else {
		logger.Debug("Request rejected", fields...)
	}
	writeError(w, status, code, message, logger)
}
