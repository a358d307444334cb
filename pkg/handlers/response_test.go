package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/apperrors"
	"github.com/cac-scouting/scout-engine/pkg/scraper"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", apperrors.NewValidationError("name", "is required"), http.StatusBadRequest, "validation_error"},
		{"wrapped not found", fmt.Errorf("player 3: %w", apperrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{"ambiguous", apperrors.ErrAmbiguousMatch, http.StatusConflict, "ambiguous_match"},
		{"last admin", apperrors.ErrLastAdmin, http.StatusConflict, "last_admin"},
		{"conflict", apperrors.ErrConflict, http.StatusConflict, "conflict"},
		{"role", apperrors.ErrInvalidRole, http.StatusBadRequest, "invalid_role"},
		{"credentials", apperrors.ErrUnauthorized, http.StatusUnauthorized, "invalid_credentials"},
		{"layout", scraper.ErrUnrecognizedLayout, http.StatusUnprocessableEntity, "unrecognized_layout"},
		{"unreachable", fmt.Errorf("fetch: %w", scraper.ErrSourceUnreachable), http.StatusBadGateway, "source_unreachable"},
		{"busy", &apperrors.TransientStorageError{Op: "insert", Err: errors.New("database is locked")}, http.StatusServiceUnavailable, "storage_busy"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{"unexpected", errors.New("disk I/O error"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, _ := errorStatus(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestWriteServiceError_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/players", nil)
	writeServiceError(rec, req, "list players", errors.New("near \"FROM\": syntax error"), zap.NewNop())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "syntax error")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestDecodeJSON_RejectsMalformedBody(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/players", nil)
	req.Body = http.NoBody

	var dst map[string]any
	assert.False(t, decodeJSON(rec, req, &dst, zap.NewNop()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
