package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/config"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealthHandler_Health(t *testing.T) {
	mux := http.NewServeMux()
	NewHealthHandler(&config.Config{}, nil, zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestHealthHandler_Ping(t *testing.T) {
	tests := []struct {
		name     string
		db       Pinger
		status   int
		state    string
		database string
	}{
		{"database answers", fakePinger{}, http.StatusOK, "ok", "ok"},
		{"database down", fakePinger{err: errors.New("database is locked")}, http.StatusServiceUnavailable, "degraded", "unavailable"},
		{"no database", nil, http.StatusOK, "ok", "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			cfg := &config.Config{Env: "test", Version: "1.2.3"}
			NewHealthHandler(cfg, tt.db, zap.NewNop()).RegisterRoutes(mux)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
			assert.Equal(t, tt.status, rec.Code)

			var resp PingResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.state, resp.Status)
			assert.Equal(t, tt.database, resp.Database)
			assert.Equal(t, "1.2.3", resp.Version)
			assert.Equal(t, "scout-engine", resp.Service)
		})
	}
}
