package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/auth"
	"github.com/cac-scouting/scout-engine/pkg/config"
	"github.com/cac-scouting/scout-engine/pkg/metrics"
	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/render"
	"github.com/cac-scouting/scout-engine/pkg/repositories"
	"github.com/cac-scouting/scout-engine/pkg/scraper"
	"github.com/cac-scouting/scout-engine/pkg/services"
	"github.com/cac-scouting/scout-engine/pkg/storage"
	"github.com/cac-scouting/scout-engine/pkg/templates"
	"github.com/cac-scouting/scout-engine/pkg/testhelpers"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// mockScraper serves canned pages keyed by URL or date.
type mockScraper struct {
	mu       sync.Mutex
	profiles map[string]*scraper.PlayerProfile
	fixtures map[string][]scraper.Fixture
	lineups  map[string]*scraper.Lineup
	err      error
}

func (m *mockScraper) FetchProfile(_ context.Context, profileURL string) (*scraper.PlayerProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if p, ok := m.profiles[profileURL]; ok {
		return p, nil
	}
	return nil, scraper.ErrUnrecognizedLayout
}

func (m *mockScraper) MatchesByDate(_ context.Context, date string) ([]scraper.Fixture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.fixtures[date], nil
}

func (m *mockScraper) FetchLineups(_ context.Context, matchURL string) (*scraper.Lineup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if l, ok := m.lineups[matchURL]; ok {
		return l, nil
	}
	return nil, scraper.ErrUnrecognizedLayout
}

var _ scraper.Scraper = (*mockScraper)(nil)

// mockRenderer writes a placeholder PDF.
type mockRenderer struct {
	mu    sync.Mutex
	calls int
}

func (m *mockRenderer) Render(_ context.Context, _ render.Bundle, outPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return os.WriteFile(outPath, []byte("%PDF-1.3 placeholder"), 0o644)
}

var _ render.Renderer = (*mockRenderer)(nil)

// ============================================================================
// Test server
// ============================================================================

// apiTestContext serves every route over a real migrated database, with the
// scraper and the PDF renderer replaced.
type apiTestContext struct {
	t        *testing.T
	mux      *http.ServeMux
	scraper  *mockScraper
	renderer *mockRenderer
	metrics  *metrics.Manager
	seasons  repositories.SeasonRecordRepository

	admin      *models.User
	scout      *models.User
	adminToken string
	scoutToken string
}

func setupAPITest(t *testing.T) *apiTestContext {
	t.Helper()
	logger := zap.NewNop()
	db := testhelpers.NewTestDB(t)
	root := t.TempDir()

	store, err := storage.New(storage.Config{
		UploadDir:      filepath.Join(root, "uploads"),
		ExportDir:      filepath.Join(root, "exports"),
		MaxUploadBytes: 1 << 20,
	}, logger)
	require.NoError(t, err)

	tc := &apiTestContext{
		t:   t,
		mux: http.NewServeMux(),
		scraper: &mockScraper{
			profiles: map[string]*scraper.PlayerProfile{},
			fixtures: map[string][]scraper.Fixture{},
			lineups:  map[string]*scraper.Lineup{},
		},
		renderer: &mockRenderer{},
		metrics:  metrics.NewManager(),
	}

	playerRepo := repositories.NewPlayerRepository(db)
	seasonRepo := repositories.NewSeasonRecordRepository(db)
	reportRepo := repositories.NewReportRepository(db, nil)
	attachmentRepo := repositories.NewAttachmentRepository(db)

	userSvc := services.NewUserService(repositories.NewUserRepository(db), logger)
	playerSvc := services.NewPlayerService(services.PlayerDeps{
		Players:     playerRepo,
		Seasons:     seasonRepo,
		Reports:     reportRepo,
		Attachments: attachmentRepo,
		Scraper:     tc.scraper,
		Store:       store,
		Metrics:     tc.metrics,
	}, logger)
	reportSvc := services.NewReportService(reportRepo, attachmentRepo, store, logger)
	matchSvc := services.NewMatchService(repositories.NewMatchRepository(db), playerSvc, tc.scraper, tc.metrics, logger)
	exportSvc := services.NewExportService(services.ExportDeps{
		Players:  playerRepo,
		Reports:  reportRepo,
		Seasons:  seasonRepo,
		Cache:    repositories.NewExportCacheRepository(db),
		Store:    store,
		Renderer: tc.renderer,
		Metrics:  tc.metrics,
	}, logger)
	filterSvc := services.NewFilterService(repositories.NewFilterConfigRepository(db))
	analyticsSvc := services.NewAnalyticsService(playerRepo, seasonRepo, logger)
	tc.seasons = seasonRepo

	registry, err := templates.NewRegistry("", logger)
	require.NoError(t, err)

	issuer, err := auth.NewTokenIssuer(testhelpers.TestJWTSecret, time.Hour)
	require.NoError(t, err)
	sessions, err := auth.NewSessionStore("test-session-secret", time.Hour, auth.DeriveCookieSettings("http://localhost:8501", ""))
	require.NoError(t, err)
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(issuer, sessions, logger), logger)

	cfg := &config.Config{Env: "test", Version: "test"}
	NewHealthHandler(cfg, db, logger).RegisterRoutes(tc.mux)
	NewAuthHandler(userSvc, issuer, sessions, logger).RegisterRoutes(tc.mux, authMiddleware)
	NewUsersHandler(userSvc, logger).RegisterRoutes(tc.mux, authMiddleware)
	NewPlayersHandler(playerSvc, reportSvc, logger).RegisterRoutes(tc.mux, authMiddleware)
	NewExportsHandler(exportSvc, logger).RegisterRoutes(tc.mux, authMiddleware)
	NewReportsHandler(reportSvc, userSvc, 1<<20, logger).RegisterRoutes(tc.mux, authMiddleware)
	NewMatchesHandler(matchSvc, logger).RegisterRoutes(tc.mux, authMiddleware)
	NewTemplatesHandler(registry, logger).RegisterRoutes(tc.mux, authMiddleware)
	NewFiltersHandler(filterSvc, logger).RegisterRoutes(tc.mux, authMiddleware)
	NewAnalyticsHandler(analyticsSvc, logger).RegisterRoutes(tc.mux, authMiddleware)

	ctx := context.Background()
	tc.admin, err = userSvc.Create(ctx, "admin", "admin-password", "Administrador", models.RoleAdmin)
	require.NoError(t, err)
	tc.scout, err = userSvc.Create(ctx, "marta", "scout-password", "Marta Ruiz", models.RoleScout)
	require.NoError(t, err)
	tc.adminToken = testhelpers.GenerateTestJWT(tc.admin.ID, tc.admin.Username, models.RoleAdmin)
	tc.scoutToken = testhelpers.GenerateTestJWT(tc.scout.ID, tc.scout.Username, models.RoleScout)
	return tc
}

// do sends a JSON request. body may be nil, a string (sent verbatim) or any
// value to marshal.
func (tc *apiTestContext) do(method, path, token string, body any) *httptest.ResponseRecorder {
	tc.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(tc.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	tc.mux.ServeHTTP(rec, req)
	return rec
}

// decodeData unmarshals the data field of an ApiResponse into dst.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	require.True(t, envelope.Success, rec.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

// decodeError returns the error body of a failed request.
func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

// createPlayer creates a player over the API and returns it.
func (tc *apiTestContext) createPlayer(body map[string]any) *models.Player {
	tc.t.Helper()
	rec := tc.do(http.MethodPost, "/api/players", tc.scoutToken, body)
	require.Equal(tc.t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp CreatePlayerResponse
	decodeData(tc.t, rec, &resp)
	return resp.Player
}

// createReport creates a report over the API and returns it.
func (tc *apiTestContext) createReport(playerID int64, date string, score float64) *models.Report {
	tc.t.Helper()
	rec := tc.do(http.MethodPost, "/api/reports", tc.scoutToken, map[string]any{
		"player_id":    playerID,
		"match_date":   date,
		"ratings":      map[string]any{"Técnica": map[string]float64{"Control": score}},
		"observations": "Buen primer control",
	})
	require.Equal(tc.t, http.StatusCreated, rec.Code, rec.Body.String())
	var report models.Report
	decodeData(tc.t, rec, &report)
	return &report
}
