package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/database"
	"github.com/cac-scouting/scout-engine/pkg/llm"
	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/render"
	"github.com/cac-scouting/scout-engine/pkg/repositories"
	"github.com/cac-scouting/scout-engine/pkg/scraper"
	"github.com/cac-scouting/scout-engine/pkg/storage"
	"github.com/cac-scouting/scout-engine/pkg/testhelpers"
)

// fakeScraper serves canned pages keyed by URL or date.
type fakeScraper struct {
	mu       sync.Mutex
	profiles map[string]*scraper.PlayerProfile
	fixtures map[string][]scraper.Fixture
	lineups  map[string]*scraper.Lineup
	err      error
	calls    int
}

func newFakeScraper() *fakeScraper {
	return &fakeScraper{
		profiles: map[string]*scraper.PlayerProfile{},
		fixtures: map[string][]scraper.Fixture{},
		lineups:  map[string]*scraper.Lineup{},
	}
}

func (f *fakeScraper) FetchProfile(_ context.Context, profileURL string) (*scraper.PlayerProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[profileURL]
	if !ok {
		return nil, scraper.ErrUnrecognizedLayout
	}
	return p, nil
}

func (f *fakeScraper) MatchesByDate(_ context.Context, date string) ([]scraper.Fixture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.fixtures[date], nil
}

func (f *fakeScraper) FetchLineups(_ context.Context, matchURL string) (*scraper.Lineup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	l, ok := f.lineups[matchURL]
	if !ok {
		return nil, scraper.ErrUnrecognizedLayout
	}
	return l, nil
}

var _ scraper.Scraper = (*fakeScraper)(nil)

// fakeRenderer writes a tiny placeholder file and remembers the bundles.
// When gate is set, Render announces itself on started and blocks until gate
// is closed.
type fakeRenderer struct {
	mu      sync.Mutex
	bundles []render.Bundle
	err     error

	started   chan struct{}
	gate      chan struct{}
	startOnce sync.Once
}

func (r *fakeRenderer) Render(ctx context.Context, b render.Bundle, outPath string) error {
	if r.gate != nil {
		r.startOnce.Do(func() { close(r.started) })
		<-r.gate
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.bundles = append(r.bundles, b)
	return os.WriteFile(outPath, []byte("%PDF-1.3 placeholder"), 0o644)
}

func (r *fakeRenderer) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bundles)
}

func (r *fakeRenderer) last() render.Bundle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bundles[len(r.bundles)-1]
}

var _ render.Renderer = (*fakeRenderer)(nil)

// fakeMetrics counts calls by label.
type fakeMetrics struct {
	mu       sync.Mutex
	cache    map[string]int
	scrapes  map[string]int
	summary  map[string]int
	observed int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{cache: map[string]int{}, scrapes: map[string]int{}, summary: map[string]int{}}
}

func (m *fakeMetrics) RecordExportCache(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[result]++
}

func (m *fakeMetrics) ObserveExport(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observed++
}

func (m *fakeMetrics) RecordScrapeFailure(operation, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scrapes[operation+"/"+reason]++
}

func (m *fakeMetrics) RecordSummary(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summary[result]++
}

// serviceTestContext wires the services over a real migrated database.
type serviceTestContext struct {
	t   *testing.T
	ctx context.Context
	db  *database.DB

	players     repositories.PlayerRepository
	seasons     repositories.SeasonRecordRepository
	reports     repositories.ReportRepository
	matches     repositories.MatchRepository
	attachments repositories.AttachmentRepository
	users       repositories.UserRepository
	cache       repositories.ExportCacheRepository

	store      *storage.Store
	scraper    *fakeScraper
	renderer   *fakeRenderer
	metrics    *fakeMetrics
	summarizer *llm.MockSummarizer

	playerSvc PlayerService
	reportSvc ReportService
	matchSvc  MatchService
	userSvc   UserService
	analytics AnalyticsService
}

func setupServiceTest(t *testing.T) *serviceTestContext {
	t.Helper()
	db := testhelpers.NewTestDB(t)
	root := t.TempDir()
	store, err := storage.New(storage.Config{
		UploadDir: filepath.Join(root, "uploads"),
		ExportDir: filepath.Join(root, "exports"),
	}, zap.NewNop())
	require.NoError(t, err)

	tc := &serviceTestContext{
		t:           t,
		ctx:         context.Background(),
		db:          db,
		players:     repositories.NewPlayerRepository(db),
		seasons:     repositories.NewSeasonRecordRepository(db),
		reports:     repositories.NewReportRepository(db, nil),
		matches:     repositories.NewMatchRepository(db),
		attachments: repositories.NewAttachmentRepository(db),
		users:       repositories.NewUserRepository(db),
		cache:       repositories.NewExportCacheRepository(db),
		store:       store,
		scraper:     newFakeScraper(),
		renderer:    &fakeRenderer{},
		metrics:     newFakeMetrics(),
		summarizer:  &llm.MockSummarizer{},
	}
	tc.playerSvc = NewPlayerService(PlayerDeps{
		Players:     tc.players,
		Seasons:     tc.seasons,
		Reports:     tc.reports,
		Attachments: tc.attachments,
		Scraper:     tc.scraper,
		Store:       store,
		Metrics:     tc.metrics,
	}, zap.NewNop())
	tc.reportSvc = NewReportService(tc.reports, tc.attachments, store, zap.NewNop())
	tc.matchSvc = NewMatchService(tc.matches, tc.playerSvc, tc.scraper, tc.metrics, zap.NewNop())
	tc.userSvc = NewUserService(tc.users, zap.NewNop())
	tc.analytics = NewAnalyticsService(tc.players, tc.seasons, zap.NewNop())
	return tc
}

// exportService builds an export service; a nil summarizer disables summaries.
func (tc *serviceTestContext) exportService(summarizer llm.Summarizer) ExportService {
	return NewExportService(ExportDeps{
		Players:    tc.players,
		Reports:    tc.reports,
		Seasons:    tc.seasons,
		Cache:      tc.cache,
		Store:      tc.store,
		Renderer:   tc.renderer,
		Summarizer: summarizer,
		Metrics:    tc.metrics,
	}, zap.NewNop())
}

func (tc *serviceTestContext) createPlayer(name, team string) *models.Player {
	tc.t.Helper()
	p := &models.Player{Name: name, Team: team}
	require.NoError(tc.t, tc.players.Create(tc.ctx, p))
	return p
}

func (tc *serviceTestContext) createReport(playerID int64, date string, score float64, notes string) *models.Report {
	tc.t.Helper()
	r := &models.Report{
		PlayerID:     playerID,
		MatchDate:    date,
		Ratings:      models.Ratings{"Técnica": {"Control": score}},
		Observations: notes,
	}
	require.NoError(tc.t, tc.reportSvc.Create(tc.ctx, nil, r))
	return r
}
