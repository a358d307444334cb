package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cac-scouting/scout-engine/pkg/llm"
	"github.com/cac-scouting/scout-engine/pkg/metrics"
	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/render"
	"github.com/cac-scouting/scout-engine/pkg/repositories"
	"github.com/cac-scouting/scout-engine/pkg/stats"
	"github.com/cac-scouting/scout-engine/pkg/storage"
)

// ExportResult describes a dossier PDF ready to serve.
type ExportResult struct {
	PlayerID    int64  `json:"player_id"`
	File        string `json:"file"` // name inside the export directory
	Path        string `json:"-"`
	Fingerprint string `json:"fingerprint"`
	Cached      bool   `json:"cached"`
	WithSummary bool   `json:"with_summary"`
}

// ExportService defines the interface for dossier exports.
type ExportService interface {
	// Export returns the player's dossier, reusing the cached file when the
	// report set is unchanged and regenerating it otherwise.
	Export(ctx context.Context, playerID int64) (*ExportResult, error)
}

// ExportDeps groups the collaborators of NewExportService.
type ExportDeps struct {
	Players    repositories.PlayerRepository
	Reports    repositories.ReportRepository
	Seasons    repositories.SeasonRecordRepository
	Cache      repositories.ExportCacheRepository
	Store      *storage.Store
	Renderer   render.Renderer
	Summarizer llm.Summarizer // nil when summaries are disabled
	Metrics    Metrics
}

type exportService struct {
	deps    ExportDeps
	metrics Metrics
	group   singleflight.Group
	logger  *zap.Logger
}

// NewExportService creates a new export service with dependencies.
func NewExportService(deps ExportDeps, logger *zap.Logger) ExportService {
	return &exportService{
		deps:    deps,
		metrics: orNop(deps.Metrics),
		logger:  logger.Named("export"),
	}
}

// exportTimeout bounds a shared render once it no longer follows the
// caller that started it.
const exportTimeout = 2 * time.Minute

// Export collapses concurrent requests for one player into a single render.
// The render is detached from the first caller's cancellation; each caller
// stops waiting when its own context ends.
func (s *exportService) Export(ctx context.Context, playerID int64) (*ExportResult, error) {
	ch := s.group.DoChan(strconv.FormatInt(playerID, 10), func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), exportTimeout)
		defer cancel()
		return s.export(shared, playerID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*ExportResult)
		return &res, nil
	}
}

func (s *exportService) export(ctx context.Context, playerID int64) (*ExportResult, error) {
	player, err := s.deps.Players.GetByID(ctx, playerID)
	if err != nil {
		return nil, err
	}
	fingerprint, err := s.deps.Reports.Fingerprint(ctx, playerID)
	if err != nil {
		return nil, err
	}

	entry, fresh, err := s.deps.Cache.GetOrMarkStale(ctx, playerID, models.ExportKindDossier, fingerprint)
	if err != nil {
		return nil, err
	}
	if fresh && s.deps.Store.Exists(entry.FilePath) {
		s.metrics.RecordExportCache(metrics.CacheHit)
		path, err := s.deps.Store.ExportPath(entry.FilePath)
		if err != nil {
			return nil, err
		}
		return &ExportResult{
			PlayerID:    playerID,
			File:        entry.FilePath,
			Path:        path,
			Fingerprint: fingerprint,
			Cached:      true,
			WithSummary: entry.WithSummary,
		}, nil
	}
	s.metrics.RecordExportCache(metrics.CacheMiss)

	start := time.Now()
	bundle, err := s.bundle(ctx, player)
	if err != nil {
		return nil, err
	}
	summary, cacheable := s.summarize(ctx, player, bundle)
	bundle.Summary = summary

	name := storage.ExportFile(playerID, fingerprint)
	path, err := s.deps.Store.ExportPath(name)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Renderer.Render(ctx, *bundle, path); err != nil {
		return nil, fmt.Errorf("failed to render dossier: %w", err)
	}
	s.metrics.ObserveExport(time.Since(start))

	result := &ExportResult{
		PlayerID:    playerID,
		File:        name,
		Path:        path,
		Fingerprint: fingerprint,
		WithSummary: summary != nil,
	}
	if !cacheable {
		s.logger.Info("Rendered dossier without summary; not cached", zap.Int64("player_id", playerID))
		return result, nil
	}

	if err := s.deps.Cache.Record(ctx, &models.ExportCacheEntry{
		PlayerID:    playerID,
		Kind:        models.ExportKindDossier,
		Fingerprint: fingerprint,
		FilePath:    name,
		WithSummary: summary != nil,
		GeneratedAt: time.Now().UTC(),
	}); err != nil {
		// The PDF is still good to serve; the next request regenerates it.
		s.logger.Error("Failed to record export", zap.Int64("player_id", playerID), zap.Error(err))
		return result, nil
	}
	if n := s.deps.Store.PruneExports(playerID, name); n > 0 {
		s.logger.Debug("Removed stale exports", zap.Int64("player_id", playerID), zap.Int("files", n))
	}
	s.logger.Info("Rendered dossier",
		zap.Int64("player_id", playerID),
		zap.String("file", name),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

func (s *exportService) bundle(ctx context.Context, player *models.Player) (*render.Bundle, error) {
	reports, err := s.deps.Reports.ListByPlayer(ctx, player.ID)
	if err != nil {
		return nil, err
	}
	agg, err := s.deps.Reports.AggregateForPlayer(ctx, player.ID)
	if err != nil {
		return nil, err
	}
	seasons, err := s.deps.Seasons.ListByPlayer(ctx, player.ID)
	if err != nil {
		return nil, err
	}
	return &render.Bundle{
		Player:      player,
		Reports:     reports,
		Aggregate:   agg,
		Stats:       stats.Summarize(agg.Series),
		Trend:       stats.ComputeTrend(agg.Series),
		Seasons:     seasons,
		GeneratedAt: time.Now(),
	}, nil
}

// summarize returns the summary to print and whether the result may be
// cached. A failed summary is never cached so a later export can retry it.
func (s *exportService) summarize(ctx context.Context, player *models.Player, b *render.Bundle) (*llm.Summary, bool) {
	if s.deps.Summarizer == nil {
		s.metrics.RecordSummary(metrics.SummarySkipped)
		return nil, true
	}

	notes := make([]llm.Note, 0, len(b.Reports))
	for _, r := range b.Reports {
		notes = append(notes, llm.Note{
			ReportID: r.ID,
			Date:     r.SeriesDate(),
			Opponent: r.Opponent,
			Text:     r.Observations,
		})
	}

	summary, err := s.deps.Summarizer.Summarize(ctx, llm.SummaryInput{
		PlayerName: player.Name,
		Notes:      notes,
		Stats:      b.Stats,
		Trend:      b.Trend,
	})
	switch {
	case err == nil && (summary == nil || summary.IsEmpty()):
		s.metrics.RecordSummary(metrics.SummarySkipped)
		return nil, true
	case err == nil:
		s.metrics.RecordSummary(metrics.SummaryOK)
		return summary, true
	case errors.Is(err, llm.ErrMalformedResponse):
		s.metrics.RecordSummary(metrics.SummaryMalformed)
	default:
		s.metrics.RecordSummary(metrics.SummaryUnavailable)
	}
	s.logger.Warn("Summary unavailable, exporting without it",
		zap.Int64("player_id", player.ID),
		zap.String("error_type", string(llm.GetErrorType(err))),
		zap.Error(err))
	return nil, false
}
