package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/apperrors"
	"github.com/cac-scouting/scout-engine/pkg/dedupe"
	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/repositories"
	"github.com/cac-scouting/scout-engine/pkg/scraper"
	"github.com/cac-scouting/scout-engine/pkg/stats"
	"github.com/cac-scouting/scout-engine/pkg/storage"
)

// ImportResult describes a scrape-import.
type ImportResult struct {
	Merge        *repositories.MergeResult `json:"merge"`
	Player       *models.Player            `json:"player,omitempty"`
	SeasonsAdded int                       `json:"seasons_added"`
}

// PlayerStats is the score distribution and trend of a player's reports.
type PlayerStats struct {
	PlayerID int64               `json:"player_id"`
	Summary  stats.Summary       `json:"summary"`
	Trend    stats.Trend         `json:"trend"`
	Series   []models.ScorePoint `json:"series"`
}

// PlayerService defines the interface for player catalogue operations.
type PlayerService interface {
	CreateOrMerge(ctx context.Context, candidate *models.Player) (*repositories.MergeResult, error)
	MergeInto(ctx context.Context, id int64, candidate *models.Player) (*models.Player, error)
	Get(ctx context.Context, id int64) (*models.Player, error)
	Find(ctx context.Context, filter models.PlayerFilter) ([]*models.Player, error)
	Update(ctx context.Context, player *models.Player) error
	// Delete removes the player with their reports, and the files those owned.
	Delete(ctx context.Context, id int64) error
	Teams(ctx context.Context) ([]string, error)

	// Import scrapes a profile page and runs create_or_merge with it. Scraper
	// failures are returned untouched and nothing is written.
	Import(ctx context.Context, profileURL string) (*ImportResult, error)
	// Enrich merges a scraped profile into an existing player.
	Enrich(ctx context.Context, id int64, profileURL string) (*ImportResult, error)

	Seasons(ctx context.Context, id int64) ([]*models.SeasonRecord, error)
	AddSeason(ctx context.Context, id int64, record *models.SeasonRecord) error
	Stats(ctx context.Context, id int64) (*PlayerStats, error)
}

type playerService struct {
	players     repositories.PlayerRepository
	seasons     repositories.SeasonRecordRepository
	reports     repositories.ReportRepository
	attachments repositories.AttachmentRepository
	scraper     scraper.Scraper
	store       *storage.Store
	metrics     Metrics
	logger      *zap.Logger
}

// PlayerDeps groups the collaborators of NewPlayerService.
type PlayerDeps struct {
	Players     repositories.PlayerRepository
	Seasons     repositories.SeasonRecordRepository
	Reports     repositories.ReportRepository
	Attachments repositories.AttachmentRepository
	Scraper     scraper.Scraper // nil disables imports
	Store       *storage.Store
	Metrics     Metrics
}

// NewPlayerService creates a new player service with dependencies.
func NewPlayerService(deps PlayerDeps, logger *zap.Logger) PlayerService {
	return &playerService{
		players:     deps.Players,
		seasons:     deps.Seasons,
		reports:     deps.Reports,
		attachments: deps.Attachments,
		scraper:     deps.Scraper,
		store:       deps.Store,
		metrics:     orNop(deps.Metrics),
		logger:      logger.Named("players"),
	}
}

func (s *playerService) CreateOrMerge(ctx context.Context, candidate *models.Player) (*repositories.MergeResult, error) {
	result, err := s.players.CreateOrMerge(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if result.Outcome == dedupe.Ambiguous {
		s.logger.Info("Ambiguous player match",
			zap.String("name", candidate.Name),
			zap.Int64s("candidates", result.Candidates))
	}
	return result, nil
}

func (s *playerService) MergeInto(ctx context.Context, id int64, candidate *models.Player) (*models.Player, error) {
	return s.players.MergeInto(ctx, id, candidate)
}

func (s *playerService) Get(ctx context.Context, id int64) (*models.Player, error) {
	return s.players.GetByID(ctx, id)
}

func (s *playerService) Find(ctx context.Context, filter models.PlayerFilter) ([]*models.Player, error) {
	return s.players.Find(ctx, filter)
}

func (s *playerService) Update(ctx context.Context, player *models.Player) error {
	return s.players.Update(ctx, player)
}

func (s *playerService) Delete(ctx context.Context, id int64) error {
	uploads, err := s.attachments.ListPathsByPlayer(ctx, id)
	if err != nil {
		return err
	}
	if err := s.players.Delete(ctx, id); err != nil {
		return err
	}
	if s.store != nil {
		s.store.RemoveUploads(uploads)
		s.store.PruneExports(id, "")
	}
	s.logger.Info("Deleted player", zap.Int64("player_id", id), zap.Int("files", len(uploads)))
	return nil
}

func (s *playerService) Teams(ctx context.Context) ([]string, error) {
	return s.players.ListTeams(ctx)
}

func (s *playerService) Import(ctx context.Context, profileURL string) (*ImportResult, error) {
	profile, err := s.fetchProfile(ctx, profileURL)
	if err != nil {
		return nil, err
	}

	merge, err := s.players.CreateOrMerge(ctx, profile.Player())
	if err != nil {
		return nil, err
	}
	result := &ImportResult{Merge: merge}
	if merge.Outcome == dedupe.Ambiguous {
		return result, nil
	}
	if err := s.appendCareer(ctx, merge.PlayerID, profile, result); err != nil {
		return nil, err
	}
	s.logger.Info("Imported player",
		zap.Int64("player_id", merge.PlayerID),
		zap.Bool("created", merge.Created),
		zap.Int("seasons_added", result.SeasonsAdded))
	return result, nil
}

func (s *playerService) Enrich(ctx context.Context, id int64, profileURL string) (*ImportResult, error) {
	profile, err := s.fetchProfile(ctx, profileURL)
	if err != nil {
		return nil, err
	}
	player, err := s.players.MergeInto(ctx, id, profile.Player())
	if err != nil {
		return nil, err
	}
	result := &ImportResult{
		Merge:  &repositories.MergeResult{PlayerID: id, Outcome: dedupe.Same},
		Player: player,
	}
	if err := s.appendCareer(ctx, id, profile, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *playerService) fetchProfile(ctx context.Context, profileURL string) (*scraper.PlayerProfile, error) {
	profileURL = strings.TrimSpace(profileURL)
	if profileURL == "" {
		return nil, apperrors.NewValidationError("url", "is required")
	}
	if s.scraper == nil {
		return nil, fmt.Errorf("profile import is disabled: %w", scraper.ErrSourceUnreachable)
	}
	profile, err := s.scraper.FetchProfile(ctx, profileURL)
	if err != nil {
		s.metrics.RecordScrapeFailure("profile", scrapeReason(err))
		s.logger.Warn("Profile scrape failed", zap.String("url", profileURL), zap.Error(err))
		return nil, err
	}
	return profile, nil
}

func (s *playerService) appendCareer(ctx context.Context, id int64, profile *scraper.PlayerProfile, result *ImportResult) error {
	added, err := s.seasons.AppendMany(ctx, id, profile.SeasonRecords())
	if err != nil {
		return err
	}
	result.SeasonsAdded = added
	if result.Player == nil {
		if result.Player, err = s.players.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *playerService) Seasons(ctx context.Context, id int64) ([]*models.SeasonRecord, error) {
	if _, err := s.players.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.seasons.ListByPlayer(ctx, id)
}

func (s *playerService) AddSeason(ctx context.Context, id int64, record *models.SeasonRecord) error {
	if record.Source == "" {
		record.Source = models.SeasonSourceManual
	}
	added, err := s.seasons.AppendMany(ctx, id, []*models.SeasonRecord{record})
	if err != nil {
		return err
	}
	if added == 0 {
		return fmt.Errorf("season %s for %s already recorded: %w", record.Season, record.Team, apperrors.ErrConflict)
	}
	return nil
}

func (s *playerService) Stats(ctx context.Context, id int64) (*PlayerStats, error) {
	agg, err := s.reports.AggregateForPlayer(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PlayerStats{
		PlayerID: id,
		Summary:  stats.Summarize(agg.Series),
		Trend:    stats.ComputeTrend(agg.Series),
		Series:   agg.Series,
	}, nil
}
