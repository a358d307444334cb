package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/apperrors"
	"github.com/cac-scouting/scout-engine/pkg/dedupe"
	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/repositories"
	"github.com/cac-scouting/scout-engine/pkg/scraper"
)

// MatchImportResult counts the fixtures stored by an import.
type MatchImportResult struct {
	Date    string          `json:"date"`
	Fetched int             `json:"fetched"`
	Created int             `json:"created"`
	Updated int             `json:"updated"`
	Matches []*models.Match `json:"matches"`
}

// LineupPlayerResult is the outcome of creating a player from a lineup entry.
// ImportError is set when the profile scrape failed; the player is kept.
type LineupPlayerResult struct {
	Merge        *repositories.MergeResult `json:"merge"`
	Player       *models.Player            `json:"player,omitempty"`
	SeasonsAdded int                       `json:"seasons_added"`
	ImportError  string                    `json:"import_error,omitempty"`
}

// MatchService defines the interface for fixtures and lineups.
type MatchService interface {
	Create(ctx context.Context, match *models.Match) error
	Get(ctx context.Context, id int64) (*models.Match, error)
	ListByDate(ctx context.Context, date string) ([]*models.Match, error)
	// Import scrapes the fixtures of a day and upserts them by external id.
	Import(ctx context.Context, date string) (*MatchImportResult, error)

	Lineup(ctx context.Context, matchID int64) ([]*models.LineupEntry, error)
	// FetchLineup scrapes the lineups of a stored match and replaces its lineup.
	FetchLineup(ctx context.Context, matchID int64) ([]*models.LineupEntry, error)
	// PlayerFromLineup runs create_or_merge for a lineup entry, then imports
	// the entry's profile when it links one.
	PlayerFromLineup(ctx context.Context, matchID, entryID int64) (*LineupPlayerResult, error)
}

type matchService struct {
	matches repositories.MatchRepository
	players PlayerService
	scraper scraper.Scraper
	metrics Metrics
	logger  *zap.Logger
}

// NewMatchService creates a new match service with dependencies.
func NewMatchService(
	matches repositories.MatchRepository,
	players PlayerService,
	scr scraper.Scraper,
	metrics Metrics,
	logger *zap.Logger,
) MatchService {
	return &matchService{
		matches: matches,
		players: players,
		scraper: scr,
		metrics: orNop(metrics),
		logger:  logger.Named("matches"),
	}
}

func (s *matchService) Create(ctx context.Context, match *models.Match) error {
	return s.matches.Create(ctx, match)
}

func (s *matchService) Get(ctx context.Context, id int64) (*models.Match, error) {
	return s.matches.GetByID(ctx, id)
}

func (s *matchService) ListByDate(ctx context.Context, date string) ([]*models.Match, error) {
	if date == "" || !models.ValidDate(date) {
		return nil, apperrors.NewValidationError("date", "must be YYYY-MM-DD")
	}
	return s.matches.FindByDate(ctx, date)
}

func (s *matchService) Import(ctx context.Context, date string) (*MatchImportResult, error) {
	if date == "" || !models.ValidDate(date) {
		return nil, apperrors.NewValidationError("date", "must be YYYY-MM-DD")
	}
	if s.scraper == nil {
		return nil, scraper.ErrSourceUnreachable
	}
	fixtures, err := s.scraper.MatchesByDate(ctx, date)
	if err != nil {
		s.metrics.RecordScrapeFailure("matches", scrapeReason(err))
		s.logger.Warn("Match listing scrape failed", zap.String("date", date), zap.Error(err))
		return nil, err
	}

	result := &MatchImportResult{Date: date, Fetched: len(fixtures), Matches: make([]*models.Match, 0, len(fixtures))}
	for i := range fixtures {
		match := fixtures[i].Match()
		created, err := s.matches.Upsert(ctx, match)
		if err != nil {
			return nil, err
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
		result.Matches = append(result.Matches, match)
	}
	s.logger.Info("Imported matches",
		zap.String("date", date),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated))
	return result, nil
}

func (s *matchService) Lineup(ctx context.Context, matchID int64) ([]*models.LineupEntry, error) {
	if _, err := s.matches.GetByID(ctx, matchID); err != nil {
		return nil, err
	}
	return s.matches.ListLineup(ctx, matchID)
}

func (s *matchService) FetchLineup(ctx context.Context, matchID int64) ([]*models.LineupEntry, error) {
	match, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.SourceURL == "" {
		return nil, apperrors.NewValidationError("match", "match %d has no source page", matchID)
	}
	if s.scraper == nil {
		return nil, scraper.ErrSourceUnreachable
	}

	lineup, err := s.scraper.FetchLineups(ctx, match.SourceURL)
	if err != nil {
		s.metrics.RecordScrapeFailure("lineups", scrapeReason(err))
		s.logger.Warn("Lineup scrape failed", zap.Int64("match_id", matchID), zap.Error(err))
		return nil, err
	}
	if err := s.matches.ReplaceLineup(ctx, matchID, lineup.Entries(matchID)); err != nil {
		return nil, err
	}
	return s.matches.ListLineup(ctx, matchID)
}

func (s *matchService) PlayerFromLineup(ctx context.Context, matchID, entryID int64) (*LineupPlayerResult, error) {
	match, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	entry, err := s.matches.GetLineupEntry(ctx, matchID, entryID)
	if err != nil {
		return nil, err
	}

	team := match.HomeTeam
	if entry.Side == models.SideAway {
		team = match.AwayTeam
	}
	candidate := &models.Player{
		Name:        entry.PlayerName,
		ExternalID:  scraper.ExternalIDFromURL(entry.ProfileURL),
		SourceURL:   entry.ProfileURL,
		Position:    entry.Position,
		Team:        team,
		ShirtNumber: entry.ShirtNumber,
		PhotoURL:    entry.ImageURL,
	}
	merge, err := s.players.CreateOrMerge(ctx, candidate)
	if err != nil {
		return nil, err
	}
	result := &LineupPlayerResult{Merge: merge}
	if merge.Outcome == dedupe.Ambiguous {
		return result, nil
	}

	if strings.TrimSpace(entry.ProfileURL) != "" {
		imported, err := s.players.Enrich(ctx, merge.PlayerID, entry.ProfileURL)
		switch {
		case err == nil:
			result.Player = imported.Player
			result.SeasonsAdded = imported.SeasonsAdded
			return result, nil
		case errors.Is(err, scraper.ErrSourceUnreachable), errors.Is(err, scraper.ErrUnrecognizedLayout):
			result.ImportError = err.Error()
		default:
			return nil, err
		}
	}

	if result.Player, err = s.players.Get(ctx, merge.PlayerID); err != nil {
		return nil, err
	}
	return result, nil
}
