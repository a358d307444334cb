package services

import (
	"context"

	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/repositories"
)

// FilterService stores the catalogue filters each user saves by name.
type FilterService interface {
	List(ctx context.Context, userID int64) ([]*models.FilterConfig, error)
	Save(ctx context.Context, userID int64, name string, filter models.PlayerFilter) (*models.FilterConfig, error)
	Delete(ctx context.Context, userID int64, name string) error
}

type filterService struct {
	repo repositories.FilterConfigRepository
}

// NewFilterService creates a new filter service.
func NewFilterService(repo repositories.FilterConfigRepository) FilterService {
	return &filterService{repo: repo}
}

func (s *filterService) List(ctx context.Context, userID int64) ([]*models.FilterConfig, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Save replaces any filter the user already stored under name. Paging is not
// part of a saved filter.
func (s *filterService) Save(ctx context.Context, userID int64, name string, filter models.PlayerFilter) (*models.FilterConfig, error) {
	filter.Limit, filter.Offset = 0, 0
	config := &models.FilterConfig{UserID: userID, Name: name, Filters: filter}
	if err := s.repo.Save(ctx, config); err != nil {
		return nil, err
	}
	return config, nil
}

func (s *filterService) Delete(ctx context.Context, userID int64, name string) error {
	return s.repo.Delete(ctx, userID, name)
}
