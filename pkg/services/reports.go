package services

import (
	"context"
	"io"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/apperrors"
	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/repositories"
	"github.com/cac-scouting/scout-engine/pkg/storage"
)

// ReportService defines the interface for scouting report operations.
type ReportService interface {
	// Create stores a report written by author. The author name is snapshotted
	// so the report survives the account.
	Create(ctx context.Context, author *models.User, report *models.Report) error
	Get(ctx context.Context, id int64) (*models.Report, error)
	Find(ctx context.Context, filter models.ReportFilter) ([]*models.Report, error)
	ListByPlayer(ctx context.Context, playerID int64) ([]*models.Report, error)
	Update(ctx context.Context, report *models.Report) error
	// Delete removes the report, its attachments and their files.
	Delete(ctx context.Context, id int64) error
	Aggregate(ctx context.Context, playerID int64) (*models.Aggregate, error)

	AttachFile(ctx context.Context, reportID int64, r io.Reader, filename, label string) (*models.Attachment, error)
	AttachLink(ctx context.Context, reportID int64, link, label string) (*models.Attachment, error)
	Attachments(ctx context.Context, reportID int64) ([]*models.Attachment, error)
	GetAttachment(ctx context.Context, id int64) (*models.Attachment, error)
	// AttachmentFile resolves the on-disk path of a stored attachment.
	AttachmentFile(ctx context.Context, id int64) (*models.Attachment, string, error)
	DeleteAttachment(ctx context.Context, id int64) error
}

type reportService struct {
	reports     repositories.ReportRepository
	attachments repositories.AttachmentRepository
	store       *storage.Store
	logger      *zap.Logger
}

// NewReportService creates a new report service with dependencies.
func NewReportService(
	reports repositories.ReportRepository,
	attachments repositories.AttachmentRepository,
	store *storage.Store,
	logger *zap.Logger,
) ReportService {
	return &reportService{
		reports:     reports,
		attachments: attachments,
		store:       store,
		logger:      logger.Named("reports"),
	}
}

func (s *reportService) Create(ctx context.Context, author *models.User, report *models.Report) error {
	report.ID = 0
	if author != nil {
		id := author.ID
		report.AuthorID = &id
		report.AuthorName = author.DisplayName
		if report.AuthorName == "" {
			report.AuthorName = author.Username
		}
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return err
	}
	s.logger.Info("Created report",
		zap.Int64("report_id", report.ID),
		zap.Int64("player_id", report.PlayerID),
		zap.Int("scores", report.Ratings.Count()))
	return nil
}

func (s *reportService) Get(ctx context.Context, id int64) (*models.Report, error) {
	return s.reports.GetByID(ctx, id)
}

func (s *reportService) Find(ctx context.Context, filter models.ReportFilter) ([]*models.Report, error) {
	return s.reports.Find(ctx, filter)
}

func (s *reportService) ListByPlayer(ctx context.Context, playerID int64) ([]*models.Report, error) {
	return s.reports.ListByPlayer(ctx, playerID)
}

func (s *reportService) Update(ctx context.Context, report *models.Report) error {
	return s.reports.Update(ctx, report)
}

func (s *reportService) Delete(ctx context.Context, id int64) error {
	paths, err := s.attachments.ListPathsByReport(ctx, id)
	if err != nil {
		return err
	}
	if err := s.reports.Delete(ctx, id); err != nil {
		return err
	}
	s.store.RemoveUploads(paths)
	s.logger.Info("Deleted report", zap.Int64("report_id", id), zap.Int("files", len(paths)))
	return nil
}

func (s *reportService) Aggregate(ctx context.Context, playerID int64) (*models.Aggregate, error) {
	return s.reports.AggregateForPlayer(ctx, playerID)
}

// AttachFile stores the upload first and removes it again if the row cannot be written.
func (s *reportService) AttachFile(ctx context.Context, reportID int64, r io.Reader, filename, label string) (*models.Attachment, error) {
	if _, err := s.reports.GetByID(ctx, reportID); err != nil {
		return nil, err
	}
	saved, err := s.store.SaveUpload(r, filename)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(label) == "" {
		label = filename
	}
	attachment := &models.Attachment{
		ReportID:      reportID,
		Kind:          saved.Kind,
		Label:         strings.TrimSpace(label),
		FilePath:      saved.Path,
		ThumbnailPath: saved.ThumbnailPath,
		ContentType:   saved.ContentType,
		SizeBytes:     saved.Size,
	}
	if err := s.attachments.Create(ctx, attachment); err != nil {
		s.store.RemoveUploads(attachment.StoredFiles())
		return nil, err
	}
	return attachment, nil
}

func (s *reportService) AttachLink(ctx context.Context, reportID int64, link, label string) (*models.Attachment, error) {
	link = strings.TrimSpace(link)
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperrors.NewValidationError("url", "must be an http or https URL")
	}
	attachment := &models.Attachment{
		ReportID: reportID,
		Kind:     models.AttachmentLink,
		Label:    strings.TrimSpace(label),
		URL:      link,
	}
	if err := s.attachments.Create(ctx, attachment); err != nil {
		return nil, err
	}
	return attachment, nil
}

func (s *reportService) Attachments(ctx context.Context, reportID int64) ([]*models.Attachment, error) {
	if _, err := s.reports.GetByID(ctx, reportID); err != nil {
		return nil, err
	}
	return s.attachments.ListByReport(ctx, reportID)
}

func (s *reportService) GetAttachment(ctx context.Context, id int64) (*models.Attachment, error) {
	return s.attachments.GetByID(ctx, id)
}

func (s *reportService) AttachmentFile(ctx context.Context, id int64) (*models.Attachment, string, error) {
	attachment, err := s.attachments.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if attachment.FilePath == "" {
		return attachment, "", apperrors.NewValidationError("id", "attachment %d is a link", id)
	}
	path, err := s.store.UploadPath(attachment.FilePath)
	if err != nil {
		return nil, "", err
	}
	return attachment, path, nil
}

func (s *reportService) DeleteAttachment(ctx context.Context, id int64) error {
	attachment, err := s.attachments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.attachments.Delete(ctx, id); err != nil {
		return err
	}
	s.store.RemoveUploads(attachment.StoredFiles())
	return nil
}
