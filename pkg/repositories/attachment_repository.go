package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cac-scouting/scout-engine/pkg/apperrors"
	"github.com/cac-scouting/scout-engine/pkg/database"
	"github.com/cac-scouting/scout-engine/pkg/models"
)

// AttachmentRepository defines the interface for report attachment rows.
// Files on disk are owned by pkg/storage; these methods only track them.
type AttachmentRepository interface {
	Create(ctx context.Context, attachment *models.Attachment) error
	GetByID(ctx context.Context, id int64) (*models.Attachment, error)
	ListByReport(ctx context.Context, reportID int64) ([]*models.Attachment, error)
	Delete(ctx context.Context, id int64) error
	// ListPathsByReport returns the stored files of a report's attachments,
	// so callers can remove them after deleting the report.
	ListPathsByReport(ctx context.Context, reportID int64) ([]string, error)
	ListPathsByPlayer(ctx context.Context, playerID int64) ([]string, error)
}

type attachmentRepository struct {
	db *database.DB
}

// NewAttachmentRepository creates a new attachment repository.
func NewAttachmentRepository(db *database.DB) AttachmentRepository {
	return &attachmentRepository{db: db}
}

const attachmentColumns = `id, report_id, kind, label, file_path, url, thumbnail_path, content_type, size_bytes, created_at`

func scanAttachment(row rowScanner) (*models.Attachment, error) {
	var a models.Attachment
	var createdAt string
	if err := row.Scan(&a.ID, &a.ReportID, &a.Kind, &a.Label, &a.FilePath, &a.URL, &a.ThumbnailPath,
		&a.ContentType, &a.SizeBytes, &createdAt); err != nil {
		return nil, err
	}
	a.CreatedAt = models.ParseTimestamp(createdAt)
	return &a, nil
}

func validateAttachment(a *models.Attachment) error {
	switch a.Kind {
	case models.AttachmentLink:
		if strings.TrimSpace(a.URL) == "" {
			return apperrors.NewValidationError("url", "is required for links")
		}
	case models.AttachmentImage, models.AttachmentDocument, models.AttachmentVideo:
		if a.FilePath == "" {
			return apperrors.NewValidationError("file", "is required")
		}
	default:
		return apperrors.NewValidationError("kind", "unknown attachment kind %q", a.Kind)
	}
	return nil
}

func (r *attachmentRepository) Create(ctx context.Context, attachment *models.Attachment) error {
	if err := validateAttachment(attachment); err != nil {
		return err
	}
	return r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		var playerID int64
		err := q.QueryRowContext(ctx, `SELECT player_id FROM reports WHERE id = ?`, attachment.ReportID).Scan(&playerID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("report %d: %w", attachment.ReportID, apperrors.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get report: %w", err)
		}

		now := time.Now().UTC()
		res, err := q.ExecContext(ctx, `
			INSERT INTO attachments (report_id, kind, label, file_path, url, thumbnail_path, content_type, size_bytes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			attachment.ReportID, attachment.Kind, attachment.Label, attachment.FilePath, attachment.URL,
			attachment.ThumbnailPath, attachment.ContentType, attachment.SizeBytes, models.FormatTimestamp(now))
		if err != nil {
			return fmt.Errorf("failed to create attachment: %w", err)
		}
		if attachment.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read attachment id: %w", err)
		}
		attachment.CreatedAt = now
		return nil
	})
}

func (r *attachmentRepository) GetByID(ctx context.Context, id int64) (*models.Attachment, error) {
	var attachment *models.Attachment
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		row := q.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id = ?`, id)
		a, err := scanAttachment(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("attachment %d: %w", id, apperrors.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get attachment: %w", err)
		}
		attachment = a
		return nil
	})
	return attachment, err
}

func (r *attachmentRepository) ListByReport(ctx context.Context, reportID int64) ([]*models.Attachment, error) {
	attachments := []*models.Attachment{}
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		rows, err := q.QueryContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE report_id = ? ORDER BY id`, reportID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			a, err := scanAttachment(rows)
			if err != nil {
				return err
			}
			attachments = append(attachments, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	return attachments, nil
}

func (r *attachmentRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithTx(ctx, func(ctx context.Context, q database.Querier) error {
		res, err := q.ExecContext(ctx, `DELETE FROM attachments WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete attachment: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("attachment %d: %w", id, apperrors.ErrNotFound)
		}
		return nil
	})
}

func (r *attachmentRepository) ListPathsByReport(ctx context.Context, reportID int64) ([]string, error) {
	return r.listPaths(ctx, `SELECT file_path, thumbnail_path FROM attachments WHERE report_id = ?`, reportID)
}

func (r *attachmentRepository) ListPathsByPlayer(ctx context.Context, playerID int64) ([]string, error) {
	return r.listPaths(ctx, `
		SELECT a.file_path, a.thumbnail_path FROM attachments a
		JOIN reports r ON r.id = a.report_id
		WHERE r.player_id = ?`, playerID)
}

func (r *attachmentRepository) listPaths(ctx context.Context, query string, id int64) ([]string, error) {
	var paths []string
	err := r.db.WithConnection(ctx, func(q database.Querier) error {
		rows, err := q.QueryContext(ctx, query, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var a models.Attachment
			if err := rows.Scan(&a.FilePath, &a.ThumbnailPath); err != nil {
				return err
			}
			paths = append(paths, a.StoredFiles()...)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list attachment paths: %w", err)
	}
	return paths, nil
}
