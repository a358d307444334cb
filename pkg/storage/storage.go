// Package storage manages files outside the database: report attachments
// (with image thumbnails) and generated PDF exports.
package storage

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/apperrors"
	"github.com/cac-scouting/scout-engine/pkg/models"
)

const thumbsDir = "thumbs"

// Config locates the two storage roots.
type Config struct {
	UploadDir      string
	ExportDir      string
	MaxUploadBytes int64
	ThumbnailSize  int // longest side in pixels
}

// Store reads and writes upload and export files.
type Store struct {
	uploadDir string
	exportDir string
	maxBytes  int64
	thumbSize int
	logger    *zap.Logger
}

// SavedFile describes a stored upload. Paths are relative to the upload directory.
type SavedFile struct {
	Path          string
	ThumbnailPath string
	ContentType   string
	Kind          string
	Size          int64
}

// New creates the storage directories if needed.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.UploadDir == "" || cfg.ExportDir == "" {
		return nil, fmt.Errorf("upload and export directories are required")
	}
	if cfg.ThumbnailSize <= 0 {
		cfg.ThumbnailSize = 320
	}
	for _, dir := range []string{cfg.ExportDir, cfg.UploadDir, filepath.Join(cfg.UploadDir, thumbsDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return &Store{
		uploadDir: cfg.UploadDir,
		exportDir: cfg.ExportDir,
		maxBytes:  cfg.MaxUploadBytes,
		thumbSize: cfg.ThumbnailSize,
		logger:    logger.Named("storage"),
	}, nil
}

// SaveUpload writes r as a new upload named <uuid><ext>. Images also get a
// JPEG thumbnail. Oversized uploads are a ValidationError and leave nothing behind.
func (s *Store) SaveUpload(r io.Reader, filename string) (*SavedFile, error) {
	id := uuid.New().String()
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 10 {
		ext = ""
	}
	rel := id + ext
	full := filepath.Join(s.uploadDir, rel)

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload: %w", err)
	}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	var head [512]byte
	n, err := io.ReadFull(src, head[:])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		f.Close()
		_ = os.Remove(full)
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if _, err := f.Write(head[:n]); err != nil {
		f.Close()
		_ = os.Remove(full)
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	rest, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(full)
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}

	size := int64(n) + rest
	if s.maxBytes > 0 && size > s.maxBytes {
		_ = os.Remove(full)
		return nil, apperrors.NewValidationError("file", "exceeds the %d MB upload limit", s.maxBytes>>20)
	}
	if size == 0 {
		_ = os.Remove(full)
		return nil, apperrors.NewValidationError("file", "is empty")
	}

	saved := &SavedFile{
		Path:        rel,
		ContentType: http.DetectContentType(head[:n]),
		Size:        size,
	}
	saved.Kind = kindOf(saved.ContentType)

	if saved.Kind == models.AttachmentImage {
		thumb := filepath.Join(thumbsDir, id+".jpg")
		if err := s.thumbnail(full, filepath.Join(s.uploadDir, thumb)); err != nil {
			s.logger.Warn("Thumbnail failed",
				zap.String("file", rel),
				zap.Error(err))
		} else {
			saved.ThumbnailPath = thumb
		}
	}

	s.logger.Debug("Stored upload",
		zap.String("file", rel),
		zap.String("content_type", saved.ContentType),
		zap.Int64("size", size))
	return saved, nil
}

func kindOf(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.AttachmentImage
	case strings.HasPrefix(contentType, "video/"):
		return models.AttachmentVideo
	default:
		return models.AttachmentDocument
	}
}

func (s *Store) thumbnail(src, dst string) error {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return err
	}
	img = imaging.Fit(img, s.thumbSize, s.thumbSize, imaging.Lanczos)
	return imaging.Save(img, dst, imaging.JPEGQuality(80))
}

// UploadPath resolves an upload-relative path, refusing anything outside the upload directory.
func (s *Store) UploadPath(rel string) (string, error) {
	return within(s.uploadDir, rel)
}

// ExportFile is the file name of a player's export for a fingerprint.
func ExportFile(playerID int64, fingerprint string) string {
	fp := fingerprint
	if len(fp) > 12 {
		fp = fp[:12]
	}
	return fmt.Sprintf("player_%d_%s.pdf", playerID, fp)
}

// PruneExports removes a player's export files other than keep and returns
// how many were removed. An empty keep removes them all.
func (s *Store) PruneExports(playerID int64, keep string) int {
	matches, err := filepath.Glob(filepath.Join(s.exportDir, fmt.Sprintf("player_%d_*.pdf", playerID)))
	if err != nil {
		return 0
	}
	var stale []string
	for _, m := range matches {
		if name := filepath.Base(m); name != keep {
			stale = append(stale, name)
		}
	}
	s.RemoveExports(stale)
	return len(stale)
}

// ExportPath resolves an export file name inside the export directory.
func (s *Store) ExportPath(name string) (string, error) {
	return within(s.exportDir, name)
}

// Exists reports whether an export file is present on disk.
func (s *Store) Exists(name string) bool {
	full, err := s.ExportPath(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// RemoveUploads deletes upload files. Missing files are ignored; other
// failures are logged, since the rows are already gone.
func (s *Store) RemoveUploads(paths []string) {
	s.remove(s.uploadDir, paths)
}

// RemoveExports deletes export files the same way.
func (s *Store) RemoveExports(names []string) {
	s.remove(s.exportDir, names)
}

func (s *Store) remove(root string, paths []string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		full, err := within(root, p)
		if err != nil {
			s.logger.Warn("Refusing to remove path", zap.String("path", p), zap.Error(err))
			continue
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to remove file", zap.String("path", p), zap.Error(err))
		}
	}
}

func within(root, rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) {
		return "", fmt.Errorf("invalid path %q", rel)
	}
	full := filepath.Join(root, rel)
	r, err := filepath.Rel(root, full)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes %s", rel, root)
	}
	return full, nil
}
