package models

import "time"

// Attachment kinds
const (
	AttachmentImage    = "image"
	AttachmentDocument = "document"
	AttachmentVideo    = "video"
	AttachmentLink     = "link"
)

// Attachment is a file or link owned by exactly one report.
// FilePath and ThumbnailPath are relative to the upload directory.
type Attachment struct {
	ID            int64     `json:"id"`
	ReportID      int64     `json:"report_id"`
	Kind          string    `json:"kind"`
	Label         string    `json:"label,omitempty"`
	FilePath      string    `json:"file_path,omitempty"`
	URL           string    `json:"url,omitempty"`
	ThumbnailPath string    `json:"thumbnail_path,omitempty"`
	ContentType   string    `json:"content_type,omitempty"`
	SizeBytes     int64     `json:"size_bytes"`
	CreatedAt     time.Time `json:"created_at"`
}

// StoredFiles returns the upload-relative paths this attachment owns on disk.
func (a *Attachment) StoredFiles() []string {
	var paths []string
	if a.FilePath != "" {
		paths = append(paths, a.FilePath)
	}
	if a.ThumbnailPath != "" {
		paths = append(paths, a.ThumbnailPath)
	}
	return paths
}
