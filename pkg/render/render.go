// Package render builds the player dossier PDF.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/llm"
	"github.com/cac-scouting/scout-engine/pkg/models"
	"github.com/cac-scouting/scout-engine/pkg/stats"
)

// Bundle is everything a dossier shows. Reports must be in timeline order.
type Bundle struct {
	Player      *models.Player
	Reports     []*models.Report
	Aggregate   *models.Aggregate
	Stats       stats.Summary
	Trend       stats.Trend
	Seasons     []*models.SeasonRecord
	Summary     *llm.Summary // nil renders no AI section
	GeneratedAt time.Time
}

// Renderer writes a bundle to a PDF file.
type Renderer interface {
	Render(ctx context.Context, b Bundle, outPath string) error
}

// Options configures PDFRenderer.
type Options struct {
	// UploadDir resolves photo references that are not http(s) URLs.
	UploadDir string
	// PhotoTimeout bounds the photo download. Zero means 10s.
	PhotoTimeout time.Duration
	HTTPClient   *http.Client
}

// PDFRenderer lays the dossier out with fpdf's core fonts.
type PDFRenderer struct {
	opts   Options
	logger *zap.Logger
}

var _ Renderer = (*PDFRenderer)(nil)

// NewPDFRenderer creates a renderer.
func NewPDFRenderer(opts Options, logger *zap.Logger) *PDFRenderer {
	if opts.PhotoTimeout <= 0 {
		opts.PhotoTimeout = 10 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.PhotoTimeout}
	}
	return &PDFRenderer{opts: opts, logger: logger.Named("render")}
}

const (
	photoW = 32.0 // mm
	photoH = 40.0
)

// Render writes the PDF to outPath through a temp file in the same directory,
// so a failed or cancelled render never leaves a partial file behind.
func (r *PDFRenderer) Render(ctx context.Context, b Bundle, outPath string) error {
	if b.Player == nil {
		return fmt.Errorf("render: bundle has no player")
	}
	if b.GeneratedAt.IsZero() {
		b.GeneratedAt = time.Now()
	}

	d := newDocument(b.GeneratedAt)
	if photo := r.loadPhoto(ctx, b.Player.PhotoURL); photo != nil {
		d.registerPhoto(photo)
	}

	sections := []func(Bundle){
		d.header,
		d.statsBlock,
		d.categoryTable,
		d.timelineChart,
		d.careerTable,
		d.summarySection,
		d.reportList,
	}
	for _, section := range sections {
		if err := ctx.Err(); err != nil {
			return err
		}
		section(b)
	}
	if d.pdf.Err() {
		return fmt.Errorf("failed to lay out dossier: %w", d.pdf.Error())
	}

	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".dossier-*.pdf")
	if err != nil {
		return fmt.Errorf("failed to create dossier file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := d.pdf.Output(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write dossier: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write dossier: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, outPath); err != nil {
		return fmt.Errorf("failed to publish dossier: %w", err)
	}

	r.logger.Debug("Rendered dossier",
		zap.Int64("player_id", b.Player.ID),
		zap.Int("reports", len(b.Reports)),
		zap.Bool("with_summary", b.Summary != nil && !b.Summary.IsEmpty()),
		zap.String("path", outPath))
	return nil
}

// loadPhoto fetches and crops the player photo. Any failure is logged and the
// dossier is laid out without it.
func (r *PDFRenderer) loadPhoto(ctx context.Context, ref string) image.Image {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	rc, err := r.openPhoto(ctx, ref)
	if err != nil {
		r.logger.Warn("Player photo unavailable", zap.String("photo", ref), zap.Error(err))
		return nil
	}
	defer rc.Close()

	img, err := imaging.Decode(io.LimitReader(rc, 10<<20), imaging.AutoOrientation(true))
	if err != nil {
		r.logger.Warn("Player photo is not an image", zap.String("photo", ref), zap.Error(err))
		return nil
	}
	// 4 px per mm keeps the embedded JPEG small.
	return imaging.Fill(img, int(photoW*4), int(photoH*4), imaging.Center, imaging.Lanczos)
}

func (r *PDFRenderer) openPhoto(ctx context.Context, ref string) (io.ReadCloser, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		ctx, cancel := context.WithTimeout(ctx, r.opts.PhotoTimeout)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			cancel()
			return nil, err
		}
		resp, err := r.opts.HTTPClient.Do(req)
		if err != nil {
			cancel()
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			cancel()
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}
		return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
	}

	path := ref
	if !filepath.IsAbs(path) && r.opts.UploadDir != "" {
		path = filepath.Join(r.opts.UploadDir, filepath.Clean("/"+ref))
	}
	return os.Open(path)
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// countLabel renders "1 informe", "3 informes".
func countLabel(n int, singular string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", singular)
	}
	return fmt.Sprintf("%d %s", n, inflection.Plural(singular))
}

func encodeJPEG(img image.Image) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, err
	}
	return &buf, nil
}
