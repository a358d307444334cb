package storage

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/apperrors"
	"github.com/cac-scouting/scout-engine/pkg/models"
)

func newStore(t *testing.T, maxBytes int64) *Store {
	t.Helper()
	root := t.TempDir()
	s, err := New(Config{
		UploadDir:      filepath.Join(root, "uploads"),
		ExportDir:      filepath.Join(root, "exports"),
		MaxUploadBytes: maxBytes,
		ThumbnailSize:  64,
	}, zap.NewNop())
	require.NoError(t, err)
	return s
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNew_RequiresDirs(t *testing.T) {
	_, err := New(Config{UploadDir: t.TempDir()}, zap.NewNop())
	assert.Error(t, err)
}

func TestSaveUpload_ImageGetsThumbnail(t *testing.T) {
	s := newStore(t, 1<<20)

	saved, err := s.SaveUpload(bytes.NewReader(pngBytes(t, 300, 150)), "Heatmap.PNG")
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(saved.Path, ".png"))
	assert.Equal(t, "image/png", saved.ContentType)
	assert.Equal(t, models.AttachmentImage, saved.Kind)
	require.NotEmpty(t, saved.ThumbnailPath)
	assert.True(t, strings.HasPrefix(saved.ThumbnailPath, "thumbs/"))

	full, err := s.UploadPath(saved.Path)
	require.NoError(t, err)
	info, err := os.Stat(full)
	require.NoError(t, err)
	assert.Equal(t, saved.Size, info.Size())

	thumbFull, err := s.UploadPath(saved.ThumbnailPath)
	require.NoError(t, err)
	f, err := os.Open(thumbFull)
	require.NoError(t, err)
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, 32, cfg.Height)
}

func TestSaveUpload_Document(t *testing.T) {
	s := newStore(t, 1<<20)

	saved, err := s.SaveUpload(strings.NewReader("%PDF-1.4\n%fake pdf body"), "informe.pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", saved.ContentType)
	assert.Equal(t, models.AttachmentDocument, saved.Kind)
	assert.Empty(t, saved.ThumbnailPath)
}

func TestSaveUpload_BrokenImageStillStored(t *testing.T) {
	s := newStore(t, 1<<20)

	data := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 100)...)
	saved, err := s.SaveUpload(bytes.NewReader(data), "rota.png")
	require.NoError(t, err)
	assert.Equal(t, models.AttachmentImage, saved.Kind)
	assert.Empty(t, saved.ThumbnailPath)
}

func TestSaveUpload_TooLarge(t *testing.T) {
	s := newStore(t, 1024)

	_, err := s.SaveUpload(bytes.NewReader(make([]byte, 2048)), "grande.bin")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	entries, err := os.ReadDir(s.uploadDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.True(t, e.IsDir(), "no file left behind: %s", e.Name())
	}
}

func TestSaveUpload_Empty(t *testing.T) {
	s := newStore(t, 1024)
	_, err := s.SaveUpload(bytes.NewReader(nil), "vacio.txt")
	assert.True(t, apperrors.IsValidation(err))
}

func TestRemoveUploads(t *testing.T) {
	s := newStore(t, 1<<20)
	saved, err := s.SaveUpload(bytes.NewReader(pngBytes(t, 20, 20)), "a.png")
	require.NoError(t, err)

	s.RemoveUploads([]string{saved.Path, saved.ThumbnailPath, "missing.png", "../escape.txt", ""})

	for _, p := range []string{saved.Path, saved.ThumbnailPath} {
		full, _ := s.UploadPath(p)
		_, err := os.Stat(full)
		assert.True(t, os.IsNotExist(err), p)
	}
}

func TestPathsStayInside(t *testing.T) {
	s := newStore(t, 0)

	for _, bad := range []string{"", "../x", "a/../../x", "/etc/passwd"} {
		_, err := s.UploadPath(bad)
		assert.Error(t, err, bad)
		_, err = s.ExportPath(bad)
		assert.Error(t, err, bad)
	}

	p, err := s.UploadPath("thumbs/x.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.uploadDir, "thumbs", "x.jpg"), p)
}

func TestExportFiles(t *testing.T) {
	s := newStore(t, 0)

	name := ExportFile(7, "0123456789abcdef0123")
	assert.Equal(t, "player_7_0123456789ab.pdf", name)
	assert.Equal(t, "player_7_abc.pdf", ExportFile(7, "abc"))

	assert.False(t, s.Exists(name))
	full, err := s.ExportPath(name)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(full, []byte("%PDF"), 0o644))
	assert.True(t, s.Exists(name))

	s.RemoveExports([]string{name})
	assert.False(t, s.Exists(name))
}

func TestPruneExports(t *testing.T) {
	s := newStore(t, 0)
	names := []string{ExportFile(7, "aaa"), ExportFile(7, "bbb"), ExportFile(70, "ccc")}
	for _, name := range names {
		full, err := s.ExportPath(name)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(full, []byte("%PDF"), 0o644))
	}

	assert.Equal(t, 1, s.PruneExports(7, names[1]))
	assert.False(t, s.Exists(names[0]))
	assert.True(t, s.Exists(names[1]))
	assert.True(t, s.Exists(names[2]), "other players are untouched")

	assert.Equal(t, 1, s.PruneExports(7, ""))
	assert.False(t, s.Exists(names[1]))
}
