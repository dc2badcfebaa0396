package upload

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petmarket/media-service/internal/logger"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func newIntake(t *testing.T) (*Intake, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "uploads")
	return NewIntake(IntakeConfig{TempDir: dir, MaxFileBytes: 50 << 20, MaxFiles: 5}, nil, logger.Nop()), dir
}

func dirEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return entries
}

func TestStage_WritesAcceptedFiles(t *testing.T) {
	in, dir := newIntake(t)
	files := fileHeaders(t,
		part{name: "rex.JPG", contentType: "image/jpeg", body: []byte("jpeg")},
		part{name: "walk.mp4", contentType: "video/mp4", body: []byte("mp4 bytes")},
	)

	staged, err := in.Stage(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, staged, 2)

	name := regexp.MustCompile(`^\d{13}-[0-9a-f]{16}\.jpg$`)
	assert.Regexp(t, name, filepath.Base(staged[0].Path))
	assert.Equal(t, "rex.JPG", staged[0].OriginalName)
	assert.Equal(t, "image/jpeg", staged[0].MimeType)
	assert.Equal(t, int64(4), staged[0].SizeBytes)

	assert.Equal(t, "video/mp4", staged[1].MimeType)
	data, err := os.ReadFile(staged[1].Path)
	require.NoError(t, err)
	assert.Equal(t, "mp4 bytes", string(data))
	assert.Len(t, dirEntries(t, dir), 2)
}

func TestStage_RejectsUnsupportedFormatBeforeWriting(t *testing.T) {
	in, dir := newIntake(t)
	files := fileHeaders(t,
		part{name: "ok.png", contentType: "image/png", body: pngHeader},
		part{name: "notes.txt", contentType: "text/plain", body: []byte("hello")},
	)

	_, err := in.Stage(context.Background(), files)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	var ie *IntakeError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, http.StatusBadRequest, ie.Status)
	assert.Equal(t, "Unsupported file format", ie.Message)
	assert.Empty(t, dirEntries(t, dir))
}

func TestStage_RejectsOversizedFile(t *testing.T) {
	in, dir := newIntake(t)
	big := &multipart.FileHeader{
		Filename: "huge.mp4",
		Header:   textproto.MIMEHeader{"Content-Type": {"video/mp4"}},
		Size:     50<<20 + 1,
	}

	_, err := in.Stage(context.Background(), []*multipart.FileHeader{big})
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Empty(t, dirEntries(t, dir))
}

func TestStage_ExactlyAtLimitIsAccepted(t *testing.T) {
	dir := t.TempDir()
	in := NewIntake(IntakeConfig{TempDir: dir, MaxFileBytes: 8}, nil, logger.Nop())

	staged, err := in.Stage(context.Background(), fileHeaders(t, part{name: "a.gif", contentType: "image/gif", body: []byte("12345678")}))
	require.NoError(t, err)
	assert.Len(t, staged, 1)
}

func TestStage_DefaultLimitIs50MB(t *testing.T) {
	in := NewIntake(IntakeConfig{TempDir: t.TempDir()}, nil, logger.Nop())
	assert.Equal(t, int64(50*1024*1024), in.cfg.MaxFileBytes)
}

func TestStage_NoFiles(t *testing.T) {
	in, _ := newIntake(t)

	_, err := in.Stage(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoFiles)
	var ie *IntakeError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, http.StatusBadRequest, ie.Status)
	assert.Equal(t, "no files were uploaded", ie.Message)
}

func TestStage_TooManyFiles(t *testing.T) {
	in, _ := newIntake(t)
	parts := make([]part, 6)
	for i := range parts {
		parts[i] = part{name: "p.png", contentType: "image/png", body: pngHeader}
	}

	_, err := in.Stage(context.Background(), fileHeaders(t, parts...))
	assert.ErrorIs(t, err, ErrTooManyFiles)
}

func TestStage_SniffsWhenTypeIsGeneric(t *testing.T) {
	in, _ := newIntake(t)

	staged, err := in.Stage(context.Background(), fileHeaders(t, part{name: "blob", contentType: "application/octet-stream", body: pngHeader}))
	require.NoError(t, err)
	assert.Equal(t, "image/png", staged[0].MimeType)

	_, err = in.Stage(context.Background(), fileHeaders(t, part{name: "blob.bin", body: []byte("plain words")}))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestStage_TempDirFailureIsServerError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))
	in := NewIntake(IntakeConfig{TempDir: filepath.Join(blocker, "sub")}, nil, logger.Nop())

	_, err := in.Stage(context.Background(), fileHeaders(t, part{name: "a.png", contentType: "image/png", body: pngHeader}))
	var ie *IntakeError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, http.StatusInternalServerError, ie.Status)
}

func TestStage_InfectedFileRejectsRequest(t *testing.T) {
	dir := t.TempDir()
	in := NewIntake(IntakeConfig{TempDir: dir}, stubScanner{infected: map[string]bool{".mp4": true}}, logger.Nop())

	_, err := in.Stage(context.Background(), fileHeaders(t,
		part{name: "a.png", contentType: "image/png", body: pngHeader},
		part{name: "b.mp4", contentType: "video/mp4", body: []byte("x")},
	))
	assert.ErrorIs(t, err, ErrInfectedFile)
	assert.Empty(t, dirEntries(t, dir))
}

func TestStage_ScannerOutageFailsOpen(t *testing.T) {
	in := NewIntake(IntakeConfig{TempDir: t.TempDir()}, stubScanner{err: errors.New("dial tcp: connection refused")}, logger.Nop())

	staged, err := in.Stage(context.Background(), fileHeaders(t, part{name: "a.png", contentType: "image/png", body: pngHeader}))
	require.NoError(t, err)
	assert.Len(t, staged, 1)
}

func TestStage_CancelledDuringScanRejects(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := NewIntake(IntakeConfig{TempDir: dir}, cancellingScanner{cancel: cancel}, logger.Nop())

	staged, err := in.Stage(ctx, fileHeaders(t, part{name: "a.png", contentType: "image/png", body: pngHeader}))
	require.Error(t, err)
	assert.Nil(t, staged)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, dirEntries(t, dir))
}
