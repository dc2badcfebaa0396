package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petmarket/media-service/internal/models"
	"github.com/petmarket/media-service/internal/services"
	"github.com/petmarket/media-service/internal/storage"
)

type part struct {
	name        string
	contentType string
	body        []byte
}

// fileHeaders builds real multipart file headers the way net/http would hand them over.
func fileHeaders(t *testing.T, parts ...part) []*multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, p.name))
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		w, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = w.Write(p.body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	form, err := multipart.NewReader(&buf, mw.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["files"]
}

// stage writes files straight into dir, bypassing Intake.
func stage(t *testing.T, dir string, files ...models.StagedFile) []models.StagedFile {
	t.Helper()
	out := make([]models.StagedFile, 0, len(files))
	for i, f := range files {
		f.Path = filepath.Join(dir, fmt.Sprintf("%d-%d%s", time.Now().UnixMilli(), i, filepath.Ext(f.OriginalName)))
		require.NoError(t, os.WriteFile(f.Path, []byte("payload-"+f.OriginalName), 0600))
		if f.SizeBytes == 0 {
			f.SizeBytes = int64(len("payload-" + f.OriginalName))
		}
		out = append(out, f)
	}
	return out
}

type uploadCall struct {
	Path         string
	Folder       string
	ResourceType models.ResourceType
	PublicID     string
}

// fakeStore fails the first failures[path] attempts for a staged path and every attempt for always[path].
type fakeStore struct {
	mu       sync.Mutex
	calls    []uploadCall
	failures map[string]int
	always   map[string]bool
	deleted  []string
	existed  map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{failures: map[string]int{}, always: map[string]bool{}, existed: map[string]bool{}}
}

func (f *fakeStore) Upload(_ context.Context, path, folder string, rt models.ResourceType, publicID string) (*models.RemoteMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, uploadCall{Path: path, Folder: folder, ResourceType: rt, PublicID: publicID})

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("staged file missing during upload: %w", err)
	}
	if f.always[path] {
		return nil, errors.New("media store upload failed with status 500")
	}
	if f.failures[path] > 0 {
		f.failures[path]--
		return nil, errors.New("connection reset by peer")
	}

	w, h := 640, 480
	meta := &models.RemoteMetadata{
		PublicID:     publicID,
		URL:          "http://cdn.test/" + publicID,
		SecureURL:    "https://cdn.test/" + publicID,
		ResourceType: rt,
		Format:       filepath.Ext(path)[1:],
		Width:        &w,
		Height:       &h,
		Bytes:        1234,
		CreatedAt:    time.Now(),
	}
	if rt == models.ResourceVideo {
		d := 12.5
		meta.Duration = &d
	}
	f.existed[publicID] = true
	return meta, nil
}

func (f *fakeStore) Delete(_ context.Context, publicID string, _ models.ResourceType) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, publicID)
	return f.existed[publicID]
}

func (f *fakeStore) SignedURL(context.Context, string, services.URLOptions) (string, error) {
	return "", nil
}

func (f *fakeStore) Name() string { return "fake" }

func (f *fakeStore) attemptsFor(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Path == path {
			n++
		}
	}
	return n
}

// failingRepo rejects every insert.
type failingRepo struct {
	storage.MediaRepository
}

func (failingRepo) InsertMediaFile(context.Context, *models.MediaFile) (int64, error) {
	return 0, errors.New("connection refused")
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []services.MediaUploadedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if subject == services.SubjectMediaUploaded {
		p.events = append(p.events, payload.(services.MediaUploadedEvent))
	}
	return nil
}

type stubScanner struct {
	infected map[string]bool
	err      error
}

func (s stubScanner) Scan(_ context.Context, path string) (services.ScanResult, error) {
	if s.err != nil {
		return services.ScanResult{}, s.err
	}
	for suffix := range s.infected {
		if filepath.Ext(path) == suffix {
			return services.ScanResult{Infected: true, Signature: "Eicar-Test-Signature"}, nil
		}
	}
	return services.ScanResult{}, nil
}

// cancellingScanner cancels the request context mid-scan, like a client hanging up.
type cancellingScanner struct {
	cancel context.CancelFunc
}

func (s cancellingScanner) Scan(ctx context.Context, _ string) (services.ScanResult, error) {
	s.cancel()
	<-ctx.Done()
	return services.ScanResult{}, ctx.Err()
}
