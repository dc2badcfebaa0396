package events

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petmarket/media-service/internal/configuration"
	"github.com/petmarket/media-service/internal/logger"
	"github.com/petmarket/media-service/internal/models"
	"github.com/petmarket/media-service/internal/services"
	"github.com/petmarket/media-service/internal/storage"
)

type fakeStore struct {
	mu      sync.Mutex
	deleted []string
	refuse  map[string]bool
}

func (f *fakeStore) Upload(context.Context, string, string, models.ResourceType, string) (*models.RemoteMetadata, error) {
	panic("not used")
}

func (f *fakeStore) Delete(_ context.Context, publicID string, _ models.ResourceType) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse[publicID] {
		return false
	}
	f.deleted = append(f.deleted, publicID)
	return true
}

func (f *fakeStore) SignedURL(context.Context, string, services.URLOptions) (string, error) {
	return "", nil
}

func (f *fakeStore) Name() string { return "fake" }

func seed(t *testing.T, repo storage.MediaRepository, publicID string, et models.EntityType, id int64) {
	t.Helper()
	f := models.NewMediaFile(models.RemoteMetadata{
		PublicID:     publicID,
		URL:          "http://x/" + publicID,
		ResourceType: models.ResourceImage,
		Format:       "jpg",
	}, models.EntityContext{Type: et, ID: &id})
	_, err := repo.InsertMediaFile(context.Background(), &f)
	require.NoError(t, err)
}

func newRepo(t *testing.T) *storage.LocalStorage {
	t.Helper()
	repo, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "media.json"))
	require.NoError(t, err)
	return repo
}

func TestDeleteEntityMedia_OnlyNamedEntity(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo, "pet7-a", models.EntityPet, 7)
	seed(t, repo, "pet7-b", models.EntityPet, 7)
	seed(t, repo, "pet8-a", models.EntityPet, 8)
	seed(t, repo, "breed7-a", models.EntityBreed, 7)

	store := &fakeStore{}
	h := NewHandlers(repo, store, logger.Nop())

	removed, err := h.DeleteEntityMedia(context.Background(), []byte(`{"entity_type":"pet","entity_id":7}`))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.ElementsMatch(t, []string{"pet7-a", "pet7-b"}, store.deleted)

	for _, id := range []string{"pet8-a", "breed7-a"} {
		_, ok, err := repo.GetMediaFile(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, ok, id)
	}
	_, ok, _ := repo.GetMediaFile(context.Background(), "pet7-a")
	assert.False(t, ok)
}

func TestDeleteEntityMedia_KeepsRowWhenRemoteDeleteFails(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo, "a", models.EntityEvent, 1)
	seed(t, repo, "b", models.EntityEvent, 1)
	seed(t, repo, "c", models.EntityEvent, 1)

	store := &fakeStore{refuse: map[string]bool{"c": true}}
	h := NewHandlers(repo, store, logger.Nop())

	removed, err := h.DeleteEntityMedia(context.Background(), []byte(`{"entity_type":"event","entity_id":1}`))
	require.Error(t, err)
	assert.Equal(t, 2, removed)

	_, ok, _ := repo.GetMediaFile(context.Background(), "c")
	assert.True(t, ok)
}

func TestDeleteEntityMedia_AlreadyGoneRemotely(t *testing.T) {
	repo := newRepo(t)
	seed(t, repo, "gone-a", models.EntityPet, 11)
	seed(t, repo, "gone-b", models.EntityPet, 11)

	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		io.WriteString(w, `{"result":"not found"}`)
	}))
	defer srv.Close()

	store := services.NewCloudinaryService(configuration.CloudinaryConfig{
		CloudName:  "demo",
		APIKey:     "key",
		APISecret:  "secret",
		APIBaseURL: srv.URL,
		Timeout:    5 * time.Second,
	}, logger.Nop())

	removed, err := NewHandlers(repo, store, logger.Nop()).
		DeleteEntityMedia(context.Background(), []byte(`{"entity_type":"pet","entity_id":11}`))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, calls)

	for _, id := range []string{"gone-a", "gone-b"} {
		_, ok, err := repo.GetMediaFile(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, ok, id)
	}
}

func TestDeleteEntityMedia_Paginates(t *testing.T) {
	repo := newRepo(t)
	for i := 0; i < cascadePageSize+15; i++ {
		seed(t, repo, fmt.Sprintf("provider-%03d", i), models.EntityProvider, 3)
	}
	store := &fakeStore{}

	removed, err := NewHandlers(repo, store, logger.Nop()).
		DeleteEntityMedia(context.Background(), []byte(`{"entity_type":"provider","entity_id":3}`))
	require.NoError(t, err)
	assert.Equal(t, cascadePageSize+15, removed)
}

func TestDeleteEntityMedia_InvalidPayload(t *testing.T) {
	h := NewHandlers(newRepo(t), &fakeStore{}, logger.Nop())

	for _, body := range []string{`nope`, `{"entity_type":"dragon","entity_id":1}`, `{"entity_type":"pet"}`} {
		_, err := h.DeleteEntityMedia(context.Background(), []byte(body))
		assert.ErrorIs(t, err, errInvalidPayload, body)
	}
}
