package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/petmarket/media-service/internal/models"
)

// LocalStorage keeps media metadata in a JSON file. Every write rewrites the file through a
// temp file and rename.
type LocalStorage struct {
	path   string
	mu     sync.RWMutex
	files  map[string]models.MediaFile
	nextID int64
}

type localSnapshot struct {
	NextID int64              `json:"next_id"`
	Files  []models.MediaFile `json:"files"`
}

// NewLocalStorage loads path if it exists and starts empty otherwise.
func NewLocalStorage(path string) (*LocalStorage, error) {
	l := &LocalStorage{path: path, files: make(map[string]models.MediaFile), nextID: 1}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var snap localSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse metadata file: %w", err)
	}
	for _, f := range snap.Files {
		l.files[f.PublicID] = f
		if f.ID >= l.nextID {
			l.nextID = f.ID + 1
		}
	}
	if snap.NextID > l.nextID {
		l.nextID = snap.NextID
	}
	return l, nil
}

func (l *LocalStorage) InsertMediaFile(_ context.Context, file *models.MediaFile) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.files[file.PublicID]; exists {
		return 0, ErrDuplicatePublicID
	}

	now := time.Now().UTC()
	row := *file
	row.ID = l.nextID
	row.CreatedAt = now
	row.UpdatedAt = now

	l.files[row.PublicID] = row
	l.nextID++

	if err := l.saveLocked(); err != nil {
		// keep memory consistent with disk
		delete(l.files, row.PublicID)
		l.nextID--
		return 0, fmt.Errorf("failed to persist metadata: %w", err)
	}

	file.ID, file.CreatedAt, file.UpdatedAt = row.ID, row.CreatedAt, row.UpdatedAt
	return row.ID, nil
}

func (l *LocalStorage) GetMediaFile(_ context.Context, publicID string) (models.MediaFile, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.files[publicID]
	return f, ok, nil
}

func (l *LocalStorage) ListMediaFiles(_ context.Context, filter MediaFilter) ([]models.MediaFile, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	files := make([]models.MediaFile, 0)
	for _, f := range l.files {
		if filter.EntityType != "" && f.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != nil && (f.EntityID == nil || *f.EntityID != *filter.EntityID) {
			continue
		}
		files = append(files, f)
	}

	// newest first
	sort.Slice(files, func(i, j int) bool {
		return files[i].ID > files[j].ID
	})

	offset := normalizeOffset(filter.Offset)
	if offset >= len(files) {
		return []models.MediaFile{}, nil
	}
	files = files[offset:]
	if limit := normalizeLimit(filter.Limit); len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

func (l *LocalStorage) DeleteMediaFile(_ context.Context, publicID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, exists := l.files[publicID]
	if !exists {
		return false, nil
	}
	delete(l.files, publicID)
	if err := l.saveLocked(); err != nil {
		l.files[publicID] = f
		return false, fmt.Errorf("failed to persist metadata deletion: %w", err)
	}
	return true, nil
}

func (l *LocalStorage) Ping(context.Context) error { return nil }

func (l *LocalStorage) Close() error { return nil }

func (l *LocalStorage) saveLocked() error {
	snap := localSnapshot{NextID: l.nextID, Files: make([]models.MediaFile, 0, len(l.files))}
	for _, f := range l.files {
		snap.Files = append(snap.Files, f)
	}
	sort.Slice(snap.Files, func(i, j int) bool { return snap.Files[i].ID < snap.Files[j].ID })

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tempFile := l.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	if err := os.Rename(tempFile, l.path); err != nil {
		return fmt.Errorf("failed to rename metadata file: %w", err)
	}
	return nil
}
