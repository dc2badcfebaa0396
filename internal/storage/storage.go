package storage

import (
	"context"
	"errors"

	"github.com/petmarket/media-service/internal/models"
)

var (
	ErrDuplicatePublicID = errors.New("media file with this public id already exists")
)

// MediaFilter narrows ListMediaFiles. A nil EntityID matches every entity of the type.
type MediaFilter struct {
	EntityType models.EntityType
	EntityID   *int64
	Limit      int
	Offset     int
}

// MediaRepository is the persistence contract of the upload pipeline.
type MediaRepository interface {
	InsertMediaFile(ctx context.Context, file *models.MediaFile) (int64, error)
	GetMediaFile(ctx context.Context, publicID string) (models.MediaFile, bool, error)
	ListMediaFiles(ctx context.Context, filter MediaFilter) ([]models.MediaFile, error)
	DeleteMediaFile(ctx context.Context, publicID string) (bool, error)
}

// Storage is everything the service persists, assembled once in main.
type Storage interface {
	MediaRepository
	Ping(ctx context.Context) error
	Close() error
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}
