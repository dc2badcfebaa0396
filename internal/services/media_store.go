package services

import (
	"context"
	"errors"

	"github.com/petmarket/media-service/internal/models"
)

var (
	ErrNotConfigured  = errors.New("media store credentials are not configured")
	ErrObjectNotFound = errors.New("object not found")
)

// URLOptions shapes a signed retrieval URL.
type URLOptions struct {
	ResourceType   models.ResourceType
	Transformation string
}

// MediaStore is a remote object/media store the upload pipeline pushes files into.
type MediaStore interface {
	// Upload stores the file at path. An empty publicID lets the store generate one.
	Upload(ctx context.Context, path, folder string, resourceType models.ResourceType, publicID string) (*models.RemoteMetadata, error)
	// Delete is best-effort and never returns an error. An object the store
	// no longer has counts as deleted.
	Delete(ctx context.Context, publicID string, resourceType models.ResourceType) bool
	SignedURL(ctx context.Context, publicID string, opts URLOptions) (string, error)
	Name() string
}
