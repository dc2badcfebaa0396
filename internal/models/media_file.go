package models

import (
	"fmt"
	"strings"
	"time"
)

type ResourceType string

const (
	ResourceImage ResourceType = "image"
	ResourceVideo ResourceType = "video"
)

// ResourceTypeForMIME classifies a MIME type. Anything that is not video is treated as an image.
func ResourceTypeForMIME(mimeType string) ResourceType {
	if strings.HasPrefix(strings.ToLower(mimeType), "video/") {
		return ResourceVideo
	}
	return ResourceImage
}

func ParseResourceType(s string) (ResourceType, error) {
	switch ResourceType(strings.ToLower(strings.TrimSpace(s))) {
	case "", ResourceImage:
		return ResourceImage, nil
	case ResourceVideo:
		return ResourceVideo, nil
	}
	return "", fmt.Errorf("invalid resource type %q", s)
}

type EntityType string

const (
	EntityPet      EntityType = "pet"
	EntityBreed    EntityType = "breed"
	EntityProvider EntityType = "provider"
	EntityEvent    EntityType = "event"
	EntityGeneral  EntityType = "general"
)

// ParseEntityType returns general for an empty string.
func ParseEntityType(s string) (EntityType, error) {
	switch t := EntityType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return EntityGeneral, nil
	case EntityPet, EntityBreed, EntityProvider, EntityEvent, EntityGeneral:
		return t, nil
	}
	return "", fmt.Errorf("invalid entity type %q", s)
}

// EntityContext names the application object an upload belongs to.
type EntityContext struct {
	Type EntityType
	ID   *int64
}

// StagedFile is an accepted upload sitting in temp storage.
type StagedFile struct {
	Path         string
	OriginalName string
	MimeType     string
	SizeBytes    int64
}

// RemoteMetadata is what the remote media store reports for a stored object.
type RemoteMetadata struct {
	PublicID         string
	OriginalFilename string
	URL              string
	SecureURL        string
	ResourceType     ResourceType
	Format           string
	Width            *int
	Height           *int
	Bytes            int64
	Duration         *float64
	CreatedAt        time.Time
}

// MediaFile is one row of media_files. It is written once, after the remote store confirmed the upload.
type MediaFile struct {
	ID               int64        `json:"id"`
	PublicID         string       `json:"publicId"`
	OriginalFilename *string      `json:"originalFilename,omitempty"`
	URL              string       `json:"url"`
	SecureURL        string       `json:"secureUrl"`
	ResourceType     ResourceType `json:"resourceType"`
	Format           string       `json:"format"`
	Width            *int         `json:"width,omitempty"`
	Height           *int         `json:"height,omitempty"`
	Bytes            int64        `json:"bytes"`
	Duration         *float64     `json:"duration,omitempty"`
	EntityType       EntityType   `json:"entityType"`
	EntityID         *int64       `json:"entityId,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

func NewMediaFile(meta RemoteMetadata, entity EntityContext) MediaFile {
	f := MediaFile{
		PublicID:     meta.PublicID,
		URL:          meta.URL,
		SecureURL:    meta.SecureURL,
		ResourceType: meta.ResourceType,
		Format:       meta.Format,
		Width:        meta.Width,
		Height:       meta.Height,
		Bytes:        meta.Bytes,
		EntityType:   entity.Type,
		EntityID:     entity.ID,
	}
	if f.EntityType == "" {
		f.EntityType = EntityGeneral
	}
	if meta.OriginalFilename != "" {
		name := meta.OriginalFilename
		f.OriginalFilename = &name
	}
	// duration belongs to video only
	if meta.ResourceType == ResourceVideo {
		f.Duration = meta.Duration
	}
	return f
}
