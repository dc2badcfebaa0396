package services

import (
	"context"
	"time"
)

const (
	MediaEventsStream = "media-events"

	SubjectMediaUploaded = "media.uploaded"
	SubjectMediaDeleted  = "media.deleted"
	SubjectEntityDeleted = "entities.deleted"
)

// EventPublisher emits domain events. Publishing is best-effort for callers.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// NopPublisher drops every event; used when NATS is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

type MediaUploadedEvent struct {
	ID           int64     `json:"id"`
	PublicID     string    `json:"public_id"`
	ResourceType string    `json:"resource_type"`
	EntityType   string    `json:"entity_type"`
	EntityID     *int64    `json:"entity_id,omitempty"`
	Bytes        int64     `json:"bytes"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

type MediaDeletedEvent struct {
	PublicID string `json:"public_id"`
}

type EntityDeletedEvent struct {
	EntityType string `json:"entity_type"`
	EntityID   int64  `json:"entity_id"`
}
