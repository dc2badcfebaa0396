package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/petmarket/media-service/internal/logger"
	"github.com/petmarket/media-service/internal/models"
	"github.com/petmarket/media-service/internal/services"
	"github.com/petmarket/media-service/internal/storage"
)

const (
	cascadePageSize = 200
	handlerTimeout  = 2 * time.Minute
)

var errInvalidPayload = errors.New("invalid event payload")

type Handlers struct {
	repo  storage.MediaRepository
	store services.MediaStore
	log   *logger.Logger
}

func NewHandlers(repo storage.MediaRepository, store services.MediaStore, log *logger.Logger) *Handlers {
	return &Handlers{repo: repo, store: store, log: log.With("component", "events")}
}

func (h *Handlers) HandleMediaUploaded(msg *nats.Msg) {
	var payload services.MediaUploadedEvent
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		h.log.Warn("media.uploaded: invalid payload", "error", err)
		h.term(msg)
		return
	}
	h.log.Info("Media uploaded",
		"public_id", payload.PublicID,
		"resource_type", payload.ResourceType,
		"entity_type", payload.EntityType,
		"bytes", payload.Bytes,
	)
	h.ack(msg)
}

func (h *Handlers) HandleEntityDeleted(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	removed, err := h.DeleteEntityMedia(ctx, msg.Data)
	switch {
	case errors.Is(err, errInvalidPayload):
		h.log.Warn("entities.deleted: rejected", "error", err)
		h.term(msg)
	case err != nil:
		h.log.Error("entities.deleted: cleanup incomplete", "removed", removed, "error", err)
		h.nak(msg)
	default:
		h.ack(msg)
	}
}

// DeleteEntityMedia removes every media file attached to the entity named in the payload,
// remote object first. A row whose remote delete fails is kept so a redelivery can retry it.
func (h *Handlers) DeleteEntityMedia(ctx context.Context, data []byte) (int, error) {
	var payload services.EntityDeletedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	entityType, err := models.ParseEntityType(payload.EntityType)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errInvalidPayload, err)
	}
	if payload.EntityID <= 0 {
		return 0, fmt.Errorf("%w: missing entity_id", errInvalidPayload)
	}

	log := h.log.With("entity_type", entityType, "entity_id", payload.EntityID)
	log.Info("Processing entity deletion")

	entityID := payload.EntityID
	filter := storage.MediaFilter{EntityType: entityType, EntityID: &entityID, Limit: cascadePageSize}

	removed, failed := 0, 0
	for {
		files, err := h.repo.ListMediaFiles(ctx, filter)
		if err != nil {
			return removed, fmt.Errorf("list media: %w", err)
		}
		if len(files) == 0 {
			break
		}

		progressed := false
		for _, f := range files {
			if !h.store.Delete(ctx, f.PublicID, f.ResourceType) {
				log.Warn("Remote delete failed, keeping row", "public_id", f.PublicID)
				failed++
				continue
			}
			if _, err := h.repo.DeleteMediaFile(ctx, f.PublicID); err != nil {
				return removed, fmt.Errorf("delete metadata %s: %w", f.PublicID, err)
			}
			removed++
			progressed = true
		}
		if !progressed {
			break
		}
		filter.Offset = failed
	}

	log.Info("Entity media cleaned up", "removed", removed, "failed", failed)
	if failed > 0 {
		return removed, fmt.Errorf("%d remote deletes failed", failed)
	}
	return removed, nil
}

func (h *Handlers) ack(msg *nats.Msg) {
	if err := msg.Ack(); err != nil {
		h.log.Warn("Failed to ack message", "subject", msg.Subject, "error", err)
	}
}

func (h *Handlers) nak(msg *nats.Msg) {
	if err := msg.Nak(); err != nil {
		h.log.Warn("Failed to nak message", "subject", msg.Subject, "error", err)
	}
}

// term stops redelivery of a message that can never succeed.
func (h *Handlers) term(msg *nats.Msg) {
	if err := msg.Term(); err != nil {
		h.log.Warn("Failed to term message", "subject", msg.Subject, "error", err)
	}
}
