package media

import (
	"context"

	"github.com/petmarket/media-service/internal/logger"
	"github.com/petmarket/media-service/internal/services"
	"github.com/petmarket/media-service/internal/services/upload"
	"github.com/petmarket/media-service/internal/storage"
)

// Handler serves the media HTTP endpoints.
type Handler struct {
	intake       *upload.Intake
	orchestrator *upload.Orchestrator
	storage      storage.Storage
	store        services.MediaStore
	events       services.EventPublisher
	maxBodyBytes int64
	log          *logger.Logger
}

// pinger is implemented by media stores that can report reachability.
type pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Intake       *upload.Intake
	Orchestrator *upload.Orchestrator
	Storage      storage.Storage
	Store        services.MediaStore
	Events       services.EventPublisher
	// MaxBodyBytes caps a whole upload request. Zero disables the cap.
	MaxBodyBytes int64
}

func NewHandler(opts Options, log *logger.Logger) *Handler {
	events := opts.Events
	if events == nil {
		events = services.NopPublisher{}
	}
	return &Handler{
		intake:       opts.Intake,
		orchestrator: opts.Orchestrator,
		storage:      opts.Storage,
		store:        opts.Store,
		events:       events,
		maxBodyBytes: opts.MaxBodyBytes,
		log:          log.With("component", "media-handler"),
	}
}
