package nats

import (
	"github.com/nats-io/nats.go"

	"github.com/petmarket/media-service/internal/api/handlers/events"
	"github.com/petmarket/media-service/internal/services"
)

func Routes(h *events.Handlers) map[string]nats.MsgHandler {
	return map[string]nats.MsgHandler{
		// Entity lifecycle
		services.SubjectEntityDeleted: h.HandleEntityDeleted,

		// Media events
		services.SubjectMediaUploaded: h.HandleMediaUploaded,
	}
}
