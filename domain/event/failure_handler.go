package event

import (
	"log/slog"
)

// FailureHandler counts non-fatal failures: persistence and per-member delivery.
type FailureHandler struct {
	log     *slog.Logger
	counter *Counter
}

func NewFailureHandler(log *slog.Logger, counter *Counter) *FailureHandler {
	return &FailureHandler{log: log, counter: counter}
}

func (h *FailureHandler) Handle(event Event) {
	switch payload := event.Payload.(type) {
	case PersistenceFailed:
		h.counter.Increment(PersistenceFailedType)
		h.log.Warn("Message not durably recorded", "room", payload.Room, "error", payload.Err)
	case DeliveryFailed:
		h.counter.Increment(DeliveryFailedType)
		h.log.Debug("Message not delivered to member",
			"room", payload.Room, "connection_id", payload.ConnectionID, "error", payload.Err)
	}
}
