package event

import (
	"log/slog"
)

// MessageSentHandler counts messages fanned out to a room.
type MessageSentHandler struct {
	log     *slog.Logger
	counter *Counter
}

func NewMessageSentHandler(log *slog.Logger, counter *Counter) *MessageSentHandler {
	return &MessageSentHandler{log: log, counter: counter}
}

func (h *MessageSentHandler) Handle(event Event) {
	if event.Type != MessageSentType {
		return
	}
	payload, ok := event.Payload.(MessageSent)
	if !ok {
		h.log.Error("invalid payload", "type", event.Type)
		return
	}
	h.counter.Increment(MessageSentType)
	h.log.Debug("Message fanned out", "room", payload.Room, "recipients", payload.Recipients)
}
