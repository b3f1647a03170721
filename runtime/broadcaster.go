package runtime

import (
	"citychat/contract"
	"citychat/domain"
	"citychat/domain/event"
	"citychat/errors"
	"citychat/repositories"
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"
)

// Broadcaster sends a message to a room: live fan-out first, then the durable append.
// The two steps are not atomic. A member joining at the same instant may or may
// not see the message in its replayed window.
type Broadcaster struct {
	registry          contract.IRegistry
	historyRepository repositories.IHistoryRepository
	telemetry         contract.ITelemetry
	log               *slog.Logger
	maxMessageLength  int
}

func NewBroadcaster(log *slog.Logger, registry contract.IRegistry,
	historyRepository repositories.IHistoryRepository, telemetry contract.ITelemetry,
	maxMessageLength int) *Broadcaster {
	return &Broadcaster{
		registry:          registry,
		historyRepository: historyRepository,
		telemetry:         telemetry,
		log:               log,
		maxMessageLength:  maxMessageLength,
	}
}

// SendToRoom returns an error only for invalid input.
// A failed append is recorded and logged: the message was still delivered live.
func (b *Broadcaster) SendToRoom(ctx context.Context, room domain.RoomName, senderUserID, text string) error {
	if err := room.Validate(); err != nil {
		return err
	}
	if text == "" {
		return errors.ErrEmptyMessage
	}
	if !utf8.ValidString(text) {
		return errors.ErrInvalidMessage
	}
	if b.maxMessageLength > 0 && len(text) > b.maxMessageLength {
		return fmt.Errorf("%w: %d > %d bytes", errors.ErrMessageTooLong, len(text), b.maxMessageLength)
	}

	recipients := b.registry.Broadcast(ctx, room, event.NewMessage{
		SenderUserID: senderUserID,
		ChatName:     room,
		Message:      text,
	})
	b.telemetry.Record(event.Event{
		Type:      event.MessageSentType,
		CreatedAt: time.Now().UTC(),
		Payload:   event.MessageSent{Room: room, Recipients: recipients},
	})

	if _, err := b.historyRepository.Append(ctx, room, senderUserID, text); err != nil {
		b.telemetry.Record(event.Event{
			Type:      event.PersistenceFailedType,
			CreatedAt: time.Now().UTC(),
			Payload:   event.PersistenceFailed{Room: room, Err: err},
		})
	}
	return nil
}
