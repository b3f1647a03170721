package event

import (
	"citychat/domain"
)

// DomainEvent is delivered to the members of a room.
type DomainEvent interface {
	RoomID() domain.RoomName
}

// NewMessage is pushed to clients for every live or replayed message.
type NewMessage struct {
	SenderUserID string
	ChatName     domain.RoomName
	Message      string
}

func (m NewMessage) RoomID() domain.RoomName {
	return m.ChatName
}

func FromHistory(entry domain.HistoryEntry) NewMessage {
	return NewMessage{
		SenderUserID: entry.SenderUserID,
		ChatName:     entry.Room,
		Message:      entry.Text,
	}
}
