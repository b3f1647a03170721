package domain

import (
	"time"
)

// Message is an immutable chat message as seen by room members.
type Message struct {
	Room         RoomName
	SenderUserID string
	Text         string
}

// HistoryEntry is a persisted Message with its position in the room log.
// SortKey decreases as time goes on so that an ascending scan yields the newest first.
type HistoryEntry struct {
	Message
	SortKey string
	At      time.Time
}
