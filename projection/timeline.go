// Package projection builds the local chat timeline from hub events.
// It only ever appends: connectivity gaps show up as markers between messages.
package projection

import (
	"citychat/domain"
	"citychat/identity"
	"sync"

	"github.com/google/uuid"
)

// ChatItem is one row of the timeline.
type ChatItem interface {
	ItemID() uuid.UUID
	isChatItem()
}

type MessageItem struct {
	ID     uuid.UUID
	Sender identity.Sender
	Room   domain.RoomName
	Text   string
}

// DisconnectedMarker is appended whenever the connection drops.
type DisconnectedMarker struct {
	ID uuid.UUID
}

// ReconnectedMarker is appended when the room is joined again after a reconnect.
type ReconnectedMarker struct {
	ID uuid.UUID
}

func (m MessageItem) ItemID() uuid.UUID        { return m.ID }
func (m DisconnectedMarker) ItemID() uuid.UUID { return m.ID }
func (m ReconnectedMarker) ItemID() uuid.UUID  { return m.ID }

func (MessageItem) isChatItem()        {}
func (DisconnectedMarker) isChatItem() {}
func (ReconnectedMarker) isChatItem()  {}

func NewMessageItem(sender identity.Sender, room domain.RoomName, text string) MessageItem {
	return MessageItem{ID: uuid.New(), Sender: sender, Room: room, Text: text}
}

func NewDisconnectedMarker() DisconnectedMarker {
	return DisconnectedMarker{ID: uuid.New()}
}

func NewReconnectedMarker() ReconnectedMarker {
	return ReconnectedMarker{ID: uuid.New()}
}

// Timeline is the append-only list of chat items, oldest first.
type Timeline struct {
	mu        sync.RWMutex
	items     []ChatItem
	listeners []func(ChatItem)
}

func NewTimeline() *Timeline {
	return &Timeline{}
}

// OnAppend registers fn, called after every Append outside of the lock.
func (t *Timeline) OnAppend(fn func(ChatItem)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

func (t *Timeline) Append(item ChatItem) {
	t.mu.Lock()
	t.items = append(t.items, item)
	listeners := t.listeners
	t.mu.Unlock()
	for _, fn := range listeners {
		fn(item)
	}
}

// Items returns a copy in chronological order.
func (t *Timeline) Items() []ChatItem {
	t.mu.RLock()
	defer t.mu.RUnlock()
	items := make([]ChatItem, len(t.items))
	copy(items, t.items)
	return items
}

// Reversed returns a copy, most recent first, as a chat view renders it.
func (t *Timeline) Reversed() []ChatItem {
	t.mu.RLock()
	defer t.mu.RUnlock()
	items := make([]ChatItem, len(t.items))
	for i, item := range t.items {
		items[len(t.items)-1-i] = item
	}
	return items
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}
