// Package runtime holds the server side of the hub: room directory, fan-out
// and history replay. It owns no transport: connections are handed in as sinks.
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
)

type Orchestrator struct {
	log               *slog.Logger
	registry          contract.IRegistry
	broadcaster       *Broadcaster
	historyRepository repositories.IHistoryRepository
	historyLimit      int
}

func NewOrchestrator(log *slog.Logger, registry contract.IRegistry, broadcaster *Broadcaster,
	historyRepository repositories.IHistoryRepository, historyLimit int) *Orchestrator {
	if historyLimit <= 0 {
		historyLimit = repositories.DefaultHistoryLimit
	}
	return &Orchestrator{
		log:               log,
		registry:          registry,
		broadcaster:       broadcaster,
		historyRepository: historyRepository,
		historyLimit:      historyLimit,
	}
}

// Connect registers a freshly opened connection of userID.
func (o *Orchestrator) Connect(connectionID domain.ConnectionID, userID string, sink contract.EventSink) {
	o.registry.Attach(connectionID, userID, sink)
	o.log.Info("Connection opened", "connection_id", connectionID, "user_id", userID)
}

// Disconnect is called by the transport once the connection is gone.
func (o *Orchestrator) Disconnect(connectionID domain.ConnectionID) {
	o.registry.Disconnect(connectionID)
	o.log.Info("Connection closed", "connection_id", connectionID)
}

// Dispatch runs one command issued by a connection.
func (o *Orchestrator) Dispatch(ctx context.Context, connectionID domain.ConnectionID, cmd domain.Command) error {
	switch c := cmd.(type) {
	case domain.JoinRoomCommand:
		return o.JoinGroupChat(ctx, connectionID, c.Room)
	case domain.LeaveRoomCommand:
		return o.LeaveGroupChat(connectionID, c.Room)
	case domain.PostMessageCommand:
		return o.SendToGroupChat(ctx, connectionID, c.Room, c.Content)
	default:
		return fmt.Errorf("%w: %T", errors.ErrUnknownMethod, cmd)
	}
}

// JoinGroupChat adds the connection to the room, then replays the recent
// window to that connection only, oldest first.
// A history failure is not an error for the caller: it just sees no history.
func (o *Orchestrator) JoinGroupChat(ctx context.Context, connectionID domain.ConnectionID, room domain.RoomName) error {
	if err := room.Validate(); err != nil {
		return err
	}
	if err := o.registry.Join(connectionID, room); err != nil {
		return err
	}

	entries, err := o.historyRepository.QueryRecent(ctx, room, o.historyLimit)
	if err != nil {
		o.log.Warn("History unavailable, joining without replay", "room", room, "error", err)
		entries = nil
	}
	for _, entry := range entries {
		if err := o.registry.SendTo(ctx, connectionID, event.FromHistory(entry)); err != nil {
			o.log.Warn("History replay interrupted", "connection_id", connectionID, "room", room, "error", err)
			break
		}
	}

	o.log.Info("Joined group chat", "connection_id", connectionID, "room", room, "replayed", len(entries))
	return nil
}

func (o *Orchestrator) LeaveGroupChat(connectionID domain.ConnectionID, room domain.RoomName) error {
	if err := room.Validate(); err != nil {
		return err
	}
	o.registry.Leave(connectionID, room)
	o.log.Info("Left group chat", "connection_id", connectionID, "room", room)
	return nil
}

// SendToGroupChat broadcasts on behalf of the user behind the connection.
func (o *Orchestrator) SendToGroupChat(ctx context.Context, connectionID domain.ConnectionID, room domain.RoomName, text string) error {
	userID, ok := o.registry.UserID(connectionID)
	if !ok {
		return errors.ErrUnknownConnection
	}
	if err := o.broadcaster.SendToRoom(ctx, room, userID, text); err != nil {
		return err
	}
	o.log.Debug("Sent group chat message", "connection_id", connectionID, "room", room)
	return nil
}
