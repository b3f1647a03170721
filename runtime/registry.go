package runtime

import (
	"citychat/contract"
	"citychat/domain"
	"citychat/domain/event"
	"citychat/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type session struct {
	userID string
	sink   contract.EventSink
	rooms  map[domain.RoomName]struct{}
}

// roomMembers is the member set of one room, guarded by its own lock so
// that traffic in one room never waits on another.
type roomMembers struct {
	mu      sync.RWMutex
	members map[domain.ConnectionID]contract.EventSink
	// closed is set once the set became empty and was dropped from the registry
	closed bool
}

type delivery struct {
	connectionID domain.ConnectionID
	sink         contract.EventSink
}

// Registry is the in-memory room directory.
// mu only guards the two maps and is never held while delivering events.
type Registry struct {
	mu          sync.Mutex
	sessions    map[domain.ConnectionID]*session
	rooms       map[domain.RoomName]*roomMembers
	log         *slog.Logger
	telemetry   contract.ITelemetry
	sinkTimeout time.Duration
}

func NewRegistry(log *slog.Logger, telemetry contract.ITelemetry, sinkTimeout time.Duration) *Registry {
	return &Registry{
		sessions:    make(map[domain.ConnectionID]*session),
		rooms:       make(map[domain.RoomName]*roomMembers),
		log:         log,
		telemetry:   telemetry,
		sinkTimeout: sinkTimeout,
	}
}

// Attach registers a live connection. Called by the transport once per connection.
func (r *Registry) Attach(connectionID domain.ConnectionID, userID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[connectionID]; ok {
		s.userID, s.sink = userID, sink
		return
	}
	r.sessions[connectionID] = &session{
		userID: userID,
		sink:   sink,
		rooms:  make(map[domain.RoomName]struct{}),
	}
}

func (r *Registry) UserID(connectionID domain.ConnectionID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connectionID]
	if !ok {
		return "", false
	}
	return s.userID, true
}

// Join adds the connection to the room. Joining twice is a no-op.
// Other rooms of the connection are left untouched.
func (r *Registry) Join(connectionID domain.ConnectionID, room domain.RoomName) error {
	for {
		r.mu.Lock()
		s, ok := r.sessions[connectionID]
		if !ok {
			r.mu.Unlock()
			return fmt.Errorf("join %q: %w", room, errors.ErrUnknownConnection)
		}
		members, ok := r.rooms[room]
		if !ok {
			members = &roomMembers{members: make(map[domain.ConnectionID]contract.EventSink)}
			r.rooms[room] = members
		}
		s.rooms[room] = struct{}{}
		sink := s.sink
		r.mu.Unlock()

		members.mu.Lock()
		if members.closed {
			// Lost a race with the last member leaving: drop the stale set and retry
			members.mu.Unlock()
			r.dropRoom(room, members)
			continue
		}
		members.members[connectionID] = sink
		members.mu.Unlock()

		r.mu.Lock()
		gone := r.sessions[connectionID] != s
		r.mu.Unlock()
		if gone {
			// Disconnected while joining
			r.removeMember(room, members, connectionID)
			return fmt.Errorf("join %q: %w", room, errors.ErrUnknownConnection)
		}
		return nil
	}
}

// Leave removes one membership of the connection.
func (r *Registry) Leave(connectionID domain.ConnectionID, room domain.RoomName) {
	r.mu.Lock()
	if s, ok := r.sessions[connectionID]; ok {
		delete(s.rooms, room)
	}
	members, ok := r.rooms[room]
	r.mu.Unlock()
	if ok {
		r.removeMember(room, members, connectionID)
	}
}

// Disconnect forgets the connection and every membership it holds.
func (r *Registry) Disconnect(connectionID domain.ConnectionID) {
	r.mu.Lock()
	s, ok := r.sessions[connectionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, connectionID)
	memberships := make(map[domain.RoomName]*roomMembers, len(s.rooms))
	for room := range s.rooms {
		if members, ok := r.rooms[room]; ok {
			memberships[room] = members
		}
	}
	r.mu.Unlock()

	for room, members := range memberships {
		r.removeMember(room, members, connectionID)
	}
}

func (r *Registry) removeMember(room domain.RoomName, members *roomMembers, connectionID domain.ConnectionID) {
	members.mu.Lock()
	delete(members.members, connectionID)
	empty := len(members.members) == 0 && !members.closed
	if empty {
		members.closed = true
	}
	members.mu.Unlock()
	if empty {
		r.dropRoom(room, members)
	}
}

func (r *Registry) dropRoom(room domain.RoomName, members *roomMembers) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[room] == members {
		delete(r.rooms, room)
	}
}

func (r *Registry) snapshot(room domain.RoomName) []delivery {
	r.mu.Lock()
	members, ok := r.rooms[room]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	members.mu.RLock()
	defer members.mu.RUnlock()
	deliveries := make([]delivery, 0, len(members.members))
	for connectionID, sink := range members.members {
		deliveries = append(deliveries, delivery{connectionID: connectionID, sink: sink})
	}
	return deliveries
}

// Broadcast delivers e to every member of the room, sender included.
// Members are served concurrently, each with its own timeout, so a stuck member
// delays nobody else; a failing member is logged and skipped.
// It returns how many members accepted the event once every delivery is settled.
func (r *Registry) Broadcast(ctx context.Context, room domain.RoomName, e event.DomainEvent) int {
	var (
		wg        sync.WaitGroup
		delivered atomic.Int64
	)
	for _, d := range r.snapshot(room) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.deliver(ctx, d.sink, e); err != nil {
				r.telemetry.Record(event.Event{
					Type:      event.DeliveryFailedType,
					CreatedAt: time.Now().UTC(),
					Payload:   event.DeliveryFailed{Room: room, ConnectionID: d.connectionID, Err: err},
				})
				return
			}
			delivered.Add(1)
		}()
	}
	wg.Wait()
	return int(delivered.Load())
}

// SendTo delivers e to a single connection, whatever room it is in.
func (r *Registry) SendTo(ctx context.Context, connectionID domain.ConnectionID, e event.DomainEvent) error {
	r.mu.Lock()
	s, ok := r.sessions[connectionID]
	r.mu.Unlock()
	if !ok {
		return errors.ErrUnknownConnection
	}
	return r.deliver(ctx, s.sink, e)
}

func (r *Registry) deliver(ctx context.Context, sink contract.EventSink, e event.DomainEvent) error {
	sinkCtx, cancel := context.WithTimeout(ctx, r.sinkTimeout)
	defer cancel()
	return sink.Consume(sinkCtx, e)
}

// Members lists the connections currently in the room.
func (r *Registry) Members(room domain.RoomName) []domain.ConnectionID {
	deliveries := r.snapshot(room)
	ids := make([]domain.ConnectionID, 0, len(deliveries))
	for _, d := range deliveries {
		ids = append(ids, d.connectionID)
	}
	return ids
}

// Stats returns the number of non-empty rooms and of attached connections.
func (r *Registry) Stats() (rooms, connections int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms), len(r.sessions)
}
