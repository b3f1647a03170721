package client

import (
	"citychat/clock"
	"citychat/errors"
	"citychat/infrastructure/grpc/wire"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type EventKind int

const (
	Connecting EventKind = iota
	Opened
	FailedToOpen
	Closed
	Reconnecting
	Reconnected
	MessageReceived
)

func (k EventKind) String() string {
	switch k {
	case Connecting:
		return "connecting"
	case Opened:
		return "opened"
	case FailedToOpen:
		return "failed_to_open"
	case Closed:
		return "closed"
	case Reconnecting:
		return "reconnecting"
	case Reconnected:
		return "reconnected"
	case MessageReceived:
		return "message_received"
	default:
		return fmt.Sprintf("event_kind(%d)", int(k))
	}
}

// Event is a transport callback. Message is only set for MessageReceived.
type Event struct {
	Kind         EventKind
	ConnectionID string
	Message      wire.NewMessage
	Err          error
}

// Listener must not block: it is called from the connection loop.
type Listener func(Event)

// DefaultRetryDelays are the waits before each reconnect attempt.
// Once they are exhausted the connection is closed for good.
var DefaultRetryDelays = []time.Duration{0, 2 * time.Second, 10 * time.Second, 30 * time.Second}

const defaultOpenTimeout = 15 * time.Second

// HubConnection is the client end of the hub stream.
// It opens the stream once, then reconnects on its own when the stream breaks.
// A failed first open is reported and not retried.
type HubConnection struct {
	log         *slog.Logger
	client      wire.ChatHubClient
	userID      string
	clock       clock.Clock
	listener    Listener
	retryDelays []time.Duration
	openTimeout time.Duration

	mu           sync.Mutex
	stream       wire.ConnectClientStream
	cancelStream context.CancelFunc
	pending      map[uint64]chan wire.Completion
	nextID       uint64
	stopped      bool

	sendMu sync.Mutex
}

func NewHubConnection(log *slog.Logger, cc grpc.ClientConnInterface, userID string,
	c clock.Clock, listener Listener) *HubConnection {
	return &HubConnection{
		log:         log,
		client:      wire.NewChatHubClient(cc),
		userID:      userID,
		clock:       c,
		listener:    listener,
		retryDelays: DefaultRetryDelays,
		openTimeout: defaultOpenTimeout,
		pending:     make(map[uint64]chan wire.Completion),
	}
}

func (h *HubConnection) WithRetryDelays(delays []time.Duration) *HubConnection {
	h.retryDelays = delays
	return h
}

func (h *HubConnection) WithOpenTimeout(timeout time.Duration) *HubConnection {
	h.openTimeout = timeout
	return h
}

// Run drives the connection until it is closed: by ctx, by Stop, or by
// running out of reconnect attempts. It returns nil in all those cases.
func (h *HubConnection) Run(ctx context.Context) error {
	h.emit(Event{Kind: Connecting})
	connectionID, err := h.open(ctx)
	if err != nil {
		h.log.Warn("Hub connection failed to open", "error", err)
		h.emit(Event{Kind: FailedToOpen, Err: err})
		return nil
	}
	h.emit(Event{Kind: Opened, ConnectionID: connectionID})

	for {
		err := h.serve()
		h.detach()
		if ctx.Err() != nil || h.isStopped() {
			h.emit(Event{Kind: Closed})
			return nil
		}

		h.log.Warn("Hub connection lost, reconnecting", "error", err)
		h.emit(Event{Kind: Reconnecting, Err: err})
		connectionID, err = h.reconnect(ctx)
		if err != nil {
			h.log.Warn("Hub connection closed", "error", err)
			h.emit(Event{Kind: Closed, Err: err})
			return nil
		}
		h.emit(Event{Kind: Reconnected, ConnectionID: connectionID})
	}
}

// Stop closes the connection. Run emits Closed and returns.
func (h *HubConnection) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	if h.cancelStream != nil {
		h.cancelStream()
	}
}

// Invoke calls a hub method and waits for its completion.
// The invocation ID is assigned here.
func (h *HubConnection) Invoke(ctx context.Context, invocation wire.Invocation) error {
	// The hub drops a stream carrying a malformed text string
	if !utf8.ValidString(invocation.Name) || !utf8.ValidString(invocation.ChatName) ||
		!utf8.ValidString(invocation.Message) {
		return errors.ErrInvalidMessage
	}
	h.mu.Lock()
	stream := h.stream
	if stream == nil {
		h.mu.Unlock()
		return errors.ErrNotConnected
	}
	h.nextID++
	invocation.ID = h.nextID
	done := make(chan wire.Completion, 1)
	h.pending[invocation.ID] = done
	h.mu.Unlock()

	h.sendMu.Lock()
	err := stream.Send(&wire.Frame{Invocation: &invocation})
	h.sendMu.Unlock()
	if err != nil {
		h.forget(invocation.ID)
		return fmt.Errorf("%w: %v", errors.ErrConnectionClosed, err)
	}

	select {
	case completion, ok := <-done:
		if !ok {
			return errors.ErrConnectionClosed
		}
		if completion.Error != "" {
			return status.Error(codes.Code(completion.Code), completion.Error)
		}
		return nil
	case <-ctx.Done():
		h.forget(invocation.ID)
		return ctx.Err()
	}
}

func (h *HubConnection) open(ctx context.Context) (string, error) {
	streamCtx, cancel := context.WithCancel(wire.WithUserID(ctx, h.userID))
	timer := time.AfterFunc(h.openTimeout, cancel)
	defer timer.Stop()

	stream, err := h.client.Connect(streamCtx, grpc.WaitForReady(true))
	if err != nil {
		cancel()
		return "", err
	}
	frame, err := stream.Recv()
	if err != nil {
		cancel()
		return "", err
	}
	if frame.Handshake == nil {
		cancel()
		return "", fmt.Errorf("%w: got %s", errors.ErrHandshake, frame.String())
	}
	if !timer.Stop() {
		cancel()
		return "", fmt.Errorf("%w: timed out", errors.ErrHandshake)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		cancel()
		return "", errors.ErrConnectionClosed
	}
	h.stream, h.cancelStream = stream, cancel
	h.log.Debug("Hub connection opened", "connection_id", frame.Handshake.ConnectionID)
	return frame.Handshake.ConnectionID, nil
}

// serve reads the stream until it breaks.
func (h *HubConnection) serve() error {
	h.mu.Lock()
	stream := h.stream
	h.mu.Unlock()
	for {
		frame, err := stream.Recv()
		if err != nil {
			return err
		}
		switch {
		case frame.Completion != nil:
			h.complete(*frame.Completion)
		case frame.NewMessage != nil:
			h.emit(Event{Kind: MessageReceived, Message: *frame.NewMessage})
		default:
			h.log.Debug("Ignoring unexpected frame", "frame", frame.String())
		}
	}
}

func (h *HubConnection) reconnect(ctx context.Context) (string, error) {
	lastErr := errors.ErrConnectionClosed
	for attempt, delay := range h.retryDelays {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-h.clock.After(delay):
		}
		if h.isStopped() {
			return "", errors.ErrConnectionClosed
		}
		connectionID, err := h.open(ctx)
		if err == nil {
			return connectionID, nil
		}
		h.log.Debug("Reconnect attempt failed", "attempt", attempt+1, "error", err)
		lastErr = err
	}
	return "", fmt.Errorf("%w: retries exhausted: %v", errors.ErrConnectionClosed, lastErr)
}

func (h *HubConnection) complete(completion wire.Completion) {
	h.mu.Lock()
	done, ok := h.pending[completion.InvocationID]
	delete(h.pending, completion.InvocationID)
	h.mu.Unlock()
	if ok {
		done <- completion
	}
}

func (h *HubConnection) forget(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, id)
}

// detach drops the broken stream and fails every pending invocation.
func (h *HubConnection) detach() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelStream != nil {
		h.cancelStream()
	}
	h.stream, h.cancelStream = nil, nil
	for id, done := range h.pending {
		close(done)
		delete(h.pending, id)
	}
}

func (h *HubConnection) isStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

func (h *HubConnection) emit(e Event) {
	if h.listener != nil {
		h.listener(e)
	}
}
