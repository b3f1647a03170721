package client

import (
	"citychat/domain"
	"citychat/errors"
	hub "citychat/infrastructure/grpc/client"
	"citychat/infrastructure/grpc/wire"
	"citychat/projection"
	"context"
	"log/slog"
	"sync"
	"time"
)

// Invoker calls hub methods. Implemented by *hub.HubConnection.
type Invoker interface {
	Invoke(ctx context.Context, invocation wire.Invocation) error
}

const defaultInvokeTimeout = 30 * time.Second

type sendRequest struct {
	text   string
	result chan error
}

func (sendRequest) isInput() {}

// Session serializes every transport callback, completion and user action
// into one queue applied by Run. Remote calls never block that loop: they are
// issued in order by a second goroutine whose completions are queued back.
type Session struct {
	log           *slog.Logger
	invoker       Invoker
	machine       *Machine
	timeline      *projection.Timeline
	inputs        *fifo[Input]
	invocations   *fifo[Effect]
	invokeTimeout time.Duration
	// done is closed once Run has returned
	done      chan struct{}
	closeOnce sync.Once

	mu             sync.RWMutex
	state          State
	statusListener func(State)
}

func NewSession(log *slog.Logger, localUserID string, timeline *projection.Timeline) *Session {
	return &Session{
		log:           log,
		machine:       NewMachine(localUserID),
		timeline:      timeline,
		inputs:        newFifo[Input](),
		invocations:   newFifo[Effect](),
		invokeTimeout: defaultInvokeTimeout,
		done:          make(chan struct{}),
	}
}

// Bind sets the hub used for remote calls. Must be called before Run.
func (s *Session) Bind(invoker Invoker) *Session {
	s.invoker = invoker
	return s
}

// OnStatus registers fn, called from the loop after every status change.
func (s *Session) OnStatus(fn func(State)) *Session {
	s.statusListener = fn
	return s
}

func (s *Session) WithInvokeTimeout(timeout time.Duration) *Session {
	s.invokeTimeout = timeout
	return s
}

func (s *Session) Post(in Input) {
	s.inputs.push(in)
}

// OnHubEvent is the hub.Listener of the session's connection.
func (s *Session) OnHubEvent(e hub.Event) {
	switch e.Kind {
	case hub.Connecting:
		s.Post(TransportConnecting{})
	case hub.Opened:
		s.Post(TransportOpened{ConnectionID: e.ConnectionID})
	case hub.FailedToOpen:
		s.Post(TransportFailedToOpen{Err: e.Err})
	case hub.Closed:
		s.Post(TransportClosed{Err: e.Err})
	case hub.Reconnecting:
		s.Post(TransportReconnecting{Err: e.Err})
	case hub.Reconnected:
		s.Post(TransportReconnected{ConnectionID: e.ConnectionID})
	case hub.MessageReceived:
		s.Post(MessageReceived{
			SenderUserID: e.Message.SenderUserID,
			Room:         domain.RoomName(e.Message.ChatName),
			Text:         e.Message.Message,
		})
	}
}

// SetRoom reports the room resolved from the current locality.
func (s *Session) SetRoom(room domain.RoomName) {
	s.Post(RoomChanged{Room: room})
}

// Send queues text for the current room. It fails with ErrNotJoined while the
// room is not joined and with ErrConnectionClosed once Run has returned. A failure of the remote call itself is only logged.
func (s *Session) Send(ctx context.Context, text string) error {
	result := make(chan error, 1)
	s.Post(sendRequest{text: text, result: result})
	select {
	case err := <-result:
		return err
	case <-s.done:
		return errors.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Timeline() *projection.Timeline {
	return s.timeline
}

// Run applies queued inputs until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	invokerDone := make(chan struct{})
	go func() {
		defer close(invokerDone)
		s.invokeLoop(ctx)
	}()
	defer func() { <-invokerDone }()

	for {
		select {
		case <-ctx.Done():
			s.closeOnce.Do(func() { close(s.done) })
			return nil
		case <-s.inputs.ready:
			for _, in := range s.inputs.drain() {
				s.apply(in)
			}
		}
	}
}

func (s *Session) apply(in Input) {
	if req, ok := in.(sendRequest); ok {
		invocation, err := s.machine.Send(req.text)
		if err == nil {
			s.invocations.push(invocation)
		}
		req.result <- err
		return
	}

	before := s.machine.State()
	effects := s.machine.Apply(in)
	after := s.machine.State()
	s.mu.Lock()
	s.state = after
	s.mu.Unlock()

	for _, effect := range effects {
		switch e := effect.(type) {
		case AppendItem:
			s.timeline.Append(e.Item)
		case InvokeJoin, InvokeLeave, InvokeSend:
			s.invocations.push(e)
		case StaleCompletion:
			s.log.Debug("Discarding stale join completion",
				"room", e.Completion.Room, "epoch", e.Completion.Epoch, "error", e.Completion.Err)
		case JoinFailed:
			s.log.Warn("Failed to join group chat", "room", e.Room, "error", e.Err)
		}
	}

	if before.Status != after.Status {
		s.log.Info("Connection status changed", "from", before.Status, "to", after.Status, "room", after.Room)
	}
	if s.statusListener != nil && (before.Status != after.Status || before.Joined != after.Joined) {
		s.statusListener(after)
	}
}

// invokeLoop issues invocations one at a time, in the order they were requested,
// so a leave is always processed before the join that follows it.
func (s *Session) invokeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.invocations.ready:
			for _, effect := range s.invocations.drain() {
				if ctx.Err() != nil {
					return
				}
				s.invoke(ctx, effect)
			}
		}
	}
}

func (s *Session) invoke(ctx context.Context, effect Effect) {
	callCtx, cancel := context.WithTimeout(ctx, s.invokeTimeout)
	defer cancel()
	switch e := effect.(type) {
	case InvokeJoin:
		err := s.invoker.Invoke(callCtx, wire.Invocation{Method: wire.JoinGroupChat, Name: string(e.Room)})
		s.Post(JoinCompleted{Room: e.Room, Epoch: e.Epoch, Seq: e.Seq, Err: err})
	case InvokeLeave:
		if err := s.invoker.Invoke(callCtx, wire.Invocation{Method: wire.LeaveGroupChat, Name: string(e.Room)}); err != nil {
			s.log.Debug("Failed to leave group chat", "room", e.Room, "error", err)
		}
	case InvokeSend:
		err := s.invoker.Invoke(callCtx, wire.Invocation{Method: wire.SendToGroupChat, ChatName: string(e.Room), Message: e.Text})
		if err != nil {
			s.log.Warn("Failed to send message", "room", e.Room, "error", err)
		}
	}
}
