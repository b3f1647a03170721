package client

import (
	"citychat/errors"
	hub "citychat/infrastructure/grpc/client"
	"citychat/infrastructure/grpc/wire"
	"citychat/projection"
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// fakeHub records invocations. Joins block until released when gate is set.
type fakeHub struct {
	mu          sync.Mutex
	invocations []wire.Invocation
	joinErr     error
	gate        chan struct{}
}

func (h *fakeHub) Invoke(ctx context.Context, invocation wire.Invocation) error {
	h.mu.Lock()
	h.invocations = append(h.invocations, invocation)
	gate, joinErr := h.gate, h.joinErr
	h.mu.Unlock()
	if invocation.Method != wire.JoinGroupChat {
		return nil
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return joinErr
}

func (h *fakeHub) methods() []wire.Method {
	h.mu.Lock()
	defer h.mu.Unlock()
	var methods []wire.Method
	for _, i := range h.invocations {
		methods = append(methods, i.Method)
	}
	return methods
}

func startSession(t *testing.T, h *fakeHub, options ...func(*Session)) *Session {
	t.Helper()
	session := NewSession(logs.GetLoggerFromLevel(slog.LevelDebug), "me", projection.NewTimeline()).Bind(h)
	for _, option := range options {
		option(session)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = session.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return session
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	require.Eventually(t, condition, 2*time.Second, 5*time.Millisecond)
}

func countItems[T projection.ChatItem](timeline *projection.Timeline) int {
	n := 0
	for _, item := range timeline.Items() {
		if _, ok := item.(T); ok {
			n++
		}
	}
	return n
}

func TestSession_Open_Join_Send(t *testing.T) {
	req := require.New(t)
	h := &fakeHub{}
	session := startSession(t, h)

	// Given a room and an opened connection
	session.SetRoom(oslo)
	session.OnHubEvent(hub.Event{Kind: hub.Connecting})
	session.OnHubEvent(hub.Event{Kind: hub.Opened, ConnectionID: "c1"})
	waitFor(t, func() bool { return session.State().Joined })

	// When sending
	req.NoError(session.Send(context.Background(), "hei"))

	// Then the join then the send went out
	waitFor(t, func() bool { return len(h.methods()) == 2 })
	req.Equal([]wire.Method{wire.JoinGroupChat, wire.SendToGroupChat}, h.methods())
	req.Zero(session.Timeline().Len())
}

func TestSession_Send_Before_Join_Fails(t *testing.T) {
	req := require.New(t)
	session := startSession(t, &fakeHub{})

	req.ErrorIs(session.Send(context.Background(), "too early"), errors.ErrNotJoined)
}

// Scenario D through the queue
func TestSession_Reconnect_Markers(t *testing.T) {
	req := require.New(t)
	h := &fakeHub{}
	session := startSession(t, h)
	session.SetRoom(oslo)
	session.OnHubEvent(hub.Event{Kind: hub.Opened})
	waitFor(t, func() bool { return session.State().Joined })

	session.OnHubEvent(hub.Event{Kind: hub.Reconnecting, Err: stderrors.New("network")})
	session.OnHubEvent(hub.Event{Kind: hub.MessageReceived, Message: wire.NewMessage{SenderUserID: "you", ChatName: string(oslo), Message: "replayed"}})
	session.OnHubEvent(hub.Event{Kind: hub.Reconnected})
	timeline := session.Timeline()
	waitFor(t, func() bool { return countItems[projection.ReconnectedMarker](timeline) == 1 })
	req.True(session.State().Joined)

	req.Equal(1, countItems[projection.DisconnectedMarker](timeline))
	req.Equal(1, countItems[projection.ReconnectedMarker](timeline))
	items := timeline.Items()
	req.IsType(projection.DisconnectedMarker{}, items[0])
	req.IsType(projection.MessageItem{}, items[1])
	req.IsType(projection.ReconnectedMarker{}, items[2])
	req.Equal([]wire.Method{wire.JoinGroupChat, wire.JoinGroupChat}, h.methods())
}

func TestSession_Late_Join_After_Disconnect_Is_Ignored(t *testing.T) {
	req := require.New(t)
	gate := make(chan struct{})
	h := &fakeHub{gate: gate}
	session := startSession(t, h)

	// Given a join stuck in flight
	session.SetRoom(oslo)
	session.OnHubEvent(hub.Event{Kind: hub.Opened})
	waitFor(t, func() bool { return len(h.methods()) == 1 })

	// When the connection closes and only then the join succeeds
	session.OnHubEvent(hub.Event{Kind: hub.Closed})
	waitFor(t, func() bool { return session.State().Status == Disconnected })
	close(gate)

	// Then the session never considers itself joined
	time.Sleep(50 * time.Millisecond)
	req.False(session.State().Joined)
	req.Equal(1, countItems[projection.DisconnectedMarker](session.Timeline()))
	req.Zero(countItems[projection.ReconnectedMarker](session.Timeline()))
}

func TestSession_Failed_Join_Leaves_Room_Unjoined(t *testing.T) {
	req := require.New(t)
	h := &fakeHub{joinErr: stderrors.New("rejected")}
	var statuses []State
	var mu sync.Mutex
	session := startSession(t, h, func(s *Session) {
		s.OnStatus(func(state State) {
			mu.Lock()
			defer mu.Unlock()
			statuses = append(statuses, state)
		})
	})

	session.SetRoom(oslo)
	session.OnHubEvent(hub.Event{Kind: hub.Opened})
	waitFor(t, func() bool { return len(h.methods()) == 1 })
	time.Sleep(50 * time.Millisecond)

	req.Equal(Connected, session.State().Status)
	req.False(session.State().Joined)
	req.ErrorIs(session.Send(context.Background(), "hello"), errors.ErrNotJoined)
	mu.Lock()
	defer mu.Unlock()
	req.NotEmpty(statuses)
}

func TestSession_Room_Change_Leaves_Before_Joining(t *testing.T) {
	req := require.New(t)
	h := &fakeHub{}
	session := startSession(t, h)
	session.SetRoom(oslo)
	session.OnHubEvent(hub.Event{Kind: hub.Opened})
	waitFor(t, func() bool { return session.State().Joined })

	session.SetRoom("Paris::France")
	waitFor(t, func() bool { return len(h.methods()) == 3 })
	waitFor(t, func() bool { return session.State().Joined && session.State().Room == "Paris::France" })

	req.Equal([]wire.Method{wire.JoinGroupChat, wire.LeaveGroupChat, wire.JoinGroupChat}, h.methods())
}

func TestSession_Send_After_Run_Returned_Fails_Fast(t *testing.T) {
	req := require.New(t)
	session := NewSession(logs.GetLoggerFromLevel(slog.LevelDebug), "me", projection.NewTimeline()).Bind(&fakeHub{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = session.Run(ctx)
		close(done)
	}()

	// Given a session whose loop was stopped
	cancel()
	<-done

	// When sending with a context that never expires
	result := make(chan error, 1)
	go func() { result <- session.Send(context.Background(), "anyone?") }()

	// Then the call returns instead of waiting forever
	select {
	case err := <-result:
		req.ErrorIs(err, errors.ErrConnectionClosed)
	case <-time.After(2 * time.Second):
		req.Fail("Send blocked after Run returned")
	}
}
