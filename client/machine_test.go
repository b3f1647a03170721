package client

import (
	"citychat/domain"
	"citychat/errors"
	"citychat/identity"
	"citychat/projection"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/require"
)

const oslo = domain.RoomName("Oslo::Norway")

func appended[T projection.ChatItem](effects []Effect) int {
	n := 0
	for _, e := range effects {
		if a, ok := e.(AppendItem); ok {
			if _, ok := a.Item.(T); ok {
				n++
			}
		}
	}
	return n
}

func onlyJoin(t *testing.T, effects []Effect) InvokeJoin {
	t.Helper()
	require.Len(t, effects, 1)
	join, ok := effects[0].(InvokeJoin)
	require.True(t, ok, "expected InvokeJoin, got %T", effects[0])
	return join
}

func connectedAndJoined(t *testing.T, m *Machine) {
	t.Helper()
	m.Apply(RoomChanged{Room: oslo})
	m.Apply(TransportConnecting{})
	join := onlyJoin(t, m.Apply(TransportOpened{}))
	require.Empty(t, m.Apply(JoinCompleted{Room: join.Room, Epoch: join.Epoch, Seq: join.Seq}))
	require.True(t, m.State().Joined)
}

func TestMachine_Open_Without_Room_Does_Not_Join(t *testing.T) {
	req := require.New(t)
	m := NewMachine("me")

	req.Nil(m.Apply(TransportConnecting{}))
	req.Equal(Connecting, m.State().Status)
	req.Nil(m.Apply(TransportOpened{}))

	req.Equal(State{Status: Connected, Epoch: 1}, m.State())
}

func TestMachine_Direct_Open_Joins_Known_Room_Without_Marker(t *testing.T) {
	req := require.New(t)
	m := NewMachine("me")

	// Given a room known before the connection opens
	req.Nil(m.Apply(RoomChanged{Room: oslo}))
	m.Apply(TransportConnecting{})

	// When the transport opens, Then the room is joined
	join := onlyJoin(t, m.Apply(TransportOpened{}))
	req.Equal(oslo, join.Room)
	req.False(m.State().Joined)

	// And a successful join appends no marker
	effects := m.Apply(JoinCompleted{Room: oslo, Epoch: join.Epoch, Seq: join.Seq})
	req.Empty(effects)
	req.True(m.State().Joined)
}

// Scenario D
func TestMachine_Reconnect_Rejoins_And_Marks(t *testing.T) {
	req := require.New(t)
	m := NewMachine("me")
	connectedAndJoined(t, m)

	// When the transport announces a reconnect
	effects := m.Apply(TransportReconnecting{Err: stderrors.New("network")})
	req.Equal(1, appended[projection.DisconnectedMarker](effects))
	req.Equal(Reconnecting, m.State().Status)
	req.False(m.State().Joined)

	// When it reconnects, Then the room is joined again
	join := onlyJoin(t, m.Apply(TransportReconnected{}))
	req.Equal(oslo, join.Room)
	req.Equal(uint64(2), join.Epoch)

	// And the successful join appends exactly one ReconnectedMarker
	effects = m.Apply(JoinCompleted{Room: oslo, Epoch: join.Epoch, Seq: join.Seq})
	req.Equal(1, appended[projection.ReconnectedMarker](effects))
	req.True(m.State().Joined)
	req.Equal(Connected, m.State().Status)
}

func TestMachine_Failed_Rejoin_Has_No_Marker(t *testing.T) {
	req := require.New(t)
	m := NewMachine("me")
	connectedAndJoined(t, m)
	m.Apply(TransportReconnecting{})
	join := onlyJoin(t, m.Apply(TransportReconnected{}))

	effects := m.Apply(JoinCompleted{Room: oslo, Epoch: join.Epoch, Seq: join.Seq, Err: stderrors.New("boom")})

	req.Len(effects, 1)
	req.IsType(JoinFailed{}, effects[0])
	req.Zero(appended[projection.ReconnectedMarker](effects))
	req.False(m.State().Joined)
	req.Equal(Connected, m.State().Status)
}

func TestMachine_Closed_Appends_One_Marker(t *testing.T) {
	req := require.New(t)
	m := NewMachine("me")
	connectedAndJoined(t, m)

	effects := m.Apply(TransportClosed{})

	req.Equal(1, appended[projection.DisconnectedMarker](effects))
	req.Equal(State{Status: Disconnected, Room: oslo, Epoch: 1}, m.State())
}

func TestMachine_Reconnect_Then_Give_Up_Marks_Each_Event(t *testing.T) {
	req := require.New(t)
	m := NewMachine("me")
	connectedAndJoined(t, m)

	markers := appended[projection.DisconnectedMarker](m.Apply(TransportReconnecting{}))
	markers += appended[projection.DisconnectedMarker](m.Apply(TransportClosed{}))

	req.Equal(2, markers)
	req.Equal(Disconnected, m.State().Status)
}

func TestMachine_Failed_To_Open(t *testing.T) {
	req := require.New(t)
	m := NewMachine("me")
	m.Apply(RoomChanged{Room: oslo})
	m.Apply(TransportConnecting{})

	effects := m.Apply(TransportFailedToOpen{Err: stderrors.New("refused")})

	req.Empty(effects)
	req.Equal(State{Status: Disconnected, Room: oslo}, m.State())
}

func TestMachine_Stale_Join_Is_Discarded(t *testing.T) {
	req := require.New(t)
	m := NewMachine("me")
	m.Apply(RoomChanged{Room: oslo})
	m.Apply(TransportConnecting{})
	stale := onlyJoin(t, m.Apply(TransportOpened{}))

	// Given the connection dropped and came back while the join was in flight
	m.Apply(TransportReconnecting{})
	fresh := onlyJoin(t, m.Apply(TransportReconnected{}))

	// When the old completion arrives late, Then it changes nothing
	effects := m.Apply(JoinCompleted{Room: oslo, Epoch: stale.Epoch, Seq: stale.Seq})
	req.Len(effects, 1)
	req.IsType(StaleCompletion{}, effects[0])
	req.False(m.State().Joined)

	// And the fresh one is applied
	effects = m.Apply(JoinCompleted{Room: oslo, Epoch: fresh.Epoch, Seq: fresh.Seq})
	req.Equal(1, appended[projection.ReconnectedMarker](effects))
	req.True(m.State().Joined)
}

func TestMachine_Join_Completion_While_Disconnected_Is_Discarded(t *testing.T) {
	req := require.New(t)
	m := NewMachine("me")
	m.Apply(RoomChanged{Room: oslo})
	join := onlyJoin(t, m.Apply(TransportOpened{}))
	m.Apply(TransportClosed{})

	effects := m.Apply(JoinCompleted{Room: oslo, Epoch: join.Epoch, Seq: join.Seq})

	req.IsType(StaleCompletion{}, effects[0])
	req.False(m.State().Joined)
}

func TestMachine_Room_Change_Leaves_Then_Joins(t *testing.T) {
	req := require.New(t)
	m := NewMachine("me")
	connectedAndJoined(t, m)
	paris := domain.RoomName("Paris::France")

	// Same room is ignored
	req.Nil(m.Apply(RoomChanged{Room: oslo}))

	// When the locality changes
	effects := m.Apply(RoomChanged{Room: paris})

	// Then the old room is left before the new one is joined
	req.Len(effects, 2)
	req.Equal(InvokeLeave{Room: oslo}, effects[0])
	join, ok := effects[1].(InvokeJoin)
	req.True(ok)
	req.Equal(paris, join.Room)
	req.False(m.State().Joined)

	// And a completion for the old room is stale
	req.IsType(StaleCompletion{}, m.Apply(JoinCompleted{Room: oslo, Epoch: join.Epoch, Seq: join.Seq - 1})[0])
	req.Empty(m.Apply(JoinCompleted{Room: paris, Epoch: join.Epoch, Seq: join.Seq}))
	req.True(m.State().Joined)
	req.Equal(paris, m.State().Room)
}

func TestMachine_Room_Change_While_Disconnected_Is_Remembered(t *testing.T) {
	req := require.New(t)
	m := NewMachine("me")

	req.Nil(m.Apply(RoomChanged{Room: oslo}))
	req.Nil(m.Apply(RoomChanged{Room: "Paris::France"}))

	join := onlyJoin(t, m.Apply(TransportOpened{}))
	req.Equal(domain.RoomName("Paris::France"), join.Room)
}

func TestMachine_Send_Is_Gated(t *testing.T) {
	req := require.New(t)
	m := NewMachine("me")

	_, err := m.Send("hello")
	req.ErrorIs(err, errors.ErrNotJoined)

	m.Apply(RoomChanged{Room: oslo})
	join := onlyJoin(t, m.Apply(TransportOpened{}))
	_, err = m.Send("hello")
	req.ErrorIs(err, errors.ErrNotJoined)

	m.Apply(JoinCompleted{Room: oslo, Epoch: join.Epoch, Seq: join.Seq})
	_, err = m.Send("")
	req.ErrorIs(err, errors.ErrEmptyMessage)
	_, err = m.Send("caf\xe9")
	req.ErrorIs(err, errors.ErrInvalidMessage)
	invocation, err := m.Send("hello")
	req.NoError(err)
	req.Equal(InvokeSend{Room: oslo, Text: "hello"}, invocation)
}

func TestMachine_Messages_Are_Tagged(t *testing.T) {
	req := require.New(t)
	m := NewMachine("me")
	m.Apply(RoomChanged{Room: oslo})

	mine := m.Apply(MessageReceived{SenderUserID: "me", Room: oslo, Text: "a"})[0].(AppendItem).Item.(projection.MessageItem)
	theirs := m.Apply(MessageReceived{SenderUserID: "you", Room: oslo, Text: "b"})[0].(AppendItem).Item.(projection.MessageItem)

	req.Equal(identity.Self, mine.Sender.Kind)
	req.Equal(identity.Other, theirs.Sender.Kind)
	req.Equal("b", theirs.Text)
}

func TestMachine_Messages_Of_The_Previous_Room_Are_Dropped(t *testing.T) {
	req := require.New(t)
	m := NewMachine("me")
	paris := domain.RoomName("Paris::France")
	m.Apply(RoomChanged{Room: oslo})
	join := onlyJoin(t, m.Apply(TransportOpened{}))
	m.Apply(JoinCompleted{Room: oslo, Epoch: join.Epoch, Seq: join.Seq})

	// Given a move to Paris
	m.Apply(RoomChanged{Room: paris})

	// When a message of Oslo arrives late, then one of Paris
	late := m.Apply(MessageReceived{SenderUserID: "you", Room: oslo, Text: "late"})
	current := m.Apply(MessageReceived{SenderUserID: "you", Room: paris, Text: "bonjour"})

	// Then only the Paris one reaches the timeline
	req.Empty(late)
	req.Len(current, 1)
	req.Equal("bonjour", current[0].(AppendItem).Item.(projection.MessageItem).Text)
}
