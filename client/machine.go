// Package client keeps a chat session consistent with its hub connection:
// it rejoins the room after a reconnect, gates sends on membership and writes
// connectivity markers into the timeline.
package client

import (
	"citychat/domain"
	"citychat/errors"
	"citychat/identity"
	"citychat/projection"
	"fmt"
	"unicode/utf8"
)

type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
	Reconnecting
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// State is the session as last computed by the Machine.
// Epoch counts the opened connections: a completion issued under an older
// epoch is stale.
type State struct {
	Status Status
	Room   domain.RoomName
	Joined bool
	Epoch  uint64
}

// Input is everything the Machine reacts to.
type Input interface{ isInput() }

type TransportConnecting struct{}

type TransportOpened struct{ ConnectionID string }

type TransportFailedToOpen struct{ Err error }

type TransportClosed struct{ Err error }

type TransportReconnecting struct{ Err error }

type TransportReconnected struct{ ConnectionID string }

type MessageReceived struct {
	SenderUserID string
	Room         domain.RoomName
	Text         string
}

type RoomChanged struct{ Room domain.RoomName }

// JoinCompleted reports the outcome of the InvokeJoin with the same Seq.
type JoinCompleted struct {
	Room  domain.RoomName
	Epoch uint64
	Seq   uint64
	Err   error
}

func (TransportConnecting) isInput()   {}
func (TransportOpened) isInput()       {}
func (TransportFailedToOpen) isInput() {}
func (TransportClosed) isInput()       {}
func (TransportReconnecting) isInput() {}
func (TransportReconnected) isInput()  {}
func (MessageReceived) isInput()       {}
func (RoomChanged) isInput()           {}
func (JoinCompleted) isInput()         {}

// Effect is a side effect requested by the Machine, run by the Session.
type Effect interface{ isEffect() }

type AppendItem struct{ Item projection.ChatItem }

type InvokeJoin struct {
	Room  domain.RoomName
	Epoch uint64
	Seq   uint64
}

type InvokeLeave struct{ Room domain.RoomName }

type InvokeSend struct {
	Room domain.RoomName
	Text string
}

// StaleCompletion is reported for a discarded join completion.
type StaleCompletion struct{ Completion JoinCompleted }

type JoinFailed struct {
	Room domain.RoomName
	Err  error
}

func (AppendItem) isEffect()      {}
func (InvokeJoin) isEffect()      {}
func (InvokeLeave) isEffect()     {}
func (InvokeSend) isEffect()      {}
func (StaleCompletion) isEffect() {}
func (JoinFailed) isEffect()      {}

// Machine is the connection lifecycle of one session.
// It is not safe for concurrent use: the Session feeds it from a single goroutine.
type Machine struct {
	localUserID string
	state       State
	joinSeq     uint64
	// rejoining is set between a reconnect and the next successful join
	rejoining bool
}

func NewMachine(localUserID string) *Machine {
	return &Machine{localUserID: localUserID}
}

func (m *Machine) State() State {
	return m.state
}

// Apply runs one transition and returns its effects in order.
func (m *Machine) Apply(in Input) []Effect {
	switch in := in.(type) {
	case TransportConnecting:
		if m.state.Status == Disconnected {
			m.state.Status = Connecting
		}
		return nil

	case TransportOpened:
		if m.state.Status != Disconnected && m.state.Status != Connecting {
			return nil
		}
		m.rejoining = false
		return m.open()

	case TransportReconnected:
		if m.state.Status != Reconnecting {
			return nil
		}
		m.rejoining = true
		return m.open()

	case TransportFailedToOpen:
		m.state.Status = Disconnected
		m.state.Joined = false
		m.rejoining = false
		return nil

	case TransportClosed:
		m.state.Status = Disconnected
		m.state.Joined = false
		m.rejoining = false
		return []Effect{AppendItem{Item: projection.NewDisconnectedMarker()}}

	case TransportReconnecting:
		if m.state.Status != Connected {
			return nil
		}
		m.state.Status = Reconnecting
		m.state.Joined = false
		return []Effect{AppendItem{Item: projection.NewDisconnectedMarker()}}

	case MessageReceived:
		// Still in flight from the room we just left
		if in.Room != m.state.Room {
			return nil
		}
		sender := identity.Classify(in.SenderUserID, m.localUserID)
		return []Effect{AppendItem{Item: projection.NewMessageItem(sender, in.Room, in.Text)}}

	case RoomChanged:
		return m.changeRoom(in.Room)

	case JoinCompleted:
		return m.completeJoin(in)

	default:
		return nil
	}
}

// Send checks that a message can go out now.
func (m *Machine) Send(text string) (InvokeSend, error) {
	if text == "" {
		return InvokeSend{}, errors.ErrEmptyMessage
	}
	if !utf8.ValidString(text) {
		return InvokeSend{}, errors.ErrInvalidMessage
	}
	if m.state.Status != Connected || !m.state.Joined {
		return InvokeSend{}, errors.ErrNotJoined
	}
	return InvokeSend{Room: m.state.Room, Text: text}, nil
}

func (m *Machine) open() []Effect {
	m.state.Status = Connected
	m.state.Joined = false
	m.state.Epoch++
	if m.state.Room == "" {
		return nil
	}
	return []Effect{m.join()}
}

func (m *Machine) join() InvokeJoin {
	m.joinSeq++
	return InvokeJoin{Room: m.state.Room, Epoch: m.state.Epoch, Seq: m.joinSeq}
}

// changeRoom leaves the previous room before joining the new one.
// While Connected with a known room a join was always issued, so the leave
// is sent even if that join has not completed yet.
func (m *Machine) changeRoom(room domain.RoomName) []Effect {
	if room == m.state.Room {
		return nil
	}
	previous := m.state.Room
	m.state.Room = room
	if m.state.Status != Connected {
		return nil
	}
	m.state.Joined = false
	var effects []Effect
	if previous != "" {
		effects = append(effects, InvokeLeave{Room: previous})
	}
	if room == "" {
		return effects
	}
	return append(effects, m.join())
}

func (m *Machine) completeJoin(c JoinCompleted) []Effect {
	if m.state.Status != Connected || c.Epoch != m.state.Epoch || c.Seq != m.joinSeq || c.Room != m.state.Room {
		return []Effect{StaleCompletion{Completion: c}}
	}
	if c.Err != nil {
		m.state.Joined = false
		m.rejoining = false
		return []Effect{JoinFailed{Room: c.Room, Err: c.Err}}
	}
	m.state.Joined = true
	if m.rejoining {
		m.rejoining = false
		return []Effect{AppendItem{Item: projection.NewReconnectedMarker()}}
	}
	return nil
}
