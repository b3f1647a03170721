// Package wire is the protocol spoken on the hub stream: one Frame per gRPC
// message, CBOR encoded.
package wire

import (
	"citychat/domain"
	"citychat/domain/event"
	"citychat/errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

type Method string

const (
	JoinGroupChat   Method = "JoinGroupChat"
	SendToGroupChat Method = "SendToGroupChat"
	LeaveGroupChat  Method = "LeaveGroupChat"
)

// Frame is the only message type of the stream. Exactly one field is set.
type Frame struct {
	Handshake  *Handshake  `cbor:"1,keyasint,omitempty"`
	Invocation *Invocation `cbor:"2,keyasint,omitempty"`
	Completion *Completion `cbor:"3,keyasint,omitempty"`
	NewMessage *NewMessage `cbor:"4,keyasint,omitempty"`
}

// Handshake is the first frame sent by the server on a new stream.
type Handshake struct {
	ConnectionID string `cbor:"1,keyasint"`
}

// Invocation is a hub method call issued by the client.
// Name is the room of Join and Leave, ChatName and Message the arguments of Send.
type Invocation struct {
	ID       uint64 `cbor:"1,keyasint"`
	Method   Method `cbor:"2,keyasint" validate:"required,oneof=JoinGroupChat SendToGroupChat LeaveGroupChat"`
	Name     string `cbor:"3,keyasint,omitempty" validate:"required_unless=Method SendToGroupChat,max=256"`
	ChatName string `cbor:"4,keyasint,omitempty" validate:"required_if=Method SendToGroupChat,max=256"`
	Message  string `cbor:"5,keyasint,omitempty" validate:"required_if=Method SendToGroupChat"`
}

// Completion answers one Invocation. An empty Error means success.
type Completion struct {
	InvocationID uint64 `cbor:"1,keyasint"`
	Error        string `cbor:"2,keyasint,omitempty"`
	Code         uint32 `cbor:"3,keyasint,omitempty"`
}

// NewMessage is pushed for every live or replayed room message.
type NewMessage struct {
	SenderUserID string `cbor:"1,keyasint"`
	ChatName     string `cbor:"2,keyasint"`
	Message      string `cbor:"3,keyasint"`
}

func NewValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// ToCommand validates the invocation and turns it into a hub command.
func (i Invocation) ToCommand(v *validator.Validate) (domain.Command, error) {
	if err := v.Struct(i); err != nil {
		return nil, invalidInvocation(i, err)
	}
	switch i.Method {
	case JoinGroupChat:
		return domain.JoinRoomCommand{Room: domain.RoomName(i.Name)}, nil
	case LeaveGroupChat:
		return domain.LeaveRoomCommand{Room: domain.RoomName(i.Name)}, nil
	case SendToGroupChat:
		return domain.PostMessageCommand{Room: domain.RoomName(i.ChatName), Content: i.Message}, nil
	default:
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownMethod, i.Method)
	}
}

func invalidInvocation(i Invocation, err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrors) == 0 {
		return fmt.Errorf("%w: %v", errors.ErrUnknownMethod, err)
	}
	fieldErr := validationErrors[0]
	switch fieldErr.Field() {
	case "Method":
		return fmt.Errorf("%w: %q", errors.ErrUnknownMethod, i.Method)
	case "Message":
		return fmt.Errorf("%w: %s", errors.ErrEmptyMessage, i.Method)
	default:
		return fmt.Errorf("%w: %s failed on %s", errors.ErrInvalidRoom, fieldErr.Field(), fieldErr.Tag())
	}
}

// FromEvent maps a room event to its frame. ok is false for events that are
// never sent to clients.
func FromEvent(e event.DomainEvent) (*Frame, bool) {
	switch evt := e.(type) {
	case event.NewMessage:
		return &Frame{NewMessage: &NewMessage{
			SenderUserID: evt.SenderUserID,
			ChatName:     string(evt.ChatName),
			Message:      evt.Message,
		}}, true
	default:
		return nil, false
	}
}

func (f *Frame) String() string {
	switch {
	case f.Handshake != nil:
		return "handshake"
	case f.Invocation != nil:
		return fmt.Sprintf("invocation(%d %s)", f.Invocation.ID, f.Invocation.Method)
	case f.Completion != nil:
		return fmt.Sprintf("completion(%d)", f.Completion.InvocationID)
	case f.NewMessage != nil:
		return "new_message"
	default:
		return "empty"
	}
}
