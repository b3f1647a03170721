// Package domain contains core concepts of the chat system.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"citychat/errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// RoomSeparator joins the locality and the country of a room name.
const RoomSeparator = "::"

// MaxRoomNameLength bounds room names accepted by the hub.
const MaxRoomNameLength = 256

// RoomName is the opaque key of a chat room.
// Rooms have no explicit lifecycle: a room exists while it has members.
type RoomName string

// NewRoomName derives the room of a resolved locality, e.g. "Oslo::Norway".
func NewRoomName(locality, country string) RoomName {
	return RoomName(strings.TrimSpace(locality) + RoomSeparator + strings.TrimSpace(country))
}

// Validate rejects names that cannot be used as a store partition.
func (r RoomName) Validate() error {
	switch {
	case r == "":
		return fmt.Errorf("%w: empty", errors.ErrInvalidRoom)
	case len(r) > MaxRoomNameLength:
		return fmt.Errorf("%w: longer than %d bytes", errors.ErrInvalidRoom, MaxRoomNameLength)
	case !utf8.ValidString(string(r)):
		return fmt.Errorf("%w: not valid UTF-8", errors.ErrInvalidRoom)
	case strings.ContainsRune(string(r), 0):
		return fmt.Errorf("%w: contains NUL", errors.ErrInvalidRoom)
	}
	return nil
}

func (r RoomName) String() string { return string(r) }
