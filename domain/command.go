package domain

// Command is an intent issued by a connection against a room.
type Command interface {
	RoomID() RoomName
}

type JoinRoomCommand struct {
	Room RoomName
}

func (c JoinRoomCommand) RoomID() RoomName { return c.Room }

type LeaveRoomCommand struct {
	Room RoomName
}

func (c LeaveRoomCommand) RoomID() RoomName { return c.Room }

type PostMessageCommand struct {
	Room    RoomName
	Content string
}

func (c PostMessageCommand) RoomID() RoomName { return c.Room }
