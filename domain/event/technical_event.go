package event

import (
	"citychat/domain"
	"time"
)

type Type string

const (
	MessageSentType         Type = "MESSAGE_SENT"
	PersistenceFailedType   Type = "PERSISTENCE_FAILED"
	DeliveryFailedType      Type = "DELIVERY_FAILED"
	RestartedAfterPanicType Type = "WORKER_RESTARTED_AFTER_PANIC"
)

// Event is a technical event used for telemetry, never sent to clients.
type Event struct {
	Type      Type
	CreatedAt time.Time
	Payload   any
}

type MessageSent struct {
	Room       domain.RoomName
	Recipients int
}

type PersistenceFailed struct {
	Room domain.RoomName
	Err  error
}

type DeliveryFailed struct {
	Room         domain.RoomName
	ConnectionID domain.ConnectionID
	Err          error
}

type WorkerRestartedAfterPanic struct {
	WorkerName string
}
