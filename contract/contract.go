//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"citychat/domain"
	"citychat/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives the events pushed to one connection.
// Consume must honour ctx: a slow member is dropped, never waited for.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry is the room directory: who is connected and in which room.
type IRegistry interface {
	Attach(connectionID domain.ConnectionID, userID string, sink EventSink)
	Join(connectionID domain.ConnectionID, room domain.RoomName) error
	Leave(connectionID domain.ConnectionID, room domain.RoomName)
	Broadcast(ctx context.Context, room domain.RoomName, e event.DomainEvent) int
	SendTo(ctx context.Context, connectionID domain.ConnectionID, e event.DomainEvent) error
	Disconnect(connectionID domain.ConnectionID)
	UserID(connectionID domain.ConnectionID) (string, bool)
}

// IOrchestrator is the hub as seen by a transport.
type IOrchestrator interface {
	Connect(connectionID domain.ConnectionID, userID string, sink EventSink)
	Dispatch(ctx context.Context, connectionID domain.ConnectionID, cmd domain.Command) error
	Disconnect(connectionID domain.ConnectionID)
}

// ITelemetry records technical events.
type ITelemetry interface {
	Record(e event.Event)
}
