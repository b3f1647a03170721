package sink

import (
	"citychat/domain/event"
	"citychat/errors"
	"context"
	"sync"
)

// GrpcSink buffers the events of one stream until its send loop pushes them.
// It is the contract.EventSink handed to the room directory for that connection.
type GrpcSink struct {
	events    chan event.DomainEvent
	done      chan struct{}
	closeOnce sync.Once
}

func NewGrpcSink(bufferSize int) *GrpcSink {
	return &GrpcSink{
		events: make(chan event.DomainEvent, bufferSize),
		done:   make(chan struct{}),
	}
}

// Consume is called by the fan-out. It waits for buffer space until ctx expires,
// so a slow stream only costs its own delivery timeout.
func (s *GrpcSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case <-s.done:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case s.events <- e:
		return nil
	case <-s.done:
		return errors.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events is drained by the stream handler.
func (s *GrpcSink) Events() <-chan event.DomainEvent {
	return s.events
}

// Done is closed once the stream is gone.
func (s *GrpcSink) Done() <-chan struct{} {
	return s.done
}

// Close makes every later Consume fail fast. Safe to call more than once.
func (s *GrpcSink) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
