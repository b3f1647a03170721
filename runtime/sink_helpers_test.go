package runtime

import (
	"citychat/domain/event"
	"context"
	"errors"
	"sync"
)

type recordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (s *recordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) messages() []event.NewMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var messages []event.NewMessage
	for _, e := range s.events {
		if m, ok := e.(event.NewMessage); ok {
			messages = append(messages, m)
		}
	}
	return messages
}

func (s *recordingSink) texts() []string {
	var texts []string
	for _, m := range s.messages() {
		texts = append(texts, m.Message)
	}
	return texts
}

type failingSink struct{}

func (failingSink) Consume(context.Context, event.DomainEvent) error {
	return errors.New("stream broken")
}

// stuckSink never accepts: it only returns when its context expires.
type stuckSink struct{}

func (stuckSink) Consume(ctx context.Context, _ event.DomainEvent) error {
	<-ctx.Done()
	return ctx.Err()
}
