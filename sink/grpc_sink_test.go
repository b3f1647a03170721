package sink

import (
	"citychat/domain/event"
	"citychat/errors"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGrpcSink_Buffers_In_Order(t *testing.T) {
	req := require.New(t)
	s := NewGrpcSink(2)

	req.NoError(s.Consume(context.Background(), event.NewMessage{Message: "m1"}))
	req.NoError(s.Consume(context.Background(), event.NewMessage{Message: "m2"}))

	req.Equal("m1", (<-s.Events()).(event.NewMessage).Message)
	req.Equal("m2", (<-s.Events()).(event.NewMessage).Message)
}

func TestGrpcSink_Full_Buffer_Times_Out(t *testing.T) {
	req := require.New(t)
	s := NewGrpcSink(1)
	req.NoError(s.Consume(context.Background(), event.NewMessage{Message: "m1"}))

	// Given a full buffer nobody drains
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// When consuming again, Then the delivery gives up with the context
	req.ErrorIs(s.Consume(ctx, event.NewMessage{Message: "m2"}), context.DeadlineExceeded)
}

func TestGrpcSink_Closed_Fails_Fast(t *testing.T) {
	req := require.New(t)
	s := NewGrpcSink(1)

	s.Close()
	s.Close()

	req.ErrorIs(s.Consume(context.Background(), event.NewMessage{}), errors.ErrConnectionClosed)
	select {
	case <-s.Done():
	default:
		req.Fail("done should be closed")
	}
}
