package server

import (
	"citychat/contract"
	"citychat/domain"
	"citychat/domain/event"
	"citychat/errors"
	"citychat/infrastructure/grpc/wire"
	"citychat/sink"
	"context"
	stderrors "errors"
	"io"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"google.golang.org/grpc/status"
)

// completed answers an invocation through the same queue as room events,
// so that a join's replayed history always precedes its completion.
type completed struct {
	room     domain.RoomName
	response wire.Completion
}

func (c completed) RoomID() domain.RoomName { return c.room }

type ChatServer struct {
	orchestrator         contract.IOrchestrator
	validate             *validator.Validate
	connectionBufferSize int
	log                  *slog.Logger
}

func NewChatServer(log *slog.Logger, orchestrator contract.IOrchestrator, connectionBufferSize int) *ChatServer {
	return &ChatServer{
		orchestrator:         orchestrator,
		validate:             wire.NewValidator(),
		connectionBufferSize: connectionBufferSize,
		log:                  log,
	}
}

// Connect serves one hub connection for its whole life.
// The stream gets a fresh connection id, announced in the handshake frame.
// Invocations are handled in arrival order; every outgoing frame is written by
// a single send loop draining the connection sink.
// The connection leaves every room when the stream ends.
func (s *ChatServer) Connect(stream wire.ConnectServerStream) error {
	ctx := stream.Context()
	connectionID := domain.ConnectionID(uuid.NewString())
	userID := wire.UserIDFromContext(ctx)
	log := s.log.With("connection_id", connectionID, "user_id", userID)

	if err := stream.Send(&wire.Frame{Handshake: &wire.Handshake{ConnectionID: string(connectionID)}}); err != nil {
		log.Warn("Handshake failed", "error", err)
		return err
	}

	connectionSink := sink.NewGrpcSink(s.connectionBufferSize)
	s.orchestrator.Connect(connectionID, userID, connectionSink)
	defer s.orchestrator.Disconnect(connectionID)

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- s.sendLoop(ctx, stream, connectionSink)
	}()
	recvErr := make(chan error, 1)
	go func() {
		recvErr <- s.recvLoop(ctx, stream, connectionID, connectionSink, log)
	}()

	var err error
	select {
	case err = <-recvErr:
		connectionSink.Close()
		<-sendErr
		if err != nil {
			log.Warn("Connection lost", "error", err)
		} else {
			log.Info("Client closed the connection")
		}
	case err = <-sendErr:
		connectionSink.Close()
		log.Warn("Failed to push to stream", "error", err)
	case <-ctx.Done():
		connectionSink.Close()
		<-sendErr
		log.Info("Connection ended", "reason", ctx.Err())
	}
	// The stream must not be written once Connect returned: the send loop is done here
	return err
}

func (s *ChatServer) recvLoop(ctx context.Context, stream wire.ConnectServerStream,
	connectionID domain.ConnectionID, connectionSink *sink.GrpcSink, log *slog.Logger) error {
	for {
		frame, err := stream.Recv()
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		invocation := frame.Invocation
		if invocation == nil {
			log.Debug("Ignoring unexpected frame", "frame", frame.String())
			continue
		}

		response := wire.Completion{InvocationID: invocation.ID}
		var room domain.RoomName
		cmd, err := invocation.ToCommand(s.validate)
		if err == nil {
			room = cmd.RoomID()
			err = s.orchestrator.Dispatch(ctx, connectionID, cmd)
		}
		if err != nil {
			log.Debug("Invocation failed", "method", invocation.Method, "error", err)
			response.Error = err.Error()
			response.Code = uint32(status.Code(errors.MapToGRPCError(err)))
		}
		if err := connectionSink.Consume(ctx, completed{room: room, response: response}); err != nil {
			return err
		}
	}
}

func (s *ChatServer) sendLoop(ctx context.Context, stream wire.ConnectServerStream, connectionSink *sink.GrpcSink) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-connectionSink.Done():
			return nil
		case e := <-connectionSink.Events():
			frame, ok := toFrame(e)
			if !ok {
				continue
			}
			if err := stream.Send(frame); err != nil {
				return err
			}
		}
	}
}

func toFrame(e event.DomainEvent) (*wire.Frame, bool) {
	if c, ok := e.(completed); ok {
		response := c.response
		return &wire.Frame{Completion: &response}, true
	}
	return wire.FromEvent(e)
}
