package errors

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrInvalidRoom       = fmt.Errorf("invalid room name")
	ErrEmptyMessage      = fmt.Errorf("message is empty")
	ErrMessageTooLong    = fmt.Errorf("message is too long")
	ErrInvalidMessage    = fmt.Errorf("message is not valid UTF-8")
	ErrUnknownConnection = fmt.Errorf("unknown connection")
	ErrUnknownMethod     = fmt.Errorf("unknown hub method")
	ErrNotConnected      = fmt.Errorf("hub connection is not connected")
	ErrNotJoined         = fmt.Errorf("chat room not joined")
	ErrConnectionClosed  = fmt.Errorf("hub connection closed")
	ErrHandshake         = fmt.Errorf("hub handshake failed")
)

// MapToGRPCError translates domain errors into gRPC status errors.
// Unknown errors are reported as Internal.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrInvalidRoom),
		errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrMessageTooLong),
		errors.Is(err, ErrInvalidMessage),
		errors.Is(err, ErrUnknownMethod):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrUnknownConnection):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrNotJoined), errors.Is(err, ErrNotConnected):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrConnectionClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
