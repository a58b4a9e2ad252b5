package nbi

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/manet-simulator/broadcast"
	"github.com/signalsfoundry/manet-simulator/core"
	"github.com/signalsfoundry/manet-simulator/internal/config"
	"github.com/signalsfoundry/manet-simulator/timectrl"
)

// ErrNotFound is a package-level sentinel used when an entity cannot be located.
var ErrNotFound = errors.New("not found")

// ToStatusError maps common simulator errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrRunNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, timectrl.ErrNoTermination),
		errors.Is(err, broadcast.ErrUnknownStrategy),
		errors.Is(err, core.ErrDegenerateGeometry):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, ErrRunExists):
		return status.Error(codes.AlreadyExists, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
