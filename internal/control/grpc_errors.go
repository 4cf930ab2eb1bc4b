package control

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/interferometer-simulator/core"
	"github.com/signalsfoundry/interferometer-simulator/internal/sim"
	"github.com/signalsfoundry/interferometer-simulator/internal/transmit"
	"github.com/signalsfoundry/interferometer-simulator/internal/transport"
)

// ToStatusError maps simulator errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, core.ErrInvalidConfig):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, sim.ErrDataNotReady),
		errors.Is(err, sim.ErrTransmitting),
		errors.Is(err, transmit.ErrAlreadyRunning):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, transport.ErrOpen):
		return status.Error(codes.Unavailable, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
