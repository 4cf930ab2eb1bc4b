package control

import (
	"context"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/interferometer-simulator/internal/logging"
	"github.com/signalsfoundry/interferometer-simulator/internal/sim"
	"github.com/signalsfoundry/interferometer-simulator/model"
)

// Service implements SimulatorControlServer on top of a sim.Session.
//
// Semantics:
//   - Generate merges the request over the server's default simulation
//     parameters, validates, synthesizes and publishes a new series.
//   - Start and Stop drive the transmitter and return the resulting status.
//   - Status never fails once the service is wired.
type Service struct {
	session  *sim.Session
	defaults model.SimulationConfig
	limits   Limits
	log      logging.Logger
}

// Limits caps the size of a remote Generate request. A zero field is
// unlimited.
type Limits struct {
	MaxPathCount   int
	MaxSampleCount int
}

// DefaultLimits keeps a single request within a few hundred megabytes of
// phase noise.
func DefaultLimits() Limits {
	return Limits{MaxPathCount: 64, MaxSampleCount: 1_000_000}
}

// Check rejects cfg when it exceeds l. The error wraps ErrInvalidRequest.
func (l Limits) Check(cfg model.SimulationConfig) error {
	if l.MaxPathCount > 0 && cfg.PathCount > l.MaxPathCount {
		return fmt.Errorf("%w: %s %d exceeds limit %d", ErrInvalidRequest, FieldPathCount, cfg.PathCount, l.MaxPathCount)
	}
	if l.MaxSampleCount > 0 && cfg.SampleCount > l.MaxSampleCount {
		return fmt.Errorf("%w: %s %d exceeds limit %d", ErrInvalidRequest, FieldSampleCount, cfg.SampleCount, l.MaxSampleCount)
	}
	return nil
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLimits replaces DefaultLimits.
func WithLimits(l Limits) ServiceOption {
	return func(s *Service) {
		s.limits = l
	}
}

// NewService constructs a Service. defaults fill fields a Generate request
// leaves out.
func NewService(session *sim.Session, defaults model.SimulationConfig, log logging.Logger, opts ...ServiceOption) *Service {
	if log == nil {
		log = logging.Noop()
	}
	s := &Service{
		session:  session,
		defaults: defaults,
		limits:   DefaultLimits(),
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ensureReady() error {
	if s == nil || s.session == nil {
		return status.Error(codes.Unavailable, "simulator session is not initialised")
	}
	return nil
}

// Generate implements SimulatorControlServer.
func (s *Service) Generate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	log := logging.FromContext(ctx, s.log)

	cfg, seed, err := ParseGenerateRequest(in, s.defaults)
	if err == nil {
		err = s.limits.Check(cfg)
	}
	if err != nil {
		log.Warn(ctx, "rejecting generate request", logging.Err(err))
		return nil, ToStatusError(err)
	}
	res, err := s.session.Generate(ctx, cfg, seed)
	if err != nil {
		return nil, ToStatusError(err)
	}
	out, err := generateReplyStruct(res)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Start implements SimulatorControlServer.
func (s *Service) Start(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	if err := s.session.Start(ctx); err != nil {
		logging.FromContext(ctx, s.log).Warn(ctx, "start failed", logging.Err(err))
		return nil, ToStatusError(err)
	}
	return s.statusReply()
}

// Stop implements SimulatorControlServer.
func (s *Service) Stop(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	if err := s.session.Stop(ctx); err != nil {
		logging.FromContext(ctx, s.log).Warn(ctx, "stop failed", logging.Err(err))
		return nil, ToStatusError(err)
	}
	return s.statusReply()
}

// Status implements SimulatorControlServer.
func (s *Service) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	return s.statusReply()
}

func (s *Service) statusReply() (*structpb.Struct, error) {
	out, err := statusStruct(s.session.Status())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
