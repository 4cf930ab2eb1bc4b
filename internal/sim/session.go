package sim

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/interferometer-simulator/core"
	"github.com/signalsfoundry/interferometer-simulator/internal/logging"
	"github.com/signalsfoundry/interferometer-simulator/internal/observability"
	"github.com/signalsfoundry/interferometer-simulator/internal/transmit"
	"github.com/signalsfoundry/interferometer-simulator/model"
)

var (
	// ErrDataNotReady indicates Start was called before any series was
	// generated.
	ErrDataNotReady = errors.New("no intensity series generated yet")
	// ErrTransmitting indicates Generate was called while the published
	// series is being transmitted.
	ErrTransmitting = errors.New("cannot regenerate while transmitting")
)

// Result describes one completed synthesis pass.
type Result struct {
	RunID    string
	Seed     uint64
	Config   model.SimulationConfig
	Summary  core.Summary
	Duration time.Duration
}

// Status is a snapshot of the session and its transmitter.
type Status struct {
	State     model.TransmitterState
	Cursor    int
	Length    int
	Sent      int
	DataReady bool
	RunID     string
	Seed      uint64
}

// SynthesisRecorder receives the outcome of every Generate call.
type SynthesisRecorder interface {
	ObserveSynthesis(d time.Duration, samples int, err error)
}

// Option customises Session construction.
type Option func(*Session)

// WithLogger attaches a structured logger.
func WithLogger(log logging.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetricsRecorder attaches an optional synthesis recorder.
func WithMetricsRecorder(m SynthesisRecorder) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// Session owns the published intensity series and the data-ready flag, and
// gates the transmitter on both.
type Session struct {
	mu sync.Mutex

	tx      *transmit.Transmitter
	log     logging.Logger
	metrics SynthesisRecorder

	stream *core.SampleStream
	last   *Result
}

// NewSession wraps tx. The session is the only caller of tx.Start.
func NewSession(tx *transmit.Transmitter, opts ...Option) *Session {
	s := &Session{
		tx:  tx,
		log: logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate validates cfg, synthesizes a new intensity series from seed and
// publishes it. A zero seed is replaced by a time-based one, reported in the
// result. Generation is refused while a transmission is running.
func (s *Session) Generate(ctx context.Context, cfg model.SimulationConfig, seed uint64) (Result, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanGenerate,
		observability.SimulationAttributes(cfg)...)
	defer span.End()

	log := logging.FromContext(ctx, s.log)

	result, err := s.generate(ctx, cfg, seed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if s.metrics != nil {
			s.metrics.ObserveSynthesis(0, 0, err)
		}
		log.Warn(ctx, "generate rejected", logging.Err(err))
		return Result{}, err
	}

	span.SetAttributes(
		observability.AttrRunID.String(result.RunID),
		observability.AttrSeed.String(strconv.FormatUint(result.Seed, 10)),
	)
	if s.metrics != nil {
		s.metrics.ObserveSynthesis(result.Duration, result.Summary.Count, nil)
	}
	log.Info(ctx, "intensity series generated",
		logging.String("run_id", result.RunID),
		logging.Any("seed", result.Seed),
		logging.Int("samples", result.Summary.Count),
		logging.Float64("mean", result.Summary.Mean),
		logging.Duration("duration", result.Duration),
	)
	return result, nil
}

func (s *Session) generate(ctx context.Context, cfg model.SimulationConfig, seed uint64) (Result, error) {
	if err := core.ValidateConfig(cfg); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx != nil {
		switch s.tx.State() {
		case model.TransmitterRunning:
			return Result{}, ErrTransmitting
		case model.TransmitterStopped:
			// Release the exhausted run before its series is replaced.
			if err := s.tx.Stop(ctx); err != nil {
				return Result{}, err
			}
		}
	}

	cfg.NoiseFrequencies = append([]float64(nil), cfg.NoiseFrequencies...)
	if seed == 0 {
		seed = core.TimeSeed()
	}
	rng := core.NewSource(seed)
	start := time.Now()

	synth, err := core.NewNoiseSynthesizer(cfg)
	if err != nil {
		return Result{}, err
	}

	_, pathSpan := observability.StartSpan(ctx, observability.SpanSynthesizePaths)
	phases := synth.Synthesize(rng)
	pathSpan.End()

	_, mixSpan := observability.StartSpan(ctx, observability.SpanInterfere)
	series, err := synth.Interfere(phases, rng)
	mixSpan.End()
	if err != nil {
		return Result{}, err
	}

	result := Result{
		RunID:    uuid.NewString(),
		Seed:     seed,
		Config:   cfg,
		Summary:  core.Summarize(series, cfg.PathCount),
		Duration: time.Since(start),
	}
	s.stream = core.NewSampleStream(series)
	s.last = &result
	return result, nil
}

// Start begins transmitting the published series from its first sample.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return ErrDataNotReady
	}
	if s.tx == nil {
		return errors.New("session has no transmitter")
	}
	return s.tx.Start(ctx, s.stream)
}

// Stop halts an active transmission. It is a no-op when nothing is running.
func (s *Session) Stop(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	return s.tx.Stop(ctx)
}

// Status reports the transmitter state and the published series.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:     model.TransmitterIdle,
		Length:    s.stream.Len(),
		DataReady: s.stream != nil,
	}
	if s.tx != nil {
		ts := s.tx.Status()
		st.State = ts.State
		st.Sent = ts.Sent
		if ts.State != model.TransmitterIdle {
			st.Cursor = ts.Cursor
		}
	}
	if s.last != nil {
		st.RunID = s.last.RunID
		st.Seed = s.last.Seed
	}
	return st
}

// Values returns a copy of the published series, or nil before Generate.
func (s *Session) Values() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.stream.Len()
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i], _ = s.stream.At(i)
	}
	return out
}

// Last returns the most recent successful result.
func (s *Session) Last() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Result{}, false
	}
	return *s.last, true
}
