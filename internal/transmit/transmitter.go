package transmit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/signalsfoundry/interferometer-simulator/core"
	"github.com/signalsfoundry/interferometer-simulator/internal/logging"
	"github.com/signalsfoundry/interferometer-simulator/internal/observability"
	"github.com/signalsfoundry/interferometer-simulator/internal/transport"
	"github.com/signalsfoundry/interferometer-simulator/model"
	"github.com/signalsfoundry/interferometer-simulator/timectrl"
)

// DefaultCadence is the interval between two transmitted samples.
const DefaultCadence = 20 * time.Millisecond

var (
	// ErrAlreadyRunning is returned by Start while a transmission is active.
	ErrAlreadyRunning = errors.New("transmitter already running")
	// ErrEmptyStream is returned by Start for a nil or empty stream.
	ErrEmptyStream = fmt.Errorf("%w: sample stream is empty", core.ErrInvalidConfig)
)

// Options tunes the record format and the tick behaviour.
type Options struct {
	// Precision is the number of fractional digits per record.
	Precision int
	// Terminator is appended to every record.
	Terminator string
	// WriteTimeout bounds the wait for a single record write.
	WriteTimeout time.Duration
	// StopWhenExhausted halts scheduling and releases the transport on the
	// first tick after the last sample, moving to Stopped. When false the
	// transmitter stays Running and further ticks do nothing.
	StopWhenExhausted bool
}

// DefaultOptions returns four fractional digits, a newline terminator and a
// 100ms write bound.
func DefaultOptions() Options {
	return Options{
		Precision:    4,
		Terminator:   "\n",
		WriteTimeout: 100 * time.Millisecond,
	}
}

// Option configures a Transmitter.
type Option func(*Transmitter)

// WithOptions replaces the default Options.
func WithOptions(opts Options) Option {
	return func(t *Transmitter) {
		t.opts = opts
	}
}

// WithLogger sets the logger used for lifecycle and write failure events.
func WithLogger(log logging.Logger) Option {
	return func(t *Transmitter) {
		if log != nil {
			t.log = log
		}
	}
}

// WithMetrics attaches a Prometheus collector.
func WithMetrics(m *observability.StreamCollector) Option {
	return func(t *Transmitter) {
		t.metrics = m
	}
}

// Status is a point-in-time view of the transmitter.
type Status struct {
	State  model.TransmitterState
	Cursor int
	Length int
	Sent   int
}

// Transmitter emits one sample of a SampleStream per scheduler tick through
// a transport opened on Start and closed on Stop.
type Transmitter struct {
	open  transport.Opener
	sched timectrl.Scheduler
	opts  Options

	log     logging.Logger
	metrics *observability.StreamCollector

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex

	mu      sync.Mutex
	state   model.TransmitterState
	stream  *core.SampleStream
	link    transport.Transport
	sent    int
	buf     []byte
	halting chan struct{}
	done    chan struct{}
}

var closedDone = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// NewTransmitter constructs an Idle transmitter.
func NewTransmitter(open transport.Opener, sched timectrl.Scheduler, opts ...Option) *Transmitter {
	t := &Transmitter{
		open:  open,
		sched: sched,
		opts:  DefaultOptions(),
		log:   logging.Noop(),
		state: model.TransmitterIdle,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.opts.Precision < 0 {
		t.opts.Precision = 0
	}
	return t
}

// Start opens the transport, rewinds stream and begins emitting one sample
// per tick. On a transport open failure the transmitter stays Idle.
func (t *Transmitter) Start(ctx context.Context, stream *core.SampleStream) error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	t.awaitHalt()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == model.TransmitterRunning {
		return ErrAlreadyRunning
	}
	if stream.Len() == 0 {
		return ErrEmptyStream
	}
	if t.open == nil || t.sched == nil {
		return fmt.Errorf("%w: transmitter has no transport or scheduler", core.ErrInvalidConfig)
	}

	link, err := t.open(ctx)
	if err != nil {
		t.state = model.TransmitterIdle
		t.metrics.SetTransmitterState(t.state, 0)
		if !errors.Is(err, transport.ErrOpen) {
			err = fmt.Errorf("%w: %v", transport.ErrOpen, err)
		}
		t.log.Error(ctx, "transport open failed", logging.Err(err))
		return err
	}

	stream.Reset()
	t.stream = stream
	t.link = link
	t.sent = 0
	t.done = make(chan struct{})
	t.state = model.TransmitterRunning
	t.metrics.SetTransmitterState(t.state, 0)
	t.log.Info(ctx, "transmission started", logging.Int("samples", stream.Len()))

	t.sched.Start(t.OnTick)
	return nil
}

// OnTick emits the sample under the cursor. It is the scheduler callback
// and does nothing unless the transmitter is Running.
func (t *Transmitter) OnTick(now time.Time) {
	t.mu.Lock()
	if t.state != model.TransmitterRunning || t.stream == nil {
		t.mu.Unlock()
		return
	}
	value, ok := t.stream.Peek()
	if !ok {
		if t.opts.StopWhenExhausted {
			t.haltLocked()
		}
		t.mu.Unlock()
		return
	}
	cursor := t.stream.Cursor()
	t.buf = FormatRecord(t.buf[:0], value, t.opts.Precision, t.opts.Terminator)
	record := t.buf
	link := t.link
	t.mu.Unlock()

	ctx := context.Background()
	cancel := func() {}
	if t.opts.WriteTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.opts.WriteTimeout)
	}
	err := link.WriteRecord(ctx, record)
	cancel()

	if err != nil {
		reason := observability.WriteFailureError
		if errors.Is(err, transport.ErrWriteTimeout) {
			reason = observability.WriteFailureTimeout
		}
		t.metrics.IncWriteFailure(reason)
		t.log.Warn(ctx, "sample write failed",
			logging.Int("cursor", cursor),
			logging.String("tick", now.Format(time.RFC3339Nano)),
			logging.Err(err),
		)
	} else {
		t.metrics.IncRecordsSent()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		t.sent++
	}
	t.stream.Advance()
	t.metrics.SetTransmitterState(t.state, t.stream.Cursor())
	if t.stream.Exhausted() {
		t.log.Info(context.Background(), "sample stream exhausted",
			logging.Int("samples", t.stream.Len()),
			logging.Int("sent", t.sent),
		)
	}
}

// haltLocked moves to Stopped from inside a tick. Stopping the scheduler
// waits for the current tick, so it happens on another goroutine.
func (t *Transmitter) haltLocked() {
	t.state = model.TransmitterStopped
	t.metrics.SetTransmitterState(t.state, t.stream.Cursor())
	link := t.link
	t.link = nil
	halting := make(chan struct{})
	t.halting = halting
	done := t.done

	go func() {
		defer close(done)
		defer close(halting)
		t.sched.Stop()
		if link != nil {
			if err := link.Close(); err != nil {
				t.log.Warn(context.Background(), "transport close failed", logging.Err(err))
			}
		}
		t.log.Info(context.Background(), "transmission stopped after last sample")
	}()
}

func (t *Transmitter) awaitHalt() {
	t.mu.Lock()
	halting := t.halting
	t.halting = nil
	t.mu.Unlock()
	if halting != nil {
		<-halting
	}
}

// Stop halts scheduling, closes the transport and returns to Idle. No record
// is written after Stop returns. Stop on an Idle transmitter is a no-op.
func (t *Transmitter) Stop(ctx context.Context) error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	t.awaitHalt()

	t.mu.Lock()
	if t.state == model.TransmitterIdle {
		t.mu.Unlock()
		return nil
	}
	// A halted run already closed done.
	var done chan struct{}
	if t.state == model.TransmitterRunning {
		done = t.done
	}
	t.state = model.TransmitterIdle
	link := t.link
	t.link = nil
	cursor := t.stream.Cursor()
	t.metrics.SetTransmitterState(t.state, cursor)
	t.mu.Unlock()

	t.sched.Stop()

	var err error
	if link != nil {
		err = link.Close()
	}
	if done != nil {
		close(done)
	}
	t.log.Info(ctx, "transmission stopped", logging.Int("cursor", cursor))
	return err
}

// Done returns a channel that is closed when the current run ends, either by
// Stop or by halting after the last sample. The transport is released by
// then. Without a started run the channel is already closed.
func (t *Transmitter) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done == nil {
		return closedDone
	}
	return t.done
}

// State returns the lifecycle state.
func (t *Transmitter) State() model.TransmitterState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Status returns the state together with stream progress.
func (t *Transmitter) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		State:  t.state,
		Cursor: t.stream.Cursor(),
		Length: t.stream.Len(),
		Sent:   t.sent,
	}
}

// FormatRecord appends value with a fixed number of fractional digits and the
// terminator to dst.
func FormatRecord(dst []byte, value float64, precision int, terminator string) []byte {
	dst = strconv.AppendFloat(dst, value, 'f', precision, 64)
	return append(dst, terminator...)
}
