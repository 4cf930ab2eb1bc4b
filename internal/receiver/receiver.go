package receiver

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/interferometer-simulator/internal/logging"
	"github.com/signalsfoundry/interferometer-simulator/internal/observability"
	"github.com/signalsfoundry/interferometer-simulator/model"
)

// maxRecordSize bounds a single record; longer lines are a framing error.
const maxRecordSize = 4096

// Sink consumes parsed samples.
type Sink func(model.Sample)

// Option configures a Receiver.
type Option func(*Receiver)

// WithLogger sets the logger for discarded records.
func WithLogger(log logging.Logger) Option {
	return func(r *Receiver) {
		if log != nil {
			r.log = log
		}
	}
}

// WithMetrics attaches a Prometheus collector.
func WithMetrics(m *observability.StreamCollector) Option {
	return func(r *Receiver) {
		r.metrics = m
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Receiver) {
		if now != nil {
			r.now = now
		}
	}
}

// Receiver parses newline-terminated decimal records.
type Receiver struct {
	sink    Sink
	log     logging.Logger
	metrics *observability.StreamCollector
	now     func() time.Time

	received  int
	discarded int
}

// New constructs a Receiver delivering samples to sink.
func New(sink Sink, opts ...Option) *Receiver {
	r := &Receiver{
		sink: sink,
		log:  logging.Noop(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads records from src until EOF or ctx is cancelled. Records that do
// not parse as a decimal are logged and discarded. A reader that returns no
// data without an error (a serial port read timeout) is polled again.
func (r *Receiver) Run(ctx context.Context, src io.Reader) error {
	scanner := bufio.NewScanner(&pollingReader{ctx: ctx, r: src})
	scanner.Buffer(make([]byte, 0, 64), maxRecordSize)

	for scanner.Scan() {
		r.handle(ctx, scanner.Text())
	}
	err := scanner.Err()
	if ctxErr := ctx.Err(); ctxErr != nil && (err == nil || errors.Is(err, ctxErr)) {
		return nil
	}
	return err
}

func (r *Receiver) handle(ctx context.Context, line string) {
	raw := strings.TrimSpace(line)
	if raw == "" {
		return
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.discarded++
		r.metrics.IncRecordsDiscarded()
		r.log.Warn(ctx, "discarding unparseable record",
			logging.String("record", raw),
			logging.Err(err),
		)
		return
	}
	r.received++
	r.metrics.IncRecordsReceived()
	if r.sink != nil {
		r.sink(model.Sample{ReceivedAt: r.now(), Value: value})
	}
}

// Counts returns the number of parsed and discarded records.
func (r *Receiver) Counts() (received, discarded int) {
	return r.received, r.discarded
}

type pollingReader struct {
	ctx context.Context
	r   io.Reader
}

func (p *pollingReader) Read(b []byte) (int, error) {
	for {
		if err := p.ctx.Err(); err != nil {
			return 0, err
		}
		n, err := p.r.Read(b)
		if n > 0 || err != nil {
			return n, err
		}
	}
}
