package transmit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/interferometer-simulator/core"
	"github.com/signalsfoundry/interferometer-simulator/internal/observability"
	"github.com/signalsfoundry/interferometer-simulator/internal/transport"
	"github.com/signalsfoundry/interferometer-simulator/model"
	"github.com/signalsfoundry/interferometer-simulator/timectrl"
)

type fakeLink struct {
	mu       sync.Mutex
	records  []string
	closed   bool
	writeErr error
}

func (f *fakeLink) WriteRecord(_ context.Context, record []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return transport.ErrClosed
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	f.records = append(f.records, string(record))
	return nil
}

func (f *fakeLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeLink) Records() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.records...)
}

func (f *fakeLink) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeOpener struct {
	mu       sync.Mutex
	links    []*fakeLink
	err      error
	writeErr error
}

func (o *fakeOpener) Open(context.Context) (transport.Transport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	link := &fakeLink{writeErr: o.writeErr}
	o.links = append(o.links, link)
	return link, nil
}

func (o *fakeOpener) Last() *fakeLink {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.links) == 0 {
		return nil
	}
	return o.links[len(o.links)-1]
}

func (o *fakeOpener) Opened() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.links)
}

func newManual() *timectrl.ManualScheduler {
	return timectrl.NewManualScheduler(time.Unix(0, 0), DefaultCadence)
}

func scenarioStream(t *testing.T) *core.SampleStream {
	t.Helper()
	cfg := model.SimulationConfig{
		PathCount:        2,
		SampleCount:      5,
		SamplingInterval: 1.0,
		Wavelength:       1.0,
		NoiseFrequencies: []float64{0.1},
	}
	series, err := core.Synthesize(cfg, core.NewSource(42))
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	return core.NewSampleStream(series)
}

func TestTransmitterEmitsEverySampleThenGoesQuiet(t *testing.T) {
	opener := &fakeOpener{}
	sched := newManual()
	tx := NewTransmitter(opener.Open, sched)
	stream := scenarioStream(t)

	if err := tx.Start(context.Background(), stream); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := tx.State(); got != model.TransmitterRunning {
		t.Fatalf("State() = %v, want RUNNING", got)
	}

	if delivered := sched.Fire(8); delivered != 8 {
		t.Fatalf("delivered ticks = %d, want 8", delivered)
	}

	records := opener.Last().Records()
	if len(records) != 5 {
		t.Fatalf("records = %d, want 5: %q", len(records), records)
	}
	for i, rec := range records {
		v, _ := stream.At(i)
		if want := string(FormatRecord(nil, v, 4, "\n")); rec != want {
			t.Fatalf("record %d = %q, want %q", i, rec, want)
		}
	}

	status := tx.Status()
	if status.State != model.TransmitterRunning || status.Cursor != 5 || status.Length != 5 || status.Sent != 5 {
		t.Fatalf("Status() = %+v", status)
	}
	if !stream.Exhausted() {
		t.Fatalf("stream not exhausted")
	}
}

func TestTransmitterNoWritesAfterStop(t *testing.T) {
	opener := &fakeOpener{}
	sched := newManual()
	tx := NewTransmitter(opener.Open, sched)

	if err := tx.Start(context.Background(), scenarioStream(t)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sched.Fire(2)
	if err := tx.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	sched.Fire(3)

	link := opener.Last()
	if got := len(link.Records()); got != 2 {
		t.Fatalf("records after stop = %d, want 2", got)
	}
	if !link.Closed() {
		t.Fatalf("transport not closed on Stop")
	}
	if tx.State() != model.TransmitterIdle {
		t.Fatalf("State() = %v, want IDLE", tx.State())
	}
	if sched.Running() {
		t.Fatalf("scheduler still running after Stop")
	}

	// Direct ticks while Idle are no-ops too.
	tx.OnTick(time.Now())
	if got := len(link.Records()); got != 2 {
		t.Fatalf("records after idle tick = %d, want 2", got)
	}
}

func TestTransmitterStartRejectsEmptyStream(t *testing.T) {
	opener := &fakeOpener{}
	sched := newManual()
	tx := NewTransmitter(opener.Open, sched)

	for _, stream := range []*core.SampleStream{nil, core.NewSampleStream(nil)} {
		err := tx.Start(context.Background(), stream)
		if !errors.Is(err, core.ErrInvalidConfig) || !errors.Is(err, ErrEmptyStream) {
			t.Fatalf("Start(empty) = %v, want ErrEmptyStream", err)
		}
	}
	if opener.Opened() != 0 || sched.Starts() != 0 {
		t.Fatalf("empty stream opened transport or started scheduler")
	}
	if tx.State() != model.TransmitterIdle {
		t.Fatalf("State() = %v, want IDLE", tx.State())
	}
}

func TestTransmitterOpenFailureStaysIdle(t *testing.T) {
	opener := &fakeOpener{err: errors.New("port busy")}
	sched := newManual()
	tx := NewTransmitter(opener.Open, sched)

	err := tx.Start(context.Background(), scenarioStream(t))
	if !errors.Is(err, transport.ErrOpen) {
		t.Fatalf("Start = %v, want transport.ErrOpen", err)
	}
	if tx.State() != model.TransmitterIdle {
		t.Fatalf("State() = %v, want IDLE", tx.State())
	}
	if sched.Starts() != 0 {
		t.Fatalf("scheduler started despite open failure")
	}

	// Stop on Idle is a no-op.
	if err := tx.Stop(context.Background()); err != nil {
		t.Fatalf("Stop on idle: %v", err)
	}
}

func TestTransmitterStartWhileRunning(t *testing.T) {
	opener := &fakeOpener{}
	tx := NewTransmitter(opener.Open, newManual())
	stream := scenarioStream(t)

	if err := tx.Start(context.Background(), stream); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tx.Start(context.Background(), stream); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start = %v, want ErrAlreadyRunning", err)
	}
	if opener.Opened() != 1 {
		t.Fatalf("opened = %d, want 1", opener.Opened())
	}
}

func TestTransmitterWriteFailureStillAdvances(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewStreamCollector(reg)
	if err != nil {
		t.Fatalf("NewStreamCollector: %v", err)
	}
	opener := &fakeOpener{writeErr: transport.ErrWriteTimeout}
	sched := newManual()
	tx := NewTransmitter(opener.Open, sched, WithMetrics(metrics))

	if err := tx.Start(context.Background(), scenarioStream(t)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sched.Fire(3)

	status := tx.Status()
	if status.Cursor != 3 || status.Sent != 0 {
		t.Fatalf("Status() = %+v, want cursor 3 sent 0", status)
	}
	if got := testutil.ToFloat64(metrics.WriteFailures.WithLabelValues(observability.WriteFailureTimeout)); got != 3 {
		t.Fatalf("timeout failures = %v, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.TransmitterCursor); got != 3 {
		t.Fatalf("cursor gauge = %v, want 3", got)
	}
}

func TestTransmitterStopWhenExhaustedAndRestart(t *testing.T) {
	opener := &fakeOpener{}
	sched := newManual()
	opts := DefaultOptions()
	opts.StopWhenExhausted = true
	tx := NewTransmitter(opener.Open, sched, WithOptions(opts))
	stream := core.NewSampleStream(model.IntensitySeries{0.25, 0.75})

	if err := tx.Start(context.Background(), stream); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sched.Fire(3)
	if got := tx.State(); got != model.TransmitterStopped {
		t.Fatalf("State() = %v, want STOPPED", got)
	}
	first := opener.Last()

	// Restart from Stopped rewinds the stream on a fresh transport.
	if err := tx.Start(context.Background(), stream); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !first.Closed() {
		t.Fatalf("first transport not released on exhaustion")
	}
	if sched.Starts() != 2 {
		t.Fatalf("scheduler starts = %d, want 2", sched.Starts())
	}
	sched.Fire(1)
	if got := opener.Last().Records(); len(got) != 1 || got[0] != "0.2500\n" {
		t.Fatalf("restart records = %q", got)
	}

	if err := tx.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := first.Records(); len(got) != 2 || got[1] != "0.7500\n" {
		t.Fatalf("first run records = %q", got)
	}
}

func TestTransmitterDoneAfterLastSample(t *testing.T) {
	opener := &fakeOpener{}
	sched := newManual()
	opts := DefaultOptions()
	opts.StopWhenExhausted = true
	tx := NewTransmitter(opener.Open, sched, WithOptions(opts))

	select {
	case <-tx.Done():
	default:
		t.Fatalf("Done() open before any run")
	}

	if err := tx.Start(context.Background(), core.NewSampleStream(model.IntensitySeries{0.5})); err != nil {
		t.Fatalf("Start: %v", err)
	}
	done := tx.Done()
	sched.Fire(1)
	select {
	case <-done:
		t.Fatalf("Done() closed before the stream ran out")
	default:
	}

	sched.Fire(1)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Done() not closed after exhaustion")
	}
	if !opener.Last().Closed() {
		t.Fatalf("transport still open when Done() closed")
	}

	// Stop after the halt must not close done twice.
	if err := tx.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestTransmitterDoneOnStop(t *testing.T) {
	opener := &fakeOpener{}
	tx := NewTransmitter(opener.Open, newManual())

	if err := tx.Start(context.Background(), scenarioStream(t)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	done := tx.Done()
	if err := tx.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-done:
	default:
		t.Fatalf("Done() open after Stop")
	}

	// A new run gets a fresh channel.
	if err := tx.Start(context.Background(), scenarioStream(t)); err != nil {
		t.Fatalf("restart: %v", err)
	}
	select {
	case <-tx.Done():
		t.Fatalf("Done() closed for a running transmission")
	default:
	}
	if err := tx.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestTransmitterWithPeriodicTask(t *testing.T) {
	opener := &fakeOpener{}
	task := timectrl.NewPeriodicTask(time.Millisecond)
	tx := NewTransmitter(opener.Open, task)

	if err := tx.Start(context.Background(), scenarioStream(t)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(opener.Last().Records()) < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d records before deadline", len(opener.Last().Records()))
		}
		time.Sleep(2 * time.Millisecond)
	}
	if err := tx.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := len(opener.Last().Records()); got != 5 {
		t.Fatalf("records = %d, want 5", got)
	}
	if task.Running() {
		t.Fatalf("periodic task still running")
	}
}

func TestFormatRecord(t *testing.T) {
	cases := []struct {
		value     float64
		precision int
		term      string
		want      string
	}{
		{0.5, 4, "\n", "0.5000\n"},
		{1, 4, "\n", "1.0000\n"},
		{0.12345678, 6, "\n", "0.123457\n"},
		{0.25, 4, "\r\n", "0.2500\r\n"},
	}
	for _, tc := range cases {
		if got := string(FormatRecord(nil, tc.value, tc.precision, tc.term)); got != tc.want {
			t.Fatalf("FormatRecord(%v, %d) = %q, want %q", tc.value, tc.precision, got, tc.want)
		}
	}
}
