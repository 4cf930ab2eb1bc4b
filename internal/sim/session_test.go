package sim

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/interferometer-simulator/core"
	"github.com/signalsfoundry/interferometer-simulator/internal/observability"
	"github.com/signalsfoundry/interferometer-simulator/internal/transmit"
	"github.com/signalsfoundry/interferometer-simulator/internal/transport"
	"github.com/signalsfoundry/interferometer-simulator/model"
	"github.com/signalsfoundry/interferometer-simulator/timectrl"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSuffix(b.buf.String(), "\n"), "\n")
}

func scenarioConfig() model.SimulationConfig {
	return model.SimulationConfig{
		PathCount:        2,
		SampleCount:      5,
		SamplingInterval: 1.0,
		Wavelength:       1.0,
		NoiseFrequencies: []float64{0.1},
	}
}

func newTestSession(t *testing.T, opts ...Option) (*Session, *timectrl.ManualScheduler, *lockedBuffer) {
	t.Helper()
	out := &lockedBuffer{}
	sched := timectrl.NewManualScheduler(time.Unix(0, 0), transmit.DefaultCadence)
	tx := transmit.NewTransmitter(transport.WriterOpener(out), sched)
	return NewSession(tx, opts...), sched, out
}

func TestStartBeforeGenerate(t *testing.T) {
	s, _, _ := newTestSession(t)
	if err := s.Start(context.Background()); !errors.Is(err, ErrDataNotReady) {
		t.Fatalf("Start = %v, want ErrDataNotReady", err)
	}
	if st := s.Status(); st.DataReady || st.State != model.TransmitterIdle {
		t.Fatalf("Status() = %+v", st)
	}
}

func TestGenerateRejectsInvalidConfig(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewControlCollector(reg)
	if err != nil {
		t.Fatalf("NewControlCollector: %v", err)
	}
	s, _, _ := newTestSession(t, WithMetricsRecorder(collector))

	cfg := scenarioConfig()
	cfg.PathCount = 1
	if _, err := s.Generate(context.Background(), cfg, 1); !errors.Is(err, core.ErrInvalidConfig) {
		t.Fatalf("Generate = %v, want ErrInvalidConfig", err)
	}
	if s.Status().DataReady {
		t.Fatalf("rejected config published data")
	}
	if got := testutil.ToFloat64(collector.SynthesisRuns.WithLabelValues("rejected")); got != 1 {
		t.Fatalf("synthesis_runs_total{rejected} = %v, want 1", got)
	}
}

func TestGenerateAndTransmit(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewControlCollector(reg)
	if err != nil {
		t.Fatalf("NewControlCollector: %v", err)
	}
	s, sched, out := newTestSession(t, WithMetricsRecorder(collector))
	ctx := context.Background()

	res, err := s.Generate(ctx, scenarioConfig(), 42)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := uuid.Parse(res.RunID); err != nil {
		t.Fatalf("RunID %q is not a uuid: %v", res.RunID, err)
	}
	if res.Seed != 42 || res.Summary.Count != 5 {
		t.Fatalf("Result = %+v", res)
	}
	if res.Summary.Min < -1e-9 || res.Summary.Max > 1+1e-9 {
		t.Fatalf("series out of range: %+v", res.Summary)
	}
	if got := testutil.ToFloat64(collector.SeriesSamples); got != 5 {
		t.Fatalf("series_samples = %v, want 5", got)
	}

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sched.Fire(7)

	values := s.Values()
	lines := out.Lines()
	if len(lines) != 5 {
		t.Fatalf("records = %d, want 5: %q", len(lines), lines)
	}
	for i, line := range lines {
		want := strings.TrimSuffix(string(transmit.FormatRecord(nil, values[i], 4, "\n")), "\n")
		if line != want {
			t.Fatalf("record %d = %q, want %q", i, line, want)
		}
	}

	st := s.Status()
	if st.State != model.TransmitterRunning || st.Cursor != 5 || st.Length != 5 || st.RunID != res.RunID {
		t.Fatalf("Status() = %+v", st)
	}

	if _, err := s.Generate(ctx, scenarioConfig(), 7); !errors.Is(err, ErrTransmitting) {
		t.Fatalf("Generate while running = %v, want ErrTransmitting", err)
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := s.Generate(ctx, scenarioConfig(), 7); err != nil {
		t.Fatalf("Generate after stop: %v", err)
	}
}

func TestGenerateIsDeterministicPerSeed(t *testing.T) {
	s, _, _ := newTestSession(t)
	ctx := context.Background()

	if _, err := s.Generate(ctx, scenarioConfig(), 1234); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	first := s.Values()
	if _, err := s.Generate(ctx, scenarioConfig(), 1234); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second := s.Values()

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("sample %d differs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestGenerateZeroSeedReportsSeedUsed(t *testing.T) {
	s, _, _ := newTestSession(t)
	res, err := s.Generate(context.Background(), scenarioConfig(), 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Seed == 0 {
		t.Fatalf("seed 0 was not replaced")
	}

	replay, _, _ := newTestSession(t)
	if _, err := replay.Generate(context.Background(), scenarioConfig(), res.Seed); err != nil {
		t.Fatalf("replay Generate: %v", err)
	}
	a, b := s.Values(), replay.Values()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("replay with reported seed differs at %d", i)
		}
	}
}

func TestGenerateCopiesFrequencies(t *testing.T) {
	s, _, _ := newTestSession(t)
	cfg := scenarioConfig()
	res, err := s.Generate(context.Background(), cfg, 3)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	cfg.NoiseFrequencies[0] = 99
	if res.Config.NoiseFrequencies[0] != 0.1 {
		t.Fatalf("result config aliases caller slice")
	}
}
