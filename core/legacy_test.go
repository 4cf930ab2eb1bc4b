package core

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/signalsfoundry/interferometer-simulator/model"
)

// scriptedSource replays values in order, wrapping around.
type scriptedSource struct {
	values []float64
	calls  int
}

func (s *scriptedSource) Float64() float64 {
	v := s.values[s.calls%len(s.values)]
	s.calls++
	return v
}

func TestLegacyPresetUsesFlatAmplitudes(t *testing.T) {
	cfg := LegacyConfig()
	if cfg.Mode != model.SynthesisLegacy {
		t.Fatalf("LegacyConfig().Mode = %q, want legacy", cfg.Mode)
	}
	synth, err := NewNoiseSynthesizer(cfg)
	if err != nil {
		t.Fatalf("NewNoiseSynthesizer: %v", err)
	}
	if synth.Mode() != model.SynthesisLegacy {
		t.Fatalf("Mode() = %q, want legacy", synth.Mode())
	}

	comps := synth.Components()
	if len(comps) != 25 {
		t.Fatalf("components = %d, want 25", len(comps))
	}
	// No head boosts, no trailing damping: 5/25 * exp(-f) throughout.
	for i, c := range comps {
		want := 0.2 * math.Exp(-LegacyNoiseFrequencies[i])
		if !almostEqual(c.AmplitudeScale, want) {
			t.Fatalf("scale[%d] = %v, want %v", i, c.AmplitudeScale, want)
		}
	}
	if !almostEqual(comps[0].AmplitudeScale, 0.2*math.Exp(-0.0005)) {
		t.Fatalf("scale[0] = %v, want ~0.1999", comps[0].AmplitudeScale)
	}
}

func TestLegacyPathDrawsPhasePerSample(t *testing.T) {
	cfg := validConfig()
	cfg.SampleCount = 2
	cfg.NoiseFrequencies = []float64{0.25}
	cfg.Mode = model.SynthesisLegacy
	synth, err := NewNoiseSynthesizer(cfg)
	if err != nil {
		t.Fatalf("NewNoiseSynthesizer: %v", err)
	}

	rng := &scriptedSource{values: []float64{0.75, 0.5, 0.25, 0}}
	path := synth.Path(rng)
	if rng.calls != 4 {
		t.Fatalf("random draws = %d, want 4 (white noise + one phase per sample)", rng.calls)
	}

	amp := 5.0 * math.Exp(-0.25)
	// Sample 0: white (0.75-0.5)*0.2, phase 0.5*2π, t=0.
	want0 := 0.25*0.2 + amp*math.Sin(0.5*2*math.Pi)
	// Sample 1: white (0.25-0.5)*0.2, phase 0, t=1.
	want1 := -0.25*0.2 + amp*math.Sin(2*math.Pi*0.25)
	if !almostEqual(path[0], want0) || !almostEqual(path[1], want1) {
		t.Fatalf("path = %v, want [%v %v]", path, want0, want1)
	}
}

func TestInterfereLegacyWithoutOffsetsMatchesStandard(t *testing.T) {
	phases := []model.PathNoise{
		{0, 0, 0.4},
		{0, math.Pi, -1.1},
		{2, 0.3, 0.9},
	}
	// 0.5 maps to a zero starting phase and a zero pair shift.
	rng := &scriptedSource{values: []float64{0.5}}
	got, err := InterfereLegacy(phases, rng)
	if err != nil {
		t.Fatalf("InterfereLegacy: %v", err)
	}
	want, err := Interfere(phases)
	if err != nil {
		t.Fatalf("Interfere: %v", err)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("I[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	// One starting phase per path, one shift per ordered pair and sample.
	if want := 3 + 3*3*3; rng.calls != want {
		t.Fatalf("random draws = %d, want %d", rng.calls, want)
	}

	if _, err := InterfereLegacy(phases[:1], rng); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("InterfereLegacy(1 path) error = %v, want ErrInvalidConfig", err)
	}
}

func TestInterfereLegacyAppliesPairShift(t *testing.T) {
	phases := []model.PathNoise{{0}, {0}}
	// Starting phases 0, then every pair shift at the +0.1 edge.
	rng := &scriptedSource{values: []float64{0.5, 0.5, 1, 1, 1, 1}}
	got, err := InterfereLegacy(phases, rng)
	if err != nil {
		t.Fatalf("InterfereLegacy: %v", err)
	}
	if want := math.Cos(0.1); math.Abs(got[0]-want) > 1e-12 {
		t.Fatalf("I = %v, want cos(0.1) = %v", got[0], want)
	}
}

func TestSynthesizeLegacyBoundedAndDeterministic(t *testing.T) {
	cfg := LegacyConfig()
	cfg.SampleCount = 200

	a, err := Synthesize(cfg, NewSource(5))
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	b, err := Synthesize(cfg, NewSource(5))
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("I[%d] differs for identical seeds: %v vs %v", i, a[i], b[i])
		}
		if a[i] < -1 || a[i] > 1 {
			t.Fatalf("I[%d] = %v, want within [-1, 1]", i, a[i])
		}
	}

	cfg.Mode = model.SynthesisStandard
	standard, err := Synthesize(cfg, NewSource(5))
	if err != nil {
		t.Fatalf("Synthesize(standard): %v", err)
	}
	if equalPaths(model.PathNoise(a), model.PathNoise(standard)) {
		t.Fatalf("legacy and standard formulations produced the same series")
	}
}

func TestValidateConfigRejectsUnknownMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "quantum"
	err := ValidateConfig(cfg)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("ValidateConfig(mode=quantum) = %v, want ErrInvalidConfig", err)
	}
	if !strings.Contains(err.Error(), "Mode") {
		t.Fatalf("error %q does not name the field", err)
	}
}
