package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/interferometer-simulator/model"
)

// Interfere sums cos(phase_j - phase_k) over every ordered pair of paths,
// self-pairs included, and normalises by pathCount². Self-pairs contribute
// exactly 1 each, so the baseline of the result is 1/pathCount.
func Interfere(phases []model.PathNoise) (model.IntensitySeries, error) {
	n, samples, err := checkPhases(phases)
	if err != nil {
		return nil, err
	}

	norm := float64(n * n)
	out := make(model.IntensitySeries, samples)
	for t := 0; t < samples; t++ {
		var sum float64
		for j := 0; j < n; j++ {
			pj := phases[j][t]
			for k := 0; k < n; k++ {
				sum += math.Cos(pj - phases[k][t])
			}
		}
		out[t] = sum / norm
	}
	return out, nil
}

// InterfereLegacy is the legacy combination: every path gets a starting
// phase uniform in [-π, π), and every ordered pair, self-pairs included,
// gets a fresh shift uniform in [-0.1, 0.1) per sample. The result stays in
// [-1, 1] but no longer has an exact 1/N baseline.
func InterfereLegacy(phases []model.PathNoise, rng RandomSource) (model.IntensitySeries, error) {
	n, samples, err := checkPhases(phases)
	if err != nil {
		return nil, err
	}

	offsets := make([]float64, n)
	for i := range offsets {
		offsets[i] = (rng.Float64()*2 - 1) * math.Pi
	}

	norm := float64(n * n)
	out := make(model.IntensitySeries, samples)
	for t := 0; t < samples; t++ {
		var sum float64
		for j := 0; j < n; j++ {
			pj := offsets[j] + phases[j][t]
			for k := 0; k < n; k++ {
				shift := (rng.Float64()*2 - 1) * legacyPairShift
				sum += math.Cos(pj - offsets[k] - phases[k][t] + shift)
			}
		}
		out[t] = sum / norm
	}
	return out, nil
}

func checkPhases(phases []model.PathNoise) (n, samples int, err error) {
	n = len(phases)
	if n < 2 {
		return 0, 0, fmt.Errorf("%w: PathCount must be >= 2, got %d", ErrInvalidConfig, n)
	}
	samples = len(phases[0])
	for i, p := range phases {
		if len(p) != samples {
			return 0, 0, fmt.Errorf("%w: path %d has %d samples, want %d", ErrInvalidConfig, i, len(p), samples)
		}
	}
	return n, samples, nil
}

// Synthesize runs a full synthesis pass: validation, per-path phase noise and
// interference. cfg is rejected before any random draw is made.
func Synthesize(cfg model.SimulationConfig, rng RandomSource) (model.IntensitySeries, error) {
	synth, err := NewNoiseSynthesizer(cfg)
	if err != nil {
		return nil, err
	}
	return synth.Interfere(synth.Synthesize(rng), rng)
}
