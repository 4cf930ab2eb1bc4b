package core

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/signalsfoundry/interferometer-simulator/model"
)

const (
	// LightSpeed is the optical constant used to turn path noise into phase,
	// expressed in the same scaled units as the wavelength parameter.
	LightSpeed = 0.29979

	// NoiseBaseScale is divided across the noise components to obtain the
	// maximum per-path noise amplitude.
	NoiseBaseScale = 5.0

	// whiteNoiseFraction scales the per-sample white noise relative to the
	// maximum path noise.
	whiteNoiseFraction = 0.2

	// trailingWindow is the number of trailing components that are damped.
	trailingWindow  = 9
	trailingDamping = 0.5

	// Up-weights for the first two components; they dominate the phase
	// divergence between paths.
	primaryBoost   = 100.0
	secondaryBoost = 10.0

	// Legacy formulation: white noise is not scaled by the component
	// budget, and every path pair gets a shift in ±legacyPairShift.
	legacyWhiteNoise = 0.2
	legacyPairShift  = 0.1
)

// RandomSource yields uniform values in [0, 1). *rand.Rand from both
// math/rand and math/rand/v2 satisfy it.
type RandomSource interface {
	Float64() float64
}

// NewSource returns a seeded PCG generator. Identical seeds yield identical
// sequences.
func NewSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// TimeSeed returns a non-zero seed derived from the wall clock, for callers
// that did not ask for a specific seed.
func TimeSeed() uint64 {
	seed := uint64(time.Now().UnixNano())
	if seed == 0 {
		seed = 1
	}
	return seed
}

// MaxPathNoise is the amplitude budget shared by all components.
func MaxPathNoise(componentCount int) float64 {
	return NoiseBaseScale / float64(componentCount)
}

// NoiseComponents derives the amplitude scale of every noise frequency.
//
// The trailing-window damping only applies when there are at least
// trailingWindow components; with fewer the threshold would underflow and
// nothing is damped.
func NoiseComponents(freqs []float64) []model.NoiseComponent {
	n := len(freqs)
	if n == 0 {
		return nil
	}
	maxNoise := MaxPathNoise(n)

	comps := make([]model.NoiseComponent, n)
	for i, f := range freqs {
		scale := maxNoise * math.Exp(-f)
		if n >= trailingWindow && i > n-trailingWindow {
			scale *= trailingDamping
		}
		comps[i] = model.NoiseComponent{Frequency: f, AmplitudeScale: scale}
	}

	comps[0].AmplitudeScale = maxNoise * primaryBoost
	if n > 1 {
		comps[1].AmplitudeScale = maxNoise * secondaryBoost
	}
	return comps
}

// LegacyNoiseComponents derives the flat amplitude table of the legacy
// formulation: maxPathNoise * exp(-f) for every component.
func LegacyNoiseComponents(freqs []float64) []model.NoiseComponent {
	n := len(freqs)
	if n == 0 {
		return nil
	}
	maxNoise := MaxPathNoise(n)
	comps := make([]model.NoiseComponent, n)
	for i, f := range freqs {
		comps[i] = model.NoiseComponent{Frequency: f, AmplitudeScale: maxNoise * math.Exp(-f)}
	}
	return comps
}

// PhaseScale converts optical path noise to phase for the given wavelength.
func PhaseScale(wavelength float64) float64 {
	return 2 * math.Pi * LightSpeed / wavelength
}

// NoiseSynthesizer builds per-path phase noise for a validated config.
type NoiseSynthesizer struct {
	cfg        model.SimulationConfig
	legacy     bool
	components []model.NoiseComponent
	maxNoise   float64
	phaseScale float64
}

// NewNoiseSynthesizer validates cfg and precomputes the noise components.
func NewNoiseSynthesizer(cfg model.SimulationConfig) (*NoiseSynthesizer, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	s := &NoiseSynthesizer{
		cfg:        cfg,
		legacy:     cfg.Mode == model.SynthesisLegacy,
		maxNoise:   MaxPathNoise(len(cfg.NoiseFrequencies)),
		phaseScale: PhaseScale(cfg.Wavelength),
	}
	if s.legacy {
		s.components = LegacyNoiseComponents(cfg.NoiseFrequencies)
	} else {
		s.components = NoiseComponents(cfg.NoiseFrequencies)
	}
	return s, nil
}

// Mode reports the formulation the synthesizer runs.
func (s *NoiseSynthesizer) Mode() model.SynthesisMode {
	if s.legacy {
		return model.SynthesisLegacy
	}
	return model.SynthesisStandard
}

// Components returns a copy of the derived noise components.
func (s *NoiseSynthesizer) Components() []model.NoiseComponent {
	out := make([]model.NoiseComponent, len(s.components))
	copy(out, s.components)
	return out
}

// Path synthesizes the optical path noise of a single path, not yet
// converted to phase. Random draws are taken in a fixed order: one
// amplitude factor per component, then one phase offset per component, then
// one white-noise value per sample. In legacy mode each sample instead draws
// its white noise followed by one phase per component.
func (s *NoiseSynthesizer) Path(rng RandomSource) model.PathNoise {
	if s.legacy {
		return s.legacyPath(rng)
	}
	k := len(s.components)
	amps := make([]float64, k)
	for i := range amps {
		amps[i] = rng.Float64()
	}
	phases := make([]float64, k)
	for i := range phases {
		phases[i] = rng.Float64() * 2 * math.Pi
	}

	out := make(model.PathNoise, s.cfg.SampleCount)
	for j := range out {
		t := float64(j) * s.cfg.SamplingInterval
		v := (rng.Float64() - 0.5) * s.maxNoise * whiteNoiseFraction
		for i, c := range s.components {
			v += c.AmplitudeScale * amps[i] * math.Sin(2*math.Pi*c.Frequency*t+phases[i])
		}
		out[j] = v
	}
	return out
}

func (s *NoiseSynthesizer) legacyPath(rng RandomSource) model.PathNoise {
	out := make(model.PathNoise, s.cfg.SampleCount)
	for j := range out {
		t := float64(j) * s.cfg.SamplingInterval
		v := (rng.Float64() - 0.5) * legacyWhiteNoise
		for _, c := range s.components {
			v += c.AmplitudeScale * math.Sin(2*math.Pi*c.Frequency*t+rng.Float64()*2*math.Pi)
		}
		out[j] = v
	}
	return out
}

// PhasePath synthesizes one path and converts it to phase in place.
func (s *NoiseSynthesizer) PhasePath(rng RandomSource) model.PathNoise {
	p := s.Path(rng)
	for j := range p {
		p[j] *= s.phaseScale
	}
	return p
}

// Synthesize produces the phase series of every path. Paths are drawn
// sequentially from rng, so path 0 is identical to PhasePath on a fresh
// source with the same seed.
func (s *NoiseSynthesizer) Synthesize(rng RandomSource) []model.PathNoise {
	paths := make([]model.PathNoise, s.cfg.PathCount)
	for i := range paths {
		paths[i] = s.PhasePath(rng)
	}
	return paths
}

// Interfere combines phase series with the formulation of the synthesizer.
// Only the legacy formulation draws from rng.
func (s *NoiseSynthesizer) Interfere(phases []model.PathNoise, rng RandomSource) (model.IntensitySeries, error) {
	if s.legacy {
		return InterfereLegacy(phases, rng)
	}
	return Interfere(phases)
}
