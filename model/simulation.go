package model

import "time"

// SimulationConfig is the parameter bundle for one synthesis pass.
// It is created per simulation request and treated as read-only afterwards.
type SimulationConfig struct {
	PathCount        int       `json:"path_count" yaml:"path_count" validate:"gte=2"`
	SampleCount      int       `json:"sample_count" yaml:"sample_count" validate:"gt=0"`
	SamplingInterval float64   `json:"sampling_interval" yaml:"sampling_interval" validate:"gt=0,finite"`
	Wavelength       float64   `json:"wavelength" yaml:"wavelength" validate:"gt=0,finite"`
	NoiseFrequencies []float64 `json:"noise_frequencies" yaml:"noise_frequencies" validate:"required,min=1,dive,gt=0,finite"`

	// Mode selects the synthesis formulation. Empty means SynthesisStandard.
	Mode SynthesisMode `json:"mode,omitempty" yaml:"mode,omitempty" validate:"omitempty,oneof=standard legacy"`
}

// SynthesisMode selects how path noise and interference are computed.
type SynthesisMode string

const (
	// SynthesisStandard draws one amplitude factor and phase offset per
	// component and path, boosts the first two components and damps the
	// trailing window.
	SynthesisStandard SynthesisMode = "standard"
	// SynthesisLegacy is the fixed-table sender: flat exp(-f) amplitudes,
	// a fresh random phase per sample and component, a random starting
	// phase per path and a small random shift per path pair.
	SynthesisLegacy SynthesisMode = "legacy"
)

// NoiseComponent is one sinusoidal phase-noise term shared by every path.
type NoiseComponent struct {
	Frequency      float64
	AmplitudeScale float64
}

// PathNoise holds one value per sample for a single optical path. Before
// phase conversion the values are optical path noise; afterwards they are
// phases in radians.
type PathNoise []float64

// IntensitySeries is the normalised interference intensity, one value per
// sample.
type IntensitySeries []float64

// TransmitterState is the lifecycle state of a sample transmitter.
type TransmitterState int

const (
	TransmitterIdle TransmitterState = iota
	TransmitterRunning
	TransmitterStopped // halted itself after the stream was exhausted
)

// String implements fmt.Stringer.
func (s TransmitterState) String() string {
	switch s {
	case TransmitterIdle:
		return "IDLE"
	case TransmitterRunning:
		return "RUNNING"
	case TransmitterStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Sample is a decoded intensity value on the receive side.
type Sample struct {
	ReceivedAt time.Time
	Value      float64
}
