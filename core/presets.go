package core

import "github.com/signalsfoundry/interferometer-simulator/model"

// LegacyNoiseFrequencies is the fixed 25-component table of the legacy
// sender profile. The 0.1..0.4 run appears twice.
var LegacyNoiseFrequencies = []float64{
	0.0005, 0.001, 0.02, 0.04, 0.06, 0.08, 0.09, 0.1, 0.2, 0.3, 0.4,
	0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0, 1.1, 1.2, 1.3, 1.4,
}

// DefaultConfig returns a small interactive-sized simulation.
func DefaultConfig() model.SimulationConfig {
	return model.SimulationConfig{
		PathCount:        4,
		SampleCount:      3000,
		SamplingInterval: 0.01,
		Wavelength:       1.03,
		NoiseFrequencies: []float64{0.0005, 0.001, 0.02, 0.04, 0.06, 0.08, 0.09, 0.1, 0.2, 0.3, 0.4},
	}
}

// LegacyConfig returns the fixed-table sender: eight channels, 100000
// samples at 1e-4 spacing, centre wavelength 1.03, synthesized with the
// legacy formulation.
func LegacyConfig() model.SimulationConfig {
	freqs := make([]float64, len(LegacyNoiseFrequencies))
	copy(freqs, LegacyNoiseFrequencies)
	return model.SimulationConfig{
		PathCount:        8,
		SampleCount:      100000,
		SamplingInterval: 1e-4,
		Wavelength:       1.03,
		NoiseFrequencies: freqs,
		Mode:             model.SynthesisLegacy,
	}
}
