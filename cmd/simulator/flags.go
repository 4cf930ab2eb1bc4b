package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/interferometer-simulator/core"
	"github.com/signalsfoundry/interferometer-simulator/internal/config"
	"github.com/signalsfoundry/interferometer-simulator/internal/logging"
	"github.com/signalsfoundry/interferometer-simulator/model"
)

// addSimulationFlags registers the synthesis parameter flags. Flags left
// unset keep the value from the preset, config file or environment.
func addSimulationFlags(cmd *cobra.Command) {
	cmd.Flags().Int("paths", 0, "Number of optical paths (>= 2)")
	cmd.Flags().Int("samples", 0, "Number of samples to synthesize")
	cmd.Flags().Float64("interval", 0, "Sampling interval")
	cmd.Flags().Float64("wavelength", 0, "Wavelength")
	cmd.Flags().String("frequencies", "", "Comma-separated noise frequencies")
	cmd.Flags().Uint64("seed", 0, "Random seed (0 picks a time-based seed)")
	cmd.Flags().String("mode", "", "Synthesis formulation (standard, legacy)")
}

// loadConfig layers preset, config file, environment and command flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	preset, _ := cmd.Flags().GetString("preset")
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Preset(preset)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := applySimulationFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applySimulationFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Lookup("paths") == nil {
		return nil
	}
	if flags.Changed("paths") {
		cfg.Simulation.PathCount, _ = flags.GetInt("paths")
	}
	if flags.Changed("samples") {
		cfg.Simulation.SampleCount, _ = flags.GetInt("samples")
	}
	if flags.Changed("interval") {
		cfg.Simulation.SamplingInterval, _ = flags.GetFloat64("interval")
	}
	if flags.Changed("wavelength") {
		cfg.Simulation.Wavelength, _ = flags.GetFloat64("wavelength")
	}
	if flags.Changed("frequencies") {
		raw, _ := flags.GetString("frequencies")
		freqs, err := core.ParseNoiseFrequencies(raw)
		if err != nil {
			return fmt.Errorf("--frequencies: %w", err)
		}
		cfg.Simulation.NoiseFrequencies = freqs
	}
	if flags.Changed("mode") {
		mode, _ := flags.GetString("mode")
		cfg.Simulation.Mode = model.SynthesisMode(mode)
	}
	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetUint64("seed")
	}
	return nil
}

// commandLogger writes to the command's error stream so that stdout stays
// free for records.
func commandLogger(cmd *cobra.Command, cfg *config.Config) logging.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Writer: cmd.ErrOrStderr(),
	})
}
