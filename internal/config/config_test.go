package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/interferometer-simulator/core"
	"github.com/signalsfoundry/interferometer-simulator/model"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Transmit.Cadence != 20*time.Millisecond {
		t.Errorf("expected cadence 20ms, got %v", cfg.Transmit.Cadence)
	}
	if cfg.Transmit.Precision != 4 || cfg.Transmit.Terminator != "\n" {
		t.Errorf("unexpected record format: %+v", cfg.Transmit)
	}
	if cfg.Transmit.WriteTimeout != 100*time.Millisecond {
		t.Errorf("expected write timeout 100ms, got %v", cfg.Transmit.WriteTimeout)
	}
	if cfg.Port.BaudRate != 115200 || cfg.Port.DataBits != 8 || cfg.Port.Parity != "none" || cfg.Port.StopBits != 1 {
		t.Errorf("expected 115200 8N1, got %+v", cfg.Port)
	}
	if cfg.Transmit.StopWhenExhausted {
		t.Error("expected StopWhenExhausted to be false by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLegacyPreset(t *testing.T) {
	cfg, err := Preset(PresetLegacy)
	if err != nil {
		t.Fatalf("Preset(legacy): %v", err)
	}
	if cfg.Simulation.PathCount != 8 || cfg.Simulation.SampleCount != 100000 {
		t.Errorf("unexpected legacy simulation: %+v", cfg.Simulation)
	}
	if len(cfg.Simulation.NoiseFrequencies) != 25 {
		t.Errorf("expected 25 legacy components, got %d", len(cfg.Simulation.NoiseFrequencies))
	}
	if cfg.Port.BaudRate != 9600 || cfg.Transmit.Precision != 6 {
		t.Errorf("unexpected legacy link: baud %d precision %d", cfg.Port.BaudRate, cfg.Transmit.Precision)
	}
	if cfg.Simulation.Mode != model.SynthesisLegacy {
		t.Errorf("legacy mode = %q, want %q", cfg.Simulation.Mode, model.SynthesisLegacy)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("legacy config invalid: %v", err)
	}

	if _, err := Preset("mystery"); err == nil {
		t.Fatal("expected error for unknown preset")
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "sim.yaml")

	configContent := `
simulation:
  path_count: 3
  sample_count: 50
  noise_frequencies: [0.5, 1.5]
seed: 7
transmit:
  cadence: 50ms
  stop_when_exhausted: true
port:
  name: /dev/ttyUSB1
  parity: even
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Simulation.PathCount != 3 || cfg.Simulation.SampleCount != 50 {
		t.Errorf("unexpected simulation: %+v", cfg.Simulation)
	}
	// Unset fields keep their defaults.
	if cfg.Simulation.Wavelength != 1.03 {
		t.Errorf("expected default wavelength 1.03, got %v", cfg.Simulation.Wavelength)
	}
	if got := cfg.Simulation.NoiseFrequencies; len(got) != 2 || got[0] != 0.5 || got[1] != 1.5 {
		t.Errorf("expected file frequencies to replace defaults, got %v", got)
	}
	if cfg.Seed != 7 {
		t.Errorf("expected seed 7, got %d", cfg.Seed)
	}
	if cfg.Transmit.Cadence != 50*time.Millisecond || !cfg.Transmit.StopWhenExhausted {
		t.Errorf("unexpected transmit section: %+v", cfg.Transmit)
	}
	if cfg.Port.Name != "/dev/ttyUSB1" || cfg.Port.Parity != "even" || cfg.Port.BaudRate != 115200 {
		t.Errorf("unexpected port section: %+v", cfg.Port)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging section: %+v", cfg.Logging)
	}

	opts := cfg.Transmit.Options()
	if !opts.StopWhenExhausted || opts.Precision != 4 {
		t.Errorf("unexpected transmitter options: %+v", opts)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("simulation: [unterminated"), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SIM_PATH_COUNT", "6")
	t.Setenv("SIM_NOISE_FREQUENCIES", "0.1, 0.2,")
	t.Setenv("SIM_SEED", "99")
	t.Setenv("SIM_CADENCE", "5ms")
	t.Setenv("SIM_PORT", "COM4")
	t.Setenv("SIM_STOP_WHEN_EXHAUSTED", "1")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("SIM_SYNTHESIS_MODE", " Legacy ")
	t.Setenv("SIM_MAX_SAMPLE_COUNT", "5000")

	cfg := Default()
	if err := ApplyEnvOverrides(cfg); err != nil {
		t.Fatalf("ApplyEnvOverrides: %v", err)
	}
	if cfg.Simulation.PathCount != 6 {
		t.Errorf("expected 6 paths, got %d", cfg.Simulation.PathCount)
	}
	if got := cfg.Simulation.NoiseFrequencies; len(got) != 2 || got[1] != 0.2 {
		t.Errorf("unexpected frequencies %v", got)
	}
	if cfg.Seed != 99 || cfg.Transmit.Cadence != 5*time.Millisecond || cfg.Port.Name != "COM4" {
		t.Errorf("unexpected overrides: seed %d cadence %v port %q", cfg.Seed, cfg.Transmit.Cadence, cfg.Port.Name)
	}
	if !cfg.Transmit.StopWhenExhausted || cfg.Logging.Level != "warn" {
		t.Errorf("unexpected overrides: %+v %+v", cfg.Transmit, cfg.Logging)
	}
	if cfg.Simulation.Mode != model.SynthesisLegacy {
		t.Errorf("mode = %q, want %q", cfg.Simulation.Mode, model.SynthesisLegacy)
	}
	if cfg.Control.MaxSampleCount != 5000 || cfg.Control.MaxPathCount != DefaultMaxPathCount {
		t.Errorf("unexpected control limits: %+v", cfg.Control)
	}
}

func TestApplyEnvOverridesReportsMalformedValues(t *testing.T) {
	t.Setenv("SIM_SAMPLE_COUNT", "many")
	t.Setenv("SIM_NOISE_FREQUENCIES", "0.1,abc")

	cfg := Default()
	err := ApplyEnvOverrides(cfg)
	if err == nil {
		t.Fatal("expected error for malformed overrides")
	}
	if !strings.Contains(err.Error(), "SIM_SAMPLE_COUNT") || !errors.Is(err, core.ErrInvalidConfig) {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Simulation.SampleCount != 3000 {
		t.Errorf("malformed value applied: %d", cfg.Simulation.SampleCount)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Config)
		wantConfig bool
	}{
		{"single path", func(c *Config) { c.Simulation.PathCount = 1 }, true},
		{"empty frequencies", func(c *Config) { c.Simulation.NoiseFrequencies = nil }, true},
		{"zero cadence", func(c *Config) { c.Transmit.Cadence = 0 }, false},
		{"precision", func(c *Config) { c.Transmit.Precision = 30 }, false},
		{"terminator", func(c *Config) { c.Transmit.Terminator = "" }, false},
		{"flow control", func(c *Config) { c.Port.FlowControl = "xonxoff" }, false},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, false},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, false},
		{"negative path limit", func(c *Config) { c.Control.MaxPathCount = -1 }, false},
		{"negative sample limit", func(c *Config) { c.Control.MaxSampleCount = -1 }, false},
		{"mode", func(c *Config) { c.Simulation.Mode = "chaotic" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if got := errors.Is(err, core.ErrInvalidConfig); got != tt.wantConfig {
				t.Fatalf("errors.Is(ErrInvalidConfig) = %v, want %v (%v)", got, tt.wantConfig, err)
			}
		})
	}
}

func TestLoadAppliesPresetFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.yaml")
	if err := os.WriteFile(path, []byte("simulation:\n  sample_count: 10\n"), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("SIM_WAVELENGTH", "0.8")

	cfg, err := Load(PresetLegacy, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Simulation.PathCount != 8 || cfg.Simulation.SampleCount != 10 || cfg.Simulation.Wavelength != 0.8 {
		t.Errorf("unexpected layering result: %+v", cfg.Simulation)
	}

	t.Setenv("SIM_PATH_COUNT", "1")
	if _, err := Load("", ""); !errors.Is(err, core.ErrInvalidConfig) {
		t.Fatalf("Load with single path = %v, want ErrInvalidConfig", err)
	}
}

func TestExampleConfigFile(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join("..", "..", "configs", "simulator.yaml"))
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("example config invalid: %v", err)
	}
	if cfg.Port.Name != "/dev/ttyUSB0" || cfg.Receive.Port.BaudRate != 9600 {
		t.Fatalf("ports = %+v / %+v", cfg.Port, cfg.Receive.Port)
	}
	if cfg.Transmit.Terminator != "\n" || cfg.Transmit.Cadence != 20*time.Millisecond {
		t.Fatalf("transmit = %+v", cfg.Transmit)
	}
	if len(cfg.Simulation.NoiseFrequencies) != 11 {
		t.Fatalf("noise frequencies = %v", cfg.Simulation.NoiseFrequencies)
	}
}

func TestTracingCarriesLinkAndMode(t *testing.T) {
	t.Setenv("SIM_TRACING_ENABLED", "")
	cfg, err := Preset(PresetLegacy)
	if err != nil {
		t.Fatalf("Preset(legacy): %v", err)
	}
	cfg.Port.Name = "/dev/ttyUSB3"

	tc := cfg.Tracing()
	if tc.Port != "/dev/ttyUSB3" || tc.BaudRate != 9600 || tc.Mode != model.SynthesisLegacy {
		t.Fatalf("Tracing() = %+v", tc)
	}
	if Default().Tracing().Mode != model.SynthesisStandard {
		t.Fatalf("default tracing mode should be standard")
	}
}
