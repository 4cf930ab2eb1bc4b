// Package config loads simulator configuration from YAML files and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/interferometer-simulator/core"
	"github.com/signalsfoundry/interferometer-simulator/internal/logging"
	"github.com/signalsfoundry/interferometer-simulator/internal/observability"
	"github.com/signalsfoundry/interferometer-simulator/internal/transmit"
	"github.com/signalsfoundry/interferometer-simulator/internal/transport"
	"github.com/signalsfoundry/interferometer-simulator/model"
)

// Preset names accepted by Preset.
const (
	PresetDefault = "default"
	PresetLegacy  = "legacy"
)

// Config is the full simulator configuration.
type Config struct {
	// Simulation is the synthesis parameter bundle.
	Simulation model.SimulationConfig `yaml:"simulation"`

	// Seed drives the random source. Zero picks a time-based seed.
	Seed uint64 `yaml:"seed"`

	Transmit TransmitConfig       `yaml:"transmit"`
	Port     transport.PortConfig `yaml:"port"`
	Receive  ReceiveConfig        `yaml:"receive"`
	Control  ControlConfig        `yaml:"control"`
	Logging  LoggingConfig        `yaml:"logging"`
}

// TransmitConfig configures the record format and cadence.
type TransmitConfig struct {
	Cadence           time.Duration `yaml:"cadence"`
	Precision         int           `yaml:"precision"`
	Terminator        string        `yaml:"terminator"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	StopWhenExhausted bool          `yaml:"stop_when_exhausted"`
}

// Options converts the section into transmitter options.
func (c TransmitConfig) Options() transmit.Options {
	return transmit.Options{
		Precision:         c.Precision,
		Terminator:        c.Terminator,
		WriteTimeout:      c.WriteTimeout,
		StopWhenExhausted: c.StopWhenExhausted,
	}
}

// ReceiveConfig configures the record receiver.
type ReceiveConfig struct {
	Port        transport.PortConfig `yaml:"port"`
	ReadTimeout time.Duration        `yaml:"read_timeout"`
}

// Upper bounds applied to remote Generate requests unless configured.
const (
	DefaultMaxPathCount   = 64
	DefaultMaxSampleCount = 1_000_000
)

// ControlConfig configures the gRPC control server.
type ControlConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	// MaxPathCount and MaxSampleCount cap remote Generate requests.
	// Zero disables the cap.
	MaxPathCount   int `yaml:"max_path_count"`
	MaxSampleCount int `yaml:"max_sample_count"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the interactive defaults: four paths, 3000 samples,
// 20ms cadence, 4 fractional digits, 115200 8N1.
func Default() *Config {
	opts := transmit.DefaultOptions()
	receivePort := transport.DefaultPortConfig("")
	receivePort.BaudRate = 9600
	return &Config{
		Simulation: core.DefaultConfig(),
		Transmit: TransmitConfig{
			Cadence:      transmit.DefaultCadence,
			Precision:    opts.Precision,
			Terminator:   opts.Terminator,
			WriteTimeout: opts.WriteTimeout,
		},
		Port: transport.DefaultPortConfig(""),
		Receive: ReceiveConfig{
			Port:        receivePort,
			ReadTimeout: 200 * time.Millisecond,
		},
		Control: ControlConfig{
			ListenAddr:     ":50061",
			MetricsAddr:    ":9091",
			MaxPathCount:   DefaultMaxPathCount,
			MaxSampleCount: DefaultMaxSampleCount,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Preset returns a named configuration. The legacy preset reproduces the
// fixed-table sender: its synthesis formulation, 25 components, eight paths,
// 100000 samples, 9600 baud and six fractional digits.
func Preset(name string) (*Config, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PresetDefault:
		return Default(), nil
	case PresetLegacy:
		cfg := Default()
		cfg.Simulation = core.LegacyConfig()
		cfg.Transmit.Precision = 6
		cfg.Port.BaudRate = 9600
		return cfg, nil
	default:
		return nil, fmt.Errorf("unknown preset %q (valid: %s, %s)", name, PresetDefault, PresetLegacy)
	}
}

// Load builds a configuration from preset, then the YAML file at path (if
// not empty), then environment overrides, and validates the result.
func Load(preset, path string) (*Config, error) {
	cfg, err := Preset(preset)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.MergeFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MergeFile overlays the YAML file at path onto c. Lists in the file replace
// lists in c.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// ApplyEnvOverrides applies SIM_* and LOG_* environment variables to cfg.
// Malformed values are reported rather than ignored.
func ApplyEnvOverrides(cfg *Config) error {
	var errs []error
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setInt("SIM_PATH_COUNT", &cfg.Simulation.PathCount)
	setInt("SIM_SAMPLE_COUNT", &cfg.Simulation.SampleCount)
	setFloat("SIM_SAMPLING_INTERVAL", &cfg.Simulation.SamplingInterval)
	setFloat("SIM_WAVELENGTH", &cfg.Simulation.Wavelength)
	if v := os.Getenv("SIM_SYNTHESIS_MODE"); v != "" {
		cfg.Simulation.Mode = model.SynthesisMode(strings.ToLower(strings.TrimSpace(v)))
	}
	if v := os.Getenv("SIM_NOISE_FREQUENCIES"); v != "" {
		freqs, err := core.ParseNoiseFrequencies(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SIM_NOISE_FREQUENCIES: %w", err))
		} else {
			cfg.Simulation.NoiseFrequencies = freqs
		}
	}
	if v := os.Getenv("SIM_SEED"); v != "" {
		seed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("SIM_SEED: %w", err))
		} else {
			cfg.Seed = seed
		}
	}

	setDuration("SIM_CADENCE", &cfg.Transmit.Cadence)
	setInt("SIM_PRECISION", &cfg.Transmit.Precision)
	setDuration("SIM_WRITE_TIMEOUT", &cfg.Transmit.WriteTimeout)
	if v := os.Getenv("SIM_STOP_WHEN_EXHAUSTED"); v != "" {
		cfg.Transmit.StopWhenExhausted = v == "true" || v == "1"
	}

	setString("SIM_PORT", &cfg.Port.Name)
	setInt("SIM_BAUD_RATE", &cfg.Port.BaudRate)
	setString("SIM_RECEIVE_PORT", &cfg.Receive.Port.Name)
	setInt("SIM_RECEIVE_BAUD_RATE", &cfg.Receive.Port.BaudRate)

	setString("SIM_LISTEN_ADDR", &cfg.Control.ListenAddr)
	setString("SIM_METRICS_ADDR", &cfg.Control.MetricsAddr)
	setInt("SIM_MAX_PATH_COUNT", &cfg.Control.MaxPathCount)
	setInt("SIM_MAX_SAMPLE_COUNT", &cfg.Control.MaxSampleCount)

	setString("LOG_LEVEL", &cfg.Logging.Level)
	setString("LOG_FORMAT", &cfg.Logging.Format)

	return errors.Join(errs...)
}

// Validate checks that the configuration is usable. Simulation errors wrap
// core.ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := core.ValidateConfig(c.Simulation); err != nil {
		return err
	}

	if c.Transmit.Cadence <= 0 {
		return fmt.Errorf("transmit.cadence must be positive, got %v", c.Transmit.Cadence)
	}
	if c.Transmit.WriteTimeout < 0 {
		return fmt.Errorf("transmit.write_timeout must be non-negative, got %v", c.Transmit.WriteTimeout)
	}
	if err := core.Validator().Var(c.Transmit.Precision, "gte=0,lte=17"); err != nil {
		return fmt.Errorf("transmit.precision must be between 0 and 17, got %d", c.Transmit.Precision)
	}
	if c.Transmit.Terminator == "" {
		return fmt.Errorf("transmit.terminator must not be empty")
	}

	if _, err := c.Port.Mode(); err != nil {
		return fmt.Errorf("port: %w", err)
	}
	if _, err := c.Receive.Port.Mode(); err != nil {
		return fmt.Errorf("receive.port: %w", err)
	}
	if c.Receive.ReadTimeout < 0 {
		return fmt.Errorf("receive.read_timeout must be non-negative, got %v", c.Receive.ReadTimeout)
	}

	if c.Control.MaxPathCount < 0 || c.Control.MaxSampleCount < 0 {
		return fmt.Errorf("control limits must be non-negative, got paths %d samples %d",
			c.Control.MaxPathCount, c.Control.MaxSampleCount)
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}
	if err := core.Validator().Var(strings.ToLower(c.Logging.Format), "omitempty,oneof=json text"); err != nil {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}
	return nil
}

// Logger builds the logger described by the logging section.
func (c *Config) Logger() logging.Logger {
	return logging.New(logging.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
	})
}

// Tracing returns the environment tracing settings with this configuration's
// serial link and synthesis mode attached to the tracer resource.
func (c *Config) Tracing() observability.TracingConfig {
	tc := observability.TracingConfigFromEnv()
	tc.Port = c.Port.Name
	tc.BaudRate = c.Port.BaudRate
	tc.Mode = c.Simulation.Mode
	if tc.Mode == "" {
		tc.Mode = model.SynthesisStandard
	}
	return tc
}
