package control

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/interferometer-simulator/core"
	"github.com/signalsfoundry/interferometer-simulator/internal/sim"
	"github.com/signalsfoundry/interferometer-simulator/model"
)

// Field names of the Generate request.
const (
	FieldPathCount        = "path_count"
	FieldSampleCount      = "sample_count"
	FieldSamplingInterval = "sampling_interval"
	FieldWavelength       = "wavelength"
	FieldNoiseFrequencies = "noise_frequencies"
	FieldSeed             = "seed"
	FieldMode             = "mode"
)

// ErrInvalidRequest marks a malformed request message. It wraps
// core.ErrInvalidConfig so the status mapping treats both alike.
var ErrInvalidRequest = fmt.Errorf("%w: invalid request", core.ErrInvalidConfig)

// GenerateRequest is the client-side view of a Generate call. Zero fields are
// omitted and fall back to the server's configured defaults.
type GenerateRequest struct {
	PathCount        int
	SampleCount      int
	SamplingInterval float64
	Wavelength       float64
	NoiseFrequencies []float64
	Seed             uint64
	Mode             model.SynthesisMode
}

// ToStruct encodes the request.
func (r GenerateRequest) ToStruct() (*structpb.Struct, error) {
	fields := map[string]any{}
	if r.PathCount != 0 {
		fields[FieldPathCount] = r.PathCount
	}
	if r.SampleCount != 0 {
		fields[FieldSampleCount] = r.SampleCount
	}
	if r.SamplingInterval != 0 {
		fields[FieldSamplingInterval] = r.SamplingInterval
	}
	if r.Wavelength != 0 {
		fields[FieldWavelength] = r.Wavelength
	}
	if len(r.NoiseFrequencies) > 0 {
		list := make([]any, len(r.NoiseFrequencies))
		for i, f := range r.NoiseFrequencies {
			list[i] = f
		}
		fields[FieldNoiseFrequencies] = list
	}
	if r.Mode != "" {
		fields[FieldMode] = string(r.Mode)
	}
	if r.Seed != 0 {
		// Strings keep all 64 bits.
		fields[FieldSeed] = strconv.FormatUint(r.Seed, 10)
	}
	return structpb.NewStruct(fields)
}

// ParseGenerateRequest decodes a Generate request on top of defaults. The
// returned config is not validated yet.
func ParseGenerateRequest(in *structpb.Struct, defaults model.SimulationConfig) (model.SimulationConfig, uint64, error) {
	cfg := defaults
	cfg.NoiseFrequencies = append([]float64(nil), defaults.NoiseFrequencies...)
	var seed uint64

	for key, v := range in.GetFields() {
		var err error
		switch key {
		case FieldPathCount:
			cfg.PathCount, err = intField(key, v)
		case FieldSampleCount:
			cfg.SampleCount, err = intField(key, v)
		case FieldSamplingInterval:
			cfg.SamplingInterval, err = numberField(key, v)
		case FieldWavelength:
			cfg.Wavelength, err = numberField(key, v)
		case FieldNoiseFrequencies:
			cfg.NoiseFrequencies, err = frequenciesField(v)
		case FieldSeed:
			seed, err = seedField(v)
		case FieldMode:
			cfg.Mode, err = modeField(v)
		default:
			err = fmt.Errorf("%w: unknown field %q", ErrInvalidRequest, key)
		}
		if err != nil {
			return model.SimulationConfig{}, 0, err
		}
	}
	return cfg, seed, nil
}

func numberField(key string, v *structpb.Value) (float64, error) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidRequest, key)
	}
	return n.NumberValue, nil
}

func intField(key string, v *structpb.Value) (int, error) {
	f, err := numberField(key, v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidRequest, key, f)
	}
	return int(f), nil
}

func frequenciesField(v *structpb.Value) ([]float64, error) {
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return core.ParseNoiseFrequencies(kind.StringValue)
	case *structpb.Value_ListValue:
		values := kind.ListValue.GetValues()
		out := make([]float64, 0, len(values))
		for i, item := range values {
			f, err := numberField(fmt.Sprintf("%s[%d]", FieldNoiseFrequencies, i), item)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a list of numbers or a comma-separated string", ErrInvalidRequest, FieldNoiseFrequencies)
	}
}

func modeField(v *structpb.Value) (model.SynthesisMode, error) {
	str, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidRequest, FieldMode)
	}
	return model.SynthesisMode(str.StringValue), nil
}

func seedField(v *structpb.Value) (uint64, error) {
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		seed, err := strconv.ParseUint(kind.StringValue, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: seed %q: %v", ErrInvalidRequest, kind.StringValue, err)
		}
		return seed, nil
	case *structpb.Value_NumberValue:
		f := kind.NumberValue
		if f < 0 || f != math.Trunc(f) || f >= 1<<53 {
			return 0, fmt.Errorf("%w: seed must be a non-negative integer below 2^53, got %v", ErrInvalidRequest, f)
		}
		return uint64(f), nil
	default:
		return 0, fmt.Errorf("%w: seed must be a number or decimal string", ErrInvalidRequest)
	}
}

// GenerateReply summarises a completed synthesis.
type GenerateReply struct {
	RunID    string
	Seed     uint64
	Samples  int
	Mean     float64
	StdDev   float64
	Min      float64
	Max      float64
	Baseline float64
	Duration time.Duration
}

func generateReplyStruct(res sim.Result) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"run_id":      res.RunID,
		"seed":        strconv.FormatUint(res.Seed, 10),
		"samples":     res.Summary.Count,
		"mean":        res.Summary.Mean,
		"std_dev":     res.Summary.StdDev,
		"min":         res.Summary.Min,
		"max":         res.Summary.Max,
		"baseline":    res.Summary.Baseline,
		"duration_ms": float64(res.Duration) / float64(time.Millisecond),
	})
}

// GenerateReplyFromStruct decodes a Generate response.
func GenerateReplyFromStruct(s *structpb.Struct) (GenerateReply, error) {
	f := s.GetFields()
	seed, err := strconv.ParseUint(f["seed"].GetStringValue(), 10, 64)
	if err != nil {
		return GenerateReply{}, fmt.Errorf("decode seed: %w", err)
	}
	return GenerateReply{
		RunID:    f["run_id"].GetStringValue(),
		Seed:     seed,
		Samples:  int(f["samples"].GetNumberValue()),
		Mean:     f["mean"].GetNumberValue(),
		StdDev:   f["std_dev"].GetNumberValue(),
		Min:      f["min"].GetNumberValue(),
		Max:      f["max"].GetNumberValue(),
		Baseline: f["baseline"].GetNumberValue(),
		Duration: time.Duration(f["duration_ms"].GetNumberValue() * float64(time.Millisecond)),
	}, nil
}

// StatusReply is the transmitter and series status.
type StatusReply struct {
	State     string
	Cursor    int
	Length    int
	Sent      int
	DataReady bool
	RunID     string
	Seed      uint64
}

func statusStruct(st sim.Status) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"state":      st.State.String(),
		"cursor":     st.Cursor,
		"length":     st.Length,
		"sent":       st.Sent,
		"data_ready": st.DataReady,
		"run_id":     st.RunID,
		"seed":       strconv.FormatUint(st.Seed, 10),
	})
}

// StatusReplyFromStruct decodes a Start, Stop or Status response.
func StatusReplyFromStruct(s *structpb.Struct) (StatusReply, error) {
	f := s.GetFields()
	if _, ok := f["state"]; !ok {
		return StatusReply{}, errors.New("status reply has no state")
	}
	seed, err := strconv.ParseUint(f["seed"].GetStringValue(), 10, 64)
	if err != nil {
		return StatusReply{}, fmt.Errorf("decode seed: %w", err)
	}
	return StatusReply{
		State:     f["state"].GetStringValue(),
		Cursor:    int(f["cursor"].GetNumberValue()),
		Length:    int(f["length"].GetNumberValue()),
		Sent:      int(f["sent"].GetNumberValue()),
		DataReady: f["data_ready"].GetBoolValue(),
		RunID:     f["run_id"].GetStringValue(),
		Seed:      seed,
	}, nil
}
