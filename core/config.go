package core

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/signalsfoundry/interferometer-simulator/model"
)

// ErrInvalidConfig is returned when simulation parameters are rejected.
// Synthesis never starts with a config that fails validation.
var ErrInvalidConfig = errors.New("invalid simulation config")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with the "finite" rule registered.
// Other packages validating numeric configuration reuse it.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("finite", validateFinite)
	})
	return validate
}

func validateFinite(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Float32, reflect.Float64:
		v := fl.Field().Float()
		return !math.IsNaN(v) && !math.IsInf(v, 0)
	default:
		return true
	}
}

// ValidateConfig checks every field of cfg. The returned error wraps
// ErrInvalidConfig and names the first offending field.
func ValidateConfig(cfg model.SimulationConfig) error {
	err := Validator().Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, describeFieldError(verrs[0]))
	}
	return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("%s must be >= %s, got %v", field, fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be > %s, got %v", field, fe.Param(), fe.Value())
	case "finite":
		return fmt.Sprintf("%s must be finite, got %v", field, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "required", "min":
		return fmt.Sprintf("%s must not be empty", field)
	default:
		return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
	}
}

// ParseNoiseFrequencies parses a comma-delimited list of noise frequencies.
// Blank entries (for example a trailing comma) are skipped; any other entry
// that is not a positive finite number rejects the whole list.
func ParseNoiseFrequencies(raw string) ([]float64, error) {
	var freqs []float64
	for i, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: noise frequency[%d] %q is not a number", ErrInvalidConfig, i, tok)
		}
		if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: noise frequency[%d] must be a positive finite number, got %v", ErrInvalidConfig, i, f)
		}
		freqs = append(freqs, f)
	}
	if len(freqs) == 0 {
		return nil, fmt.Errorf("%w: noise frequency list is empty", ErrInvalidConfig)
	}
	return freqs, nil
}

// FormatNoiseFrequencies is the inverse of ParseNoiseFrequencies.
func FormatNoiseFrequencies(freqs []float64) string {
	parts := make([]string, len(freqs))
	for i, f := range freqs {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}
