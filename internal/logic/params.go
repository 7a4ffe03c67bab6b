package logic

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Default detector settings.
const (
	DefaultPrimaryThreshold = 30.0
	DefaultMinEventSec      = 1200.0
	DefaultFallRate         = 1.0 / 500
	DefaultRiseRate         = 2.0
	DefaultMinBreakSec      = 1800.0

	// LookbackMinutes is the span of the rate-of-change feature.
	LookbackMinutes = 5.0
	// RateQuantile is the rolling quantile used to judge the recent trend.
	RateQuantile = 0.8
	// MaxRateWindow caps the rolling quantile window in samples.
	MaxRateWindow = 100
)

// Parameter keys accepted by ParseParams.
const (
	KeyPrimaryThreshold  = "primary_threshold"
	KeyMinEventSec       = "min_event_sec"
	KeyFallRate          = "fall_rate"
	KeyRiseRate          = "rise_rate"
	KeyMinBreakSec       = "min_break_sec"
	KeyCorrection        = "correction"
	KeyMinEventTemp      = "min_event_temp"
	KeyMinEventTempDelta = "min_event_temp_delta"
)

// Errors returned by the detector.
var (
	ErrInvalidParam  = errors.New("invalid parameter")
	ErrTooFewSamples = errors.New("fewer than 2 samples")
	ErrZeroInterval  = errors.New("sampling interval must be positive")
	ErrNoReadings    = errors.New("all sample values are missing")
)

// Params configures a detector run.
// A nil MinEventTemp or MinEventTempDelta disables that filter.
type Params struct {
	PrimaryThreshold  float64  `json:"primary_threshold"`
	MinEventSec       float64  `json:"min_event_sec"`
	FallRate          float64  `json:"fall_rate"`
	RiseRate          float64  `json:"rise_rate"`
	MinBreakSec       float64  `json:"min_break_sec"`
	Correction        bool     `json:"correction"`
	MinEventTemp      *float64 `json:"min_event_temp,omitempty"`
	MinEventTempDelta *float64 `json:"min_event_temp_delta,omitempty"`
}

// DefaultParams returns the stock detector configuration.
func DefaultParams() Params {
	return Params{
		PrimaryThreshold: DefaultPrimaryThreshold,
		MinEventSec:      DefaultMinEventSec,
		FallRate:         DefaultFallRate,
		RiseRate:         DefaultRiseRate,
		MinBreakSec:      DefaultMinBreakSec,
	}
}

type namedValue struct {
	key string
	v   float64
}

// Validate reports the first violated precondition, wrapped in ErrInvalidParam.
func (p Params) Validate() error {
	finite := []namedValue{
		{KeyPrimaryThreshold, p.PrimaryThreshold},
		{KeyMinEventSec, p.MinEventSec},
		{KeyFallRate, p.FallRate},
		{KeyRiseRate, p.RiseRate},
		{KeyMinBreakSec, p.MinBreakSec},
	}
	if p.MinEventTemp != nil {
		finite = append(finite, namedValue{KeyMinEventTemp, *p.MinEventTemp})
	}
	if p.MinEventTempDelta != nil {
		finite = append(finite, namedValue{KeyMinEventTempDelta, *p.MinEventTempDelta})
	}
	for _, f := range finite {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s must be a finite number", ErrInvalidParam, f.key)
		}
	}

	switch {
	case p.MinEventSec <= 0:
		return fmt.Errorf("%w: %s must be positive", ErrInvalidParam, KeyMinEventSec)
	case p.MinBreakSec <= 0:
		return fmt.Errorf("%w: %s must be positive", ErrInvalidParam, KeyMinBreakSec)
	case p.RiseRate <= 0:
		return fmt.Errorf("%w: %s must be positive", ErrInvalidParam, KeyRiseRate)
	case p.FallRate < 0:
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidParam, KeyFallRate)
	case p.MinEventTempDelta != nil && *p.MinEventTempDelta < 0:
		return fmt.Errorf("%w: %s must not be negative", ErrInvalidParam, KeyMinEventTempDelta)
	}
	return nil
}

// ParseParams builds Params from a loosely typed key/value map, as found in
// YAML files, JSON request bodies and query strings. Missing keys keep their
// defaults. The result is validated.
func ParseParams(raw map[string]any) (Params, error) {
	p := DefaultParams()

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := raw[k]
		var err error
		switch k {
		case KeyPrimaryThreshold:
			p.PrimaryThreshold, err = ParseNumber(v)
		case KeyMinEventSec:
			p.MinEventSec, err = ParseNumber(v)
		case KeyFallRate:
			p.FallRate, err = ParseNumber(v)
		case KeyRiseRate:
			p.RiseRate, err = ParseNumber(v)
		case KeyMinBreakSec:
			p.MinBreakSec, err = ParseNumber(v)
		case KeyCorrection:
			p.Correction, err = ParseBool(v)
		case KeyMinEventTemp:
			p.MinEventTemp, err = parseOptional(v)
		case KeyMinEventTempDelta:
			p.MinEventTempDelta, err = parseOptional(v)
		default:
			return Params{}, fmt.Errorf("%w: unknown key %q", ErrInvalidParam, k)
		}
		if err != nil {
			return Params{}, fmt.Errorf("%w: %s: %v", ErrInvalidParam, k, err)
		}
	}

	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// ParseBool accepts a native bool or a case-insensitive "true"/"false".
func ParseBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return false, fmt.Errorf("not a boolean: %q", b)
	case nil:
		return false, errors.New("missing boolean")
	}
	return false, fmt.Errorf("not a boolean: %v", v)
}

// ParseNumber accepts any Go numeric type, a decimal string, or a fraction
// such as "1/500".
func ParseNumber(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case string:
		return parseNumberString(n)
	case nil:
		return 0, errors.New("missing number")
	}
	return 0, fmt.Errorf("not a number: %v", v)
}

func parseNumberString(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if num, den, ok := strings.Cut(s, "/"); ok {
		a, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", s)
		}
		b, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", s)
		}
		if b == 0 {
			return 0, fmt.Errorf("zero denominator: %q", s)
		}
		return a / b, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return f, nil
}

// parseOptional treats nil and "" as unset.
func parseOptional(v any) (*float64, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	f, err := ParseNumber(v)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Float returns a pointer to f, for optional Params fields.
func Float(f float64) *float64 {
	return &f
}
