package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/james-see/drum2midi/pkg/onset"
	"github.com/james-see/drum2midi/pkg/separation"
	"github.com/james-see/drum2midi/pkg/tempo"
)

// ErrInvalidConfig is returned by Validate and by Process for options
// that cannot be run.
var ErrInvalidConfig = errors.New("invalid config")

// RecognizedStems are the stem names the pipeline accepts.
var RecognizedStems = []string{"kick", "snare", "hihat", "toms", "crash", "ride"}

// DefaultStems are extracted when none are requested.
var DefaultStems = []string{"kick", "snare", "hihat"}

// Options configures one pipeline run.
type Options struct {
	Stems []string
	// BPM is the tempo to use; zero means estimate it from the mix.
	BPM float64
	// Quantize is the grid snap strength in [0, 1]; zero disables it.
	Quantize    float64
	Grid        int
	Threshold   float64
	MinDistance float64 // seconds
	Hop         int

	Separation separation.Config
	Models     *separation.ModelCache

	Logger   *slog.Logger
	Progress func(stage Stage, stem string)
}

// DefaultOptions returns options matching the CLI defaults.
func DefaultOptions() Options {
	return Options{
		Stems:       append([]string(nil), DefaultStems...),
		Grid:        tempo.DefaultGrid,
		Threshold:   onset.DefaultThreshold,
		MinDistance: onset.DefaultMinDistance,
		Hop:         onset.DefaultHop,
		Separation:  separation.DefaultConfig(),
	}
}

// ParseBPM accepts "auto" (returned as 0) or a positive number.
func ParseBPM(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "auto") {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: bpm must be \"auto\" or a positive number, got %q", ErrInvalidConfig, s)
	}
	return v, nil
}

// ParseStems splits a comma or space separated stem list.
func ParseStems(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.ToLower(f))
	}
	return out
}

func isRecognized(stem string) bool {
	for _, s := range RecognizedStems {
		if s == stem {
			return true
		}
	}
	return false
}

// Validate checks o and returns an error wrapping ErrInvalidConfig.
func (o Options) Validate() error {
	if len(o.Stems) == 0 {
		return fmt.Errorf("%w: at least one stem is required", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(o.Stems))
	for _, s := range o.Stems {
		if !isRecognized(s) {
			return fmt.Errorf("%w: unknown stem %q (want one of %s)", ErrInvalidConfig, s, strings.Join(RecognizedStems, ", "))
		}
		if seen[s] {
			return fmt.Errorf("%w: stem %q requested twice", ErrInvalidConfig, s)
		}
		seen[s] = true
	}
	if o.BPM < 0 || math.IsNaN(o.BPM) || math.IsInf(o.BPM, 0) {
		return fmt.Errorf("%w: bpm must be positive or zero for auto, got %v", ErrInvalidConfig, o.BPM)
	}
	if o.Quantize < 0 || o.Quantize > 1 || math.IsNaN(o.Quantize) {
		return fmt.Errorf("%w: quantize strength must be in [0, 1], got %v", ErrInvalidConfig, o.Quantize)
	}
	if o.Grid <= 0 {
		return fmt.Errorf("%w: grid division must be positive, got %d", ErrInvalidConfig, o.Grid)
	}
	if o.Threshold < 0 || o.Threshold >= 1 {
		return fmt.Errorf("%w: threshold must be in [0, 1), got %v", ErrInvalidConfig, o.Threshold)
	}
	if o.MinDistance < 0 {
		return fmt.Errorf("%w: min distance must not be negative, got %v", ErrInvalidConfig, o.MinDistance)
	}
	if o.Hop <= 0 || o.Hop > onset.WindowSize {
		return fmt.Errorf("%w: hop must be in (0, %d], got %d", ErrInvalidConfig, onset.WindowSize, o.Hop)
	}
	if _, err := o.Separation.Strategy(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
