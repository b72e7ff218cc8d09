package onset

import "github.com/james-see/drum2midi/pkg/audio"

// Options controls onset detection.
type Options struct {
	Hop         int
	Threshold   float64
	MinDistance float64 // seconds
}

// DefaultOptions returns the standard detection settings.
func DefaultOptions() Options {
	return Options{
		Hop:         DefaultHop,
		Threshold:   DefaultThreshold,
		MinDistance: DefaultMinDistance,
	}
}

// Detect runs envelope analysis and peak picking on sig.
func Detect(sig audio.Signal, opts Options) ([]Onset, error) {
	if opts.Hop <= 0 {
		opts.Hop = DefaultHop
	}
	env, err := ComputeEnvelope(sig, opts.Hop)
	if err != nil {
		return nil, err
	}
	return Pick(env, opts.Threshold, opts.MinDistance), nil
}

// Times extracts the onset times.
func Times(onsets []Onset) []float64 {
	out := make([]float64, len(onsets))
	for i, o := range onsets {
		out[i] = o.Time
	}
	return out
}

// WithTimes returns a copy of onsets with their times replaced.
// The strengths are kept in the original order.
func WithTimes(onsets []Onset, times []float64) []Onset {
	out := make([]Onset, len(onsets))
	for i, o := range onsets {
		out[i] = Onset{Time: times[i], Strength: o.Strength}
	}
	return out
}
