package tempo

import (
	"math"

	"github.com/james-see/drum2midi/pkg/onset"
)

// DefaultGrid is the default grid division (sixteenth notes).
const DefaultGrid = 16

// GridSpacing returns the grid step in seconds for a tempo and division,
// where division 4 is one step per beat.
func GridSpacing(bpm float64, division int) float64 {
	return (60 / bpm) / (float64(division) / 4)
}

// Quantize moves each time toward its nearest grid line by strength in
// [0, 1]. Strength 0 returns the input values unchanged and 1 snaps
// exactly. Order is not preserved for onsets closer than half a step.
func Quantize(times []float64, bpm float64, division int, strength float64) []float64 {
	out := make([]float64, len(times))
	copy(out, times)
	if strength == 0 || bpm <= 0 || division <= 0 {
		return out
	}
	grid := GridSpacing(bpm, division)
	for i, t := range times {
		nearest := math.RoundToEven(t/grid) * grid
		if strength == 1 {
			out[i] = nearest
			continue
		}
		out[i] = t + strength*(nearest-t)
	}
	return out
}

// QuantizeOnsets applies Quantize to onset times and keeps strengths.
func QuantizeOnsets(onsets []onset.Onset, bpm float64, division int, strength float64) []onset.Onset {
	return onset.WithTimes(onsets, Quantize(onset.Times(onsets), bpm, division, strength))
}
