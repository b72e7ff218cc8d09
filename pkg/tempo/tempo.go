// Package tempo estimates a global tempo from an onset envelope and snaps
// onset times to the resulting beat grid.
package tempo

import (
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"github.com/james-see/drum2midi/pkg/audio"
	"github.com/james-see/drum2midi/pkg/onset"
)

const (
	// DefaultBPM is returned when the envelope is too short to analyse.
	DefaultBPM = 120.0
	MinBPM     = 60.0
	MaxBPM     = 200.0

	minFrames = 10
)

// Estimate returns the tempo in BPM whose beat period maximises the
// autocorrelation of env within [minBPM, maxBPM].
//
// No octave correction is applied, so a pattern may be reported at half
// or double its perceived tempo.
func Estimate(env onset.Envelope, minBPM, maxBPM float64) float64 {
	n := env.Len()
	if n < minFrames {
		return DefaultBPM
	}
	dt := env.FrameSpacing
	if dt <= 0 && len(env.Times) > 1 {
		dt = env.Times[1] - env.Times[0]
	}
	if dt <= 0 || minBPM <= 0 || maxBPM <= 0 {
		return DefaultBPM
	}

	ac := Autocorrelate(env.Strength)

	minLag := max(1, int(60/maxBPM/dt))
	maxLag := min(n-1, int(60/minBPM/dt))
	if minLag >= maxLag {
		return DefaultBPM
	}

	best := minLag
	for lag := minLag + 1; lag < maxLag; lag++ {
		if ac[lag] > ac[best] {
			best = lag
		}
	}
	return 60 / (float64(best) * dt)
}

// EstimateSignal computes the onset envelope of sig and estimates its
// tempo over the default BPM range.
func EstimateSignal(sig audio.Signal, hop int) (float64, error) {
	env, err := onset.ComputeEnvelope(sig, hop)
	if err != nil {
		return 0, err
	}
	return Estimate(env, MinBPM, MaxBPM), nil
}

// Autocorrelate returns the non-negative-lag autocorrelation of the
// mean-centred input. The result has the same length as x.
func Autocorrelate(x []float64) []float64 {
	n := len(x)
	if n == 0 {
		return nil
	}
	mean := stat.Mean(x, nil)

	// zero-pad to avoid circular wrap-around
	m := 2 * n
	padded := make([]float64, m)
	for i, v := range x {
		padded[i] = v - mean
	}

	fft := fourier.NewFFT(m)
	coeffs := fft.Coefficients(nil, padded)
	for i, c := range coeffs {
		re, im := real(c), imag(c)
		coeffs[i] = complex(re*re+im*im, 0)
	}
	seq := fft.Sequence(nil, coeffs)

	out := make([]float64, n)
	for i := range out {
		out[i] = seq[i] / float64(m)
	}
	return out
}
