// Package analysis measures how well a set of stems separates a mix.
package analysis

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/james-see/drum2midi/pkg/audio"
)

// Band edges in Hz.
const (
	LowMidEdge  = 200.0
	MidHighEdge = 2000.0
)

// BandEnergy is the share of spectral energy below 200 Hz, between
// 200 and 2000 Hz, and at or above 2000 Hz. The shares sum to 1 for a
// non-silent signal and are all zero otherwise.
type BandEnergy struct {
	Low  float64 `json:"low"`
	Mid  float64 `json:"mid"`
	High float64 `json:"high"`
}

// spectrum returns bin magnitudes and their frequencies.
func spectrum(sig audio.Signal) (mags, freqs []float64) {
	n := sig.Len()
	if n == 0 {
		return nil, nil
	}
	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, sig.Float64())
	mags = make([]float64, len(coeffs))
	freqs = make([]float64, len(coeffs))
	for i, c := range coeffs {
		mags[i] = math.Hypot(real(c), imag(c))
		freqs[i] = fft.Freq(i) * float64(sig.SampleRate)
	}
	return mags, freqs
}

// Bands computes the band energy shares of sig.
func Bands(sig audio.Signal) BandEnergy {
	mags, freqs := spectrum(sig)
	var b BandEnergy
	var total float64
	for i, m := range mags {
		e := m * m
		total += e
		switch f := freqs[i]; {
		case f < LowMidEdge:
			b.Low += e
		case f < MidHighEdge:
			b.Mid += e
		default:
			b.High += e
		}
	}
	if total == 0 {
		return BandEnergy{}
	}
	b.Low /= total
	b.Mid /= total
	b.High /= total
	return b
}

// SpectralCentroid returns the magnitude-weighted mean frequency in Hz.
func SpectralCentroid(sig audio.Signal) float64 {
	mags, freqs := spectrum(sig)
	sum := floats.Sum(mags)
	if sum == 0 {
		return 0
	}
	return floats.Dot(mags, freqs) / sum
}

// Correlation returns the Pearson correlation of a and b over their
// common length, or 0 when either is constant.
func Correlation(a, b audio.Signal) float64 {
	n := min(a.Len(), b.Len())
	if n < 2 {
		return 0
	}
	x, y := a.Float64()[:n], b.Float64()[:n]
	if stat.Variance(x, nil) == 0 || stat.Variance(y, nil) == 0 {
		return 0
	}
	return stat.Correlation(x, y, nil)
}
