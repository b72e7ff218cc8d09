// Package audio provides the mono sample buffer shared by every processing
// stage, plus WAV file I/O and simple level statistics.
package audio

import (
	"errors"
	"math"
)

// Error kinds raised while loading audio.
var (
	ErrInputNotFound = errors.New("input not found")
	ErrInvalidFormat = errors.New("invalid audio format")
)

// Signal is a mono buffer of single-precision samples at a fixed sample rate.
// Processing steps never modify a Signal in place; they return a new one.
type Signal struct {
	Samples    []float32
	SampleRate int
}

// New creates a Signal that owns a copy of samples.
func New(samples []float32, sampleRate int) Signal {
	out := make([]float32, len(samples))
	copy(out, samples)
	return Signal{Samples: out, SampleRate: sampleRate}
}

// FromFloat64 converts a float64 buffer into a Signal.
func FromFloat64(samples []float64, sampleRate int) Signal {
	out := make([]float32, len(samples))
	for i, v := range samples {
		out[i] = float32(v)
	}
	return Signal{Samples: out, SampleRate: sampleRate}
}

// Len returns the number of samples.
func (s Signal) Len() int { return len(s.Samples) }

// Duration returns the signal length in seconds.
func (s Signal) Duration() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.SampleRate)
}

// Float64 returns the samples widened to float64 for DSP work.
func (s Signal) Float64() []float64 {
	out := make([]float64, len(s.Samples))
	for i, v := range s.Samples {
		out[i] = float64(v)
	}
	return out
}

// Clone returns a deep copy.
func (s Signal) Clone() Signal {
	return New(s.Samples, s.SampleRate)
}

// clampSample limits v to [-1, 1]. NaN becomes silence.
func clampSample(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	case v != v: // NaN
		return 0
	}
	return v
}

// Normalize scales the signal so its absolute peak equals targetPeak.
// Silent signals are returned unchanged.
func Normalize(s Signal, targetPeak float64) Signal {
	peak := Peak(s)
	if peak == 0 {
		return s.Clone()
	}
	gain := float32(targetPeak / peak)
	out := make([]float32, len(s.Samples))
	for i, v := range s.Samples {
		out[i] = v * gain
	}
	return Signal{Samples: out, SampleRate: s.SampleRate}
}

// Downmix collapses interleaved multi-channel samples to mono by averaging
// the channels of each frame.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(interleaved))
		copy(out, interleaved)
		return out
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(interleaved[i*channels+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// Sum adds signals sample by sample. The result has the length of the
// longest input and the sample rate of the first.
func Sum(signals ...Signal) Signal {
	if len(signals) == 0 {
		return Signal{}
	}
	n := 0
	for _, s := range signals {
		n = max(n, s.Len())
	}
	out := make([]float32, n)
	for _, s := range signals {
		for i, v := range s.Samples {
			out[i] += v
		}
	}
	return Signal{Samples: out, SampleRate: signals[0].SampleRate}
}

// FitLength returns a copy truncated or zero-padded to n samples.
func FitLength(s Signal, n int) Signal {
	out := make([]float32, n)
	copy(out, s.Samples)
	return Signal{Samples: out, SampleRate: s.SampleRate}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
