// Package onset finds the start times and strengths of percussive events
// using half-wave-rectified spectral flux.
package onset

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-dsp/dsp/window"
	"github.com/cwbudde/algo-vecmath"

	"github.com/james-see/drum2midi/pkg/audio"
)

const (
	// WindowSize is the STFT analysis window length in samples.
	WindowSize = 2048
	// DefaultHop is the default STFT hop in samples (75% overlap).
	DefaultHop = 512
)

// ErrInvalidInput is returned when a signal cannot be analysed, most often
// because it is shorter than one analysis window.
var ErrInvalidInput = errors.New("invalid input")

// Spectrogram is a magnitude-only short-time spectrum.
type Spectrogram struct {
	Frames     [][]float64 // Frames[t][k] = |X_t(k)|, k in [0, WindowSize/2]
	Times      []float64   // centre of each frame in seconds
	Hop        int
	SampleRate int
}

// Envelope is an onset-strength curve normalised to a maximum of 1.
// Times are strictly increasing.
type Envelope struct {
	Times        []float64
	Strength     []float64
	FrameSpacing float64 // seconds between consecutive frames
}

// Len returns the number of frames.
func (e Envelope) Len() int { return len(e.Strength) }

// ComputeSpectrogram computes Hann-windowed magnitude spectra of sig.
func ComputeSpectrogram(sig audio.Signal, hop int) (Spectrogram, error) {
	if hop <= 0 {
		return Spectrogram{}, fmt.Errorf("%w: hop must be positive, got %d", ErrInvalidInput, hop)
	}
	if sig.SampleRate <= 0 {
		return Spectrogram{}, fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidInput, sig.SampleRate)
	}
	if sig.Len() < WindowSize {
		return Spectrogram{}, fmt.Errorf("%w: signal has %d samples, need at least %d",
			ErrInvalidInput, sig.Len(), WindowSize)
	}

	plan, err := algofft.NewPlan64(WindowSize)
	if err != nil {
		return Spectrogram{}, fmt.Errorf("failed to create FFT plan: %w", err)
	}

	hann, err := window.Hann(WindowSize, window.WithPeriodic())
	if err != nil {
		return Spectrogram{}, fmt.Errorf("failed to create analysis window: %w", err)
	}
	samples := sig.Float64()
	numFrames := 1 + (len(samples)-WindowSize)/hop
	bins := WindowSize/2 + 1

	spec := Spectrogram{
		Frames:     make([][]float64, numFrames),
		Times:      make([]float64, numFrames),
		Hop:        hop,
		SampleRate: sig.SampleRate,
	}

	frame := make([]float64, WindowSize)
	in := make([]complex128, WindowSize)
	out := make([]complex128, WindowSize)
	re := make([]float64, bins)
	im := make([]float64, bins)

	for t := 0; t < numFrames; t++ {
		start := t * hop
		seg := samples[start : start+WindowSize]

		// constant detrend before windowing
		var mean float64
		for _, v := range seg {
			mean += v
		}
		mean /= WindowSize
		for i, v := range seg {
			frame[i] = v - mean
		}
		vecmath.MulBlockInPlace(frame, hann)

		for i, v := range frame {
			in[i] = complex(v, 0)
		}
		if err := plan.Forward(out, in); err != nil {
			return Spectrogram{}, fmt.Errorf("FFT failed at frame %d: %w", t, err)
		}
		for k := 0; k < bins; k++ {
			re[k] = real(out[k])
			im[k] = imag(out[k])
		}
		mags := make([]float64, bins)
		vecmath.Magnitude(mags, re, im)

		spec.Frames[t] = mags
		spec.Times[t] = float64(start+WindowSize/2) / float64(sig.SampleRate)
	}

	return spec, nil
}

// ComputeEnvelope returns the spectral-flux onset envelope of sig.
//
// Each value is the sum over bins of max(0, |X_t| - |X_t-1|). The first
// spectrogram frame has no predecessor, so the envelope starts at the
// second frame's time. An all-silent signal yields an all-zero envelope.
func ComputeEnvelope(sig audio.Signal, hop int) (Envelope, error) {
	spec, err := ComputeSpectrogram(sig, hop)
	if err != nil {
		return Envelope{}, err
	}
	return FluxEnvelope(spec), nil
}

// FluxEnvelope derives the normalised onset envelope from a spectrogram.
func FluxEnvelope(spec Spectrogram) Envelope {
	env := Envelope{FrameSpacing: float64(spec.Hop) / float64(spec.SampleRate)}
	if len(spec.Frames) < 2 {
		return env
	}

	n := len(spec.Frames) - 1
	env.Times = make([]float64, n)
	env.Strength = make([]float64, n)

	var peak float64
	for t := 1; t < len(spec.Frames); t++ {
		prev, cur := spec.Frames[t-1], spec.Frames[t]
		var flux float64
		for k := range cur {
			if d := cur[k] - prev[k]; d > 0 {
				flux += d
			}
		}
		env.Times[t-1] = spec.Times[t]
		env.Strength[t-1] = flux
		peak = math.Max(peak, flux)
	}

	if peak > 0 {
		for i := range env.Strength {
			env.Strength[i] /= peak
		}
	}
	return env
}
