package audio

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/resample"
)

// Resample converts s to the target sample rate with a polyphase
// anti-aliasing filter. The filter delay is removed so output sample i
// lines up with input time i/rate. It returns a copy when the rates
// already match.
func Resample(s Signal, rate int) (Signal, error) {
	if rate <= 0 || s.SampleRate <= 0 || rate == s.SampleRate || s.Len() == 0 {
		out := s.Clone()
		if rate > 0 {
			out.SampleRate = rate
		}
		return out, nil
	}
	r, err := resample.NewForRates(float64(s.SampleRate), float64(rate))
	if err != nil {
		return Signal{}, fmt.Errorf("resample %d -> %d Hz: %w", s.SampleRate, rate, err)
	}

	up, down := r.Ratio()
	delay := float64(len(r.Prototype())-1) / 2 // in upsampled samples
	skip := int(math.Round(delay / float64(down)))
	pad := int(math.Ceil(delay/float64(up))) + 1

	in := make([]float64, s.Len()+pad)
	for i, v := range s.Samples {
		in[i] = float64(v)
	}
	y := r.Process(in)
	if skip > len(y) {
		skip = len(y)
	}

	n := int(math.Round(float64(s.Len()) * float64(rate) / float64(s.SampleRate)))
	return FitLength(FromFloat64(y[skip:], rate), n), nil
}
