package separation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/james-see/drum2midi/pkg/audio"
)

type bandKind int

const (
	lowpass bandKind = iota
	highpass
	bandpass
)

// Band is the frequency model of one stem.
type Band struct {
	kind      bandKind
	Low, High float64 // Hz; unused edge is zero
	Gain      float64 // makeup gain after filtering
}

var bands = map[string]Band{
	"kick":  {kind: lowpass, High: 150, Gain: 1.5},
	"snare": {kind: bandpass, Low: 150, High: 4000, Gain: 1.0},
	"hihat": {kind: highpass, Low: 5000, Gain: 2.0},
	"toms":  {kind: bandpass, Low: 80, High: 500, Gain: 1.0},
}

// BandFor reports the frequency model for a stem, if it has one.
func BandFor(stem string) (Band, bool) {
	b, ok := bands[stem]
	return b, ok
}

func (b Band) design(order int, sampleRate float64) Cascade {
	switch b.kind {
	case lowpass:
		return ButterworthLowpass(b.High, order, sampleRate)
	case highpass:
		return ButterworthHighpass(b.Low, order, sampleRate)
	default:
		return ButterworthBandpass(b.Low, b.High, order, sampleRate)
	}
}

// FilterBank separates stems with fixed Butterworth bands.
type FilterBank struct {
	Quality Quality
	Logger  *slog.Logger
}

// NewFilterBank returns a FilterBank for the given preset.
func NewFilterBank(q Quality, logger *slog.Logger) *FilterBank {
	return &FilterBank{Quality: q, Logger: logger}
}

// Separate filters sig once per requested stem. Stems without a
// frequency model are returned as an unmodified copy.
func (f *FilterBank) Separate(ctx context.Context, sig audio.Signal, stems []string) (map[string]audio.Signal, error) {
	preset := f.Quality.preset()
	out := make(map[string]audio.Signal, len(stems))
	for _, stem := range stems {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		band, ok := bands[stem]
		if !ok {
			logger(f.Logger).Info("no frequency model for stem, passing through", "stem", stem)
			out[stem] = sig.Clone()
			continue
		}
		res, err := preset.apply(band, sig)
		if err != nil {
			return nil, fmt.Errorf("failed to separate %s: %w", stem, err)
		}
		out[stem] = res
	}
	return out, nil
}

// SplitDrums is Separate for callers without a context.
func (f *FilterBank) SplitDrums(sig audio.Signal, stems []string) map[string]audio.Signal {
	out, _ := f.Separate(context.Background(), sig, stems)
	return out
}

func (p preset) apply(band Band, sig audio.Signal) (audio.Signal, error) {
	filtered := band.design(p.order, float64(sig.SampleRate)).FiltFilt(sig.Float64())
	if band.Gain != 1 {
		for i := range filtered {
			filtered[i] *= band.Gain
		}
	}
	res := audio.FromFloat64(filtered, sig.SampleRate)
	if p.gate == nil {
		return res, nil
	}
	return p.gate.Apply(res)
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
