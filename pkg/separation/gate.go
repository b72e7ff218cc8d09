package separation

import (
	"fmt"

	"github.com/cwbudde/algo-dsp/dsp/effects/dynamics"

	"github.com/james-see/drum2midi/pkg/audio"
)

// Gate settings for the post-filter noise gate. Times are in seconds.
type Gate struct {
	ThresholdDB float64 // dBFS level below which the gate closes
	Attack      float64
	Hold        float64
	Release     float64
}

// Gating curve: hard knee, steep expansion, closed gate near silence.
const (
	gateRatio   = 100
	gateRangeDB = -120
)

// Apply returns a gated copy of sig.
func (g Gate) Apply(sig audio.Signal) (audio.Signal, error) {
	if sig.Len() == 0 || sig.SampleRate <= 0 {
		return sig.Clone(), nil
	}
	gate, err := dynamics.NewGate(float64(sig.SampleRate))
	if err != nil {
		return audio.Signal{}, err
	}
	for _, set := range []struct {
		name string
		fn   func(float64) error
		v    float64
	}{
		{"threshold", gate.SetThreshold, g.ThresholdDB},
		{"ratio", gate.SetRatio, gateRatio},
		{"knee", gate.SetKnee, 0},
		{"range", gate.SetRange, gateRangeDB},
		{"attack", gate.SetAttack, max(g.Attack*1000, 0.1)},
		{"hold", gate.SetHold, max(g.Hold*1000, 0)},
		{"release", gate.SetRelease, max(g.Release*1000, 1)},
	} {
		if err := set.fn(set.v); err != nil {
			return audio.Signal{}, fmt.Errorf("gate %s: %w", set.name, err)
		}
	}

	buf := sig.Float64()
	gate.ProcessInPlace(buf)
	return audio.FromFloat64(buf, sig.SampleRate), nil
}
