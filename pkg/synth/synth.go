// Package synth renders simple synthetic drum hits and patterns. It backs
// the generate command and gives the analysis stages known ground truth.
package synth

import (
	"math"
	"math/rand"

	"github.com/james-see/drum2midi/pkg/audio"
)

// Voice names a synthetic drum sound.
type Voice string

const (
	Click Voice = "click"
	Kick  Voice = "kick"
	Snare Voice = "snare"
	HiHat Voice = "hihat"
)

// Hit places one voice at a time in seconds with a linear amplitude.
type Hit struct {
	Voice Voice
	Time  float64
	Amp   float64
}

// Render mixes hits into a mono signal of the given duration.
// The noise source is seeded so output is reproducible.
func Render(sampleRate int, duration float64, hits []Hit, seed int64) audio.Signal {
	n := int(duration * float64(sampleRate))
	buf := make([]float64, n)
	rng := rand.New(rand.NewSource(seed))
	for _, h := range hits {
		start := int(h.Time * float64(sampleRate))
		if start < 0 || start >= n {
			continue
		}
		addVoice(buf[start:], sampleRate, h, rng)
	}
	return audio.FromFloat64(buf, sampleRate)
}

func addVoice(dst []float64, sr int, h Hit, rng *rand.Rand) {
	fs := float64(sr)
	switch h.Voice {
	case Kick:
		// pitch sweep 120 Hz -> 50 Hz
		length := min(len(dst), int(0.35*fs))
		var phase float64
		for i := 0; i < length; i++ {
			t := float64(i) / fs
			f := 50 + 70*math.Exp(-t/0.04)
			phase += 2 * math.Pi * f / fs
			dst[i] += h.Amp * math.Sin(phase) * math.Exp(-t/0.08)
		}
	case Snare:
		length := min(len(dst), int(0.25*fs))
		for i := 0; i < length; i++ {
			t := float64(i) / fs
			body := 0.6*math.Sin(2*math.Pi*190*t) + 0.4*math.Sin(2*math.Pi*330*t)
			tone := 0.5 * math.Sin(2*math.Pi*900*t+rng.Float64()*0.2)
			dst[i] += h.Amp * (body + tone) * math.Exp(-t/0.06)
		}
	case HiHat:
		length := min(len(dst), int(0.12*fs))
		partials := []float64{6100, 7350, 8200, 9400, 10800, 12100}
		phases := make([]float64, len(partials))
		for k := range phases {
			phases[k] = rng.Float64() * 2 * math.Pi
		}
		for i := 0; i < length; i++ {
			t := float64(i) / fs
			var v float64
			for k, f := range partials {
				v += math.Sin(2*math.Pi*f*t + phases[k])
			}
			dst[i] += h.Amp * v / float64(len(partials)) * math.Exp(-t/0.025)
		}
	default:
		length := min(len(dst), int(0.05*fs))
		for i := 0; i < length; i++ {
			t := float64(i) / fs
			dst[i] += h.Amp * (2*rng.Float64() - 1) * math.Exp(-t/0.004)
		}
	}
}

// ClickTrain returns count evenly spaced clicks at the given tempo,
// starting at offset seconds.
func ClickTrain(bpm float64, count int, offset float64) []Hit {
	period := 60 / bpm
	hits := make([]Hit, count)
	for i := range hits {
		hits[i] = Hit{Voice: Click, Time: offset + float64(i)*period, Amp: 0.8}
	}
	return hits
}

// RockBeat returns a basic rock pattern: kick on beats 1 and 3, snare on
// 2 and 4, hihat on every eighth note.
func RockBeat(bpm float64, bars int, offset float64) []Hit {
	beat := 60 / bpm
	var hits []Hit
	for bar := 0; bar < bars; bar++ {
		base := offset + float64(bar*4)*beat
		hits = append(hits,
			Hit{Voice: Kick, Time: base, Amp: 0.9},
			Hit{Voice: Snare, Time: base + beat, Amp: 0.7},
			Hit{Voice: Kick, Time: base + 2*beat, Amp: 0.9},
			Hit{Voice: Snare, Time: base + 3*beat, Amp: 0.7},
		)
		for e := 0; e < 8; e++ {
			hits = append(hits, Hit{Voice: HiHat, Time: base + float64(e)*beat/2, Amp: 0.35})
		}
	}
	return hits
}

// Times returns the times of hits that use voice v.
func Times(hits []Hit, v Voice) []float64 {
	var out []float64
	for _, h := range hits {
		if h.Voice == v {
			out = append(out, h.Time)
		}
	}
	return out
}
