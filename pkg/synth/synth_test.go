package synth

import (
	"math"
	"testing"
)

func TestRenderDeterministic(t *testing.T) {
	hits := RockBeat(120, 1, 0.1)
	a := Render(22050, 2.5, hits, 7)
	b := Render(22050, 2.5, hits, 7)

	if a.Len() != int(2.5*22050) {
		t.Fatalf("length = %d", a.Len())
	}
	for i := range a.Samples {
		if a.Samples[i] != b.Samples[i] {
			t.Fatalf("sample %d differs between renders with the same seed", i)
		}
	}

	c := Render(22050, 2.5, hits, 8)
	same := true
	for i := range a.Samples {
		if a.Samples[i] != c.Samples[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds should change the noise")
	}
}

func TestRenderPlacesHits(t *testing.T) {
	sig := Render(8000, 1, []Hit{{Voice: Kick, Time: 0.5, Amp: 1}}, 1)
	for i := 0; i < 4000; i++ {
		if sig.Samples[i] != 0 {
			t.Fatalf("sample %d before the hit is %v", i, sig.Samples[i])
		}
	}
	var peak float64
	for _, v := range sig.Samples[4000:] {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	if peak < 0.5 {
		t.Errorf("kick peak = %v", peak)
	}

	// hits outside the buffer are dropped
	empty := Render(8000, 1, []Hit{{Voice: Snare, Time: 2, Amp: 1}, {Voice: Click, Time: -1, Amp: 1}}, 1)
	for _, v := range empty.Samples {
		if v != 0 {
			t.Fatal("out of range hits should be ignored")
		}
	}
}

func TestPatterns(t *testing.T) {
	tests := []struct {
		name  string
		hits  []Hit
		voice Voice
		want  []float64
	}{
		{"click train", ClickTrain(120, 4, 0.25), Click, []float64{0.25, 0.75, 1.25, 1.75}},
		{"rock kick", RockBeat(60, 2, 0), Kick, []float64{0, 2, 4, 6}},
		{"rock snare", RockBeat(60, 1, 0), Snare, []float64{1, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Times(tt.hits, tt.voice)
			if len(got) != len(tt.want) {
				t.Fatalf("Times() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if math.Abs(got[i]-tt.want[i]) > 1e-12 {
					t.Errorf("Times()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}

	if n := len(Times(RockBeat(100, 3, 0), HiHat)); n != 24 {
		t.Errorf("hihat count = %d, want 24", n)
	}
}
