package analysis

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/james-see/drum2midi/pkg/audio"
)

const sr = 44100

func sine(freq, amp float64, n int) audio.Signal {
	buf := make([]float64, n)
	for i := range buf {
		buf[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/sr)
	}
	return audio.FromFloat64(buf, sr)
}

func TestBands(t *testing.T) {
	tests := []struct {
		name string
		freq float64
		pick func(BandEnergy) float64
	}{
		{"low", 80, func(b BandEnergy) float64 { return b.Low }},
		{"mid", 1000, func(b BandEnergy) float64 { return b.Mid }},
		{"high", 8000, func(b BandEnergy) float64 { return b.High }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Bands(sine(tt.freq, 0.5, sr))
			if got := tt.pick(b); got < 0.95 {
				t.Errorf("%s share of %.0f Hz sine = %.3f, want > 0.95 (%+v)", tt.name, tt.freq, got, b)
			}
			if sum := b.Low + b.Mid + b.High; math.Abs(sum-1) > 1e-9 {
				t.Errorf("shares sum to %v, want 1", sum)
			}
		})
	}
}

func TestBandsSilence(t *testing.T) {
	if b := Bands(audio.New(make([]float32, 1000), sr)); b != (BandEnergy{}) {
		t.Errorf("Bands(silence) = %+v, want zero", b)
	}
}

func TestSpectralCentroid(t *testing.T) {
	got := SpectralCentroid(sine(1000, 0.5, sr))
	if math.Abs(got-1000) > 50 {
		t.Errorf("SpectralCentroid(1kHz) = %.1f, want ~1000", got)
	}
	if got := SpectralCentroid(audio.New(make([]float32, 100), sr)); got != 0 {
		t.Errorf("SpectralCentroid(silence) = %v, want 0", got)
	}
}

func TestCorrelation(t *testing.T) {
	a := sine(440, 0.5, 4410)
	inverted := a.Clone()
	for i := range inverted.Samples {
		inverted.Samples[i] = -inverted.Samples[i]
	}

	if got := Correlation(a, a); math.Abs(got-1) > 1e-9 {
		t.Errorf("Correlation(a, a) = %v, want 1", got)
	}
	if got := Correlation(a, inverted); math.Abs(got+1) > 1e-9 {
		t.Errorf("Correlation(a, -a) = %v, want -1", got)
	}
	if got := Correlation(a, audio.New(make([]float32, 4410), sr)); got != 0 {
		t.Errorf("Correlation with silence = %v, want 0", got)
	}
}

func TestEvaluate(t *testing.T) {
	kick := sine(60, 0.5, sr)
	snare := sine(800, 0.3, sr)
	hihat := sine(9000, 0.2, sr)
	mix := audio.Sum(kick, snare, hihat)

	ev, err := Evaluate(mix, map[string]audio.Signal{"kick": kick, "snare": snare, "hihat": hihat})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if len(ev.Checks) != 4 {
		t.Fatalf("got %d checks, want 4", len(ev.Checks))
	}
	if !ev.Passed() {
		t.Errorf("expected all checks to pass: %+v", ev.Checks)
	}
	if ev.Reconstruction == nil || ev.Reconstruction.Correlation < 0.99 {
		t.Errorf("reconstruction = %+v, want correlation ~1", ev.Reconstruction)
	}
	if ev.Reconstruction.Clipping {
		t.Error("unexpected clipping flag")
	}
}

func TestEvaluateFailsSwappedStems(t *testing.T) {
	low := sine(60, 0.5, sr)
	high := sine(9000, 0.5, sr)
	ev, err := Evaluate(audio.Sum(low, high), map[string]audio.Signal{"kick": high, "hihat": low})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if ev.Passed() {
		t.Errorf("swapped stems should fail: %+v", ev.Checks)
	}
}

func TestLoadStemsAndWriteJSON(t *testing.T) {
	dir := t.TempDir()
	if err := audio.WriteWAV(filepath.Join(dir, "kick.wav"), sine(60, 0.5, 2048)); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	stems, err := LoadStems(dir)
	if err != nil {
		t.Fatalf("LoadStems() error = %v", err)
	}
	if _, ok := stems["kick"]; !ok || len(stems) != 1 {
		t.Fatalf("LoadStems() = %v, want only kick", stems)
	}

	ev, err := Evaluate(stems["kick"], stems)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	path, err := WriteJSON(filepath.Join(dir, "eval"), ev)
	if err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if filepath.Base(path) != "eval_results.json" {
		t.Errorf("WriteJSON() path = %s", path)
	}
}
