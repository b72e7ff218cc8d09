package analysis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/james-see/drum2midi/pkg/audio"
)

// Quality thresholds.
const (
	MinKickLow        = 0.3
	MinHihatHigh      = 0.3
	MinSnareMid       = 0.2
	MinReconstruction = 0.3
)

// StemMetrics are the per-stem measurements.
type StemMetrics struct {
	RMSdB            float64    `json:"rms_db"`
	Peak             float64    `json:"peak"`
	SpectralCentroid float64    `json:"spectral_centroid_hz"`
	BandEnergy       BandEnergy `json:"band_energy"`
}

// InputMetrics describe the original mix.
type InputMetrics struct {
	Path       string  `json:"path,omitempty"`
	SampleRate int     `json:"sample_rate"`
	Duration   float64 `json:"duration"`
	RMSdB      float64 `json:"rms_db"`
}

// Reconstruction compares the sum of stems with the mix.
type Reconstruction struct {
	Correlation float64 `json:"correlation"`
	SumRMSdB    float64 `json:"sum_rms_db"`
	Clipping    bool    `json:"peak_clipping"`
}

// Check is one pass/fail quality criterion.
type Check struct {
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	Threshold   float64 `json:"threshold"`
	Pass        bool    `json:"pass"`
	Description string  `json:"description"`
}

// Evaluation is the full result of Evaluate.
type Evaluation struct {
	Input          InputMetrics           `json:"input"`
	Stems          map[string]StemMetrics `json:"stems"`
	Reconstruction *Reconstruction        `json:"reconstruction,omitempty"`
	Checks         []Check                `json:"quality_checks"`
}

// Passed reports whether every check passed.
func (e Evaluation) Passed() bool {
	for _, c := range e.Checks {
		if !c.Pass {
			return false
		}
	}
	return true
}

// Evaluate measures stems against mix. Stems at another sample rate are
// resampled, and all stems are padded or trimmed to the mix length.
func Evaluate(mix audio.Signal, stems map[string]audio.Signal) (Evaluation, error) {
	ev := Evaluation{
		Input: InputMetrics{
			SampleRate: mix.SampleRate,
			Duration:   mix.Duration(),
			RMSdB:      audio.Measure(mix).RMSdB,
		},
		Stems: make(map[string]StemMetrics, len(stems)),
	}

	aligned := make([]audio.Signal, 0, len(stems))
	for _, name := range sortedKeys(stems) {
		s := stems[name]
		if s.SampleRate != mix.SampleRate {
			var err error
			if s, err = audio.Resample(s, mix.SampleRate); err != nil {
				return Evaluation{}, fmt.Errorf("stem %s: %w", name, err)
			}
		}
		s = audio.FitLength(s, mix.Len())
		aligned = append(aligned, s)

		st := audio.Measure(s)
		ev.Stems[name] = StemMetrics{
			RMSdB:            st.RMSdB,
			Peak:             st.Peak,
			SpectralCentroid: SpectralCentroid(s),
			BandEnergy:       Bands(s),
		}
	}

	if len(aligned) > 0 {
		sum := audio.Sum(aligned...)
		st := audio.Measure(sum)
		ev.Reconstruction = &Reconstruction{
			Correlation: Correlation(mix, sum),
			SumRMSdB:    st.RMSdB,
			Clipping:    st.Peak > 1,
		}
	}

	ev.Checks = checks(ev)
	return ev, nil
}

func checks(ev Evaluation) []Check {
	var out []Check
	add := func(name string, value, threshold float64, desc string) {
		out = append(out, Check{
			Name: name, Value: value, Threshold: threshold,
			Pass: value > threshold, Description: desc,
		})
	}
	if m, ok := ev.Stems["kick"]; ok {
		add("kick_low_band", m.BandEnergy.Low, MinKickLow, "kick should have >30% low-band energy")
	}
	if m, ok := ev.Stems["hihat"]; ok {
		add("hihat_high_band", m.BandEnergy.High, MinHihatHigh, "hihat should have >30% high-band energy")
	}
	if m, ok := ev.Stems["snare"]; ok {
		add("snare_mid_band", m.BandEnergy.Mid, MinSnareMid, "snare should have >20% mid-band energy")
	}
	if ev.Reconstruction != nil {
		add("reconstruction_correlation", ev.Reconstruction.Correlation, MinReconstruction,
			"sum of stems should correlate >0.3 with the input")
	}
	return out
}

// LoadStems reads every .wav file in dir, keyed by file name without
// extension.
func LoadStems(dir string) (map[string]audio.Signal, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read stems dir: %w", err)
	}
	stems := make(map[string]audio.Signal)
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".wav" && ext != ".wave") {
			continue
		}
		sig, err := audio.ReadWAV(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("stem %s: %w", e.Name(), err)
		}
		stems[strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))] = sig
	}
	return stems, nil
}

// WriteJSON writes ev to dir/eval_results.json and returns the path.
func WriteJSON(dir string, ev Evaluation) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	data, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode evaluation: %w", err)
	}
	path := filepath.Join(dir, "eval_results.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write evaluation: %w", err)
	}
	return path, nil
}

func sortedKeys(m map[string]audio.Signal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
