package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/james-see/drum2midi/pkg/separation"
)

// StemStats are level measurements of one separated stem.
type StemStats struct {
	RMSdB float64 `json:"rms_db"`
	Peak  float64 `json:"peak"`
}

// Report summarises a pipeline run.
type Report struct {
	SampleRate     int                  `json:"sample_rate"`
	Duration       float64              `json:"duration"`
	BPM            float64              `json:"bpm"`
	BPMDetected    bool                 `json:"bpm_detected"`
	OnsetsCount    map[string]int       `json:"onsets_count"`
	TotalMIDINotes int                  `json:"total_midi_notes"`
	Stems          []string             `json:"stems"`
	Separation     separation.Info      `json:"separation"`
	StemStats      map[string]StemStats `json:"stem_stats"`
	InputFile      string               `json:"input_file,omitempty"`
}

// JSON encodes r with indentation.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// WriteFile writes r as JSON to path.
func (r *Report) WriteFile(path string) error {
	data, err := r.JSON()
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ReadReport loads a report written by WriteFile.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
