package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/james-see/drum2midi/pkg/audio"
	"github.com/james-see/drum2midi/pkg/converter"
	"github.com/james-see/drum2midi/pkg/onset"
	"github.com/james-see/drum2midi/pkg/separation"
	"github.com/james-see/drum2midi/pkg/synth"
	"github.com/james-see/drum2midi/pkg/tempo"
)

const sr = 44100

func rockBeat() audio.Signal {
	return synth.Render(sr, 4.2, synth.RockBeat(120, 2, 0.1), 2024)
}

func dspOptions() Options {
	opts := DefaultOptions()
	opts.Separation.Method = separation.MethodDSP
	return opts
}

func TestProcessRockBeat(t *testing.T) {
	var stages []Stage
	opts := dspOptions()
	opts.Progress = func(s Stage, _ string) { stages = append(stages, s) }

	res, err := Process(context.Background(), rockBeat(), opts)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	r := res.Report

	if r.TotalMIDINotes < 10 {
		t.Errorf("total notes = %d, want >= 10", r.TotalMIDINotes)
	}
	if math.Abs(r.BPM-120) > 6 {
		t.Errorf("bpm = %v, want within 5%% of 120", r.BPM)
	}
	if !r.BPMDetected {
		t.Error("bpm should be marked as detected")
	}
	if r.SampleRate != sr || r.Duration != 4.2 {
		t.Errorf("sample rate %d duration %v", r.SampleRate, r.Duration)
	}
	if r.Separation.Method != separation.MethodDSP {
		t.Errorf("separation method = %v", r.Separation.Method)
	}
	for _, stem := range DefaultStems {
		if r.OnsetsCount[stem] == 0 {
			t.Errorf("no onsets for %s", stem)
		}
		if _, ok := r.StemStats[stem]; !ok {
			t.Errorf("no stats for %s", stem)
		}
	}
	if res.MIDI == nil {
		t.Fatal("expected MIDI data")
	}

	song, err := converter.NewMIDIConverter().ParseMIDI(res.MIDI)
	if err != nil {
		t.Fatal(err)
	}
	if len(song.Notes) != r.TotalMIDINotes {
		t.Errorf("MIDI has %d notes, report says %d", len(song.Notes), r.TotalMIDINotes)
	}

	if len(stages) == 0 || stages[0] != StageTempo || stages[len(stages)-1] != StageEncode {
		t.Errorf("progress stages = %v", stages)
	}
}

func TestProcessQuantizeSnapsToGrid(t *testing.T) {
	opts := dspOptions()
	opts.BPM = 120
	opts.Quantize = 1
	opts.Stems = []string{"kick"}

	res, err := Process(context.Background(), rockBeat(), opts)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	grid := tempo.GridSpacing(120, opts.Grid)
	for _, o := range res.Onsets["kick"] {
		steps := o.Time / grid
		if math.Abs(steps-math.Round(steps)) > 1e-9 {
			t.Errorf("onset %v is off the grid", o.Time)
		}
	}
	if res.Report.BPM != 120 || res.Report.BPMDetected {
		t.Errorf("explicit bpm not honoured: %+v", res.Report)
	}
}

func TestProcessCollidingOnsetsKeepEveryNote(t *testing.T) {
	opts := dspOptions()
	opts.BPM = 120
	opts.Quantize = 1
	opts.Grid = 1 // one line every two seconds
	opts.Stems = []string{"hihat"}

	res, err := Process(context.Background(), rockBeat(), opts)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	count := res.Report.OnsetsCount["hihat"]
	distinct := make(map[float64]bool)
	for _, o := range res.Onsets["hihat"] {
		distinct[o.Time] = true
	}
	if len(distinct) >= count {
		t.Fatalf("%d onsets on %d grid lines, want collisions", count, len(distinct))
	}
	if res.Report.TotalMIDINotes != count {
		t.Errorf("total notes = %d, want onsets count %d", res.Report.TotalMIDINotes, count)
	}
	song, err := converter.NewMIDIConverter().ParseMIDI(res.MIDI)
	if err != nil {
		t.Fatal(err)
	}
	if len(song.Notes) != count {
		t.Errorf("MIDI has %d notes, want %d", len(song.Notes), count)
	}
}

func TestProcessDoesNotClampInput(t *testing.T) {
	loud := rockBeat()
	for i := range loud.Samples {
		loud.Samples[i] *= 4
	}
	if audio.Peak(loud) <= 1 {
		t.Fatal("test signal should exceed full scale")
	}
	opts := dspOptions()
	opts.BPM = 120
	opts.Stems = []string{"crash"} // no band model, passed through

	res, err := Process(context.Background(), loud, opts)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if p := res.Report.StemStats["crash"].Peak; math.Abs(p-audio.Peak(loud)) > 1e-3 {
		t.Errorf("crash stem peak = %v, want unclamped %v", p, audio.Peak(loud))
	}

	path := filepath.Join(t.TempDir(), "crash.wav")
	if err := audio.WriteWAV(path, res.Stems["crash"]); err != nil {
		t.Fatal(err)
	}
	written, err := audio.ReadWAV(path)
	if err != nil {
		t.Fatal(err)
	}
	if p := audio.Peak(written); p > 1 {
		t.Errorf("written stem peak = %v, want <= 1", p)
	}
}

func TestProcessDetectFailureNamesStem(t *testing.T) {
	opts := dspOptions()
	opts.BPM = 100
	opts.Stems = []string{"snare"}

	_, err := Process(context.Background(), audio.New(make([]float32, 1000), sr), opts)
	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StageError", err)
	}
	if se.Stage != StageDetect || se.Stem != "snare" {
		t.Errorf("stage %q stem %q, want detect/snare", se.Stage, se.Stem)
	}
	if !errors.Is(err, onset.ErrInvalidInput) {
		t.Errorf("error %v should wrap ErrInvalidInput", err)
	}
}

func TestProcessStrictML(t *testing.T) {
	opts := dspOptions()
	opts.Separation = separation.Config{Method: separation.MethodML, Strict: true}
	opts.Models = separation.NewModelCache(&separation.Demucs{Bin: "no-such-demucs-binary"})

	_, err := Process(context.Background(), rockBeat(), opts)
	if !errors.Is(err, separation.ErrBackendUnavailable) {
		t.Fatalf("error = %v, want ErrBackendUnavailable", err)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageSeparate {
		t.Errorf("error = %v, want separate stage", err)
	}

	opts.Separation.Strict = false
	res, err := Process(context.Background(), rockBeat(), opts)
	if err != nil {
		t.Fatalf("non-strict Process() error = %v", err)
	}
	if res.Report.Separation.Method != separation.MethodDSP || res.Report.Separation.FallbackReason == "" {
		t.Errorf("separation info = %+v, want recorded fallback", res.Report.Separation)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"no stems", func(o *Options) { o.Stems = nil }},
		{"unknown stem", func(o *Options) { o.Stems = []string{"cowbell"} }},
		{"duplicate stem", func(o *Options) { o.Stems = []string{"kick", "kick"} }},
		{"negative bpm", func(o *Options) { o.BPM = -1 }},
		{"quantize above one", func(o *Options) { o.Quantize = 1.5 }},
		{"zero grid", func(o *Options) { o.Grid = 0 }},
		{"threshold one", func(o *Options) { o.Threshold = 1 }},
		{"bad hop", func(o *Options) { o.Hop = 0 }},
		{"bad method", func(o *Options) { o.Separation.Method = "magic" }},
		{"bad quality", func(o *Options) { o.Separation.Quality = "ultra" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.modify(&opts)
			if err := opts.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}

	if err := DefaultOptions().Validate(); err != nil {
		t.Errorf("default options invalid: %v", err)
	}
}

func TestParseBPM(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"auto", 0, false},
		{"AUTO", 0, false},
		{"", 0, false},
		{"128", 128, false},
		{"92.5", 92.5, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"fast", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseBPM(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseBPM(%q) = %v, %v", tt.in, got, err)
		}
		if err != nil && !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("ParseBPM(%q) error should wrap ErrInvalidConfig", tt.in)
		}
	}

	if got := ParseStems("kick, snare hihat"); len(got) != 3 || got[2] != "hihat" {
		t.Errorf("ParseStems() = %v", got)
	}
}

func TestRunWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "take.wav")
	if err := audio.WriteWAV(input, rockBeat()); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out")

	report, err := Run(context.Background(), input, out, dspOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.InputFile != "take.wav" {
		t.Errorf("input_file = %q", report.InputFile)
	}

	for _, stem := range DefaultStems {
		if _, err := os.Stat(filepath.Join(out, StemsDir, stem+".wav")); err != nil {
			t.Errorf("missing stem file: %v", err)
		}
	}
	if _, err := os.Stat(filepath.Join(out, MIDIFile)); err != nil {
		t.Errorf("missing MIDI file: %v", err)
	}
	saved, err := ReadReport(filepath.Join(out, ReportFile))
	if err != nil {
		t.Fatalf("ReadReport() error = %v", err)
	}
	if saved.TotalMIDINotes != report.TotalMIDINotes || saved.BPM != report.BPM {
		t.Errorf("saved report %+v differs from %+v", saved, report)
	}
}

func TestRunSilenceWritesNoMIDI(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "silence.wav")
	if err := audio.WriteWAV(input, audio.New(make([]float32, sr), sr)); err != nil {
		t.Fatal(err)
	}
	opts := dspOptions()
	opts.BPM = 120

	report, err := Run(context.Background(), input, dir, opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.TotalMIDINotes != 0 {
		t.Errorf("total notes = %d, want 0", report.TotalMIDINotes)
	}
	if _, err := os.Stat(filepath.Join(dir, MIDIFile)); !os.IsNotExist(err) {
		t.Errorf("drums.mid should not exist: %v", err)
	}
	if got := report.StemStats["kick"].RMSdB; got != audio.SilenceFloorDB {
		t.Errorf("silent rms_db = %v, want %v", got, audio.SilenceFloorDB)
	}
}

func TestRunMissingInput(t *testing.T) {
	_, err := Run(context.Background(), filepath.Join(t.TempDir(), "nope.wav"), t.TempDir(), dspOptions())
	if !errors.Is(err, audio.ErrInputNotFound) {
		t.Errorf("Run() error = %v, want ErrInputNotFound", err)
	}
}
