// Package pipeline runs the drum transcription steps in order: tempo,
// separation, onset detection, quantization and MIDI encoding.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/james-see/drum2midi/pkg/audio"
	"github.com/james-see/drum2midi/pkg/converter"
	"github.com/james-see/drum2midi/pkg/onset"
	"github.com/james-see/drum2midi/pkg/separation"
	"github.com/james-see/drum2midi/pkg/tempo"
)

// Artifact file names inside an output directory.
const (
	StemsDir   = "stems"
	MIDIFile   = "drums.mid"
	ReportFile = "report.json"
)

// Result is the in-memory output of Process.
type Result struct {
	Report *Report
	Stems  map[string]audio.Signal
	Onsets map[string][]onset.Onset
	// MIDI is nil when no notes were produced.
	MIDI []byte
}

// Process transcribes sig. It never touches the filesystem.
func Process(ctx context.Context, sig audio.Signal, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	progress := func(stage Stage, stem string) {
		if opts.Progress != nil {
			opts.Progress(stage, stem)
		}
	}
	if sig.SampleRate <= 0 || sig.Len() == 0 {
		return nil, stageErr(StageLoad, "", fmt.Errorf("%w: empty signal", audio.ErrInvalidFormat))
	}

	bpm := opts.BPM
	detected := bpm == 0
	if detected {
		progress(StageTempo, "")
		est, err := tempo.EstimateSignal(sig, opts.Hop)
		if err != nil {
			return nil, stageErr(StageTempo, "", err)
		}
		bpm = est
		log.Info("estimated tempo", "bpm", round(bpm, 1))
	}

	progress(StageSeparate, "")
	strategy, err := opts.Separation.Strategy()
	if err != nil {
		return nil, stageErr(StageSeparate, "", fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	sep, err := separation.Separate(ctx, strategy, separation.Env{Models: opts.Models, Logger: log}, sig, opts.Stems)
	if err != nil {
		return nil, stageErr(StageSeparate, "", err)
	}

	res := &Result{
		Stems:  sep.Stems,
		Onsets: make(map[string][]onset.Onset, len(opts.Stems)),
	}
	report := &Report{
		SampleRate:  sig.SampleRate,
		Duration:    round(sig.Duration(), 3),
		BPM:         round(bpm, 1),
		BPMDetected: detected,
		OnsetsCount: make(map[string]int, len(opts.Stems)),
		Stems:       append([]string(nil), opts.Stems...),
		Separation:  sep.Info,
		StemStats:   make(map[string]StemStats, len(opts.Stems)),
	}
	report.Separation.RuntimeSec = round(report.Separation.RuntimeSec, 3)

	detectOpts := onset.Options{Hop: opts.Hop, Threshold: opts.Threshold, MinDistance: opts.MinDistance}
	for _, stem := range opts.Stems {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stemSig, ok := sep.Stems[stem]
		if !ok {
			return nil, stageErr(StageSeparate, stem, fmt.Errorf("separator returned no %s stem", stem))
		}

		progress(StageDetect, stem)
		onsets, err := onset.Detect(stemSig, detectOpts)
		if err != nil {
			return nil, stageErr(StageDetect, stem, err)
		}
		if opts.Quantize > 0 && len(onsets) > 0 {
			progress(StageQuantize, stem)
			onsets = tempo.QuantizeOnsets(onsets, bpm, opts.Grid, opts.Quantize)
		}
		if _, ok := converter.NoteFor(stem); !ok {
			log.Warn("stem has no GM drum key, its onsets will not be written", "stem", stem)
		}

		res.Onsets[stem] = onsets
		report.OnsetsCount[stem] = len(onsets)
		st := audio.Measure(stemSig)
		report.StemStats[stem] = StemStats{RMSdB: round(st.RMSdB, 2), Peak: round(st.Peak, 4)}
		log.Debug("detected onsets", "stem", stem, "count", len(onsets))
	}

	progress(StageEncode, "")
	data, notes, err := converter.NewMIDIConverter().Encode(res.Onsets, bpm)
	if err != nil {
		return nil, stageErr(StageEncode, "", err)
	}
	report.TotalMIDINotes = notes
	if notes > 0 {
		res.MIDI = data
	}

	res.Report = report
	return res, nil
}

// Run reads the WAV file at input, processes it and writes stems, MIDI
// and report to outDir.
func Run(ctx context.Context, input, outDir string, opts Options) (*Report, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Progress != nil {
		opts.Progress(StageLoad, "")
	}
	sig, err := audio.ReadWAV(input)
	if err != nil {
		return nil, stageErr(StageLoad, "", err)
	}

	res, err := Process(ctx, sig, opts)
	if err != nil {
		return nil, err
	}
	res.Report.InputFile = filepath.Base(input)

	if err := WriteArtifacts(outDir, res, opts.Progress); err != nil {
		return nil, err
	}
	return res.Report, nil
}

// WriteArtifacts stores a Result under dir.
func WriteArtifacts(dir string, res *Result, progress func(Stage, string)) error {
	stemsDir := filepath.Join(dir, StemsDir)
	if err := os.MkdirAll(stemsDir, 0755); err != nil {
		return stageErr(StageWrite, "", fmt.Errorf("failed to create output dir: %w", err))
	}
	for _, stem := range res.Report.Stems {
		if progress != nil {
			progress(StageWrite, stem)
		}
		if err := audio.WriteWAV(filepath.Join(stemsDir, stem+".wav"), res.Stems[stem]); err != nil {
			return stageErr(StageWrite, stem, err)
		}
	}
	if res.MIDI != nil {
		if err := converter.WriteMIDIFile(filepath.Join(dir, MIDIFile), res.MIDI); err != nil {
			return stageErr(StageWrite, "", fmt.Errorf("failed to write MIDI: %w", err))
		}
	}
	if err := res.Report.WriteFile(filepath.Join(dir, ReportFile)); err != nil {
		return stageErr(StageWrite, "", err)
	}
	return nil
}
