// Package main is the entry point for the drum2midi CLI
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/james-see/drum2midi/pkg/analysis"
	"github.com/james-see/drum2midi/pkg/api"
	"github.com/james-see/drum2midi/pkg/audio"
	"github.com/james-see/drum2midi/pkg/converter"
	"github.com/james-see/drum2midi/pkg/pipeline"
	"github.com/james-see/drum2midi/pkg/separation"
	"github.com/james-see/drum2midi/pkg/synth"
	"github.com/james-see/drum2midi/pkg/tui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	outputDir   string
	stemsFlag   string
	bpmFlag     string
	quantize    float64
	sepBackend  string
	sepModel    string
	sepQuality  string
	device      string
	cacheDir    string
	strict      bool
	threshold   float64
	minDistance float64
	grid        int
	quiet       bool

	serverPort int

	genPattern    string
	genBPM        float64
	genBars       int
	genSampleRate int
	genSeed       int64
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "drum2midi",
	Short: "Split drum recordings into stems and MIDI",
	Long: `drum2midi separates a drum recording into kick, snare and hi-hat stems,
detects the hits on each stem and writes a General MIDI drum track.

Examples:
  drum2midi process take.wav --out take_out
  drum2midi process take.wav --stems kick,snare --bpm 96 --quantize 0.5
  drum2midi process take.wav --sep-backend ml --device cuda
  drum2midi inspect take_out/drums.mid
  drum2midi eval take.wav take_out/stems --out take_out
  drum2midi generate beat.wav --bpm 120 --bars 4
  drum2midi tui
  drum2midi serve --port 8001`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var processCmd = &cobra.Command{
	Use:   "process <input.wav>",
	Short: "Separate stems, detect hits and write MIDI",
	Args:  cobra.ExactArgs(1),
	RunE:  runProcess,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.mid>",
	Short: "List the drum notes in a MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var evalCmd = &cobra.Command{
	Use:   "eval <input.wav> <stems-dir>",
	Short: "Measure separation quality of a stems directory",
	Args:  cobra.ExactArgs(2),
	RunE:  runEval,
}

var generateCmd = &cobra.Command{
	Use:   "generate <output.wav>",
	Short: "Render a synthetic drum pattern for testing",
	Args:  cobra.ExactArgs(1),
	RunE:  runGenerate,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal UI",
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the job API server",
	RunE:  runServe,
}

func init() {
	def := pipeline.DefaultOptions()

	// process command
	f := processCmd.Flags()
	f.StringVarP(&outputDir, "out", "o", "", "Output directory (default: <input>_drum2midi)")
	f.StringVar(&stemsFlag, "stems", strings.Join(pipeline.DefaultStems, ","), "Stems to extract ("+strings.Join(pipeline.RecognizedStems, ", ")+")")
	f.StringVar(&bpmFlag, "bpm", "auto", "Tempo in BPM or auto")
	f.Float64Var(&quantize, "quantize", 0, "Quantize strength 0..1")
	f.StringVar(&sepBackend, "sep-backend", string(separation.MethodAuto), "Separation backend (auto, dsp, ml)")
	f.StringVar(&sepModel, "sep-model", separation.DefaultModel, "Model name for the ml backend")
	f.StringVar(&sepQuality, "sep-quality", string(separation.QualityBalanced), "Separation quality (fast, balanced, best)")
	f.StringVar(&device, "device", string(separation.DeviceAuto), "Device for the ml backend (auto, cpu, cuda, mps)")
	f.StringVar(&cacheDir, "cache-dir", "", "Model cache directory")
	f.BoolVar(&strict, "strict", false, "Fail instead of falling back when --sep-backend ml is unavailable")
	f.Float64Var(&threshold, "threshold", def.Threshold, "Onset threshold 0..1")
	f.Float64Var(&minDistance, "min-distance", def.MinDistance, "Minimum seconds between hits on one stem")
	f.IntVar(&grid, "grid", def.Grid, "Quantize grid division (16 = sixteenth notes)")
	f.BoolVarP(&quiet, "quiet", "q", false, "Hide the progress bar")

	// eval command
	evalCmd.Flags().StringVarP(&outputDir, "out", "o", "", "Directory for eval_results.json (default: stems dir)")

	// generate command
	g := generateCmd.Flags()
	g.StringVar(&genPattern, "pattern", "rock", "Pattern (rock, click)")
	g.Float64Var(&genBPM, "bpm", 120, "Tempo in BPM")
	g.IntVar(&genBars, "bars", 4, "Number of 4/4 bars")
	g.IntVar(&genSampleRate, "sample-rate", 44100, "Sample rate in Hz")
	g.Int64Var(&genSeed, "seed", 1, "Noise seed")

	// serve command
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Server port (default: $PORT or 8001)")

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
}

func buildOptions() (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()
	opts.Stems = pipeline.ParseStems(stemsFlag)

	bpm, err := pipeline.ParseBPM(bpmFlag)
	if err != nil {
		return opts, err
	}
	opts.BPM = bpm
	opts.Quantize = quantize
	opts.Threshold = threshold
	opts.MinDistance = minDistance
	opts.Grid = grid

	cfg := separation.Config{Model: sepModel, CacheDir: cacheDir, Strict: strict}
	if cfg.Method, err = separation.ParseMethod(sepBackend); err != nil {
		return opts, err
	}
	if cfg.Quality, err = separation.ParseQuality(sepQuality); err != nil {
		return opts, err
	}
	if cfg.Device, err = separation.ParseDevice(device); err != nil {
		return opts, err
	}
	opts.Separation = cfg

	return opts, opts.Validate()
}

// stageCount is the number of progress callbacks a run makes.
func stageCount(opts pipeline.Options) int64 {
	n := 3 + 2*len(opts.Stems) // load, separate, encode, detect and write per stem
	if opts.BPM == 0 {
		n++
	}
	if opts.Quantize > 0 {
		n += len(opts.Stems)
	}
	return int64(n)
}

func runProcess(cmd *cobra.Command, args []string) error {
	input := args[0]
	opts, err := buildOptions()
	if err != nil {
		return err
	}
	out := outputDir
	if out == "" {
		out = tui.OutputDir(input)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var p *mpb.Progress
	var bar *mpb.Bar
	if !quiet {
		var label atomic.Pointer[string]
		start := "starting"
		label.Store(&start)

		p = mpb.New(mpb.WithWidth(48), mpb.WithOutput(os.Stderr))
		bar = p.AddBar(stageCount(opts),
			mpb.PrependDecorators(
				decor.Name(filepath.Base(input)+" "),
				decor.Any(func(decor.Statistics) string { return *label.Load() }, decor.WCSyncSpaceR),
			),
			mpb.AppendDecorators(decor.Percentage()),
		)
		opts.Progress = func(stage pipeline.Stage, stem string) {
			s := string(stage)
			if stem != "" {
				s += " " + stem
			}
			label.Store(&s)
			bar.Increment()
		}
	}

	report, err := pipeline.Run(ctx, input, out, opts)
	if bar != nil {
		if err != nil {
			bar.Abort(false)
		} else {
			bar.SetTotal(-1, true)
		}
		p.Wait()
	}
	if err != nil {
		return err
	}

	printReport(report, out)
	return nil
}

func printReport(r *pipeline.Report, out string) {
	bpmSource := "given"
	if r.BPMDetected {
		bpmSource = "detected"
	}
	fmt.Printf("Input:      %s (%.3fs @ %d Hz)\n", r.InputFile, r.Duration, r.SampleRate)
	fmt.Printf("BPM:        %.1f (%s)\n", r.BPM, bpmSource)
	fmt.Printf("Separation: %s", r.Separation.Method)
	if r.Separation.Model != "" {
		fmt.Printf(" (%s on %s)", r.Separation.Model, r.Separation.Device)
	}
	fmt.Printf(", quality %s, %.3fs\n", r.Separation.Quality, r.Separation.RuntimeSec)
	if r.Separation.FallbackReason != "" {
		fmt.Printf("Fallback:   %s\n", r.Separation.FallbackReason)
	}
	for _, stem := range r.Stems {
		st := r.StemStats[stem]
		fmt.Printf("  %-6s %4d hits  rms %7.2f dB  peak %.4f\n", stem, r.OnsetsCount[stem], st.RMSdB, st.Peak)
	}
	fmt.Printf("MIDI notes: %d\n", r.TotalMIDINotes)
	fmt.Printf("Output:     %s\n", out)
}

var pitchNames = map[uint8]string{
	36: "kick", 38: "snare", 42: "hihat", 46: "open hihat",
	45: "low tom", 47: "mid tom", 50: "high tom", 49: "crash", 51: "ride",
}

func runInspect(cmd *cobra.Command, args []string) error {
	song, err := converter.NewMIDIConverter().ParseMIDIFile(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Tempo: %.1f BPM, %d ticks per quarter, %d notes\n", song.Tempo, song.TicksPerQuarter, len(song.Notes))
	counts := song.CountByPitch()
	pitches := make([]int, 0, len(counts))
	for p := range counts {
		pitches = append(pitches, int(p))
	}
	sort.Ints(pitches)
	for _, p := range pitches {
		fmt.Printf("  %3d %-10s %d\n", p, pitchNames[uint8(p)], counts[uint8(p)])
	}
	fmt.Println()
	for _, n := range song.Notes {
		fmt.Printf("  beat %8.3f  %7.3fs  %-10s vel %3d\n", n.Beat, n.Time, pitchNames[n.Pitch], n.Velocity)
	}
	return nil
}

func runEval(cmd *cobra.Command, args []string) error {
	mix, err := audio.ReadWAV(args[0])
	if err != nil {
		return err
	}
	stems, err := analysis.LoadStems(args[1])
	if err != nil {
		return err
	}

	ev, err := analysis.Evaluate(mix, stems)
	if err != nil {
		return err
	}
	ev.Input.Path = args[0]

	out := outputDir
	if out == "" {
		out = args[1]
	}
	path, err := analysis.WriteJSON(out, ev)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(ev.Stems))
	for name := range ev.Stems {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := ev.Stems[name]
		fmt.Printf("  %-6s rms %7.2f dB  centroid %7.0f Hz  low %.2f mid %.2f high %.2f\n",
			name, m.RMSdB, m.SpectralCentroid, m.BandEnergy.Low, m.BandEnergy.Mid, m.BandEnergy.High)
	}
	if r := ev.Reconstruction; r != nil {
		fmt.Printf("Reconstruction correlation: %.3f (clipping: %v)\n", r.Correlation, r.Clipping)
	}
	for _, c := range ev.Checks {
		mark := "PASS"
		if !c.Pass {
			mark = "FAIL"
		}
		fmt.Printf("  [%s] %s: %.3f (threshold %.2f)\n", mark, c.Name, c.Value, c.Threshold)
	}
	fmt.Printf("Results written to %s\n", path)
	if !ev.Passed() {
		return fmt.Errorf("quality checks failed")
	}
	return nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if genBPM <= 0 || genBars <= 0 || genSampleRate <= 0 {
		return fmt.Errorf("bpm, bars and sample rate must be positive")
	}
	const offset = 0.1
	beats := 4 * genBars

	var hits []synth.Hit
	switch genPattern {
	case "rock":
		hits = synth.RockBeat(genBPM, genBars, offset)
	case "click":
		hits = synth.ClickTrain(genBPM, beats, offset)
	default:
		return fmt.Errorf("unknown pattern %q (want rock or click)", genPattern)
	}

	duration := offset + float64(beats)*60/genBPM + 0.5
	sig := synth.Render(genSampleRate, duration, hits, genSeed)
	if err := audio.WriteWAV(args[0], sig); err != nil {
		return err
	}
	fmt.Printf("Wrote %d hits (%.2fs) to %s\n", len(hits), duration, args[0])
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	return tui.Run()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := api.ConfigFromEnv()
	if serverPort > 0 {
		cfg.Port = serverPort
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Starting API server on %s:%d...\n", cfg.Host, cfg.Port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", cfg.Port)
	return api.StartServer(ctx, cfg)
}
