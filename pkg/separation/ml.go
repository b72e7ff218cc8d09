package separation

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/james-see/drum2midi/pkg/audio"
)

// NativeRate is the sample rate the pretrained models expect.
const NativeRate = 44100

// Job is one inference request handed to a Runner.
type Job struct {
	Model      string
	Device     Device
	Shifts     int
	CacheDir   string
	SampleRate int
	Left       []float32
	Right      []float32
}

// Runner executes the external separation model.
type Runner interface {
	// Available reports why the runtime cannot be used, or nil.
	Available() error
	// Drums returns the drums source of the stereo input.
	Drums(ctx context.Context, job Job) (audio.Signal, error)
}

// Model is a loaded model handle. It is immutable and safe for
// concurrent use.
type Model struct {
	Name     string
	Device   Device
	CacheDir string
	runner   Runner
}

// Separate runs the model on sig, then splits its drums output into the
// requested stems with the filter bank.
func (m *Model) Separate(ctx context.Context, sig audio.Signal, stems []string, q Quality, log *slog.Logger) (map[string]audio.Signal, error) {
	native, err := audio.Resample(sig, NativeRate)
	if err != nil {
		return nil, err
	}
	job := Job{
		Model:      m.Name,
		Device:     m.Device,
		Shifts:     q.preset().shifts,
		CacheDir:   m.CacheDir,
		SampleRate: NativeRate,
		Left:       native.Samples,
		Right:      native.Samples,
	}

	drums, err := m.runner.Drums(ctx, job)
	if err != nil {
		return nil, err
	}
	if drums.Len() == 0 {
		return nil, fmt.Errorf("model %s produced no audio", m.Name)
	}

	if drums, err = audio.Resample(drums, sig.SampleRate); err != nil {
		return nil, err
	}
	drums = audio.FitLength(drums, sig.Len())
	return NewFilterBank(q, log).Separate(ctx, drums, stems)
}

// ModelCache loads each model+device pair at most once and reuses it.
// Failed loads are not cached, so a later call may retry.
type ModelCache struct {
	runner Runner

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	mu    sync.Mutex
	model *Model
}

// NewModelCache creates a cache backed by r; nil means the demucs CLI.
func NewModelCache(r Runner) *ModelCache {
	if r == nil {
		r = &Demucs{}
	}
	return &ModelCache{runner: r, entries: make(map[string]*cacheEntry)}
}

// Available reports whether the runtime is installed.
func (c *ModelCache) Available() bool {
	return c.runner.Available() == nil
}

// Load returns the cached model for name and device, loading it on
// first use. Concurrent callers for the same key wait for one load.
func (c *ModelCache) Load(ctx context.Context, name string, device Device, cacheDir string) (*Model, error) {
	key := name + "@" + string(device)

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{}
		c.entries[key] = e
	}
	c.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		return e.model, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.runner.Available(); err != nil {
		return nil, err
	}
	e.model = &Model{Name: name, Device: device, CacheDir: cacheDir, runner: c.runner}
	return e.model, nil
}

// Loaded lists the keys of loaded models.
func (c *ModelCache) Loaded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []string
	for k, e := range c.entries {
		e.mu.Lock()
		if e.model != nil {
			keys = append(keys, k)
		}
		e.mu.Unlock()
	}
	sort.Strings(keys)
	return keys
}

// Demucs runs the demucs command-line separator.
type Demucs struct {
	Bin    string    // executable, default "demucs"
	Stderr io.Writer // optional live progress output
}

func (d *Demucs) bin() string {
	if d.Bin == "" {
		return "demucs"
	}
	return d.Bin
}

// Available reports an error when the demucs executable is not on PATH.
func (d *Demucs) Available() error {
	if _, err := exec.LookPath(d.bin()); err != nil {
		return fmt.Errorf("demucs not found in PATH: %w", err)
	}
	return nil
}

// Args builds the demucs command line for job.
func (d *Demucs) Args(job Job, input, outDir string) []string {
	args := []string{"-n", job.Model, "--two-stems", "drums", "-o", outDir,
		"--shifts", strconv.Itoa(job.Shifts)}
	if job.Device != DeviceAuto && job.Device != "" {
		args = append(args, "-d", string(job.Device))
	}
	return append(args, input)
}

// Drums writes job to a temporary WAV, runs demucs on it and reads back
// the drums stem.
func (d *Demucs) Drums(ctx context.Context, job Job) (audio.Signal, error) {
	tmp, err := os.MkdirTemp("", "drum2midi-demucs-*")
	if err != nil {
		return audio.Signal{}, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	input := filepath.Join(tmp, "input.wav")
	if err := audio.WriteWAVChannels(input, job.SampleRate, job.Left, job.Right); err != nil {
		return audio.Signal{}, err
	}
	outDir := filepath.Join(tmp, "separated")

	cmd := exec.CommandContext(ctx, d.bin(), d.Args(job, input, outDir)...)
	cmd.Env = os.Environ()
	if job.CacheDir != "" {
		cmd.Env = append(cmd.Env, "TORCH_HOME="+job.CacheDir)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if d.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, d.Stderr)
	}
	if err := cmd.Run(); err != nil {
		return audio.Signal{}, fmt.Errorf("demucs failed: %w: %s", err, lastLine(stderr.String()))
	}

	src := filepath.Join(outDir, job.Model, "input", "drums.wav")
	drums, err := audio.ReadWAV(src)
	if err != nil {
		return audio.Signal{}, fmt.Errorf("demucs output not found: %w", err)
	}
	return drums, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
