package api

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/james-see/drum2midi/pkg/pipeline"
)

// Job states.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ErrQueueFull is returned when a job is submitted while every queue
// slot is taken.
var ErrQueueFull = errors.New("job queue is full")

// JobStatus is the public view of a job.
type JobStatus struct {
	JobID       string           `json:"job_id"`
	Status      string           `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Error       string           `json:"error,omitempty"`
	Result      *pipeline.Report `json:"result,omitempty"`
}

// ProcessFunc runs the pipeline for one job.
type ProcessFunc func(ctx context.Context, input, outDir string, opts pipeline.Options) (*pipeline.Report, error)

type job struct {
	status JobStatus
	input  string
	opts   pipeline.Options
}

// jobQueue keeps job state in memory and runs jobs on a fixed number of
// workers.
type jobQueue struct {
	workDir string
	process ProcessFunc
	log     *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*job

	queue chan string
	wg    sync.WaitGroup
}

func newJobQueue(workDir string, process ProcessFunc, log *slog.Logger) *jobQueue {
	return &jobQueue{
		workDir: workDir,
		process: process,
		log:     log,
		jobs:    make(map[string]*job),
		queue:   make(chan string, 256),
	}
}

func (q *jobQueue) start(ctx context.Context, workers int) {
	for i := 0; i < max(1, workers); i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-q.queue:
					q.run(ctx, id)
				}
			}
		}()
	}
}

func (q *jobQueue) wait() { q.wg.Wait() }

func (q *jobQueue) dir(id string) string { return filepath.Join(q.workDir, id) }

func (q *jobQueue) submit(id, input string, opts pipeline.Options) (JobStatus, error) {
	j := &job{
		status: JobStatus{JobID: id, Status: StatusPending, CreatedAt: time.Now().UTC()},
		input:  input,
		opts:   opts,
	}
	status := j.status
	q.mu.Lock()
	q.jobs[id] = j
	q.mu.Unlock()

	select {
	case q.queue <- id:
		return status, nil
	default:
		q.mu.Lock()
		delete(q.jobs, id)
		q.mu.Unlock()
		if err := os.RemoveAll(q.dir(id)); err != nil {
			q.log.Warn("failed to remove rejected job", "job_id", id, "error", err)
		}
		return JobStatus{}, ErrQueueFull
	}
}

func (q *jobQueue) get(id string) (JobStatus, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	j, ok := q.jobs[id]
	if !ok {
		return JobStatus{}, false
	}
	return j.status, true
}

func (q *jobQueue) run(ctx context.Context, id string) {
	q.mu.Lock()
	j := q.jobs[id]
	j.status.Status = StatusProcessing
	input, opts := j.input, j.opts
	q.mu.Unlock()

	log := q.log.With("job_id", id)
	log.Info("processing job")

	outDir := filepath.Join(q.dir(id), "output")
	report, err := q.process(ctx, input, outDir, opts)
	if err == nil {
		err = zipResults(outDir, filepath.Join(q.dir(id), "result.zip"))
	}
	if err != nil {
		log.Error("job failed", "error", err)
	} else {
		log.Info("job completed", "notes", report.TotalMIDINotes)
	}
	q.finish(id, report, err)
}

func (q *jobQueue) finish(id string, report *pipeline.Report, err error) {
	now := time.Now().UTC()
	q.mu.Lock()
	defer q.mu.Unlock()
	j := q.jobs[id]
	j.status.CompletedAt = &now
	if err != nil {
		j.status.Status = StatusFailed
		j.status.Error = err.Error()
		return
	}
	j.status.Status = StatusCompleted
	j.status.Result = report
}

// zipResults packs stems, MIDI and report from outDir into dst.
func zipResults(outDir, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create zip: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	stems, _ := filepath.Glob(filepath.Join(outDir, pipeline.StemsDir, "*.wav"))
	for _, s := range stems {
		if err := addFile(zw, s, pipeline.StemsDir+"/"+filepath.Base(s)); err != nil {
			return err
		}
	}
	for _, name := range []string{pipeline.MIDIFile, pipeline.ReportFile} {
		path := filepath.Join(outDir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := addFile(zw, path, name); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish zip: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, src, name string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}
