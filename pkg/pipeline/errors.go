package pipeline

import "fmt"

// Stage names a pipeline step.
type Stage string

const (
	StageLoad     Stage = "load"
	StageTempo    Stage = "tempo"
	StageSeparate Stage = "separate"
	StageDetect   Stage = "detect"
	StageQuantize Stage = "quantize"
	StageEncode   Stage = "encode"
	StageWrite    Stage = "write"
)

// StageError identifies the step, and stem if any, that aborted a run.
type StageError struct {
	Stage Stage
	Stem  string
	Err   error
}

func (e *StageError) Error() string {
	if e.Stem != "" {
		return fmt.Sprintf("stage %q (stem %q): %v", e.Stage, e.Stem, e.Err)
	}
	return fmt.Sprintf("stage %q: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, stem string, err error) error {
	return &StageError{Stage: stage, Stem: stem, Err: err}
}
