package pipeline

import "fmt"

// FailureKind classifies why a run stopped at a stage.
type FailureKind string

const (
	// PreconditionMissing: required input artifacts were absent; the stage
	// was never launched.
	PreconditionMissing FailureKind = "precondition_missing"
	// ToolExecutionFailed: the external process exited abnormally or the
	// stage produced zero expected outputs.
	ToolExecutionFailed FailureKind = "tool_execution_failed"
	// Timeout: a configured per-stage timeout expired.
	Timeout FailureKind = "timeout"
	// Cancelled: the user stopped the run.
	Cancelled FailureKind = "cancelled"
)

// StageError is the structured error surfaced to the front end when a run
// fails: stage identity, failure kind, human-readable detail, and the raw
// tool output when captured.
type StageError struct {
	Stage  int
	Name   string
	Kind   FailureKind
	Detail string
	Output string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %s: %s", e.Stage, e.Name, e.Kind, e.Detail)
}
