package pipeline

import "time"

// RunState is the overall state of a pipeline run.
type RunState int

const (
	RunIdle RunState = iota
	RunRunning
	RunCompleted
	RunFailed
	RunCancelled
)

func (s RunState) String() string {
	switch s {
	case RunIdle:
		return "idle"
	case RunRunning:
		return "running"
	case RunCompleted:
		return "completed"
	case RunFailed:
		return "failed"
	case RunCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the run can no longer progress.
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// StageStatus is the status of one stage within a run. Statuses are
// monotonic: once Succeeded or Failed, a stage only changes through an
// explicit restart-from-stage action.
type StageStatus int

const (
	StagePending StageStatus = iota
	StageRunning
	StageSucceeded
	StageFailed
	StageSkipped
)

func (s StageStatus) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageRunning:
		return "running"
	case StageSucceeded:
		return "succeeded"
	case StageFailed:
		return "failed"
	case StageSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// cleared reports whether a stage allows its successor to start.
func (s StageStatus) cleared() bool {
	return s == StageSucceeded || s == StageSkipped
}

// Snapshot is the status tuple published to the front end after every
// transition. It is a value copy; consumers never share state with the
// controller.
type Snapshot struct {
	RunID      string
	State      RunState
	StageIndex int
	StageName  string
	Statuses   [NumStages]StageStatus // Statuses[i] is stage i+1
	UnitsDone  int
	UnitsTotal int
	Percent    float64
	Remaining  time.Duration
	LastError  string
}
