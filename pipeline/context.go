package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/MCarreroPazos/LiDARch/artifact"
	"github.com/MCarreroPazos/LiDARch/config"
	"github.com/MCarreroPazos/LiDARch/tools"
)

// StageResult is the immutable record of one completed (or failed) stage.
type StageResult struct {
	Stage       int
	Units       int
	OutputCount int
	Duration    time.Duration
	ExitCode    int      // worst exit code observed across units
	Warnings    []string // tolerated non-zero exits and other benign notes
	Err         *StageError
}

// RunContext carries all state of one pipeline run. It is created by the
// controller when processing starts and mutated only by the controller.
type RunContext struct {
	ID        string
	Root      string
	CreatedAt time.Time

	Cfg       *config.Config
	Store     *artifact.Store
	Toolchain *tools.Toolchain

	Import   artifact.ImportSummary
	State    RunState
	Statuses [NumStages]StageStatus
	Results  map[int]*StageResult
	Failure  *StageError
	Elapsed  time.Duration
}

// NewRunContext creates the run state for a project root.
func NewRunContext(root string, cfg *config.Config, store *artifact.Store, tc *tools.Toolchain) *RunContext {
	return &RunContext{
		ID:        uuid.NewString(),
		Root:      root,
		CreatedAt: time.Now(),
		Cfg:       cfg,
		Store:     store,
		Toolchain: tc,
		Results:   make(map[int]*StageResult),
	}
}

// Result returns the recorded result for a stage, or nil.
func (rc *RunContext) Result(stage int) *StageResult {
	return rc.Results[stage]
}

// setStatus enforces the monotonicity invariant: a Succeeded or Failed
// stage is never silently reverted; only resetFrom (the explicit
// restart-from-stage path) may move a stage back to Pending.
func (rc *RunContext) setStatus(stage int, status StageStatus) {
	cur := rc.Statuses[stage-1]
	if (cur == StageSucceeded || cur == StageFailed) && status == StagePending {
		return
	}
	rc.Statuses[stage-1] = status
}

// resetFrom reverts every stage at or after index to Pending and clears
// their results. Used only by RestartFromStage.
func (rc *RunContext) resetFrom(index int) {
	for i := index; i <= NumStages; i++ {
		rc.Statuses[i-1] = StagePending
		delete(rc.Results, i)
	}
	rc.Failure = nil
}
