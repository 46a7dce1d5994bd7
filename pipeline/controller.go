package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MCarreroPazos/LiDARch/artifact"
	"github.com/MCarreroPazos/LiDARch/config"
	"github.com/MCarreroPazos/LiDARch/internal/logging"
	"github.com/MCarreroPazos/LiDARch/progress"
	"github.com/MCarreroPazos/LiDARch/tools"
)

// Controller drives a run through the six stages sequentially. It owns all
// run state; the front end observes it exclusively through the status
// callback and never mutates anything.
type Controller struct {
	cfg       *config.Config
	store     *artifact.Store
	toolchain *tools.Toolchain
	runner    *tools.Runner
	logger    logging.Logger
	stages    []Stage
	onStatus  func(Snapshot)

	mu         sync.Mutex
	rc         *RunContext
	est        *progress.Estimator
	unitsDone  int
	unitsTotal int

	softCancel atomic.Bool
	hardCancel atomic.Pointer[context.CancelFunc]

	imported artifact.ImportSummary
}

// NewController wires a controller over a prepared project. onStatus may be
// nil; when set it is invoked after every state transition with a value copy.
func NewController(cfg *config.Config, store *artifact.Store, tc *tools.Toolchain, logger logging.Logger, onStatus func(Snapshot)) *Controller {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Controller{
		cfg:       cfg,
		store:     store,
		toolchain: tc,
		runner:    tools.NewRunner(cfg.MaxOutputBytes, logger),
		logger:    logger,
		stages:    Stages(),
		onStatus:  onStatus,
	}
}

// RecordImport attaches the project-setup import summary so it appears in
// run state and the report.
func (c *Controller) RecordImport(sum artifact.ImportSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.imported = sum
}

// Run executes the whole workflow from stage 1 and blocks until it reaches a
// terminal state. The returned error is the run's *StageError when the run
// failed or was cancelled, nil when it completed.
func (c *Controller) Run(ctx context.Context) error {
	return c.RunFrom(ctx, 1)
}

// RunFrom starts a fresh run at the given stage, trusting the artifacts
// earlier stages left on disk. The resumed stage's own precondition check
// still guards against missing inputs.
func (c *Controller) RunFrom(ctx context.Context, from int) error {
	if from < 1 || from > NumStages {
		return fmt.Errorf("stage index %d out of range 1..%d", from, NumStages)
	}
	c.mu.Lock()
	c.rc = NewRunContext(c.store.Root(), c.cfg, c.store, c.toolchain)
	c.rc.Import = c.imported
	c.est = progress.NewEstimator(EstimatorPlan(c.stages))
	for i := 1; i < from; i++ {
		c.rc.Statuses[i-1] = StageSkipped
		c.est.MarkSkipped(i)
	}
	c.mu.Unlock()
	return c.run(ctx, from)
}

// RestartFromStage reruns the workflow from the given stage, keeping the
// artifacts and statuses of everything before it. Every earlier stage must
// have succeeded or been skipped.
func (c *Controller) RestartFromStage(ctx context.Context, index int) error {
	if index < 1 || index > NumStages {
		return fmt.Errorf("stage index %d out of range 1..%d", index, NumStages)
	}

	c.mu.Lock()
	if c.rc == nil {
		c.mu.Unlock()
		return errors.New("no previous run to restart")
	}
	if !c.rc.State.Terminal() {
		c.mu.Unlock()
		return errors.New("cannot restart while a run is in progress")
	}
	for i := 1; i < index; i++ {
		if !c.rc.Statuses[i-1].cleared() {
			c.mu.Unlock()
			return fmt.Errorf("cannot restart from stage %d: stage %d has not completed", index, i)
		}
	}
	c.rc.resetFrom(index)
	c.est = progress.NewEstimator(EstimatorPlan(c.stages))
	for _, st := range c.stages[:index-1] {
		c.est.MarkSkipped(st.Spec().Index)
	}
	c.mu.Unlock()
	return c.run(ctx, index)
}

// Cancel requests that the run stop. A soft cancel lets the in-flight tool
// invocation finish and stops at the next unit boundary; a hard cancel kills
// the child process immediately. Artifacts already written stay on disk.
func (c *Controller) Cancel(hard bool) {
	c.softCancel.Store(true)
	if hard {
		if cancel := c.hardCancel.Load(); cancel != nil {
			(*cancel)()
		}
	}
}

// RunContext returns the state of the current or last run, for reporting.
func (c *Controller) RunContext() *RunContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rc
}

func (c *Controller) run(ctx context.Context, from int) error {
	c.softCancel.Store(false)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.hardCancel.Store(&cancel)
	defer c.hardCancel.Store(nil)

	c.mu.Lock()
	c.rc.State = RunRunning
	c.rc.Failure = nil
	c.mu.Unlock()
	c.publish(0, "")

	start := time.Now()
	for _, st := range c.stages[from-1:] {
		if serr := c.runStage(runCtx, st); serr != nil {
			c.mu.Lock()
			c.rc.Failure = serr
			if serr.Kind == Cancelled {
				c.rc.State = RunCancelled
			} else {
				c.rc.State = RunFailed
			}
			c.rc.Elapsed += time.Since(start)
			c.mu.Unlock()
			c.logger.Error("run stopped", map[string]any{
				"stage": serr.Stage, "kind": string(serr.Kind), "detail": serr.Detail,
			})
			c.publish(serr.Stage, serr.Name)
			return serr
		}
	}

	c.mu.Lock()
	c.rc.State = RunCompleted
	c.rc.Elapsed += time.Since(start)
	c.est.Finish()
	c.mu.Unlock()
	c.logger.Info("run completed", map[string]any{"elapsed": time.Since(start).String()})
	c.publish(NumStages, c.stages[NumStages-1].Spec().Name)
	return nil
}

func (c *Controller) runStage(ctx context.Context, st Stage) *StageError {
	sp := st.Spec()
	policy := st.Policy(c.cfg)

	if c.softCancel.Load() {
		return c.cancelError(sp, "run cancelled before stage started")
	}

	// 1. Precondition: the previous stage's artifacts must be present.
	if err := c.store.ValidatePreconditions(sp.Inputs); err != nil {
		var missing *artifact.MissingInputError
		if errors.As(err, &missing) {
			return c.failError(sp, PreconditionMissing, missing.Error(), "")
		}
		return c.execError(sp, fmt.Sprintf("validating inputs: %v", err), "")
	}

	// 2. Working directories.
	for _, dir := range append([]string{sp.OutputDir}, sp.ScratchDirs...) {
		if _, err := c.store.EnsureOutputDir(dir); err != nil {
			return c.execError(sp, err.Error(), "")
		}
	}

	// 3. Enumerate the invocation plan.
	invs, err := st.Plan(c.rc)
	if err != nil {
		// Plan errors are almost always an unresolved tool binary.
		return c.failError(sp, PreconditionMissing, err.Error(), "")
	}
	if len(invs) == 0 {
		if sp.SkipWhenEmpty {
			c.mu.Lock()
			c.rc.setStatus(sp.Index, StageSkipped)
			c.est.MarkSkipped(sp.Index)
			c.mu.Unlock()
			c.logger.Info("stage skipped", map[string]any{"stage": sp.Index, "name": sp.Name})
			c.publish(sp.Index, sp.Name)
			return nil
		}
		return c.execError(sp, "no work could be planned from the available inputs", "")
	}

	c.mu.Lock()
	c.rc.setStatus(sp.Index, StageRunning)
	c.est.SetUnits(sp.Index, len(invs))
	c.est.OnStageStart(sp.Index)
	c.unitsDone, c.unitsTotal = 0, len(invs)
	c.mu.Unlock()
	c.logger.Info("stage started", map[string]any{
		"stage": sp.Index, "name": sp.Name, "units": len(invs),
	})
	c.publish(sp.Index, sp.Name)

	// 4. Life signs for aggregate stages: watch the files long invocations
	// leave behind and republish status as they appear.
	if sp.Watch.Dir != "" {
		watchCtx, stopWatch := context.WithCancel(ctx)
		defer stopWatch()
		w := artifact.NewOutputWatcher(c.store, sp.Watch, func(n int) {
			c.logger.Debug("outputs detected", map[string]any{
				"stage": sp.Index, "dir": sp.Watch.Dir, "count": n,
			})
			c.publish(sp.Index, sp.Name)
		}, c.logger)
		go w.Watch(watchCtx)
	}

	// 5. Run the plan sequentially. Soft cancellation is honored only at
	// unit boundaries so no tool is killed mid-write.
	stageStart := time.Now()
	result := &StageResult{Stage: sp.Index, Units: len(invs)}
	for _, inv := range invs {
		if c.softCancel.Load() {
			return c.cancelError(sp, fmt.Sprintf("run cancelled after %d of %d units", c.unitsDoneCount(), len(invs)))
		}

		res, err := c.runner.Run(ctx, inv)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return c.cancelError(sp, fmt.Sprintf("run aborted during %s", inv.Label))
			}
			return c.execError(sp, fmt.Sprintf("launching %s: %v", inv.Label, err), "")
		}
		if res.TimedOut {
			detail := fmt.Sprintf("%s exceeded the stage timeout of %s", inv.Label, policy.Timeout.AsDuration())
			return c.failError(sp, Timeout, detail, toolOutput(res))
		}
		if res.ExitCode != 0 {
			if !policy.Tolerates(res.ExitCode) {
				detail := fmt.Sprintf("%s exited with code %d", inv.Label, res.ExitCode)
				if inv.Unit != "" {
					detail = fmt.Sprintf("%s exited with code %d while processing %s", inv.Label, res.ExitCode, inv.Unit)
				}
				return c.execError(sp, detail, toolOutput(res))
			}
			warning := fmt.Sprintf("%s exited with tolerated code %d", inv.Label, res.ExitCode)
			result.Warnings = append(result.Warnings, warning)
			c.logger.Warn("tool warning", map[string]any{
				"stage": sp.Index, "unit": inv.Unit, "exit_code": res.ExitCode,
			})
			if res.ExitCode > result.ExitCode {
				result.ExitCode = res.ExitCode
			}
		}

		c.mu.Lock()
		c.unitsDone++
		c.est.OnUnitDone(sp.Index)
		c.mu.Unlock()
		c.publish(sp.Index, sp.Name)
	}

	// 6. Completion check: the plan ran, but did it deliver?
	count, err := c.store.CountOutputs(sp.Outputs)
	if err != nil {
		return c.execError(sp, fmt.Sprintf("counting outputs: %v", err), "")
	}
	if count < sp.Outputs.Min {
		return c.execError(sp, fmt.Sprintf(
			"expected at least %d file(s) matching %s in %s, found %d",
			sp.Outputs.Min, sp.Outputs.Pattern, sp.Outputs.Dir, count), "")
	}

	result.OutputCount = count
	result.Duration = time.Since(stageStart)
	c.mu.Lock()
	c.rc.Results[sp.Index] = result
	c.rc.setStatus(sp.Index, StageSucceeded)
	c.est.OnStageEnd(sp.Index, result.Duration, result.Units)
	c.mu.Unlock()
	c.logger.Info("stage succeeded", map[string]any{
		"stage": sp.Index, "name": sp.Name,
		"outputs": count, "duration": result.Duration.String(),
	})
	c.publish(sp.Index, sp.Name)
	return nil
}

// cancelError builds the cancellation outcome for a stage. The stage goes
// back to Pending: its partial outputs stay on disk and it can be rerun.
func (c *Controller) cancelError(sp Spec, detail string) *StageError {
	c.mu.Lock()
	c.rc.setStatus(sp.Index, StagePending)
	c.mu.Unlock()
	return &StageError{Stage: sp.Index, Name: sp.Name, Kind: Cancelled, Detail: detail}
}

func (c *Controller) execError(sp Spec, detail, output string) *StageError {
	return c.failError(sp, ToolExecutionFailed, detail, output)
}

func (c *Controller) failError(sp Spec, kind FailureKind, detail, output string) *StageError {
	c.mu.Lock()
	c.rc.setStatus(sp.Index, StageFailed)
	c.mu.Unlock()
	return &StageError{
		Stage:  sp.Index,
		Name:   sp.Name,
		Kind:   kind,
		Detail: detail,
		Output: output,
	}
}

func (c *Controller) unitsDoneCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unitsDone
}

func (c *Controller) publish(stageIndex int, stageName string) {
	if c.onStatus == nil {
		return
	}
	c.mu.Lock()
	snap := Snapshot{
		RunID:      c.rc.ID,
		State:      c.rc.State,
		StageIndex: stageIndex,
		StageName:  stageName,
		Statuses:   c.rc.Statuses,
		UnitsDone:  c.unitsDone,
		UnitsTotal: c.unitsTotal,
		Percent:    c.est.Percent(),
		Remaining:  c.est.EstimateRemaining(),
	}
	if c.rc.Failure != nil {
		snap.LastError = c.rc.Failure.Error()
	}
	c.mu.Unlock()
	c.onStatus(snap)
}

// toolOutput prefers stderr for diagnostics, falling back to stdout.
func toolOutput(res tools.Result) string {
	out := strings.TrimSpace(res.Stderr)
	if out == "" {
		out = strings.TrimSpace(res.Stdout)
	}
	return out
}
