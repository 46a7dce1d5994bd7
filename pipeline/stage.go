// Package pipeline sequences the six-stage LiDAR processing workflow: it
// validates stage preconditions, launches the external tools, tracks
// progress, and decides how to react to partial failure.
package pipeline

import (
	"strconv"

	"github.com/MCarreroPazos/LiDARch/artifact"
	"github.com/MCarreroPazos/LiDARch/config"
	"github.com/MCarreroPazos/LiDARch/progress"
	"github.com/MCarreroPazos/LiDARch/tools"
)

// NumStages is the fixed length of the workflow.
const NumStages = 6

// Spec declares a stage's identity, artifact contract, and estimation
// parameters. Specs are immutable and defined once at process start.
type Spec struct {
	Index       int
	Name        string
	Granularity progress.Granularity

	// Inputs is the precondition: files the previous stage must have
	// produced. Outputs describes what this stage is expected to deliver
	// into OutputDir.
	Inputs    artifact.Requirement
	OutputDir string
	Outputs   artifact.Requirement

	// SkipWhenEmpty marks a stage that may be skipped explicitly when it
	// has no units (stage 1 when the tiles arrived uncompressed).
	SkipWhenEmpty bool

	// ScratchDirs are additional working directories the stage needs
	// besides OutputDir, created before the plan runs.
	ScratchDirs []string

	// Watch, when set, names the files whose appearance signals progress
	// inside long invocations. Aggregate stages use it for life signs.
	Watch artifact.Requirement

	// Estimation parameters: the stage's share of the fixed percent layout
	// and the seconds-per-unit guess used before any timing sample exists.
	SpanStart          float64
	SpanEnd            float64
	DefaultUnitSeconds float64
}

// Stage is one step of the fixed workflow. Implementations describe their
// artifact contract and produce a deterministic invocation plan; the
// controller owns sequencing, supervision, and failure policy.
type Stage interface {
	Spec() Spec
	// Policy returns the stage's tolerance configuration.
	Policy(cfg *config.Config) config.StageConfig
	// Plan enumerates the stage's tool invocations in execution order.
	// Plans are deterministic: inputs are consumed in lexicographic
	// filename order so numbered outputs are reproducible.
	Plan(rc *RunContext) ([]tools.Invocation, error)
}

// Stages returns the six stage definitions in execution order.
func Stages() []Stage {
	return []Stage{
		&decompressStage{},
		&classifyStage{},
		&filterStage{},
		&interpolateStage{},
		&mergeStage{},
		&visualizeStage{},
	}
}

// fmtNum renders a numeric tool parameter without a trailing ".0" so the
// command lines match what the tools document.
func fmtNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// EstimatorPlan converts the stage specs into the progress package's plan.
func EstimatorPlan(stages []Stage) []progress.StagePlan {
	plan := make([]progress.StagePlan, 0, len(stages))
	for _, st := range stages {
		sp := st.Spec()
		plan = append(plan, progress.StagePlan{
			Index:              sp.Index,
			Name:               sp.Name,
			Granularity:        sp.Granularity,
			SpanStart:          sp.SpanStart,
			SpanEnd:            sp.SpanEnd,
			DefaultUnitSeconds: sp.DefaultUnitSeconds,
		})
	}
	return plan
}
