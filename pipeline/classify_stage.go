package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/MCarreroPazos/LiDARch/artifact"
	"github.com/MCarreroPazos/LiDARch/config"
	"github.com/MCarreroPazos/LiDARch/progress"
	"github.com/MCarreroPazos/LiDARch/tools"
)

// classifyStage runs lasground ground classification over each tile,
// renumbering outputs as ground_<n>.las in input order.
type classifyStage struct{}

func (s *classifyStage) Spec() Spec {
	return Spec{
		Index:              2,
		Name:               "classify",
		Granularity:        progress.PerFile,
		Inputs:             artifact.Requirement{Dir: artifact.DirRawLAS, Pattern: "*.las", Min: 1},
		OutputDir:          artifact.DirGround,
		Outputs:            artifact.Requirement{Dir: artifact.DirGround, Pattern: "ground_*.las", Min: 1},
		SpanStart:          15,
		SpanEnd:            40,
		DefaultUnitSeconds: 25,
	}
}

func (s *classifyStage) Policy(cfg *config.Config) config.StageConfig {
	return cfg.Stages.Classify.StageConfig
}

func (s *classifyStage) Plan(rc *RunContext) ([]tools.Invocation, error) {
	lasground, err := rc.Toolchain.Path(tools.LasGround)
	if err != nil {
		return nil, err
	}
	params := rc.Cfg.Stages.Classify
	extra, err := params.SplitExtraArgs()
	if err != nil {
		return nil, err
	}

	inputs, err := rc.Store.ListInputs(artifact.DirRawLAS, "*.las")
	if err != nil {
		return nil, err
	}

	timeout := params.Timeout.AsDuration()
	invs := make([]tools.Invocation, 0, len(inputs))
	for i, in := range inputs {
		out := rc.Store.Join(artifact.DirGround, fmt.Sprintf("ground_%d.las", i+1))
		args := []string{
			"-i", in,
			"-o", out,
			"-step", fmtNum(params.Step),
			"-bulge", fmtNum(params.Bulge),
			"-spike", fmtNum(params.Spike),
			"-offset", fmtNum(params.Offset),
		}
		args = append(args, extra...)
		invs = append(invs, tools.Invocation{
			Label:   fmt.Sprintf("classify %s", filepath.Base(in)),
			Unit:    filepath.Base(in),
			Path:    lasground,
			Args:    args,
			Dir:     rc.Root,
			Timeout: timeout,
		})
	}
	return invs, nil
}
