package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/MCarreroPazos/LiDARch/artifact"
	"github.com/MCarreroPazos/LiDARch/config"
	"github.com/MCarreroPazos/LiDARch/progress"
	"github.com/MCarreroPazos/LiDARch/tools"
)

// filterStage extracts class-2 (ground) points from each classified tile
// into only_terrain_<n>.las.
type filterStage struct{}

func (s *filterStage) Spec() Spec {
	return Spec{
		Index:              3,
		Name:               "filter",
		Granularity:        progress.PerFile,
		Inputs:             artifact.Requirement{Dir: artifact.DirGround, Pattern: "ground_*.las", Min: 1},
		OutputDir:          artifact.DirTerrain,
		Outputs:            artifact.Requirement{Dir: artifact.DirTerrain, Pattern: "only_terrain_*.las", Min: 1},
		SpanStart:          40,
		SpanEnd:            50,
		DefaultUnitSeconds: 5,
	}
}

func (s *filterStage) Policy(cfg *config.Config) config.StageConfig {
	return cfg.Stages.Filter
}

func (s *filterStage) Plan(rc *RunContext) ([]tools.Invocation, error) {
	las2las, err := rc.Toolchain.Path(tools.Las2Las)
	if err != nil {
		return nil, err
	}
	policy := s.Policy(rc.Cfg)
	extra, err := policy.SplitExtraArgs()
	if err != nil {
		return nil, err
	}

	inputs, err := rc.Store.ListInputs(artifact.DirGround, "ground_*.las")
	if err != nil {
		return nil, err
	}

	timeout := policy.Timeout.AsDuration()
	invs := make([]tools.Invocation, 0, len(inputs))
	for i, in := range inputs {
		out := rc.Store.Join(artifact.DirTerrain, fmt.Sprintf("only_terrain_%d.las", i+1))
		args := []string{"-i", in, "-o", out, "-keep_class", "2"}
		args = append(args, extra...)
		invs = append(invs, tools.Invocation{
			Label:   fmt.Sprintf("filter %s", filepath.Base(in)),
			Unit:    filepath.Base(in),
			Path:    las2las,
			Args:    args,
			Dir:     rc.Root,
			Timeout: timeout,
		})
	}
	return invs, nil
}
