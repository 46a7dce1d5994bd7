package pipeline

import (
	"github.com/MCarreroPazos/LiDARch/artifact"
	"github.com/MCarreroPazos/LiDARch/config"
	"github.com/MCarreroPazos/LiDARch/progress"
	"github.com/MCarreroPazos/LiDARch/tools"
)

// mergeStage joins every terrain-only tile into merged_cloud.las with a
// single lasmerge call.
type mergeStage struct{}

func (s *mergeStage) Spec() Spec {
	return Spec{
		Index:              5,
		Name:               "merge",
		Granularity:        progress.Aggregate,
		Inputs:             artifact.Requirement{Dir: artifact.DirTerrain, Pattern: "only_terrain_*.las", Min: 1},
		OutputDir:          artifact.DirMerged,
		Outputs:            artifact.Requirement{Dir: artifact.DirMerged, Pattern: "merged_cloud.las", Min: 1},
		Watch:              artifact.Requirement{Dir: artifact.DirMerged, Pattern: "merged_cloud.las"},
		SpanStart:          75,
		SpanEnd:            85,
		DefaultUnitSeconds: 30,
	}
}

func (s *mergeStage) Policy(cfg *config.Config) config.StageConfig {
	return cfg.Stages.Merge
}

func (s *mergeStage) Plan(rc *RunContext) ([]tools.Invocation, error) {
	lasmerge, err := rc.Toolchain.Path(tools.LasMerge)
	if err != nil {
		return nil, err
	}
	policy := s.Policy(rc.Cfg)
	extra, err := policy.SplitExtraArgs()
	if err != nil {
		return nil, err
	}

	inputs, err := rc.Store.ListInputs(artifact.DirTerrain, "only_terrain_*.las")
	if err != nil {
		return nil, err
	}

	args := []string{"-i"}
	args = append(args, inputs...)
	args = append(args, "-o", rc.Store.Join(artifact.DirMerged, "merged_cloud.las"))
	args = append(args, extra...)

	return []tools.Invocation{{
		Label:   "merge terrain tiles",
		Unit:    "merged_cloud.las",
		Path:    lasmerge,
		Args:    args,
		Dir:     rc.Root,
		Timeout: policy.Timeout.AsDuration(),
	}}, nil
}
