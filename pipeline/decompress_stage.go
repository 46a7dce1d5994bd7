package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/MCarreroPazos/LiDARch/artifact"
	"github.com/MCarreroPazos/LiDARch/config"
	"github.com/MCarreroPazos/LiDARch/progress"
	"github.com/MCarreroPazos/LiDARch/tools"
)

// decompressStage converts the compressed LAZ tiles to LAS, one las2las
// invocation per tile. When the project arrived with uncompressed tiles the
// stage has no units and is skipped explicitly.
type decompressStage struct{}

func (s *decompressStage) Spec() Spec {
	return Spec{
		Index:              1,
		Name:               "decompress",
		Granularity:        progress.PerFile,
		Inputs:             artifact.Requirement{Dir: artifact.DirRawLAZ, Pattern: "*.laz", Min: 0},
		OutputDir:          artifact.DirRawLAS,
		Outputs:            artifact.Requirement{Dir: artifact.DirRawLAS, Pattern: "*.las", Min: 1},
		SkipWhenEmpty:      true,
		SpanStart:          0,
		SpanEnd:            15,
		DefaultUnitSeconds: 8,
	}
}

func (s *decompressStage) Policy(cfg *config.Config) config.StageConfig {
	return cfg.Stages.Decompress
}

func (s *decompressStage) Plan(rc *RunContext) ([]tools.Invocation, error) {
	las2las, err := rc.Toolchain.Path(tools.Las2Las)
	if err != nil {
		return nil, err
	}
	extra, err := s.Policy(rc.Cfg).SplitExtraArgs()
	if err != nil {
		return nil, err
	}

	inputs, err := rc.Store.ListInputs(artifact.DirRawLAZ, "*.laz")
	if err != nil {
		return nil, err
	}

	timeout := s.Policy(rc.Cfg).Timeout.AsDuration()
	invs := make([]tools.Invocation, 0, len(inputs))
	for _, in := range inputs {
		base := filepath.Base(in)
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		out := rc.Store.Join(artifact.DirRawLAS, stem+".las")

		args := []string{"-i", in, "-o", out}
		args = append(args, extra...)
		invs = append(invs, tools.Invocation{
			Label:   fmt.Sprintf("decompress %s", base),
			Unit:    base,
			Path:    las2las,
			Args:    args,
			Dir:     rc.Root,
			Timeout: timeout,
		})
	}
	return invs, nil
}
