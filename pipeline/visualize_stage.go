package pipeline

import (
	"strconv"

	"github.com/MCarreroPazos/LiDARch/artifact"
	"github.com/MCarreroPazos/LiDARch/config"
	"github.com/MCarreroPazos/LiDARch/progress"
	"github.com/MCarreroPazos/LiDARch/tools"
)

// visualizeStage derives the four archaeological relief visualizations from
// the merged DTM: a GDAL hillshade plus the RVT simple local relief model,
// sky-view factor, and local dominance rasters.
type visualizeStage struct{}

func (s *visualizeStage) Spec() Spec {
	return Spec{
		Index:              6,
		Name:               "visualize",
		Granularity:        progress.PerFile,
		Inputs:             artifact.Requirement{Dir: artifact.DirDTM, Pattern: "MDT_merged.tif", Min: 1},
		OutputDir:          artifact.DirVisualizations,
		Outputs:            artifact.Requirement{Dir: artifact.DirVisualizations, Pattern: "*.tif", Min: 4},
		SpanStart:          85,
		SpanEnd:            100,
		DefaultUnitSeconds: 45,
	}
}

func (s *visualizeStage) Policy(cfg *config.Config) config.StageConfig {
	return cfg.Stages.Visualize
}

func (s *visualizeStage) Plan(rc *RunContext) ([]tools.Invocation, error) {
	gdaldem, err := rc.Toolchain.Path(tools.GdalDEM)
	if err != nil {
		return nil, err
	}
	rvt, err := rc.Toolchain.Path(tools.RVT)
	if err != nil {
		return nil, err
	}
	timeout := s.Policy(rc.Cfg).Timeout.AsDuration()

	dem := rc.Store.Join(artifact.DirDTM, "MDT_merged.tif")
	outDir := func(name string) string {
		return rc.Store.Join(artifact.DirVisualizations, name)
	}
	vis := rc.Cfg.Visualizations

	return []tools.Invocation{
		{
			Label: "hillshade",
			Unit:  "hillshade.tif",
			Path:  gdaldem,
			Args: []string{
				"hillshade",
				dem, outDir("hillshade.tif"),
				"-az", fmtNum(vis.Hillshade.Azimuth),
				"-alt", fmtNum(vis.Hillshade.Altitude),
				"-z", fmtNum(vis.Hillshade.ZFactor),
				"-compute_edges",
			},
			Dir:     rc.Root,
			Timeout: timeout,
		},
		{
			Label: "local relief model",
			Unit:  "local_relief_model.tif",
			Path:  rvt,
			Args: []string{
				"slrm",
				"--dem", dem,
				"--output", outDir("local_relief_model.tif"),
				"--radius", strconv.Itoa(vis.SLRM.Radius),
			},
			Dir:     rc.Root,
			Timeout: timeout,
		},
		{
			Label: "sky-view factor",
			Unit:  "sky_view_factor.tif",
			Path:  rvt,
			Args: []string{
				"svf",
				"--dem", dem,
				"--output", outDir("sky_view_factor.tif"),
				"--directions", strconv.Itoa(vis.SVF.Directions),
				"--radius", fmtNum(vis.SVF.MaxRadius),
			},
			Dir:     rc.Root,
			Timeout: timeout,
		},
		{
			Label: "local dominance",
			Unit:  "local_dominance.tif",
			Path:  rvt,
			Args: []string{
				"local-dominance",
				"--dem", dem,
				"--output", outDir("local_dominance.tif"),
				"--min-radius", fmtNum(vis.LocalDominance.MinRadius),
				"--max-radius", fmtNum(vis.LocalDominance.MaxRadius),
				"--radius-increment", fmtNum(vis.LocalDominance.RadiusIncrement),
				"--angular-resolution", fmtNum(vis.LocalDominance.AngularResolution),
				"--observer-height", fmtNum(vis.LocalDominance.ObserverHeight),
			},
			Dir:     rc.Root,
			Timeout: timeout,
		},
	}, nil
}
