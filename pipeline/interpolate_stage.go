package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MCarreroPazos/LiDARch/artifact"
	"github.com/MCarreroPazos/LiDARch/config"
	"github.com/MCarreroPazos/LiDARch/progress"
	"github.com/MCarreroPazos/LiDARch/tools"
)

// interpolateStage turns the terrain-only tiles into a single gap-filled
// digital terrain model. The chain is fixed: SAGA imports each tile onto a
// regular grid, SAGA exports each grid to GeoTIFF, then GDAL mosaics the
// tiles (buildvrt + translate) and fills nodata gaps into MDT_merged.tif.
type interpolateStage struct{}

func (s *interpolateStage) Spec() Spec {
	return Spec{
		Index:              4,
		Name:               "interpolate",
		Granularity:        progress.Aggregate,
		Inputs:             artifact.Requirement{Dir: artifact.DirTerrain, Pattern: "only_terrain_*.las", Min: 1},
		OutputDir:          artifact.DirDTM,
		Outputs:            artifact.Requirement{Dir: artifact.DirDTM, Pattern: "MDT_merged.tif", Min: 1},
		ScratchDirs:        []string{artifact.DirTempSaga},
		Watch:              artifact.Requirement{Dir: artifact.DirTempSaga, Pattern: "grid_*.tif"},
		SpanStart:          50,
		SpanEnd:            75,
		DefaultUnitSeconds: 12,
	}
}

func (s *interpolateStage) Policy(cfg *config.Config) config.StageConfig {
	return cfg.Stages.Interpolate.StageConfig
}

func (s *interpolateStage) Plan(rc *RunContext) ([]tools.Invocation, error) {
	saga, err := rc.Toolchain.Path(tools.SagaCmd)
	if err != nil {
		return nil, err
	}
	buildvrt, err := rc.Toolchain.Path(tools.GdalBuildVRT)
	if err != nil {
		return nil, err
	}
	translate, err := rc.Toolchain.Path(tools.GdalTranslate)
	if err != nil {
		return nil, err
	}
	fillnodata, err := rc.Toolchain.Path(tools.GdalFillNodata)
	if err != nil {
		return nil, err
	}
	params := rc.Cfg.Stages.Interpolate
	timeout := params.Timeout.AsDuration()

	inputs, err := rc.Store.ListInputs(artifact.DirTerrain, "only_terrain_*.las")
	if err != nil {
		return nil, err
	}

	var invs []tools.Invocation
	tifs := make([]string, 0, len(inputs))

	// One SAGA grid per tile. Grid names follow input order, so the tile
	// list and the VRT are reproducible.
	for i, in := range inputs {
		grid := rc.Store.Join(artifact.DirTempSaga, fmt.Sprintf("grid_%d.sgrd", i+1))
		invs = append(invs, tools.Invocation{
			Label: fmt.Sprintf("grid %s", filepath.Base(in)),
			Unit:  filepath.Base(in),
			Path:  saga,
			Args: []string{
				"io_pdal", "2",
				"-FILES", in,
				"-TARGET_DEFINITION", "0",
				"-TARGET_USER_SIZE", fmtNum(params.CellSize),
				"-TARGET_USER_FITS", "1",
				"-AGGREGATION", "4",
				"-GRID", grid,
			},
			Dir:     rc.Root,
			Timeout: timeout,
		})
	}
	for i := range inputs {
		grid := rc.Store.Join(artifact.DirTempSaga, fmt.Sprintf("grid_%d.sgrd", i+1))
		tif := rc.Store.Join(artifact.DirTempSaga, fmt.Sprintf("grid_%d.tif", i+1))
		tifs = append(tifs, tif)
		invs = append(invs, tools.Invocation{
			Label: fmt.Sprintf("export grid_%d", i+1),
			Unit:  fmt.Sprintf("grid_%d.sgrd", i+1),
			Path:  saga,
			Args: []string{
				"io_gdal", "2",
				"-GRIDS", grid,
				"-FILE", tif,
			},
			Dir:     rc.Root,
			Timeout: timeout,
		})
	}

	// The mosaic tile list is written now; the listed GeoTIFFs are the
	// deterministic outputs of the export invocations above.
	tifList := rc.Store.Join(artifact.DirTempSaga, "tiflist.txt")
	if err := os.WriteFile(tifList, []byte(strings.Join(tifs, "\n")+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("writing mosaic tile list: %w", err)
	}

	vrt := rc.Store.Join(artifact.DirDTM, "MDT_temp.vrt")
	raw := rc.Store.Join(artifact.DirDTM, "MDT_raw.tif")
	merged := rc.Store.Join(artifact.DirDTM, "MDT_merged.tif")

	invs = append(invs,
		tools.Invocation{
			Label:   "mosaic VRT",
			Unit:    "MDT_temp.vrt",
			Path:    buildvrt,
			Args:    []string{"-input_file_list", tifList, vrt},
			Dir:     rc.Root,
			Timeout: timeout,
		},
		tools.Invocation{
			Label: "mosaic GeoTIFF",
			Unit:  "MDT_raw.tif",
			Path:  translate,
			Args: []string{
				"-of", "GTiff",
				"-co", "COMPRESS=DEFLATE",
				"-co", "TILED=YES",
				vrt, raw,
			},
			Dir:     rc.Root,
			Timeout: timeout,
		},
		tools.Invocation{
			Label: "fill nodata",
			Unit:  "MDT_merged.tif",
			Path:  fillnodata,
			Args: []string{
				"-md", strconv.Itoa(params.FillMaxDist),
				"-si", strconv.Itoa(params.FillIterations),
				"-co", "COMPRESS=DEFLATE",
				"-co", "TILED=YES",
				raw, merged,
			},
			Dir:     rc.Root,
			Timeout: timeout,
		},
	)
	return invs, nil
}
