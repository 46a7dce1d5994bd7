// Package report renders the technical processing report written next to
// the project deliverables after a completed run.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/MCarreroPazos/LiDARch/artifact"
	"github.com/MCarreroPazos/LiDARch/pipeline"
	"github.com/MCarreroPazos/LiDARch/tools"
)

// FileName is the report's location relative to the project root.
const FileName = "technical_report.txt"

const lineWidth = 80

// Write renders the report for a finished run and writes it into the project
// root, returning the report path.
func Write(rc *pipeline.RunContext) (string, error) {
	var b strings.Builder

	rule := strings.Repeat("=", lineWidth)
	sep := strings.Repeat("-", lineWidth)

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "LiDARch - Technical Processing Report")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Generated: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintln(&b)

	writeProjectInfo(&b, sep, rc)
	writeStages(&b, sep, rc)
	writeDeliverables(&b, sep, rc)
	writeSoftware(&b, sep, rc)
	writeEnvironment(&b, sep)

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "LiDARch - Automated LiDAR Processing Tool")
	fmt.Fprintln(&b, rule)

	path := filepath.Join(rc.Root, FileName)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

func writeProjectInfo(b *strings.Builder, sep string, rc *pipeline.RunContext) {
	fmt.Fprintln(b, "PROJECT INFORMATION")
	fmt.Fprintln(b, sep)
	fmt.Fprintf(b, "Run ID: %s\n", rc.ID)
	fmt.Fprintf(b, "Project Directory: %s\n", rc.Root)
	fmt.Fprintf(b, "Input Files: %d (%d LAZ, %d LAS)\n",
		rc.Import.Total(), rc.Import.LAZFiles, rc.Import.LASFiles)
	fmt.Fprintf(b, "Run State: %s\n", rc.State)
	fmt.Fprintf(b, "Total Processing Time: %s\n", rc.Elapsed.Round(time.Second))
	fmt.Fprintln(b)
}

func writeStages(b *strings.Builder, sep string, rc *pipeline.RunContext) {
	cfg := rc.Cfg
	cls := cfg.Stages.Classify
	itp := cfg.Stages.Interpolate
	vis := cfg.Visualizations

	stage := func(index int, title string, lines ...string) {
		fmt.Fprintf(b, "STEP %d: %s\n", index, title)
		fmt.Fprintln(b, sep)
		for _, l := range lines {
			fmt.Fprintln(b, l)
		}
		if res := rc.Result(index); res != nil {
			fmt.Fprintf(b, "Files Processed: %d\n", res.Units)
			fmt.Fprintf(b, "Processing Time: %s\n", res.Duration.Round(time.Second))
			for _, w := range res.Warnings {
				fmt.Fprintf(b, "Warning: %s\n", w)
			}
		} else if rc.Statuses[index-1] == pipeline.StageSkipped {
			fmt.Fprintln(b, "Status: skipped (no compressed tiles)")
		} else {
			fmt.Fprintf(b, "Status: %s\n", rc.Statuses[index-1])
		}
		fmt.Fprintln(b)
	}

	stage(1, "LAZ DECOMPRESSION",
		"Tool: LAStools (las2las)",
		"Purpose: Convert compressed LAZ files to LAS format")

	stage(2, "GROUND CLASSIFICATION",
		"Tool: LAStools (lasground)",
		"Algorithm: Progressive TIN Densification",
		"Parameters:",
		fmt.Sprintf("  - Step size: %g meters", cls.Step),
		fmt.Sprintf("  - Bulge: %g meters", cls.Bulge),
		fmt.Sprintf("  - Spike: %g meters", cls.Spike),
		fmt.Sprintf("  - Offset: %g meters", cls.Offset))

	stage(3, "GROUND POINT FILTERING",
		"Tool: LAStools (las2las)",
		"Filter: Keep only Class 2 (Ground) points")

	stage(4, "DTM INTERPOLATION",
		"Tool: SAGA GIS + GDAL",
		"Method: PDAL grid import from point cloud",
		"Interpolation Parameters:",
		"  - Value Aggregation: Mean",
		fmt.Sprintf("  - Cell Size: %g meter(s)", itp.CellSize),
		"Post-Processing:",
		"  - Grid to GeoTIFF conversion (SAGA io_gdal)",
		"  - Mosaic merging with gdalbuildvrt + gdal_translate",
		fmt.Sprintf("  - Gap filling with gdal_fillnodata (max distance %d, %d iteration(s))",
			itp.FillMaxDist, itp.FillIterations),
		deliverable(rc, artifact.DirDTM, "MDT_merged.tif"))

	stage(5, "POINT CLOUD MERGING",
		"Tool: LAStools (lasmerge)",
		"Purpose: Combine all terrain-only point clouds",
		deliverable(rc, artifact.DirMerged, "merged_cloud.las"))

	stage(6, "ARCHAEOLOGICAL VISUALIZATIONS",
		"Tool: Relief Visualization Toolbox (RVT) + GDAL",
		"",
		"6.1 Hillshade (gdaldem hillshade)",
		fmt.Sprintf("  - Azimuth: %g°", vis.Hillshade.Azimuth),
		fmt.Sprintf("  - Altitude: %g°", vis.Hillshade.Altitude),
		fmt.Sprintf("  - Z-factor: %g", vis.Hillshade.ZFactor),
		"  "+deliverable(rc, artifact.DirVisualizations, "hillshade.tif"),
		"",
		"6.2 Simple Local Relief Model (rvt slrm)",
		fmt.Sprintf("  - Radius: %d cells", vis.SLRM.Radius),
		"  "+deliverable(rc, artifact.DirVisualizations, "local_relief_model.tif"),
		"",
		"6.3 Sky View Factor (rvt svf)",
		fmt.Sprintf("  - Number of directions: %d", vis.SVF.Directions),
		fmt.Sprintf("  - Maximum radius: %g meters", vis.SVF.MaxRadius),
		"  "+deliverable(rc, artifact.DirVisualizations, "sky_view_factor.tif"),
		"",
		"6.4 Local Dominance (rvt local-dominance)",
		fmt.Sprintf("  - Minimum radius: %g meters", vis.LocalDominance.MinRadius),
		fmt.Sprintf("  - Maximum radius: %g meters", vis.LocalDominance.MaxRadius),
		fmt.Sprintf("  - Radius increment: %g meter(s)", vis.LocalDominance.RadiusIncrement),
		fmt.Sprintf("  - Angular resolution: %g°", vis.LocalDominance.AngularResolution),
		fmt.Sprintf("  - Observer height: %g meters", vis.LocalDominance.ObserverHeight),
		"  "+deliverable(rc, artifact.DirVisualizations, "local_dominance.tif"))
}

func writeDeliverables(b *strings.Builder, sep string, rc *pipeline.RunContext) {
	fmt.Fprintln(b, "OUTPUT SUMMARY")
	fmt.Fprintln(b, sep)
	fmt.Fprintln(b, "Final Deliverables:")
	fmt.Fprintf(b, "  1. %s/\n", artifact.DirDTM)
	fmt.Fprintln(b, "     - MDT_merged.tif (Digital Terrain Model)")
	fmt.Fprintf(b, "  2. %s/\n", artifact.DirVisualizations)
	fmt.Fprintln(b, "     - hillshade.tif")
	fmt.Fprintln(b, "     - local_relief_model.tif")
	fmt.Fprintln(b, "     - sky_view_factor.tif")
	fmt.Fprintln(b, "     - local_dominance.tif")
	fmt.Fprintf(b, "  3. %s/\n", artifact.DirMerged)
	fmt.Fprintln(b, "     - merged_cloud.las (Unified ground point cloud)")
	fmt.Fprintln(b)
}

func writeSoftware(b *strings.Builder, sep string, rc *pipeline.RunContext) {
	fmt.Fprintln(b, "SOFTWARE INFORMATION")
	fmt.Fprintln(b, sep)
	for _, name := range tools.Required() {
		if path, err := rc.Toolchain.Path(name); err == nil {
			fmt.Fprintf(b, "%s: %s\n", name, path)
		} else {
			fmt.Fprintf(b, "%s: not found\n", name)
		}
	}
	fmt.Fprintln(b)
}

// writeEnvironment records the host the run executed on. Probe failures are
// tolerated; the report just omits the affected line.
func writeEnvironment(b *strings.Builder, sep string) {
	fmt.Fprintln(b, "PROCESSING ENVIRONMENT")
	fmt.Fprintln(b, sep)
	fmt.Fprintf(b, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if info, err := host.Info(); err == nil {
		fmt.Fprintf(b, "Host: %s (%s %s)\n", info.Hostname, info.Platform, info.PlatformVersion)
	}
	if cpus, err := cpu.Info(); err == nil && len(cpus) > 0 {
		fmt.Fprintf(b, "CPU: %s (%d logical cores)\n", cpus[0].ModelName, runtime.NumCPU())
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		fmt.Fprintf(b, "Memory: %s total\n", formatBytes(vm.Total))
	}
	fmt.Fprintln(b)
}

// deliverable renders "Output: name (size)" with the actual on-disk size.
func deliverable(rc *pipeline.RunContext, dir, name string) string {
	info, err := os.Stat(rc.Store.Join(dir, name))
	if err != nil {
		return fmt.Sprintf("Output: %s (not produced)", name)
	}
	return fmt.Sprintf("Output: %s (%s)", name, formatBytes(uint64(info.Size())))
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
