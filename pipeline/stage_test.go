package pipeline

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/MCarreroPazos/LiDARch/artifact"
	"github.com/MCarreroPazos/LiDARch/config"
	"github.com/MCarreroPazos/LiDARch/tools"
)

// Fake tool scripts. Each mimics just enough of the real binary's argument
// convention to create its output file.
const (
	outFlagScript = `#!/bin/sh
prev=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then : > "$a"; fi
  prev="$a"
done
exit 0
`
	sagaScript = `#!/bin/sh
prev=""
for a in "$@"; do
  case "$prev" in
    -GRID|-FILE) : > "$a" ;;
  esac
  prev="$a"
done
exit 0
`
	lastArgScript = `#!/bin/sh
for a in "$@"; do out="$a"; done
: > "$out"
exit 0
`
	gdaldemScript = `#!/bin/sh
: > "$3"
exit 0
`
	rvtScript = `#!/bin/sh
prev=""
for a in "$@"; do
  if [ "$prev" = "--output" ]; then : > "$a"; fi
  prev="$a"
done
exit 0
`
)

func defaultToolScripts() map[string]string {
	return map[string]string{
		tools.Las2Las:        outFlagScript,
		tools.LasGround:      outFlagScript,
		tools.LasMerge:       outFlagScript,
		tools.SagaCmd:        sagaScript,
		tools.GdalBuildVRT:   lastArgScript,
		tools.GdalTranslate:  lastArgScript,
		tools.GdalFillNodata: lastArgScript,
		tools.GdalDEM:        gdaldemScript,
		tools.RVT:            rvtScript,
	}
}

// fakeToolchain installs shell scripts for all nine tools, with optional
// per-tool replacements, and resolves them.
func fakeToolchain(t *testing.T, replace map[string]string) *tools.Toolchain {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool scripts are POSIX only")
	}
	dir := t.TempDir()
	scripts := defaultToolScripts()
	for name, body := range replace {
		scripts[name] = body
	}
	for name, body := range scripts {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	tc := tools.Resolve(tools.Required(), []string{dir}, nil)
	if !tc.Complete() {
		_, missing := tc.Availability()
		t.Fatalf("fake toolchain incomplete: %v", missing)
	}
	return tc
}

func testRunContext(t *testing.T, cfg *config.Config) *RunContext {
	t.Helper()
	root := t.TempDir()
	store := artifact.NewStore(root)
	if _, err := store.SetupProject(seedInputDir(t, "tile_b.laz", "tile_a.laz", "tile_c.laz")); err != nil {
		t.Fatal(err)
	}
	return NewRunContext(root, cfg, store, fakeToolchain(t, nil))
}

func seedInputDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("points"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func seedFiles(t *testing.T, rc *RunContext, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(rc.Store.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestStages_SpansCoverFullRange(t *testing.T) {
	stages := Stages()
	if len(stages) != NumStages {
		t.Fatalf("Stages() returned %d stages, want %d", len(stages), NumStages)
	}
	prevEnd := 0.0
	for i, st := range stages {
		sp := st.Spec()
		if sp.Index != i+1 {
			t.Errorf("stage %d has index %d", i+1, sp.Index)
		}
		if sp.SpanStart != prevEnd {
			t.Errorf("stage %d span starts at %v, want %v", sp.Index, sp.SpanStart, prevEnd)
		}
		prevEnd = sp.SpanEnd
	}
	if prevEnd != 100 {
		t.Errorf("final span ends at %v, want 100", prevEnd)
	}
}

func TestDecompressPlan_OneInvocationPerTile(t *testing.T) {
	rc := testRunContext(t, config.Default())

	invs, err := (&decompressStage{}).Plan(rc)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if len(invs) != 3 {
		t.Fatalf("Plan() returned %d invocations, want 3", len(invs))
	}
	// Inputs are consumed in filename order.
	if invs[0].Unit != "tile_a.laz" || invs[2].Unit != "tile_c.laz" {
		t.Errorf("units = %q, %q, %q, want sorted tiles", invs[0].Unit, invs[1].Unit, invs[2].Unit)
	}
	out := invs[0].Args[3]
	if filepath.Base(out) != "tile_a.las" {
		t.Errorf("output = %q, want tile_a.las", out)
	}
}

func TestClassifyPlan_NumbersFollowSortedInputs(t *testing.T) {
	rc := testRunContext(t, config.Default())
	seedFiles(t, rc, artifact.DirRawLAS, "tile_b.las", "tile_a.las")

	invs, err := (&classifyStage{}).Plan(rc)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if len(invs) != 2 {
		t.Fatalf("Plan() returned %d invocations, want 2", len(invs))
	}
	if invs[0].Unit != "tile_a.las" {
		t.Errorf("first unit = %q, want tile_a.las", invs[0].Unit)
	}
	joined := strings.Join(invs[0].Args, " ")
	if !strings.Contains(joined, "ground_1.las") {
		t.Errorf("first invocation args = %q, want ground_1.las output", joined)
	}
	if !strings.Contains(joined, "-step 5") || !strings.Contains(joined, "-offset 0.05") {
		t.Errorf("classify parameters missing from args: %q", joined)
	}
	if !strings.Contains(strings.Join(invs[1].Args, " "), "ground_2.las") {
		t.Error("second invocation should produce ground_2.las")
	}
}

func TestFilterPlan_KeepsGroundClass(t *testing.T) {
	rc := testRunContext(t, config.Default())
	seedFiles(t, rc, artifact.DirGround, "ground_1.las")

	invs, err := (&filterStage{}).Plan(rc)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if len(invs) != 1 {
		t.Fatalf("Plan() returned %d invocations, want 1", len(invs))
	}
	joined := strings.Join(invs[0].Args, " ")
	if !strings.Contains(joined, "-keep_class 2") {
		t.Errorf("args = %q, want -keep_class 2", joined)
	}
	if !strings.Contains(joined, "only_terrain_1.las") {
		t.Errorf("args = %q, want only_terrain_1.las output", joined)
	}
}

func TestInterpolatePlan_FullChain(t *testing.T) {
	rc := testRunContext(t, config.Default())
	seedFiles(t, rc, artifact.DirTerrain, "only_terrain_1.las", "only_terrain_2.las")
	if _, err := rc.Store.EnsureOutputDir(artifact.DirTempSaga); err != nil {
		t.Fatal(err)
	}

	invs, err := (&interpolateStage{}).Plan(rc)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	// 2 grid imports + 2 exports + buildvrt + translate + fillnodata.
	if len(invs) != 7 {
		t.Fatalf("Plan() returned %d invocations, want 7", len(invs))
	}
	last := invs[len(invs)-1]
	if !strings.Contains(strings.Join(last.Args, " "), "MDT_merged.tif") {
		t.Errorf("final invocation args = %v, want MDT_merged.tif", last.Args)
	}

	list, err := os.ReadFile(rc.Store.Join(artifact.DirTempSaga, "tiflist.txt"))
	if err != nil {
		t.Fatalf("tile list not written: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(list)), "\n")
	if len(lines) != 2 || !strings.HasSuffix(lines[0], "grid_1.tif") || !strings.HasSuffix(lines[1], "grid_2.tif") {
		t.Errorf("tile list = %q, want grid_1.tif then grid_2.tif", lines)
	}
}

func TestMergePlan_SingleInvocation(t *testing.T) {
	rc := testRunContext(t, config.Default())
	seedFiles(t, rc, artifact.DirTerrain, "only_terrain_1.las", "only_terrain_2.las")

	invs, err := (&mergeStage{}).Plan(rc)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if len(invs) != 1 {
		t.Fatalf("Plan() returned %d invocations, want 1", len(invs))
	}
	joined := strings.Join(invs[0].Args, " ")
	if !strings.Contains(joined, "only_terrain_1.las") || !strings.Contains(joined, "only_terrain_2.las") {
		t.Errorf("args = %q, want both terrain tiles", joined)
	}
	if !strings.Contains(joined, "merged_cloud.las") {
		t.Errorf("args = %q, want merged_cloud.las output", joined)
	}
}

func TestVisualizePlan_FourVisualizations(t *testing.T) {
	rc := testRunContext(t, config.Default())
	seedFiles(t, rc, artifact.DirDTM, "MDT_merged.tif")

	invs, err := (&visualizeStage{}).Plan(rc)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	if len(invs) != 4 {
		t.Fatalf("Plan() returned %d invocations, want 4", len(invs))
	}
	wantUnits := []string{"hillshade.tif", "local_relief_model.tif", "sky_view_factor.tif", "local_dominance.tif"}
	for i, want := range wantUnits {
		if invs[i].Unit != want {
			t.Errorf("invocation %d unit = %q, want %q", i, invs[i].Unit, want)
		}
	}
	hillshade := strings.Join(invs[0].Args, " ")
	if !strings.Contains(hillshade, "-az 315") || !strings.Contains(hillshade, "-alt 30") || !strings.Contains(hillshade, "-z 2") {
		t.Errorf("hillshade args = %q, want default azimuth, altitude, z-factor", hillshade)
	}
}
