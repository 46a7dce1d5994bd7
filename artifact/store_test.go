package artifact

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestValidatePreconditions_Missing(t *testing.T) {
	s := NewStore(t.TempDir())
	err := s.ValidatePreconditions(Requirement{Dir: DirTerrain, Pattern: "only_terrain_*.las", Min: 1})
	if err == nil {
		t.Fatal("ValidatePreconditions() accepted an empty directory")
	}
	missing, ok := err.(*MissingInputError)
	if !ok {
		t.Fatalf("error type = %T, want *MissingInputError", err)
	}
	if missing.Dir != DirTerrain {
		t.Errorf("missing.Dir = %q, want %q", missing.Dir, DirTerrain)
	}
}

func TestValidatePreconditions_Satisfied(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	touch(t, filepath.Join(root, DirTerrain, "only_terrain_1.las"))

	err := s.ValidatePreconditions(Requirement{Dir: DirTerrain, Pattern: "only_terrain_*.las", Min: 1})
	if err != nil {
		t.Errorf("ValidatePreconditions() error: %v", err)
	}
}

func TestValidatePreconditions_MinZero(t *testing.T) {
	s := NewStore(t.TempDir())
	err := s.ValidatePreconditions(Requirement{Dir: DirRawLAZ, Pattern: "*.laz", Min: 0})
	if err != nil {
		t.Errorf("ValidatePreconditions() with Min 0 error: %v", err)
	}
}

func TestListInputs_SortedByFilename(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	touch(t,
		filepath.Join(root, DirRawLAS, "tile_b.las"),
		filepath.Join(root, DirRawLAS, "tile_a.las"),
		filepath.Join(root, DirRawLAS, "tile_c.las"),
	)

	got, err := s.ListInputs(DirRawLAS, "*.las")
	if err != nil {
		t.Fatalf("ListInputs() error: %v", err)
	}
	want := []string{"tile_a.las", "tile_b.las", "tile_c.las"}
	if len(got) != len(want) {
		t.Fatalf("ListInputs() returned %d files, want %d", len(got), len(want))
	}
	for i := range want {
		if filepath.Base(got[i]) != want[i] {
			t.Errorf("input[%d] = %q, want %q", i, filepath.Base(got[i]), want[i])
		}
	}
}

func TestEnsureOutputDir(t *testing.T) {
	s := NewStore(t.TempDir())

	created, err := s.EnsureOutputDir(DirGround)
	if err != nil {
		t.Fatalf("EnsureOutputDir() error: %v", err)
	}
	if !created {
		t.Error("first EnsureOutputDir() should report created")
	}

	created, err = s.EnsureOutputDir(DirGround)
	if err != nil {
		t.Fatalf("second EnsureOutputDir() error: %v", err)
	}
	if created {
		t.Error("second EnsureOutputDir() should not report created")
	}
}

func TestEnsureOutputDir_FileInTheWay(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	touch(t, filepath.Join(root, DirGround))

	if _, err := s.EnsureOutputDir(DirGround); err == nil {
		t.Error("EnsureOutputDir() accepted a file where the directory should be")
	}
}

func TestSetupProject_ImportsTiles(t *testing.T) {
	input := t.TempDir()
	touch(t,
		filepath.Join(input, "a.laz"),
		filepath.Join(input, "b.las"),
		filepath.Join(input, "notes.txt"),
	)

	root := t.TempDir()
	s := NewStore(root)
	sum, err := s.SetupProject(input)
	if err != nil {
		t.Fatalf("SetupProject() error: %v", err)
	}
	if sum.LAZFiles != 1 || sum.LASFiles != 1 {
		t.Errorf("import summary = %+v, want 1 LAZ and 1 LAS", sum)
	}
	if _, err := os.Stat(filepath.Join(root, DirRawLAZ, "a.laz")); err != nil {
		t.Errorf("a.laz not imported: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, DirRawLAS, "b.las")); err != nil {
		t.Errorf("b.las not imported: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, DirVisualizations)); err != nil {
		t.Errorf("project skeleton incomplete: %v", err)
	}
}

func TestSetupProject_NoTiles(t *testing.T) {
	s := NewStore(t.TempDir())
	if _, err := s.SetupProject(t.TempDir()); err == nil {
		t.Error("SetupProject() accepted an input directory with no tiles")
	}
}

func TestCleanup_RemovesIntermediatesKeepsDeliverables(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root)
	touch(t,
		filepath.Join(root, DirGround, "ground_1.las"),
		filepath.Join(root, DirTempSaga, "grid_1.sgrd"),
		filepath.Join(root, DirDTM, "MDT_merged.tif"),
		filepath.Join(root, DirDTM, "MDT_temp.vrt"),
		filepath.Join(root, DirDTM, "MDT_raw.tif"),
		filepath.Join(root, DirMerged, "merged_cloud.las"),
	)

	if err := s.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, DirGround)); !os.IsNotExist(err) {
		t.Error("ground directory survived cleanup")
	}
	if _, err := os.Stat(filepath.Join(root, DirDTM, "MDT_temp.vrt")); !os.IsNotExist(err) {
		t.Error("scratch VRT survived cleanup")
	}
	if _, err := os.Stat(filepath.Join(root, DirDTM, "MDT_merged.tif")); err != nil {
		t.Error("DTM deliverable removed by cleanup")
	}
	if _, err := os.Stat(filepath.Join(root, DirMerged, "merged_cloud.las")); err != nil {
		t.Error("merged cloud removed by cleanup")
	}
}
