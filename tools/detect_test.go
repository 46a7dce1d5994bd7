package tools

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeFakeTool(t *testing.T, dir, name string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool scripts are POSIX only")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolve_SearchDirs(t *testing.T) {
	dir := t.TempDir()
	want := writeFakeTool(t, dir, "saga_cmd")

	tc := Resolve([]string{SagaCmd}, []string{dir}, nil)
	got, err := tc.Path(SagaCmd)
	if err != nil {
		t.Fatalf("Path() error: %v", err)
	}
	if got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
	if !tc.Complete() {
		t.Error("Complete() = false, want true")
	}
}

func TestResolve_Override(t *testing.T) {
	dir := t.TempDir()
	want := writeFakeTool(t, dir, "las2las64")

	tc := Resolve([]string{Las2Las}, []string{dir}, map[string]string{Las2Las: "las2las64"})
	got, err := tc.Path(Las2Las)
	if err != nil {
		t.Fatalf("Path() error: %v", err)
	}
	if got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}

func TestResolve_AbsoluteOverride(t *testing.T) {
	dir := t.TempDir()
	want := writeFakeTool(t, dir, "my_lasground")

	tc := Resolve([]string{LasGround}, nil, map[string]string{LasGround: want})
	got, err := tc.Path(LasGround)
	if err != nil {
		t.Fatalf("Path() error: %v", err)
	}
	if got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}

func TestResolve_Missing(t *testing.T) {
	tc := Resolve([]string{"lidarch-test-no-such-tool"}, nil, nil)
	if tc.Complete() {
		t.Error("Complete() = true for a missing tool")
	}
	if _, err := tc.Path("lidarch-test-no-such-tool"); err == nil {
		t.Error("Path() should fail for a missing tool")
	}
	_, missing := tc.Availability()
	if len(missing) != 1 {
		t.Errorf("missing = %v, want one entry", missing)
	}
}

func TestRequired_CoversAllStages(t *testing.T) {
	names := Required()
	if len(names) != 9 {
		t.Errorf("Required() returned %d tools, want 9", len(names))
	}
	seen := map[string]bool{}
	for _, n := range names {
		seen[n] = true
	}
	for _, n := range []string{Las2Las, LasGround, LasMerge, SagaCmd, GdalBuildVRT, GdalTranslate, GdalFillNodata, GdalDEM, RVT} {
		if !seen[n] {
			t.Errorf("Required() missing %s", n)
		}
	}
}
