// Package artifact tracks the fixed on-disk layout a pipeline run produces
// and validates what each stage needs and what it delivered.
package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Directory names under the project root. The layout is a compatibility
// contract: downstream GIS workflows expect these exact names.
const (
	DirRawLAZ         = "raw_lidar_laz"
	DirRawLAS         = "raw_lidar_las"
	DirGround         = "ground"
	DirTerrain        = "only_terrain"
	DirTempSaga       = "temp_saga"
	DirDTM            = "MDT_geotiff"
	DirMerged         = "lidar_merged"
	DirVisualizations = "RVT_visualizations"
)

// intermediateDirs are removed after a completed run unless the user keeps them.
var intermediateDirs = []string{DirRawLAZ, DirGround, DirTerrain, DirTempSaga}

// Requirement describes a set of files a stage consumes or produces: at
// least Min files matching Pattern inside Dir (relative to the project root).
type Requirement struct {
	Dir     string
	Pattern string
	Min     int
}

// MissingInputError reports that a stage's input artifacts are absent. It is
// a normal, non-fatal outcome of precondition validation; the controller
// turns it into a failed run without ever launching the stage.
type MissingInputError struct {
	Dir      string
	Pattern  string
	Expected string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing input artifacts: expected %s", e.Expected)
}

// Store validates stage preconditions and detects stage completion against
// one project directory tree. It only ever creates directories; it never
// deletes or overwrites data outside a stage's own output directory.
type Store struct {
	root string
}

// NewStore creates a Store over the given project root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the project root path.
func (s *Store) Root() string { return s.root }

// Join resolves a path relative to the project root.
func (s *Store) Join(parts ...string) string {
	return filepath.Join(append([]string{s.root}, parts...)...)
}

// ValidatePreconditions checks that the requirement is satisfied. A
// *MissingInputError is returned when it is not; other errors indicate
// filesystem trouble.
func (s *Store) ValidatePreconditions(req Requirement) error {
	n, err := s.count(req)
	if err != nil {
		return err
	}
	if n < req.Min {
		return &MissingInputError{
			Dir:      req.Dir,
			Pattern:  req.Pattern,
			Expected: fmt.Sprintf("at least %d file(s) matching %s in %s", req.Min, req.Pattern, req.Dir),
		}
	}
	return nil
}

// CountOutputs returns how many files currently satisfy the requirement's
// pattern. Used both for completion detection and progress display.
func (s *Store) CountOutputs(req Requirement) (int, error) {
	return s.count(req)
}

func (s *Store) count(req Requirement) (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, req.Dir, req.Pattern))
	if err != nil {
		return 0, fmt.Errorf("matching %s in %s: %w", req.Pattern, req.Dir, err)
	}
	return len(matches), nil
}

// EnsureOutputDir creates the stage output directory if needed and reports
// whether it had to be created.
func (s *Store) EnsureOutputDir(dir string) (created bool, err error) {
	path := s.Join(dir)
	if info, statErr := os.Stat(path); statErr == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("output path %s exists and is not a directory", path)
		}
		return false, nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return false, fmt.Errorf("creating output directory %s: %w", path, err)
	}
	return true, nil
}

// ListInputs returns the absolute paths of files matching pattern in dir,
// sorted lexicographically by filename so numbered outputs are reproducible
// across runs over identical input sets.
func (s *Store) ListInputs(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("listing %s in %s: %w", pattern, dir, err)
	}
	sort.Slice(matches, func(i, j int) bool {
		return filepath.Base(matches[i]) < filepath.Base(matches[j])
	})
	return matches, nil
}

// ImportSummary reports what project setup copied into the tree.
type ImportSummary struct {
	LAZFiles int
	LASFiles int
}

// Total returns the number of imported point-cloud tiles.
func (s ImportSummary) Total() int { return s.LAZFiles + s.LASFiles }

// SetupProject creates the project directory skeleton and imports the raw
// LAS/LAZ tiles from inputDir. A project with zero tiles is a setup error.
func (s *Store) SetupProject(inputDir string) (ImportSummary, error) {
	var sum ImportSummary

	for _, dir := range []string{
		DirRawLAZ, DirRawLAS, DirGround, DirTerrain,
		DirDTM, DirMerged, DirVisualizations,
	} {
		if err := os.MkdirAll(s.Join(dir), 0o755); err != nil {
			return sum, fmt.Errorf("creating project directory %s: %w", dir, err)
		}
	}

	laz, err := globSorted(inputDir, "*.laz")
	if err != nil {
		return sum, err
	}
	las, err := globSorted(inputDir, "*.las")
	if err != nil {
		return sum, err
	}
	if len(laz)+len(las) == 0 {
		return sum, fmt.Errorf("no LAS/LAZ files found in %s", inputDir)
	}

	for _, src := range laz {
		if err := copyFile(src, s.Join(DirRawLAZ, filepath.Base(src))); err != nil {
			return sum, err
		}
		sum.LAZFiles++
	}
	for _, src := range las {
		if err := copyFile(src, s.Join(DirRawLAS, filepath.Base(src))); err != nil {
			return sum, err
		}
		sum.LASFiles++
	}
	return sum, nil
}

// Cleanup removes the intermediate directories and scratch files left behind
// by a completed run. Final deliverables are never touched.
func (s *Store) Cleanup() error {
	for _, dir := range intermediateDirs {
		path := s.Join(dir)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("removing %s: %w", dir, err)
		}
	}
	// Scratch raster artifacts from the interpolation stage.
	for _, name := range []string{"MDT_temp.vrt", "MDT_raw.tif"} {
		path := s.Join(DirDTM, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", name, err)
		}
	}
	return nil
}

func globSorted(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("scanning %s for %s: %w", dir, pattern, err)
	}
	sort.Slice(matches, func(i, j int) bool {
		return strings.ToLower(filepath.Base(matches[i])) < strings.ToLower(filepath.Base(matches[j]))
	})
	return matches, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", filepath.Base(src), err)
	}
	return out.Close()
}
