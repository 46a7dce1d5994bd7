package tools

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
)

// Canonical names of the external binaries the pipeline invokes.
const (
	Las2Las        = "las2las"
	LasGround      = "lasground"
	LasMerge       = "lasmerge"
	SagaCmd        = "saga_cmd"
	GdalBuildVRT   = "gdalbuildvrt"
	GdalTranslate  = "gdal_translate"
	GdalFillNodata = "gdal_fillnodata"
	GdalDEM        = "gdaldem"
	RVT            = "rvt"
)

// Required lists every tool the six stages need, in stage order.
func Required() []string {
	return []string{
		Las2Las, LasGround, LasMerge,
		SagaCmd, GdalBuildVRT, GdalTranslate, GdalFillNodata,
		GdalDEM, RVT,
	}
}

// Toolchain holds resolved absolute paths for the external binaries.
type Toolchain struct {
	paths     map[string]string
	available []string
	missing   []string
}

// Resolve locates each named tool, trying the configured search directories
// first and falling back to PATH. overrides maps a canonical name to an
// alternative binary name or an absolute path (e.g. las2las -> las2las64).
func Resolve(names []string, searchDirs []string, overrides map[string]string) *Toolchain {
	tc := &Toolchain{paths: make(map[string]string, len(names))}

	for _, name := range names {
		binary := name
		if o, ok := overrides[name]; ok && o != "" {
			binary = o
		}

		if abs := findIn(binary, searchDirs); abs != "" {
			tc.paths[name] = abs
			tc.available = append(tc.available, name)
			continue
		}
		if abs, err := exec.LookPath(binary); err == nil {
			tc.paths[name] = abs
			tc.available = append(tc.available, name)
			continue
		}
		tc.missing = append(tc.missing, name)
	}

	sort.Strings(tc.available)
	sort.Strings(tc.missing)
	return tc
}

// Path returns the resolved absolute path for a tool, or an error when the
// tool was not found during resolution.
func (tc *Toolchain) Path(name string) (string, error) {
	p, ok := tc.paths[name]
	if !ok {
		return "", fmt.Errorf("tool %s is not installed or could not be located", name)
	}
	return p, nil
}

// Availability returns the sorted lists of available and missing tools.
func (tc *Toolchain) Availability() (available, missing []string) {
	return tc.available, tc.missing
}

// Complete reports whether every required tool was resolved.
func (tc *Toolchain) Complete() bool { return len(tc.missing) == 0 }

func findIn(binary string, dirs []string) string {
	candidates := []string{binary}
	if runtime.GOOS == "windows" && filepath.Ext(binary) == "" {
		// LAStools ships 64-bit binaries with a suffix on Windows.
		candidates = append(candidates, binary+".exe", binary+"64.exe")
	}
	if filepath.IsAbs(binary) {
		if isExecutable(binary) {
			return binary
		}
		return ""
	}
	for _, dir := range dirs {
		for _, c := range candidates {
			abs := filepath.Join(dir, c)
			if isExecutable(abs) {
				return abs
			}
		}
	}
	return ""
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0111 != 0
}
