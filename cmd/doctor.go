package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cobra"

	"github.com/MCarreroPazos/LiDARch/tools"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the external geospatial tools are installed",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}
	cfg, err := loadProjectConfig(wd)
	if err != nil {
		return err
	}

	fmt.Printf("Host: %s/%s", runtime.GOOS, runtime.GOARCH)
	if info, err := host.Info(); err == nil {
		fmt.Printf(" (%s %s)", info.Platform, info.PlatformVersion)
	}
	fmt.Println()
	if vm, err := mem.VirtualMemory(); err == nil {
		fmt.Printf("Memory: %.1f GB total, %.1f GB available\n",
			float64(vm.Total)/(1<<30), float64(vm.Available)/(1<<30))
	}
	fmt.Println()

	tc := tools.Resolve(tools.Required(), cfg.Tools.SearchDirs, cfg.Tools.Overrides)
	available, missing := tc.Availability()
	for _, name := range available {
		path, _ := tc.Path(name)
		fmt.Printf("  ✓ %-16s %s\n", name, path)
	}
	for _, name := range missing {
		fmt.Printf("  ✗ %-16s not found\n", name)
	}
	fmt.Println()

	if !tc.Complete() {
		fmt.Println("Add the install directories to tools.search_dirs in lidarch.yaml,")
		fmt.Println("or map alternative binary names under tools.overrides.")
		return fmt.Errorf("%d required tool(s) missing", len(missing))
	}
	fmt.Println("All required tools found.")
	return nil
}
