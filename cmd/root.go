// Package cmd implements the lidarch CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile       string
	verbose       bool
	themeOverride string

	appVersion = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "lidarch",
	Short: "LiDARch: automated LiDAR processing for archaeological prospection",
	Long: "LiDARch runs airborne LiDAR point clouds through a fixed six-stage workflow\n" +
		"(decompression, ground classification, filtering, DTM interpolation, merging,\n" +
		"relief visualizations) by orchestrating LAStools, SAGA GIS, GDAL, and RVT.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "lidarch.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&themeOverride, "theme", "", "TUI color theme: dark, light, or auto")

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(doctorCmd)
}

// SetVersionInfo sets the version and commit for display.
func SetVersionInfo(version, commit string) {
	appVersion = version
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("lidarch %s (commit: %s)\n", version, commit))
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
