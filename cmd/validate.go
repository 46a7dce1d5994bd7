package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MCarreroPazos/LiDARch/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the lidarch.yaml configuration",
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if !filepath.IsAbs(path) {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}
		path = filepath.Join(wd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	errs, err := config.ValidateSchema(data)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "ERROR: %s\n", e)
		}
		return fmt.Errorf("config validation failed: %d error(s)", len(errs))
	}

	if _, err := config.Parse(data); err != nil {
		return err
	}
	fmt.Printf("%s is valid\n", path)
	return nil
}
