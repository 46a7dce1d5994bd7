package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/MCarreroPazos/LiDARch/artifact"
	"github.com/MCarreroPazos/LiDARch/config"
	"github.com/MCarreroPazos/LiDARch/internal/logging"
	"github.com/MCarreroPazos/LiDARch/internal/tui"
	"github.com/MCarreroPazos/LiDARch/pipeline"
	"github.com/MCarreroPazos/LiDARch/report"
	"github.com/MCarreroPazos/LiDARch/tools"
)

var (
	processInput     string
	processFromStage int
	processKeep      bool
	processPlain     bool
	processDryRun    bool
)

var processCmd = &cobra.Command{
	Use:   "process [project-dir]",
	Short: "Run the six-stage LiDAR workflow on a project directory",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processInput, "input", "", "directory of raw LAS/LAZ tiles to import before processing")
	processCmd.Flags().IntVar(&processFromStage, "from-stage", 1, "resume at this stage, reusing earlier artifacts (1-6)")
	processCmd.Flags().BoolVar(&processKeep, "keep-intermediate", false, "keep intermediate directories after completion")
	processCmd.Flags().BoolVar(&processPlain, "plain", false, "disable the TUI, log status as JSON to stderr")
	processCmd.Flags().BoolVar(&processDryRun, "dry-run", false, "print the planned tool invocations without running them")
}

func runProcess(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving project directory: %w", err)
	}

	cfg, err := loadProjectConfig(root)
	if err != nil {
		return err
	}
	if processKeep {
		cfg.KeepIntermediate = true
	}

	logger := logging.NewJSONLogger(os.Stderr, verbose)
	store := artifact.NewStore(root)

	var imported artifact.ImportSummary
	if processInput != "" {
		imported, err = store.SetupProject(processInput)
		if err != nil {
			return fmt.Errorf("setting up project: %w", err)
		}
		fmt.Printf("Imported %d tile(s) (%d LAZ, %d LAS) into %s\n",
			imported.Total(), imported.LAZFiles, imported.LASFiles, root)
	}

	tc := tools.Resolve(tools.Required(), cfg.Tools.SearchDirs, cfg.Tools.Overrides)
	if !tc.Complete() {
		_, missing := tc.Availability()
		return fmt.Errorf("missing required tools: %s (run 'lidarch doctor' for details)",
			strings.Join(missing, ", "))
	}

	if processDryRun {
		return printPlan(root, cfg, store, tc)
	}

	interactive := !processPlain && term.IsTerminal(int(os.Stdout.Fd()))

	var (
		ctrl   *pipeline.Controller
		runErr error
	)
	if interactive {
		ctrl, runErr = runWithTUI(cfg, store, tc, logger, imported)
	} else {
		ctrl, runErr = runPlain(cfg, store, tc, logger, imported)
	}

	if runErr != nil {
		return runErr
	}

	// The run completed: write the report, then tidy up.
	if path, err := report.Write(ctrl.RunContext()); err != nil {
		logger.Warn("report not written", map[string]any{"error": err.Error()})
	} else {
		fmt.Printf("Technical report: %s\n", path)
	}
	if !cfg.KeepIntermediate {
		if err := store.Cleanup(); err != nil {
			logger.Warn("cleanup incomplete", map[string]any{"error": err.Error()})
		}
	}
	fmt.Println("Processing complete.")
	return nil
}

func runWithTUI(cfg *config.Config, store *artifact.Store, tc *tools.Toolchain, logger logging.Logger, imported artifact.ImportSummary) (*pipeline.Controller, error) {
	updates := make(chan pipeline.Snapshot, 64)
	ctrl := pipeline.NewController(cfg, store, tc, logger, func(snap pipeline.Snapshot) {
		select {
		case updates <- snap:
		default: // never block the controller on a slow terminal
		}
	})
	ctrl.RecordImport(imported)

	errCh := make(chan error, 1)
	go func() {
		errCh <- ctrl.RunFrom(context.Background(), processFromStage)
		close(updates)
	}()

	names := stageNames()
	model := tui.NewRunModel(tui.DetectTheme(themeOverride), names, updates, ctrl.Cancel)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		// The terminal broke; the run keeps going headless.
		logger.Warn("TUI stopped", map[string]any{"error": err.Error()})
	}
	return ctrl, <-errCh
}

func runPlain(cfg *config.Config, store *artifact.Store, tc *tools.Toolchain, logger logging.Logger, imported artifact.ImportSummary) (*pipeline.Controller, error) {
	ctrl := pipeline.NewController(cfg, store, tc, logger, func(snap pipeline.Snapshot) {
		logger.Info("status", map[string]any{
			"state":     snap.State.String(),
			"stage":     snap.StageIndex,
			"name":      snap.StageName,
			"units":     fmt.Sprintf("%d/%d", snap.UnitsDone, snap.UnitsTotal),
			"percent":   fmt.Sprintf("%.1f", snap.Percent),
			"remaining": snap.Remaining.String(),
		})
	})
	ctrl.RecordImport(imported)

	// First interrupt stops at the next file boundary, the second kills
	// the running tool.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Warn("cancellation requested, finishing current file", nil)
		ctrl.Cancel(false)
		<-sigCh
		logger.Warn("aborting now", nil)
		ctrl.Cancel(true)
	}()

	return ctrl, ctrl.RunFrom(context.Background(), processFromStage)
}

func printPlan(root string, cfg *config.Config, store *artifact.Store, tc *tools.Toolchain) error {
	rc := pipeline.NewRunContext(root, cfg, store, tc)
	for _, st := range pipeline.Stages() {
		sp := st.Spec()
		fmt.Printf("Stage %d: %s\n", sp.Index, sp.Name)
		for _, dir := range append([]string{sp.OutputDir}, sp.ScratchDirs...) {
			if _, err := store.EnsureOutputDir(dir); err != nil {
				return err
			}
		}
		invs, err := st.Plan(rc)
		if err != nil {
			fmt.Printf("  (cannot plan: %v)\n", err)
			continue
		}
		if len(invs) == 0 {
			fmt.Println("  (no work)")
			continue
		}
		for _, inv := range invs {
			fmt.Printf("  %s %s\n", inv.Path, strings.Join(inv.Args, " "))
		}
	}
	return nil
}

// loadProjectConfig reads the project's lidarch.yaml, falling back to the
// built-in defaults when none exists.
func loadProjectConfig(root string) (*config.Config, error) {
	path := cfgFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func stageNames() []string {
	names := make([]string, 0, pipeline.NumStages)
	for _, st := range pipeline.Stages() {
		names = append(names, st.Spec().Name)
	}
	return names
}
