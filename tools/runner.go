// Package tools launches and supervises the external geospatial binaries
// that implement each pipeline stage.
package tools

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/MCarreroPazos/LiDARch/internal/logging"
)

// Invocation describes exactly one external process launch.
type Invocation struct {
	Label   string        // short human-readable description, e.g. "classify tile_0042.las"
	Unit    string        // input unit this invocation processes (empty for aggregate steps)
	Path    string        // resolved binary path
	Args    []string      // arguments, no shell involved
	Dir     string        // working directory
	Timeout time.Duration // zero means no timeout
}

// Result records the outcome of one invocation. A non-zero exit code is not
// an error at this layer; the controller interprets it against the stage's
// tolerance policy.
type Result struct {
	ExitCode  int
	Duration  time.Duration
	Stdout    string
	Stderr    string
	Truncated bool
	TimedOut  bool
}

// Runner executes invocations one at a time, capturing bounded output.
type Runner struct {
	maxOutputBytes int
	logger         logging.Logger
}

// NewRunner creates a Runner. maxOutputBytes bounds the captured stdout and
// stderr each; <=0 selects the 1MB default.
func NewRunner(maxOutputBytes int, logger logging.Logger) *Runner {
	if maxOutputBytes <= 0 {
		maxOutputBytes = 1048576
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Runner{maxOutputBytes: maxOutputBytes, logger: logger}
}

// Run launches the invocation and blocks until the process exits, the
// timeout expires, or ctx is cancelled. Output streams are captured, never
// shown to the user directly. The returned error is non-nil only when the
// process could not be started or was interrupted by cancellation; tool
// failures are reported through Result.ExitCode.
func (r *Runner) Run(ctx context.Context, inv Invocation) (Result, error) {
	cmdCtx := ctx
	var cancel context.CancelFunc
	if inv.Timeout > 0 {
		cmdCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(cmdCtx, inv.Path, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = isolatedEnv()

	stdout := newLimitedWriter(r.maxOutputBytes)
	stderr := newLimitedWriter(r.maxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	r.logger.Debug("launching tool", map[string]any{
		"label": inv.Label,
		"path":  inv.Path,
		"args":  inv.Args,
	})

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Duration:  time.Since(start),
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.overflow || stderr.overflow,
	}

	if err != nil {
		if inv.Timeout > 0 && cmdCtx.Err() == context.DeadlineExceeded {
			res.TimedOut = true
			return res, nil
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}
	return res, nil
}

// isolatedEnv passes through only the variables external geospatial tools
// need to locate their own resources.
func isolatedEnv() []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + os.Getenv("HOME"),
		"LANG=" + os.Getenv("LANG"),
	}
	for _, key := range []string{"TMPDIR", "SAGA_MLB", "GDAL_DATA", "PROJ_LIB"} {
		if val, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+val)
		}
	}
	return env
}

// limitedWriter wraps a bytes.Buffer and silently drops bytes after the
// limit. It always returns len(p) to avoid broken pipe errors from the
// child process.
type limitedWriter struct {
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func newLimitedWriter(limit int) *limitedWriter {
	return &limitedWriter{limit: limit}
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		w.overflow = true
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		w.overflow = true
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

func (w *limitedWriter) String() string {
	return w.buf.String()
}
