package artifact

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/MCarreroPazos/LiDARch/internal/logging"
)

// OutputWatcher observes a stage's output directory while a long-running
// external tool works, reporting the number of expected artifacts present so
// the progress surface can show life signs during aggregate stages.
type OutputWatcher struct {
	store    *Store
	req      Requirement
	onCount  func(n int)
	logger   logging.Logger
	debounce time.Duration

	mu   sync.Mutex
	last int
}

// NewOutputWatcher creates a watcher for the given requirement. onCount is
// invoked (debounced) whenever the number of matching files changes.
func NewOutputWatcher(store *Store, req Requirement, onCount func(n int), logger logging.Logger) *OutputWatcher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &OutputWatcher{
		store:    store,
		req:      req,
		onCount:  onCount,
		logger:   logger,
		debounce: 200 * time.Millisecond,
		last:     -1,
	}
}

// Watch blocks until ctx is cancelled, recounting outputs on filesystem
// events. The directory must already exist. Watch never fails the run: on
// watcher errors it logs and returns, leaving progress to stage boundaries.
func (w *OutputWatcher) Watch(ctx context.Context) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("output watcher unavailable", map[string]any{"error": err.Error()})
		return
	}
	defer fsw.Close()

	dir := w.store.Join(w.req.Dir)
	if err := fsw.Add(dir); err != nil {
		w.logger.Warn("cannot watch output directory", map[string]any{
			"dir": dir, "error": err.Error(),
		})
		return
	}

	w.recount()

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.recount() // final count so the surface ends accurate
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if match, _ := filepath.Match(w.req.Pattern, filepath.Base(ev.Name)); !match {
				continue
			}
			// Debounce bursts of writes while a tool streams its output.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			w.recount()
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("output watcher error", map[string]any{"error": err.Error()})
		}
	}
}

func (w *OutputWatcher) recount() {
	n, err := w.store.CountOutputs(w.req)
	if err != nil {
		return
	}
	w.mu.Lock()
	changed := n != w.last
	w.last = n
	w.mu.Unlock()
	if changed && w.onCount != nil {
		w.onCount(n)
	}
}
