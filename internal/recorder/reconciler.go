package recorder

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/flowork/flowork-deck/internal/logging"
	"github.com/flowork/flowork-deck/internal/platform"
)

var reconcileLog = logging.ForComponent(logging.CompReconcile)

// goneFunc reports that the artifact of watch generation gen disappeared.
type goneFunc func(gen uint64, reason EndReason)

// artifactReconciler detects sessions that ended outside the button: the
// helper removes its state file when a session closes, so a missing file
// means the session is over.
//
// Two independent channels feed it: filesystem push events on the
// artifact's parent directory, and a periodic existence poll that catches
// what push misses (network filesystems, watcher overflow). Both report
// through onGone with their generation; the controller discards reports
// from a generation it already tore down.
//
// Start, Stop and Current run under the controller's lock. The goroutines
// touch only the values captured for their own generation.
type artifactReconciler struct {
	path       string
	interval   time.Duration
	startGrace time.Duration
	onGone     goneFunc
	// watch opens the push channel; nil disables it.
	watch func(dir string) *fsnotify.Watcher

	gen     uint64
	running bool
	cancel  context.CancelFunc
	watcher *fsnotify.Watcher

	wg sync.WaitGroup
}

func newArtifactReconciler(path string, interval, startGrace time.Duration, onGone goneFunc) *artifactReconciler {
	r := &artifactReconciler{
		path:       filepath.Clean(path),
		interval:   interval,
		startGrace: startGrace,
		onGone:     onGone,
	}
	r.watch = r.openWatcher
	return r
}

// Start tears down any previous generation and begins watching.
// It never fails: when push notifications are unavailable the poll channel
// still runs.
func (r *artifactReconciler) Start() uint64 {
	r.Stop()

	r.gen++
	gen := r.gen
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true

	dir := filepath.Dir(r.path)
	if warn := platform.CheckFsnotifySupport(dir); warn != "" {
		reconcileLog.Warn("fsnotify_unreliable", slog.String("dir", dir), slog.String("detail", warn))
	}
	r.watcher = nil
	if r.watch != nil {
		r.watcher = r.watch(dir)
	}

	seen := fileExists(r.path)
	if !seen {
		reconcileLog.Warn("artifact_absent_at_start",
			slog.String("path", r.path),
			slog.Duration("grace", r.startGrace))
	}

	r.wg.Add(1)
	go r.run(ctx, gen, r.watcher, seen)

	reconcileLog.Debug("reconcile_started", slog.String("path", r.path), slog.Uint64("gen", gen))
	return gen
}

func (r *artifactReconciler) openWatcher(dir string) *fsnotify.Watcher {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		reconcileLog.Warn("artifact_dir_unavailable", slog.String("dir", dir), slog.String("error", err.Error()))
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		reconcileLog.Warn("watcher_create_failed", slog.String("error", err.Error()))
		return nil
	}
	if err := w.Add(dir); err != nil {
		reconcileLog.Warn("watcher_add_failed", slog.String("dir", dir), slog.String("error", err.Error()))
		_ = w.Close()
		return nil
	}
	return w
}

// Stop cancels the current generation. It does not wait for the goroutine,
// which may be blocked on the controller lock held by the caller.
func (r *artifactReconciler) Stop() {
	if !r.running {
		return
	}
	r.running = false
	r.gen++
	r.cancel()
	if r.watcher != nil {
		_ = r.watcher.Close()
		r.watcher = nil
	}
	reconcileLog.Debug("reconcile_stopped", slog.String("path", r.path))
}

// Current reports whether gen is the live generation.
func (r *artifactReconciler) Current(gen uint64) bool {
	return r.running && gen == r.gen
}

// Wait blocks until every generation's goroutine has returned. Call it
// without the controller lock.
func (r *artifactReconciler) Wait() {
	r.wg.Wait()
}

func (r *artifactReconciler) run(ctx context.Context, gen uint64, w *fsnotify.Watcher, seen bool) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	startedAt := time.Now()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if w != nil {
		events = w.Events
		errs = w.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != r.path {
				continue
			}
			switch {
			case ev.Has(fsnotify.Remove):
				r.report(ctx, gen, ReasonArtifactDeleted)
				return
			case ev.Has(fsnotify.Rename):
				r.report(ctx, gen, ReasonArtifactRenamed)
				return
			case ev.Has(fsnotify.Create):
				seen = true
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			// Overflow and similar errors only degrade push; polling continues.
			reconcileLog.Warn("watcher_error", slog.String("error", err.Error()))

		case <-ticker.C:
			logging.Aggregate(logging.CompReconcile, "poll_tick", slog.String("path", r.path))
			exists := fileExists(r.path)
			switch {
			case exists:
				seen = true
			case seen:
				r.report(ctx, gen, ReasonArtifactMissing)
				return
			case time.Since(startedAt) >= r.startGrace:
				r.report(ctx, gen, ReasonArtifactMissing)
				return
			}
		}
	}
}

func (r *artifactReconciler) report(ctx context.Context, gen uint64, reason EndReason) {
	if ctx.Err() != nil {
		return
	}
	reconcileLog.Info("artifact_gone", slog.String("path", r.path), slog.String("reason", string(reason)))
	r.onGone(gen, reason)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	if err == nil {
		return true
	}
	// Errors other than not-exist (permissions, transient network faults)
	// are not evidence that the session ended.
	return !errors.Is(err, fs.ErrNotExist)
}
