package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch-mode backoff and debounce constants, grounded on
// internal/sync/observer_local.go's watcher error-backoff loop
// (watchErrInitBackoff/watchErrMaxBackoff/watchErrBackoffMult) and
// safetyScanInterval fallback scan.
const (
	watchErrInitBackoff  = 1 * time.Second
	watchErrMaxBackoff   = 30 * time.Second
	watchErrBackoffMult  = 2
	debounceWindow       = 2 * time.Second
	safetyScanInterval   = 5 * time.Minute
)

// FsWatcher abstracts *fsnotify.Watcher so tests can inject a fake,
// mirroring observer_local.go's FsWatcher interface.
type FsWatcher interface {
	Add(path string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWrapper struct{ w *fsnotify.Watcher }

func (f fsnotifyWrapper) Add(path string) error          { return f.w.Add(path) }
func (f fsnotifyWrapper) Close() error                    { return f.w.Close() }
func (f fsnotifyWrapper) Events() <-chan fsnotify.Event   { return f.w.Events }
func (f fsnotifyWrapper) Errors() <-chan error            { return f.w.Errors }

// watcherFactory is overridden in tests.
var watcherFactory = func() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return fsnotifyWrapper{w}, nil
}

// RunWatch runs Synchronize once immediately, then watches changeLogPath
// (the local change-log store's file) for writes and debounces them into
// further opportunistic Synchronize calls, plus a periodic safety scan in
// case filesystem events are missed (component-design.md section 4.5,
// "(added) Watch mode"). reload, if non-nil, triggers an immediate
// out-of-band Synchronize whenever a value is received — the CLI wires
// this to SIGHUP so `rowsync sync reload` can force a resync without
// waiting for the next filesystem event or safety scan.
//
// RunWatch blocks until ctx is cancelled.
func (o *Orchestrator) RunWatch(ctx context.Context, changeLogPath string, progress ProgressFunc, reload <-chan struct{}) error {
	watcher, err := watcherFactory()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(changeLogPath); err != nil {
		return err
	}

	o.logger.Info("watch mode started", slog.String("path", changeLogPath))

	result := o.Synchronize(ctx, progress)
	o.logWatchResult(result)

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}

	safety := time.NewTicker(safetyScanInterval)
	defer safety.Stop()

	backoff := watchErrInitBackoff
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			pending = true
			debounce.Reset(debounceWindow)

		case werr, ok := <-watcher.Errors():
			if !ok {
				return nil
			}

			o.logger.Warn("watch error, backing off", slog.String("error", werr.Error()), slog.Duration("backoff", backoff))

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}

			backoff = min(backoff*watchErrBackoffMult, watchErrMaxBackoff)

		case <-debounce.C:
			if !pending {
				continue
			}

			pending = false
			backoff = watchErrInitBackoff
			result := o.Synchronize(ctx, progress)
			o.logWatchResult(result)

		case <-safety.C:
			result := o.Synchronize(ctx, progress)
			o.logWatchResult(result)

		case <-reload:
			o.logger.Info("reload requested, forcing immediate sync")
			pending = false
			backoff = watchErrInitBackoff
			result := o.Synchronize(ctx, progress)
			o.logWatchResult(result)
		}
	}
}

func (o *Orchestrator) logWatchResult(result *SyncResult) {
	if result.Success {
		o.logger.Info("watch sync completed",
			slog.Int("pushed", result.PushedChanges),
			slog.Int("pulled", result.PulledChanges),
			slog.Int("conflicts_resolved", result.ConflictsResolved),
			slog.Int("unresolved_conflicts", len(result.UnresolvedConflicts)),
		)

		return
	}

	o.logger.Error("watch sync failed", slog.String("error", result.ErrorDetails))
}

func min(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}

	return b
}
