// Package watch turns filesystem events in the granted directory into
// debounced discovery passes.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/plansync/internal/reconcile"
)

// DefaultDebounce is how long the directory must be quiet before a pass runs.
const DefaultDebounce = 300 * time.Millisecond

// Discoverer runs a discovery pass.
type Discoverer interface {
	Discover(ctx context.Context, mode reconcile.Mode) (reconcile.DiscoveryReport, error)
}

// Callback is called after every watcher-driven pass.
type Callback func(rep reconcile.DiscoveryReport, err error)

// Watch starts an fsnotify watcher on root and runs a discovery pass once
// events settle, until ctx is cancelled. Events touching only files run a
// light pass; a created, removed or renamed directory runs a deep pass so
// folders are adopted.
//
// New directories created at runtime are automatically added to the watch
// list.
func Watch(ctx context.Context, d Discoverer, root string, debounce time.Duration, logger *slog.Logger, cb Callback) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	// passTimer debounces bursts of events into one pass.
	var passTimer *time.Timer
	var passCh <-chan time.Time
	mode := reconcile.ModeLight

	schedule := func(m reconcile.Mode) {
		if m == reconcile.ModeDeep {
			mode = reconcile.ModeDeep
		}
		if passTimer == nil {
			passTimer = time.NewTimer(debounce)
			passCh = passTimer.C
		} else {
			passTimer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if passTimer != nil {
				passTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-passCh:
			m := mode
			mode = reconcile.ModeLight
			rep, err := d.Discover(ctx, m)
			if err != nil {
				logger.Warn("watcher: discovery failed", slog.String("mode", string(m)), slog.String("error", err.Error()))
			} else {
				logger.Debug("watcher: discovery done", slog.String("mode", string(m)), slog.Bool("changed", rep.Changed()))
			}
			if cb != nil {
				cb(rep, err)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil || hidden(rel) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", rel),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", rel))
					}
					schedule(reconcile.ModeDeep)
					continue
				}
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) != 0:
				schedule(reconcile.ModeLight)
			case ev.Op&fsnotify.Rename != 0:
				// fsnotify reports the old path only; it may have been a
				// directory, so let a deep pass sort it out.
				schedule(reconcile.ModeDeep)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// hidden reports whether any segment of rel starts with a dot. Atomic write
// temp files and VCS directories are never discovered.
func hidden(rel string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(seg, ".") && seg != "." {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the
// watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
