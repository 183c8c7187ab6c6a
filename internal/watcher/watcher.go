// Package watcher re-runs the indexer when files under the roots change.
//
// Every root is watched recursively (fsnotify watches single directories,
// so each subdirectory is added on its own and new ones are added as they
// appear). Events are coalesced: a run starts once the tree has been quiet
// for the debounce period. Runs go through the indexer's in-process lock,
// so a run started elsewhere in the process is simply retried later.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/darkangelpraha/dropindex/internal/config"
	"github.com/darkangelpraha/dropindex/internal/indexer"
	"github.com/darkangelpraha/dropindex/internal/logger"
)

// Runner performs one incremental index run
type Runner interface {
	Run(ctx context.Context, roots []string) (*indexer.Summary, error)
}

// RunFunc is called after every run with its outcome
type RunFunc func(summary *indexer.Summary, err error)

// Watcher drives debounced index runs from filesystem events
type Watcher struct {
	cfg      config.Config
	runner   Runner
	log      *logger.Logger
	debounce time.Duration
	initial  bool
	onRun    RunFunc
	ignore   []string

	fs *fsnotify.Watcher
}

// Option customizes a Watcher
type Option func(*Watcher)

// WithDebounce overrides the quiet period from the config
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithInitialRun controls whether a run starts immediately (default true)
func WithInitialRun(enabled bool) Option {
	return func(w *Watcher) { w.initial = enabled }
}

// WithOnRun registers a callback invoked after each run
func WithOnRun(fn RunFunc) Option {
	return func(w *Watcher) { w.onRun = fn }
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(w *Watcher) { w.log = l }
}

// New creates a Watcher. Files written by the indexer itself (state and
// snippet databases, audit log, sidecars) never trigger a run.
func New(cfg config.Config, runner Runner, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		runner:   runner,
		debounce: cfg.WatchDebounce(),
		initial:  true,
		fs:       fsw,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = logger.NewNop()
	}
	if w.debounce <= 0 {
		w.debounce = 30 * time.Second
	}
	for _, p := range []string{cfg.StateDB, cfg.SnippetsDB, cfg.AuditPath, cfg.SidecarDir} {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			w.ignore = append(w.ignore, abs)
		}
	}
	return w, nil
}

// Close releases the underlying fsnotify watcher
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// Watch blocks until ctx is cancelled, running the indexer over roots
// after each burst of changes.
func (w *Watcher) Watch(ctx context.Context, roots []string) error {
	for _, root := range roots {
		if err := w.addTree(root); err != nil {
			return err
		}
	}
	w.log.Info("watching roots", "roots", roots, "debounce", w.debounce.String())

	timer := time.NewTimer(0)
	if !w.initial {
		timer.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.log.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}
			w.log.Debug("change detected", "path", event.Name, "op", event.Op.String())
			timer.Reset(w.debounce)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)

		case <-timer.C:
			if w.runOnce(ctx, roots) {
				timer.Reset(w.debounce)
			}
		}
	}
}

// runOnce reports whether the run should be retried after another debounce period.
func (w *Watcher) runOnce(ctx context.Context, roots []string) bool {
	summary, err := w.runner.Run(ctx, roots)
	if w.onRun != nil {
		w.onRun(summary, err)
	}
	switch {
	case errors.Is(err, indexer.ErrIndexInProgress):
		w.log.Info("index run already in progress; retrying later")
		return true
	case ctx.Err() != nil:
		return false
	case err != nil:
		w.log.Error("index run failed", "error", err)
	case summary != nil:
		w.log.Info("index run finished",
			"files_seen", summary.FilesSeen,
			"files_indexed", summary.FilesIndexed,
			"points_indexed", summary.PointsIndexed,
			"seconds", summary.Seconds)
	}
	return false
}

// addTree watches root and every non-excluded directory below it
func (w *Watcher) addTree(root string) error {
	top := config.WalkRoot(root)
	return filepath.WalkDir(top, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == top {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != top && (w.cfg.IsExcludedDir(d.Name()) || w.ignored(path)) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			w.log.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if w.ignored(event.Name) {
		return false
	}
	name := filepath.Base(event.Name)
	if w.cfg.IsExcludedFile(name) || w.cfg.IsExcludedDir(name) {
		return false
	}
	return true
}

// ignored matches the indexer's own files, including sqlite -wal/-shm/-journal siblings
func (w *Watcher) ignored(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, p := range w.ignore {
		if abs == p || strings.HasPrefix(abs, p+"-") || strings.HasPrefix(abs, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
