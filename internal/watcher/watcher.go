// Package watcher triggers builds when files under the project change.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marcus/bldr/internal/config"
	"github.com/marcus/bldr/internal/logging"
)

// ErrNoPaths is returned when nothing could be watched.
var ErrNoPaths = errors.New("no paths to watch")

// settleLimit caps how many debounce periods settle may wait.
const settleLimit = 10

// ChangeFunc handles one settled batch of changed paths. It runs on the
// watcher goroutine, so batches never overlap.
type ChangeFunc func(ctx context.Context, changed []string) error

// Watcher watches directory trees recursively and reports debounced
// batches of changes.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	ignore   []string
	debounce time.Duration
	logger   *logging.Logger
}

// New watches cfg.Paths, resolved against root. Ignored directories are
// never descended into.
func New(root string, cfg config.WatchConfig) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = config.DefaultDebounce
	}
	w := &Watcher{
		fsw:      fsw,
		root:     root,
		ignore:   cfg.Ignore,
		debounce: debounce,
		logger:   logging.Component("watcher"),
	}

	paths := cfg.Paths
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		if err := w.addTree(p); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	if len(fsw.WatchList()) == 0 {
		_ = fsw.Close()
		return nil, ErrNoPaths
	}
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Watched returns the watched directories, sorted.
func (w *Watcher) Watched() []string {
	list := w.fsw.WatchList()
	sort.Strings(list)
	return list
}

// Run delivers change batches to fn until ctx is done. Changes made while
// fn runs, and until the tree is quiet for one debounce period afterwards,
// are dropped: a build writing into the watched tree would otherwise
// trigger itself forever. An error from fn is logged and watching continues.
func (w *Watcher) Run(ctx context.Context, fn ChangeFunc) error {
	pending := map[string]struct{}{}
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.handle(event) {
				continue
			}
			pending[event.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.ErrorCtx("watch error", map[string]any{"error": err.Error()})

		case <-fire:
			fire = nil
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)

			w.logger.InfoCtx("changes detected", map[string]any{"count": len(changed)})
			if err := fn(ctx, changed); err != nil {
				w.logger.WarnCtx("change handler failed", map[string]any{"error": err.Error()})
			}
			if n := w.settle(ctx); n > 0 {
				w.logger.DebugCtx("dropped changes made during build", map[string]any{"count": n})
			}
		}
	}
}

// settle discards events until none arrives for one debounce period, or
// for at most settleLimit debounce periods when writes keep coming. New
// directories are still added to the watch. It returns the number of
// changes dropped.
func (w *Watcher) settle(ctx context.Context) int {
	quiet := time.NewTimer(w.debounce)
	defer quiet.Stop()
	limit := time.NewTimer(settleLimit * w.debounce)
	defer limit.Stop()

	dropped := 0
	for {
		select {
		case <-ctx.Done():
			return dropped
		case <-quiet.C:
			return dropped
		case <-limit.C:
			return dropped
		case event, ok := <-w.fsw.Events:
			if !ok {
				return dropped
			}
			if w.handle(event) {
				dropped++
			}
			quiet.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return dropped
			}
			w.logger.ErrorCtx("watch error", map[string]any{"error": err.Error()})
		}
	}
}

// handle reports whether event counts as a change. New directories are
// added to the watch.
func (w *Watcher) handle(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod || w.Ignored(event.Name) {
		return false
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.WarnCtx("cannot watch new directory", map[string]any{"path": event.Name, "error": err.Error()})
			}
		}
	}
	return true
}

// Ignored reports whether path matches an ignore pattern. Patterns are
// matched against every path element below the root and against the
// whole relative path.
func (w *Watcher) Ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	for _, pattern := range w.ignore {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		for _, elem := range strings.Split(rel, "/") {
			if ok, _ := filepath.Match(pattern, elem); ok {
				return true
			}
		}
	}
	return false
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("watching %s: %w", root, err)
			}
			return nil
		}
		if !d.IsDir() {
			if path == root {
				return w.fsw.Add(path)
			}
			return nil
		}
		if path != w.root && w.Ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
