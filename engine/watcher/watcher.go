// Package watcher reloads the current scene file when it changes on disk.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Carmen-Shannon/tracey"
	"github.com/Carmen-Shannon/tracey/engine/model"
	"github.com/Carmen-Shannon/tracey/engine/scene"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last change before a reload.
const DefaultDebounce = 200 * time.Millisecond

// Target is what the watcher reloads into.
type Target interface {
	Load(ctx context.Context, path string) (*scene.Summary, error)
	Events() *model.Events
}

// Watcher follows the scene file named by the most recent SceneLoaded event. Writes to it,
// or its replacement by a new file of the same name, trigger a Load once changes settle.
type Watcher interface {
	// Run watches until ctx is done.
	//
	// Parameters:
	//   - ctx: the lifetime of the watcher, also used for reloads
	//
	// Returns:
	//   - error: error if the file system watcher cannot be created
	Run(ctx context.Context) error

	// Path returns the file currently watched, or "".
	Path() string
}

type watcherImpl struct {
	target   Target
	debounce time.Duration
	initial  string

	mu   sync.Mutex
	path string
}

var _ Watcher = &watcherImpl{}

// NewWatcher creates a Watcher for target.
//
// Parameters:
//   - target: the model scenes are reloaded into
//   - options: functional options (WithDebounce, WithPath)
//
// Returns:
//   - Watcher: the watcher
func NewWatcher(target Target, options ...WatcherBuilderOption) Watcher {
	if target == nil {
		panic("watcher: nil target")
	}
	w := &watcherImpl{target: target, debounce: DefaultDebounce}
	for _, opt := range options {
		opt(w)
	}
	return w
}

func (w *watcherImpl) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

func (w *watcherImpl) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	defer fsw.Close()

	loaded, unsubscribe := w.target.Events().SceneLoaded.Subscribe()
	defer unsubscribe()

	current := ""
	if w.initial != "" {
		current = w.follow(fsw, current, w.initial)
	}

	var (
		timer  *time.Timer
		timerC <-chan time.Time
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
		case ev, ok := <-loaded:
			if !ok {
				return nil
			}
			current = w.follow(fsw, current, ev.Path)
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if current == "" || filepath.Clean(ev.Name) != current || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			tracey.Logger().Warn("watcher error", "error", err)
		case <-timerC:
			timerC = nil
			tracey.Logger().Info("scene changed, reloading", "path", current)
			if _, err := w.target.Load(ctx, current); err != nil {
				tracey.Logger().Warn("scene reload failed", "path", current, "error", err)
			}
		}
	}
}

// follow moves the directory watch from current to path and returns the path now watched.
// Directories are watched rather than files so editors that replace the file are still seen.
func (w *watcherImpl) follow(fsw *fsnotify.Watcher, current, path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		tracey.Logger().Warn("watcher cannot resolve path", "path", path, "error", err)
		return current
	}
	abs = filepath.Clean(abs)
	if abs == current {
		return current
	}
	if current != "" && filepath.Dir(current) != filepath.Dir(abs) {
		_ = fsw.Remove(filepath.Dir(current))
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		tracey.Logger().Warn("watcher cannot watch scene", "path", abs, "error", err)
		return current
	}
	w.mu.Lock()
	w.path = abs
	w.mu.Unlock()
	tracey.Logger().Debug("watching scene", "path", abs)
	return abs
}
