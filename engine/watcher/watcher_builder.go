package watcher

import "time"

// WatcherBuilderOption is a functional option for configuring a Watcher.
type WatcherBuilderOption func(*watcherImpl)

// WithDebounce sets the quiet period before a reload.
//
// Parameters:
//   - d: the debounce period
//
// Returns:
//   - WatcherBuilderOption: a function that sets the watcher's debounce
func WithDebounce(d time.Duration) WatcherBuilderOption {
	return func(w *watcherImpl) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithPath starts watching path before any SceneLoaded event arrives.
func WithPath(path string) WatcherBuilderOption {
	return func(w *watcherImpl) {
		w.initial = path
	}
}
