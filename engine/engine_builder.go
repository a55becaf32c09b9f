package engine

import (
	"time"

	"github.com/Carmen-Shannon/tracey/engine/preview"
	"github.com/Carmen-Shannon/tracey/engine/server"
	"github.com/Carmen-Shannon/tracey/engine/watcher"
)

// EngineBuilderOption is a functional option for configuring an Engine.
type EngineBuilderOption func(*engine)

// WithServer serves the GraphQL API while the engine runs.
//
// Parameters:
//   - s: the server, built for the engine's model
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithServer(s server.Server) EngineBuilderOption {
	return func(e *engine) {
		e.server = s
	}
}

// WithWatcher reloads the loaded scene file on change while the engine runs.
//
// Parameters:
//   - w: the watcher, targeting the engine's model
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWatcher(w watcher.Watcher) EngineBuilderOption {
	return func(e *engine) {
		e.watcher = w
	}
}

// WithPreview shows the preview window on the goroutine that calls Run. Closing the window stops
// the engine.
func WithPreview(p preview.Preview) EngineBuilderOption {
	return func(e *engine) {
		e.preview = p
	}
}

// WithStatusInterval logs the model counters every d. Values <= 0 disable the status log.
//
// Parameters:
//   - d: the interval between status lines
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithStatusInterval(d time.Duration) EngineBuilderOption {
	return func(e *engine) {
		e.statusInterval = max(d, 0)
	}
}
