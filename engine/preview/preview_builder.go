package preview

import (
	"time"

	"github.com/Carmen-Shannon/tracey/engine/camera"
	"github.com/Carmen-Shannon/tracey/engine/window"
)

// Defaults used by NewPreview.
const (
	DefaultBatchesPerFrame uint32 = 1
	DefaultMaxBatches      uint32 = 1024
	DefaultIdleInterval           = 100 * time.Millisecond
)

// PreviewBuilderOption is a functional option for configuring a Preview.
type PreviewBuilderOption func(*previewImpl)

// WithBatchesPerFrame sets how many batches are traced between two uploads to the window.
//
// Parameters:
//   - n: batches per displayed frame, at least 1
//
// Returns:
//   - PreviewBuilderOption: option function to apply
func WithBatchesPerFrame(n uint32) PreviewBuilderOption {
	return func(p *previewImpl) {
		p.batchesPerFrame = max(n, 1)
	}
}

// WithMaxBatches stops tracing once n batches have accumulated since the last camera step.
// Zero never stops.
func WithMaxBatches(n uint32) PreviewBuilderOption {
	return func(p *previewImpl) {
		p.maxBatches = n
	}
}

// WithBindings replaces the key bindings.
//
// Parameters:
//   - bindings: the action each key triggers
//
// Returns:
//   - PreviewBuilderOption: option function to apply
func WithBindings(bindings map[window.Key]camera.Action) PreviewBuilderOption {
	return func(p *previewImpl) {
		p.bindings = bindings
	}
}

// WithCamera sets the camera the preview drives. The model camera is moved to it on start.
func WithCamera(cam camera.Camera) PreviewBuilderOption {
	return func(p *previewImpl) {
		p.camera = cam
	}
}
