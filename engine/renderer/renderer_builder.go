package renderer

import (
	"github.com/Carmen-Shannon/tracey/engine/camera"
	"github.com/Carmen-Shannon/tracey/engine/gpu"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithSize sets the output resolution. The default is 1280x720.
//
// Parameters:
//   - width: output width in pixels
//   - height: output height in pixels
//
// Returns:
//   - RendererBuilderOption: a function that applies the size option to a renderer
func WithSize(width, height uint32) RendererBuilderOption {
	return func(r *renderer) {
		r.width = max(width, 1)
		r.height = max(height, 1)
	}
}

// WithDevice supplies an existing device instead of creating one for the backend type.
// The renderer does not release a supplied device.
//
// Parameters:
//   - device: the device to render on
//
// Returns:
//   - RendererBuilderOption: a function that applies the device option to a renderer
func WithDevice(device gpu.Device) RendererBuilderOption {
	return func(r *renderer) {
		r.device = device
	}
}

// WithCamera replaces the default camera. The camera's aspect is reset to the output size.
func WithCamera(cam camera.Camera) RendererBuilderOption {
	return func(r *renderer) {
		r.camera = cam
	}
}

// WithMaxBounces sets the path depth pushed to every dispatch. The default is 4.
func WithMaxBounces(n uint32) RendererBuilderOption {
	return func(r *renderer) {
		r.maxBounces = n
	}
}

// WithWorkers sets the worker count of a software device created by the renderer.
func WithWorkers(n int) RendererBuilderOption {
	return func(r *renderer) {
		r.workers = n
	}
}

// WithSeed fixes the random seed of a software device created by the renderer.
func WithSeed(seed uint64) RendererBuilderOption {
	return func(r *renderer) {
		r.seed = &seed
	}
}

// WithForceFallbackAdapter asks WGPU for a CPU/software fallback adapter instead of
// hardware acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe).
//
// Parameters:
//   - force: true to force the fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the fallback adapter option to a renderer
func WithForceFallbackAdapter(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}
