package model

import (
	"github.com/Carmen-Shannon/tracey/engine/profiler"
	"github.com/Carmen-Shannon/tracey/engine/project"
	"github.com/Carmen-Shannon/tracey/engine/renderer"
)

// ModelBuilderOption is a functional option for configuring a Model via NewModel.
type ModelBuilderOption func(*modelImpl)

// WithRenderer sets the renderer. The model takes ownership and releases it on Close.
//
// Parameters:
//   - r: the renderer
//
// Returns:
//   - ModelBuilderOption: a function that applies the renderer option to a model
func WithRenderer(r renderer.Renderer) ModelBuilderOption {
	return func(m *modelImpl) {
		m.st.renderer = r
	}
}

// WithProject sets the initial project instead of the scratch project.
//
// Parameters:
//   - p: the project
//
// Returns:
//   - ModelBuilderOption: a function that applies the project option to a model
func WithProject(p project.Project) ModelBuilderOption {
	return func(m *modelImpl) {
		m.st.project = p
	}
}

// WithProjectRoot sets the directory NewProject creates projects in.
//
// Parameters:
//   - root: the project root, a leading ~ is expanded
//
// Returns:
//   - ModelBuilderOption: a function that applies the project root option to a model
func WithProjectRoot(root string) ModelBuilderOption {
	return func(m *modelImpl) {
		if root != "" {
			m.projectRoot = root
		}
	}
}

// WithSamplesPerPixel sets the samples traced per pixel in each batch.
func WithSamplesPerPixel(n uint32) ModelBuilderOption {
	return func(m *modelImpl) {
		m.samples = max(n, 1)
	}
}

// WithImageWorkers bounds concurrent image decoding during Load.
func WithImageWorkers(n int) ModelBuilderOption {
	return func(m *modelImpl) {
		if n > 0 {
			m.imageWorkers = n
		}
	}
}

// WithProfiler sets the profiler build and render timings are reported to.
func WithProfiler(p *profiler.Profiler) ModelBuilderOption {
	return func(m *modelImpl) {
		m.profiler = p
	}
}
