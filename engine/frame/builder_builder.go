package frame

import "github.com/Carmen-Shannon/tracey/engine/gpu"

// BuilderOption is a functional option for configuring a Builder.
type BuilderOption func(*builderImpl)

// WithMaxTextures bounds the bindless texture array.
//
// Parameters:
//   - n: the slot count, at most gpu.MaxBindlessTextures
//
// Returns:
//   - BuilderOption: option function to apply
func WithMaxTextures(n int) BuilderOption {
	return func(b *builderImpl) {
		b.maxTextures = min(max(n, 1), gpu.MaxBindlessTextures)
	}
}

// WithLayouts overrides the descriptor set layouts. The default is gpu.PathTracingLayouts.
func WithLayouts(layouts []gpu.DescriptorSetLayout) BuilderOption {
	return func(b *builderImpl) {
		b.layouts = layouts
	}
}
