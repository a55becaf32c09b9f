package scene

import "github.com/go-gl/mathgl/mgl32"

// GraphBuilderOption is a functional option for configuring a Graph created by New.
type GraphBuilderOption func(g *graphImpl)

// WithRootName names the root node.
//
// Parameters:
//   - name: the root node name
//
// Returns:
//   - GraphBuilderOption: option function to apply
func WithRootName(name string) GraphBuilderOption {
	return func(g *graphImpl) {
		g.nodes[g.root].Name = name
	}
}

// WithRootTransform sets the local transform of the root node.
//
// Parameters:
//   - local: the root transform
//
// Returns:
//   - GraphBuilderOption: option function to apply
func WithRootTransform(local mgl32.Mat4) GraphBuilderOption {
	return func(g *graphImpl) {
		g.nodes[g.root].Local = local
	}
}
