package scene

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/tracey/engine/cache"
	"github.com/Carmen-Shannon/tracey/engine/resource"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrMissingResource is returned by Flatten when a node references an id the store does not hold.
var ErrMissingResource = errors.New("missing resource")

// ShapeInstance is one mesh placed in the world with its material.
type ShapeInstance struct {
	Mesh      *cache.Mesh
	Material  *cache.Material
	Transform mgl32.Mat4
	Node      int
}

// GPUScene is the flattened, GPU-resident form of a graph.
type GPUScene struct {
	Instances []ShapeInstance
}

// Len returns the number of instances.
func (s *GPUScene) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Instances)
}

// Flatten walks g depth first in pre-order, composing global = parent * local, and emits one
// shape instance per node that carries a mesh. Meshes and materials are made resident through
// the cache; nodes without a material use the cache's default material. Globals are written
// back to the nodes.
//
// Parameters:
//   - g: the graph
//   - c: the cache meshes and materials are made resident in
//   - store: the store ids are resolved against
//   - parent: the transform above the root
//
// Returns:
//   - *GPUScene: the instances, empty for an empty graph
//   - error: ErrMissingResource when a referenced id is absent from the store
func Flatten(g Graph, c cache.Cache, store resource.Store, parent mgl32.Mat4) (*GPUScene, error) {
	out := &GPUScene{Instances: make([]ShapeInstance, 0)}
	err := g.Walk(parent, func(i int, n *Node, global mgl32.Mat4) error {
		n.Global = global
		if n.Mesh == nil {
			return nil
		}

		mat := c.DefaultMaterial()
		if n.Material != nil {
			res, ok := store.Material(*n.Material)
			if !ok {
				return fmt.Errorf("%w: node %d (%q) material %s", ErrMissingResource, i, n.Name, *n.Material)
			}
			mat = c.AddMaterial(res)
		}
		res, ok := store.Mesh(*n.Mesh)
		if !ok {
			return fmt.Errorf("%w: node %d (%q) mesh %s", ErrMissingResource, i, n.Name, *n.Mesh)
		}
		out.Instances = append(out.Instances, ShapeInstance{
			Mesh:      c.AddMesh(res),
			Material:  mat,
			Transform: global,
			Node:      i,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
