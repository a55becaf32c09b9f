package scene

import (
	"github.com/Carmen-Shannon/tracey/engine/resource"
	"github.com/go-gl/mathgl/mgl32"
)

// NodeSummary is a read-only description of one node.
type NodeSummary struct {
	Index    int
	Name     string
	Parent   int
	Children []int
	Mesh     *resource.ID
	Material *resource.ID
	Local    mgl32.Mat4
	Global   mgl32.Mat4
}

// Summary describes a graph for API responses.
type Summary struct {
	Name  string
	Root  int
	Nodes []NodeSummary
}

// Node returns the summary of node i.
func (s *Summary) Node(i int) (NodeSummary, bool) {
	if s == nil || i < 0 || i >= len(s.Nodes) {
		return NodeSummary{}, false
	}
	return s.Nodes[i], true
}

func (g *graphImpl) Summary() *Summary {
	s := &Summary{Name: g.name, Root: g.root, Nodes: make([]NodeSummary, len(g.nodes))}
	for i, n := range g.nodes {
		s.Nodes[i] = NodeSummary{
			Index:    i,
			Name:     n.Name,
			Parent:   n.parent,
			Children: append([]int(nil), n.Children...),
			Mesh:     copyID(n.Mesh),
			Material: copyID(n.Material),
			Local:    n.Local,
			Global:   n.Local,
		}
	}
	_ = g.Walk(mgl32.Ident4(), func(i int, _ *Node, global mgl32.Mat4) error {
		s.Nodes[i].Global = global
		return nil
	})
	return s
}

func copyID(id *resource.ID) *resource.ID {
	if id == nil {
		return nil
	}
	return resource.Ref(*id)
}
