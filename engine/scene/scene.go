// Package scene holds the scene graph: an arena of nodes with local transforms, optional mesh and
// material references, and the flatten pass that turns it into a list of GPU shape instances.
package scene

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/tracey/engine/resource"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrUnknownNode is returned when a node index does not exist in the graph.
var ErrUnknownNode = errors.New("unknown node")

// NoParent is the parent index of the root node.
const NoParent = -1

// Node is one scene graph node. Global is derived from the parent chain by Transform and Flatten.
type Node struct {
	Name     string
	Local    mgl32.Mat4
	Global   mgl32.Mat4
	Mesh     *resource.ID
	Material *resource.ID
	Children []int

	parent int
}

// Parent returns the index of the parent node, or NoParent for the root.
func (n Node) Parent() int {
	return n.parent
}

// NewNode creates a node with an identity local transform.
func NewNode(name string) Node {
	return Node{Name: name, Local: mgl32.Ident4(), Global: mgl32.Ident4()}
}

// Graph is a tree of nodes addressed by index. Every node except the root has exactly one
// parent and nodes can only be attached under existing ones, so the graph never has cycles.
type Graph interface {
	// Name returns the graph name.
	Name() string

	// SetName renames the graph.
	SetName(name string)

	// Root returns the root index, or NoParent for an empty graph.
	Root() int

	// Len returns the number of nodes.
	Len() int

	// Node returns a copy of the node at index i.
	Node(i int) (Node, error)

	// AddNode attaches node under parent. The node's Children and Global are ignored. Adding to
	// an empty graph with parent NoParent makes the node the root.
	//
	// Parameters:
	//   - parent: the parent index
	//   - node: the node to add
	//
	// Returns:
	//   - int: the index of the new node
	//   - error: ErrUnknownNode if parent does not exist
	AddNode(parent int, node Node) (int, error)

	// SetLocal replaces the local transform of node i.
	SetLocal(i int, local mgl32.Mat4) error

	// Transform recomputes every Global as parent * Local, depth first from the root.
	Transform(parent mgl32.Mat4)

	// Walk visits nodes depth first in pre-order with their global transforms under parent.
	Walk(parent mgl32.Mat4, visit func(index int, node *Node, global mgl32.Mat4) error) error

	// Summary describes every node with globals computed under the identity.
	Summary() *Summary
}

type graphImpl struct {
	name  string
	root  int
	nodes []Node
}

var _ Graph = &graphImpl{}

// New creates a graph with a single root node carrying an identity transform.
//
// Parameters:
//   - name: the graph name
//   - options: functional options (WithRootName, WithRootTransform)
//
// Returns:
//   - Graph: the graph
func New(name string, options ...GraphBuilderOption) Graph {
	g := &graphImpl{name: name, root: 0, nodes: []Node{NewNode("root")}}
	g.nodes[0].parent = NoParent
	for _, option := range options {
		option(g)
	}
	return g
}

// NewEmpty creates a graph with no nodes.
func NewEmpty(name string) Graph {
	return &graphImpl{name: name, root: NoParent}
}

func (g *graphImpl) Name() string {
	return g.name
}

func (g *graphImpl) SetName(name string) {
	g.name = name
}

func (g *graphImpl) Root() int {
	return g.root
}

func (g *graphImpl) Len() int {
	return len(g.nodes)
}

func (g *graphImpl) valid(i int) bool {
	return i >= 0 && i < len(g.nodes)
}

func (g *graphImpl) Node(i int) (Node, error) {
	if !g.valid(i) {
		return Node{}, fmt.Errorf("%w: %d", ErrUnknownNode, i)
	}
	n := g.nodes[i]
	n.Children = append([]int(nil), n.Children...)
	return n, nil
}

func (g *graphImpl) AddNode(parent int, node Node) (int, error) {
	node.Children = nil
	node.Global = mgl32.Ident4()
	if node.Local == (mgl32.Mat4{}) {
		node.Local = mgl32.Ident4()
	}

	if len(g.nodes) == 0 && parent == NoParent {
		node.parent = NoParent
		g.nodes = append(g.nodes, node)
		g.root = 0
		return 0, nil
	}
	if !g.valid(parent) {
		return 0, fmt.Errorf("%w: parent %d", ErrUnknownNode, parent)
	}
	node.parent = parent
	idx := len(g.nodes)
	g.nodes = append(g.nodes, node)
	g.nodes[parent].Children = append(g.nodes[parent].Children, idx)
	return idx, nil
}

func (g *graphImpl) SetLocal(i int, local mgl32.Mat4) error {
	if !g.valid(i) {
		return fmt.Errorf("%w: %d", ErrUnknownNode, i)
	}
	g.nodes[i].Local = local
	return nil
}

func (g *graphImpl) Walk(parent mgl32.Mat4, visit func(index int, node *Node, global mgl32.Mat4) error) error {
	if len(g.nodes) == 0 {
		return nil
	}
	var walk func(i int, parent mgl32.Mat4) error
	walk = func(i int, parent mgl32.Mat4) error {
		n := &g.nodes[i]
		global := parent.Mul4(n.Local)
		if err := visit(i, n, global); err != nil {
			return err
		}
		for _, c := range n.Children {
			if err := walk(c, global); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(g.root, parent)
}

func (g *graphImpl) Transform(parent mgl32.Mat4) {
	_ = g.Walk(parent, func(_ int, n *Node, global mgl32.Mat4) error {
		n.Global = global
		return nil
	})
}
