// Package bvh builds and traverses bounding volume hierarchies. The software device uses them
// as acceleration structures directly; the wgpu device uploads the flattened nodes to its heap.
package bvh

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxLeafSize is the largest number of primitives kept in a leaf.
const MaxLeafSize = 4

// NodeSize is the encoded size of a Node.
const NodeSize = 32

// Node is one flattened BVH node, 32 bytes.
//
// For an inner node Min.W holds the index of the left child and Max.W the index of the right
// child; both are > 0 because children are always stored after their parent. For a leaf
// Min.W holds the negated index of its first primitive (<= 0) and Max.W the negated primitive
// count (< 0). Indices are stored as float32 and stay exact below 2^24.
type Node struct {
	Min mgl32.Vec4
	Max mgl32.Vec4
}

// IsLeaf reports whether the node holds primitives.
func (n Node) IsLeaf() bool {
	return n.Max[3] < 0
}

// Children returns the left and right child indices of an inner node.
func (n Node) Children() (int, int) {
	return int(n.Min[3]), int(n.Max[3])
}

// Leaf returns the first primitive slot and primitive count of a leaf.
func (n Node) Leaf() (int, int) {
	return int(-n.Min[3]), int(-n.Max[3])
}

// Bounds returns the node box.
func (n Node) Bounds() AABB {
	return AABB{Min: n.Min.Vec3(), Max: n.Max.Vec3()}
}

// Item is one primitive handed to Build.
type Item struct {
	Bounds AABB
	// ID is reported back by traversal; it is usually the primitive's original index.
	ID uint32
}

// Tree is a built hierarchy. Order maps leaf slots to item IDs.
type Tree struct {
	Nodes []Node
	Order []uint32
}

// Build constructs a tree over items with a median split on the widest centroid axis.
// An empty input yields a tree with no nodes.
//
// Parameters:
//   - items: the primitives; the slice is reordered in place
//
// Returns:
//   - *Tree: the flattened tree
func Build(items []Item) *Tree {
	t := &Tree{}
	if len(items) == 0 {
		return t
	}
	t.Nodes = make([]Node, 0, 2*len(items)/MaxLeafSize+1)
	t.Order = make([]uint32, 0, len(items))
	t.build(items)
	return t
}

func (t *Tree) build(items []Item) int {
	bounds := EmptyAABB()
	centroids := EmptyAABB()
	for _, it := range items {
		bounds = bounds.Union(it.Bounds)
		centroids = centroids.Extend(it.Bounds.Centroid())
	}

	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{
		Min: bounds.Min.Vec4(0),
		Max: bounds.Max.Vec4(0),
	})

	if len(items) <= MaxLeafSize {
		first := len(t.Order)
		for _, it := range items {
			t.Order = append(t.Order, it.ID)
		}
		t.Nodes[idx].Min[3] = -float32(first)
		t.Nodes[idx].Max[3] = -float32(len(items))
		return idx
	}

	axis := centroids.LargestAxis()
	sort.Slice(items, func(i, j int) bool {
		return items[i].Bounds.Centroid()[axis] < items[j].Bounds.Centroid()[axis]
	})
	mid := len(items) / 2

	left := t.build(items[:mid])
	right := t.build(items[mid:])
	t.Nodes[idx].Min[3] = float32(left)
	t.Nodes[idx].Max[3] = float32(right)
	return idx
}

// Bounds returns the root box, or an empty box for an empty tree.
func (t *Tree) Bounds() AABB {
	if len(t.Nodes) == 0 {
		return EmptyAABB()
	}
	return t.Nodes[0].Bounds()
}

// Traverse visits every primitive whose leaf box the ray enters. visit receives the item ID and
// the ray; it returns true when it recorded a hit, after shrinking r.TMax to the hit distance.
// Traversal stops early when visit reports stop.
//
// Parameters:
//   - r: the ray; TMax is updated through the pointer handed to visit
//   - visit: the per-primitive callback
func (t *Tree) Traverse(r *Ray, visit func(id uint32, r *Ray) (hit, stop bool)) bool {
	if len(t.Nodes) == 0 {
		return false
	}
	invDir := InverseDirection(r.Direction)
	var stack [64]int
	sp := 0
	stack[sp] = 0
	sp++
	anyHit := false
	for sp > 0 {
		sp--
		n := t.Nodes[stack[sp]]
		if _, ok := IntersectAABB(r.Origin, invDir, r.TMin, r.TMax, n.Min.Vec3(), n.Max.Vec3()); !ok {
			continue
		}
		if n.IsLeaf() {
			first, count := n.Leaf()
			for _, id := range t.Order[first : first+count] {
				hit, stop := visit(id, r)
				anyHit = anyHit || hit
				if stop {
					return anyHit
				}
			}
			continue
		}
		left, right := n.Children()
		if sp+2 > len(stack) {
			continue
		}
		stack[sp] = right
		stack[sp+1] = left
		sp += 2
	}
	return anyHit
}

// Marshal encodes the nodes as consecutive 32-byte records.
func (t *Tree) Marshal() []byte {
	buf := make([]byte, len(t.Nodes)*NodeSize)
	for i, n := range t.Nodes {
		off := i * NodeSize
		for c := range 4 {
			binary.LittleEndian.PutUint32(buf[off+c*4:], math.Float32bits(n.Min[c]))
			binary.LittleEndian.PutUint32(buf[off+16+c*4:], math.Float32bits(n.Max[c]))
		}
	}
	return buf
}

// Depth returns the length of the longest root-to-leaf path.
func (t *Tree) Depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.IsLeaf() {
			return 1
		}
		l, r := n.Children()
		return 1 + max(walk(l), walk(r))
	}
	return walk(0)
}
