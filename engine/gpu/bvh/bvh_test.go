package bvh

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quadGrid(n int) ([]mgl32.Vec3, []uint32) {
	var pos []mgl32.Vec3
	var idx []uint32
	for i := range n {
		x := float32(i) * 2
		base := uint32(len(pos))
		pos = append(pos,
			mgl32.Vec3{x, 0, 0}, mgl32.Vec3{x + 1, 0, 0},
			mgl32.Vec3{x + 1, 1, 0}, mgl32.Vec3{x, 1, 0})
		idx = append(idx, base, base+1, base+2, base, base+2, base+3)
	}
	return pos, idx
}

func TestIntersectTriangle(t *testing.T) {
	v0 := mgl32.Vec3{-1, -1, 0}
	v1 := mgl32.Vec3{1, -1, 0}
	v2 := mgl32.Vec3{0, 1, 0}

	d, u, v, ok := IntersectTriangle(NewRay(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, -1}), v0, v1, v2)
	require.True(t, ok)
	assert.InDelta(t, 5, d, 1e-5)
	assert.True(t, u >= 0 && v >= 0 && u+v <= 1)

	_, _, _, ok = IntersectTriangle(NewRay(mgl32.Vec3{3, 0, 5}, mgl32.Vec3{0, 0, -1}), v0, v1, v2)
	assert.False(t, ok)

	_, _, _, ok = IntersectTriangle(NewRay(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, 1}), v0, v1, v2)
	assert.False(t, ok, "hit behind the origin")
}

func TestIntersectAABB(t *testing.T) {
	lo := mgl32.Vec3{-1, -1, -1}
	hi := mgl32.Vec3{1, 1, 1}
	origin := mgl32.Vec3{0, 0, 5}

	tEnter, ok := IntersectAABB(origin, InverseDirection(mgl32.Vec3{0, 0, -1}), 0, 100, lo, hi)
	require.True(t, ok)
	assert.InDelta(t, 4, tEnter, 1e-5)

	_, ok = IntersectAABB(origin, InverseDirection(mgl32.Vec3{0, 1, 0}), 0, 100, lo, hi)
	assert.False(t, ok)

	_, ok = IntersectAABB(origin, InverseDirection(mgl32.Vec3{0, 0, -1}), 0, 3, lo, hi)
	assert.False(t, ok, "box beyond TMax")
}

func TestBuildEncodesLeavesAndChildren(t *testing.T) {
	pos, idx := quadGrid(8)
	tris, err := BuildTriangles(pos, idx)
	require.NoError(t, err)

	seen := make(map[uint32]bool)
	for i, n := range tris.Nodes {
		if n.IsLeaf() {
			first, count := n.Leaf()
			assert.LessOrEqual(t, count, MaxLeafSize)
			for _, id := range tris.Order[first : first+count] {
				seen[id] = true
			}
			continue
		}
		l, r := n.Children()
		assert.Greater(t, l, i)
		assert.Greater(t, r, i)
		assert.True(t, n.Bounds().Min[0] <= tris.Nodes[l].Min[0])
	}
	assert.Len(t, seen, 16)
	assert.Greater(t, tris.Depth(), 1)
	assert.Len(t, tris.Marshal(), len(tris.Nodes)*NodeSize)
}

func TestClosestHitMatchesBruteForce(t *testing.T) {
	pos, idx := quadGrid(10)
	tris, err := BuildTriangles(pos, idx)
	require.NoError(t, err)

	for _, x := range []float32{0.25, 2.75, 10.5, 18.9} {
		r := NewRay(mgl32.Vec3{x, 0.4, 3}, mgl32.Vec3{0, 0, -1})
		hit, ok := tris.Closest(&r)
		require.True(t, ok, "x=%v", x)
		assert.InDelta(t, 3, hit.T, 1e-5)
		v0, v1, v2 := tris.Vertices(hit.Triangle)
		assert.True(t, x >= min(v0[0], v1[0], v2[0]) && x <= max(v0[0], v1[0], v2[0]))
	}

	miss := NewRay(mgl32.Vec3{1.5, 0.5, 3}, mgl32.Vec3{0, 0, -1})
	_, ok := tris.Closest(&miss)
	assert.False(t, ok, "gap between quads")
	assert.True(t, tris.Occluded(NewRay(mgl32.Vec3{0.5, 0.5, 3}, mgl32.Vec3{0, 0, -1})))
}

func TestEmptyTree(t *testing.T) {
	tree := Build(nil)
	r := NewRay(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1})
	assert.False(t, tree.Traverse(&r, func(uint32, *Ray) (bool, bool) { return true, false }))
	assert.True(t, tree.Bounds().IsEmpty())
	assert.Equal(t, 0, tree.Depth())
}

func TestBuildTrianglesRejectsBadIndices(t *testing.T) {
	_, err := BuildTriangles([]mgl32.Vec3{{}, {}, {}}, []uint32{0, 1})
	assert.Error(t, err)
	_, err = BuildTriangles([]mgl32.Vec3{{}, {}, {}}, []uint32{0, 1, 3})
	assert.Error(t, err)
}

func TestAABBTransform(t *testing.T) {
	b := AABB{Min: mgl32.Vec3{-1, -1, -1}, Max: mgl32.Vec3{1, 1, 1}}
	moved := b.Transform(mgl32.Translate3D(5, 0, 0).Mul4(mgl32.Scale3D(2, 1, 1)))
	assert.InDelta(t, 3, moved.Min[0], 1e-5)
	assert.InDelta(t, 7, moved.Max[0], 1e-5)
	assert.InDelta(t, -1, moved.Min[1], 1e-5)
}
