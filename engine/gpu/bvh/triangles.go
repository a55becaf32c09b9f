package bvh

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Triangles is a bottom-level hierarchy over an indexed triangle list.
type Triangles struct {
	*Tree
	Positions []mgl32.Vec3
	Indices   []uint32
}

// TriangleHit describes the closest triangle hit.
type TriangleHit struct {
	T        float32
	Triangle uint32
	U, V     float32
}

// BuildTriangles builds a hierarchy over triangles given as an index list into positions.
//
// Parameters:
//   - positions: vertex positions
//   - indices: three indices per triangle
//
// Returns:
//   - *Triangles: the hierarchy, holding references to positions and indices
//   - error: error if the index count is not a multiple of 3 or an index is out of range
func BuildTriangles(positions []mgl32.Vec3, indices []uint32) (*Triangles, error) {
	if len(indices)%3 != 0 {
		return nil, fmt.Errorf("index count %d is not a multiple of 3", len(indices))
	}
	items := make([]Item, len(indices)/3)
	for i := range items {
		tri := indices[i*3 : i*3+3]
		for _, ix := range tri {
			if int(ix) >= len(positions) {
				return nil, fmt.Errorf("triangle %d references vertex %d of %d", i, ix, len(positions))
			}
		}
		items[i] = Item{
			Bounds: TriangleBounds(positions[tri[0]], positions[tri[1]], positions[tri[2]]),
			ID:     uint32(i),
		}
	}
	return &Triangles{Tree: Build(items), Positions: positions, Indices: indices}, nil
}

// Vertices returns the three corners of triangle i.
func (t *Triangles) Vertices(i uint32) (mgl32.Vec3, mgl32.Vec3, mgl32.Vec3) {
	return t.Positions[t.Indices[i*3]], t.Positions[t.Indices[i*3+1]], t.Positions[t.Indices[i*3+2]]
}

// Closest returns the nearest hit along r, shrinking r.TMax when found.
func (t *Triangles) Closest(r *Ray) (TriangleHit, bool) {
	var best TriangleHit
	found := t.Traverse(r, func(id uint32, r *Ray) (bool, bool) {
		v0, v1, v2 := t.Vertices(id)
		d, u, v, ok := IntersectTriangle(*r, v0, v1, v2)
		if !ok {
			return false, false
		}
		r.TMax = d
		best = TriangleHit{T: d, Triangle: id, U: u, V: v}
		return true, false
	})
	return best, found
}

// Occluded reports whether anything lies along r within its interval.
func (t *Triangles) Occluded(r Ray) bool {
	return t.Traverse(&r, func(id uint32, r *Ray) (bool, bool) {
		v0, v1, v2 := t.Vertices(id)
		_, _, _, ok := IntersectTriangle(*r, v0, v1, v2)
		return ok, ok
	})
}
