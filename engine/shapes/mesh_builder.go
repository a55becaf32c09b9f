// Package shapes generates the built-in meshes offered by createBasicShape.
package shapes

import (
	"github.com/Carmen-Shannon/tracey/engine/resource"
	"github.com/go-gl/mathgl/mgl32"
)

var (
	faceIndices   = [6]uint32{0, 2, 1, 0, 3, 2}
	faceTexcoords = [4]mgl32.Vec2{{0, 0}, {0, 1}, {1, 1}, {1, 0}}
	faceTangent   = mgl32.Vec3{1, 0, 0}
)

// MeshBuilder accumulates faces into a single mesh. Each face's indices are offset by the
// number of vertices already present.
type MeshBuilder struct {
	data resource.MeshData
}

// NewMeshBuilder returns an empty builder.
func NewMeshBuilder() *MeshBuilder {
	return &MeshBuilder{}
}

// AddQuad appends a four-vertex face. Corners are given bottom-left, top-left, top-right,
// bottom-right.
//
// Parameters:
//   - corners: the face corners
//   - normal: the face normal shared by all four vertices
//
// Returns:
//   - *MeshBuilder: the builder, for chaining
func (b *MeshBuilder) AddQuad(corners [4]mgl32.Vec3, normal mgl32.Vec3) *MeshBuilder {
	base := uint32(len(b.data.Positions))
	for _, i := range faceIndices {
		b.data.Indices = append(b.data.Indices, base+i)
	}
	for i, c := range corners {
		b.data.Positions = append(b.data.Positions, c)
		b.data.Normals = append(b.data.Normals, normal)
		b.data.Tangents = append(b.data.Tangents, faceTangent)
		b.data.Texcoords = append(b.data.Texcoords, faceTexcoords[i])
	}
	return b
}

// AddXYPlane appends a width x height plane parallel to XY, centred on center.
func (b *MeshBuilder) AddXYPlane(width, height float32, center, normal mgl32.Vec3) *MeshBuilder {
	l, r, bt, t := -width/2, width/2, -height/2, height/2
	return b.AddQuad([4]mgl32.Vec3{
		center.Add(mgl32.Vec3{l, bt, 0}),
		center.Add(mgl32.Vec3{l, t, 0}),
		center.Add(mgl32.Vec3{r, t, 0}),
		center.Add(mgl32.Vec3{r, bt, 0}),
	}, normal)
}

// AddXZPlane appends a width (X) x depth (Z) plane parallel to XZ, centred on center.
func (b *MeshBuilder) AddXZPlane(width, depth float32, center, normal mgl32.Vec3) *MeshBuilder {
	l, r, bt, t := -width/2, width/2, -depth/2, depth/2
	return b.AddQuad([4]mgl32.Vec3{
		center.Add(mgl32.Vec3{l, 0, bt}),
		center.Add(mgl32.Vec3{l, 0, t}),
		center.Add(mgl32.Vec3{r, 0, t}),
		center.Add(mgl32.Vec3{r, 0, bt}),
	}, normal)
}

// AddYZPlane appends a depth (Z) x height (Y) plane parallel to YZ, centred on center.
func (b *MeshBuilder) AddYZPlane(depth, height float32, center, normal mgl32.Vec3) *MeshBuilder {
	l, r, bt, t := -height/2, height/2, -depth/2, depth/2
	return b.AddQuad([4]mgl32.Vec3{
		center.Add(mgl32.Vec3{0, l, bt}),
		center.Add(mgl32.Vec3{0, l, t}),
		center.Add(mgl32.Vec3{0, r, t}),
		center.Add(mgl32.Vec3{0, r, bt}),
	}, normal)
}

// AddCube appends the six outward-facing faces of an axis-aligned box centred on the origin.
//
// Parameters:
//   - width: extent along X
//   - height: extent along Y
//   - depth: extent along Z
//
// Returns:
//   - *MeshBuilder: the builder, for chaining
func (b *MeshBuilder) AddCube(width, height, depth float32) *MeshBuilder {
	return b.
		AddXYPlane(width, height, mgl32.Vec3{0, 0, -depth / 2}, mgl32.Vec3{0, 0, -1}).
		AddXYPlane(width, height, mgl32.Vec3{0, 0, depth / 2}, mgl32.Vec3{0, 0, 1}).
		AddXZPlane(width, depth, mgl32.Vec3{0, -height / 2, 0}, mgl32.Vec3{0, -1, 0}).
		AddXZPlane(width, depth, mgl32.Vec3{0, height / 2, 0}, mgl32.Vec3{0, 1, 0}).
		AddYZPlane(depth, height, mgl32.Vec3{-width / 2, 0, 0}, mgl32.Vec3{-1, 0, 0}).
		AddYZPlane(depth, height, mgl32.Vec3{width / 2, 0, 0}, mgl32.Vec3{1, 0, 0})
}

// AddTriangle appends a single triangle spanning (-1,-1,0), (1,-1,0), (0,1,0) facing +Z.
func (b *MeshBuilder) AddTriangle() *MeshBuilder {
	base := uint32(len(b.data.Positions))
	b.data.Indices = append(b.data.Indices, base, base+1, base+2)
	b.data.Positions = append(b.data.Positions, mgl32.Vec3{-1, -1, 0}, mgl32.Vec3{1, -1, 0}, mgl32.Vec3{0, 1, 0})
	for range 3 {
		b.data.Normals = append(b.data.Normals, mgl32.Vec3{0, 0, 1})
		b.data.Tangents = append(b.data.Tangents, faceTangent)
	}
	b.data.Texcoords = append(b.data.Texcoords, mgl32.Vec2{0, 0}, mgl32.Vec2{1, 0}, mgl32.Vec2{0.5, 1})
	return b
}

// VertexCount returns the number of vertices added so far.
func (b *MeshBuilder) VertexCount() int {
	return len(b.data.Positions)
}

// Mesh returns a copy of the accumulated mesh.
func (b *MeshBuilder) Mesh() *resource.MeshData {
	return &resource.MeshData{
		Indices:   append([]uint32(nil), b.data.Indices...),
		Positions: append([]mgl32.Vec3(nil), b.data.Positions...),
		Normals:   append([]mgl32.Vec3(nil), b.data.Normals...),
		Tangents:  append([]mgl32.Vec3(nil), b.data.Tangents...),
		Texcoords: append([]mgl32.Vec2(nil), b.data.Texcoords...),
	}
}
