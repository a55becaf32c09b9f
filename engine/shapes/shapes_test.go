package shapes

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddQuadOffsetsIndices(t *testing.T) {
	b := NewMeshBuilder().
		AddXYPlane(1, 1, mgl32.Vec3{}, mgl32.Vec3{0, 0, 1}).
		AddXZPlane(1, 1, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})

	m := b.Mesh()
	assert.Equal(t, []uint32{0, 2, 1, 0, 3, 2, 4, 6, 5, 4, 7, 6}, m.Indices)
	assert.Equal(t, 8, b.VertexCount())
	assert.Equal(t, mgl32.Vec2{0, 1}, m.Texcoords[5])
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, m.Tangents[7])
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, m.Normals[4])
}

func TestCubeMesh(t *testing.T) {
	m := Cube.Mesh()
	require.NoError(t, m.Validate())
	assert.Len(t, m.Positions, 24)
	assert.Len(t, m.Indices, 36)
	assert.Equal(t, 12, m.TriangleCount())
	for _, p := range m.Positions {
		for c := range 3 {
			assert.InDelta(t, 0.5, abs(p[c]), 1e-6)
		}
	}
}

func TestEveryShapeIsValid(t *testing.T) {
	for _, s := range Shapes() {
		m := s.Mesh()
		assert.NoError(t, m.Validate(), s.String())
		assert.Positive(t, m.TriangleCount(), s.String())
	}
	assert.Equal(t, 1, Triangle.Mesh().TriangleCount())
	assert.InDelta(t, FloorSize/2, Floor.Mesh().Positions[2].X(), 1e-6)
}

func TestParseShape(t *testing.T) {
	s, err := ParseShape("xzplane")
	require.NoError(t, err)
	assert.Equal(t, XZPlane, s)
	s, err = ParseShape("Floor")
	require.NoError(t, err)
	assert.Equal(t, "Floor", s.String())
	_, err = ParseShape("sphere")
	assert.Error(t, err)
}

func TestMeshReturnsCopy(t *testing.T) {
	b := NewMeshBuilder().AddTriangle()
	m := b.Mesh()
	m.Indices[0] = 99
	assert.Equal(t, uint32(0), b.Mesh().Indices[0])
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
