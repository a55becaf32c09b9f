package shapes

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/tracey/engine/resource"
	"github.com/go-gl/mathgl/mgl32"
)

// Shape names a built-in mesh.
type Shape int

const (
	Cube Shape = iota
	Triangle
	XYPlane
	XZPlane
	YZPlane
	Floor
)

// FloorSize is the edge length of the Floor shape.
const FloorSize float32 = 10

var shapeNames = [...]string{
	Cube:     "Cube",
	Triangle: "Triangle",
	XYPlane:  "XYPlane",
	XZPlane:  "XZPlane",
	YZPlane:  "YZPlane",
	Floor:    "Floor",
}

func (s Shape) String() string {
	if s < 0 || int(s) >= len(shapeNames) {
		return fmt.Sprintf("Shape(%d)", int(s))
	}
	return shapeNames[s]
}

// ParseShape resolves a shape name, ignoring case.
//
// Parameters:
//   - name: one of Cube, Triangle, XYPlane, XZPlane, YZPlane, Floor
//
// Returns:
//   - Shape: the shape
//   - error: error if the name is unknown
func ParseShape(name string) (Shape, error) {
	for i, n := range shapeNames {
		if strings.EqualFold(n, name) {
			return Shape(i), nil
		}
	}
	return 0, fmt.Errorf("unknown shape %q", name)
}

// Shapes lists every built-in shape.
func Shapes() []Shape {
	return []Shape{Cube, Triangle, XYPlane, XZPlane, YZPlane, Floor}
}

// Mesh generates the shape's mesh. Unit shapes are centred on the origin.
func (s Shape) Mesh() *resource.MeshData {
	b := NewMeshBuilder()
	switch s {
	case Cube:
		b.AddCube(1, 1, 1)
	case Triangle:
		b.AddTriangle()
	case XYPlane:
		b.AddXYPlane(1, 1, mgl32.Vec3{}, mgl32.Vec3{0, 0, 1})
	case XZPlane:
		b.AddXZPlane(1, 1, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	case YZPlane:
		b.AddYZPlane(1, 1, mgl32.Vec3{}, mgl32.Vec3{1, 0, 0})
	case Floor:
		b.AddXZPlane(FloorSize, FloorSize, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	}
	return b.Mesh()
}
