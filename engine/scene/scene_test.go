package scene

import (
	"testing"

	"github.com/Carmen-Shannon/tracey/engine/cache"
	"github.com/Carmen-Shannon/tracey/engine/gpu/software"
	"github.com/Carmen-Shannon/tracey/engine/resource"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T) (resource.Store, cache.Cache) {
	t.Helper()
	dev := software.NewDevice(software.WithWorkers(1))
	t.Cleanup(dev.Release)
	store := resource.NewStore()
	return store, cache.New(dev, store)
}

func triangle(t *testing.T, store resource.Store) resource.ID {
	t.Helper()
	res, err := store.AddMesh("test", "tri", &resource.MeshData{
		Indices:   []uint32{0, 1, 2},
		Positions: []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Normals:   make([]mgl32.Vec3, 3),
		Tangents:  make([]mgl32.Vec3, 3),
		Texcoords: make([]mgl32.Vec2, 3),
	})
	require.NoError(t, err)
	return res.ID()
}

func meshNode(name string, local mgl32.Mat4, mesh resource.ID) Node {
	n := NewNode(name)
	n.Local = local
	n.Mesh = resource.Ref(mesh)
	return n
}

func TestAddNodeRejectsUnknownParent(t *testing.T) {
	g := New("g")
	_, err := g.AddNode(5, NewNode("x"))
	assert.ErrorIs(t, err, ErrUnknownNode)
	_, err = g.Node(-1)
	assert.ErrorIs(t, err, ErrUnknownNode)

	idx, err := g.AddNode(g.Root(), NewNode("child"))
	require.NoError(t, err)
	n, err := g.Node(idx)
	require.NoError(t, err)
	assert.Equal(t, g.Root(), n.Parent())
	root, _ := g.Node(g.Root())
	assert.Equal(t, []int{idx}, root.Children)
}

func TestFlattenComposesTransformsDepthFirst(t *testing.T) {
	store, c := fixture(t)
	mesh := triangle(t, store)

	tr := mgl32.Translate3D(1, 0, 0)
	ta := mgl32.Scale3D(2, 2, 2)
	tb := mgl32.HomogRotate3DY(0.5)
	tc := mgl32.Translate3D(0, 3, 0)

	g := New("g", WithRootTransform(tr))
	a, err := g.AddNode(g.Root(), meshNode("a", ta, mesh))
	require.NoError(t, err)
	b, err := g.AddNode(a, meshNode("b", tb, mesh))
	require.NoError(t, err)
	sibling, err := g.AddNode(g.Root(), meshNode("c", tc, mesh))
	require.NoError(t, err)

	gs, err := Flatten(g, c, store, mgl32.Ident4())
	require.NoError(t, err)
	require.Equal(t, 3, gs.Len())

	assert.Equal(t, a, gs.Instances[0].Node)
	assert.Equal(t, b, gs.Instances[1].Node)
	assert.Equal(t, sibling, gs.Instances[2].Node)
	assert.True(t, gs.Instances[0].Transform.ApproxEqual(tr.Mul4(ta)))
	assert.True(t, gs.Instances[1].Transform.ApproxEqual(tr.Mul4(ta).Mul4(tb)))
	assert.True(t, gs.Instances[2].Transform.ApproxEqual(tr.Mul4(tc)), "siblings do not inherit each other")

	nb, _ := g.Node(b)
	assert.True(t, nb.Global.ApproxEqual(tr.Mul4(ta).Mul4(tb)))
	assert.Same(t, gs.Instances[0].Mesh, gs.Instances[1].Mesh)
}

func TestFlattenUsesDefaultMaterial(t *testing.T) {
	store, c := fixture(t)
	mesh := triangle(t, store)
	custom, err := store.AddMaterial("test", "red", resource.MaterialData{BaseColor: mgl32.Vec4{1, 0, 0, 1}})
	require.NoError(t, err)

	g := New("g")
	_, err = g.AddNode(g.Root(), meshNode("plain", mgl32.Ident4(), mesh))
	require.NoError(t, err)
	withMat := meshNode("red", mgl32.Ident4(), mesh)
	withMat.Material = resource.Ref(custom.ID())
	_, err = g.AddNode(g.Root(), withMat)
	require.NoError(t, err)

	gs, err := Flatten(g, c, store, mgl32.Ident4())
	require.NoError(t, err)
	require.Equal(t, 2, gs.Len())
	assert.Same(t, c.DefaultMaterial(), gs.Instances[0].Material)
	assert.Equal(t, custom.ID(), gs.Instances[1].Material.ID)
}

func TestFlattenEmptyGraph(t *testing.T) {
	store, c := fixture(t)

	gs, err := Flatten(NewEmpty("empty"), c, store, mgl32.Ident4())
	require.NoError(t, err)
	assert.Equal(t, 0, gs.Len())

	gs, err = Flatten(New("root only"), c, store, mgl32.Ident4())
	require.NoError(t, err)
	assert.Equal(t, 0, gs.Len())
}

func TestFlattenMissingResource(t *testing.T) {
	store, c := fixture(t)
	g := New("g")
	_, err := g.AddNode(g.Root(), meshNode("ghost", mgl32.Ident4(), 999))
	require.NoError(t, err)

	_, err = Flatten(g, c, store, mgl32.Ident4())
	assert.ErrorIs(t, err, ErrMissingResource)
}

func TestSummary(t *testing.T) {
	g := New("g", WithRootName("top"), WithRootTransform(mgl32.Translate3D(0, 1, 0)))
	child := NewNode("child")
	child.Local = mgl32.Translate3D(2, 0, 0)
	idx, err := g.AddNode(g.Root(), child)
	require.NoError(t, err)

	s := g.Summary()
	assert.Equal(t, "g", s.Name)
	require.Len(t, s.Nodes, 2)
	assert.Equal(t, "top", s.Nodes[0].Name)
	assert.Equal(t, NoParent, s.Nodes[0].Parent)
	n, ok := s.Node(idx)
	require.True(t, ok)
	assert.True(t, n.Global.ApproxEqual(mgl32.Translate3D(2, 1, 0)))
	_, ok = s.Node(7)
	assert.False(t, ok)
}

func TestEmptyGraphAcceptsRoot(t *testing.T) {
	g := NewEmpty("e")
	assert.Equal(t, NoParent, g.Root())
	idx, err := g.AddNode(NoParent, NewNode("root"))
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 0, g.Root())
}
