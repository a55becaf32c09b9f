package renderer

import (
	"context"
	"testing"

	"github.com/Carmen-Shannon/tracey/engine/cache"
	"github.com/Carmen-Shannon/tracey/engine/frame"
	"github.com/Carmen-Shannon/tracey/engine/gpu"
	"github.com/Carmen-Shannon/tracey/engine/gpu/software"
	"github.com/Carmen-Shannon/tracey/engine/resource"
	"github.com/Carmen-Shannon/tracey/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSoftwareRenderer(t *testing.T, size uint32) Renderer {
	t.Helper()
	r := NewRenderer(BackendTypeSoftware, WithSize(size, size), WithWorkers(2), WithSeed(7), WithMaxBounces(2))
	t.Cleanup(r.Release)
	return r
}

func emissiveQuadFrame(t *testing.T, r Renderer) *frame.Frame {
	t.Helper()
	store := resource.NewStore()
	c := cache.New(r.Device(), store)

	mesh, err := store.AddMesh("test", "quad", &resource.MeshData{
		Indices:   []uint32{0, 1, 2, 0, 2, 3},
		Positions: []mgl32.Vec3{{-1, -1, 0}, {1, -1, 0}, {1, 1, 0}, {-1, 1, 0}},
		Normals:   []mgl32.Vec3{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}, {0, 0, 1}},
		Tangents:  []mgl32.Vec3{{1, 0, 0}, {1, 0, 0}, {1, 0, 0}, {1, 0, 0}},
		Texcoords: []mgl32.Vec2{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
	})
	require.NoError(t, err)
	md := resource.DefaultMaterialData()
	md.Emission = mgl32.Vec4{1, 1, 1, 0}
	mat, err := store.AddMaterial("test", "light", md)
	require.NoError(t, err)

	g := scene.New("quad")
	n := scene.NewNode("quad")
	n.Mesh = resource.Ref(mesh.ID())
	n.Material = resource.Ref(mat.ID())
	_, err = g.AddNode(g.Root(), n)
	require.NoError(t, err)

	gs, err := scene.Flatten(g, c, store, mgl32.Ident4())
	require.NoError(t, err)
	f, err := frame.NewBuilder(r.Device(), r.Targets()).Build(gs)
	require.NoError(t, err)
	t.Cleanup(f.Release)
	return f
}

func TestNewRendererDefaults(t *testing.T) {
	r := NewRenderer(BackendTypeSoftware, WithWorkers(1))
	defer r.Release()

	assert.Equal(t, DefaultWidth, r.Width())
	assert.Equal(t, DefaultHeight, r.Height())
	assert.Equal(t, DefaultMaxBounces, r.MaxBounces())
	assert.Equal(t, software.DeviceName, r.Device().Name())
	assert.InDelta(t, float32(1280)/720, r.Camera().Aspect(), 1e-6)
	assert.Equal(t, uint32(0), r.Batch())
}

func TestRenderFrameAccumulatesBatches(t *testing.T) {
	r := newSoftwareRenderer(t, 8)
	f := emissiveQuadFrame(t, r)

	for range 3 {
		require.NoError(t, r.RenderFrame(context.Background(), f, 1))
	}
	assert.Equal(t, uint32(3), r.Batch())

	img, err := r.DownloadImage()
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 8, img.Bounds().Dy())
	center := img.RGBAAt(4, 4)
	assert.Equal(t, uint8(255), center.R)
	assert.Equal(t, uint8(255), center.A)

	r.Clear()
	assert.Equal(t, uint32(0), r.Batch())
}

func frameContents(t *testing.T, r Renderer, f *frame.Frame) map[string][]byte {
	t.Helper()
	out := map[string][]byte{}
	for name, buf := range map[string]gpu.Buffer{
		"materials": f.MaterialBuffer(),
		"meshes":    f.MeshAddressBuffer(),
		"scene":     f.SceneBuffer(),
	} {
		raw, err := r.Device().ReadBuffer(buf)
		require.NoError(t, err)
		out[name] = raw
	}
	return out
}

func TestRenderFrameLeavesFrameUntouched(t *testing.T) {
	r := newSoftwareRenderer(t, 8)
	f := emissiveQuadFrame(t, r)

	contents := frameContents(t, r, f)
	sets := f.DescriptorSets()
	writes := make([]int, len(sets))
	for i, set := range sets {
		writes[i] = set.Writes()
	}
	tlas := f.TLAS()

	for range 2 {
		require.NoError(t, r.RenderFrame(context.Background(), f, 1))
	}

	assert.Equal(t, contents, frameContents(t, r, f))
	after := f.DescriptorSets()
	require.Len(t, after, len(sets))
	for i, set := range after {
		assert.Same(t, sets[i], set)
		assert.Equal(t, writes[i], set.Writes())
	}
	assert.Same(t, tlas, f.TLAS())
	assert.Same(t, tlas, after[gpu.SetRayTracing].AccelerationStructure(gpu.BindingTLAS))
	assert.Same(t, f.SceneBuffer(), after[gpu.SetScene].Buffer(gpu.BindingSceneUniform))
	assert.Same(t, f.MeshAddressBuffer(), after[gpu.SetScene].Buffer(gpu.BindingMeshAddresses))
}

func TestRenderFrameRejectsForeignFrame(t *testing.T) {
	a := newSoftwareRenderer(t, 4)
	b := newSoftwareRenderer(t, 4)
	f := emissiveQuadFrame(t, a)

	assert.ErrorIs(t, b.RenderFrame(context.Background(), f, 1), ErrForeignFrame)
	assert.Error(t, a.RenderFrame(context.Background(), nil, 1))
	assert.Equal(t, uint32(0), b.Batch())
}

func TestReleaseFreesTargetsOnSharedDevice(t *testing.T) {
	dev := software.NewDevice(software.WithWorkers(1))
	defer dev.Release()
	before := dev.Counters()

	r := NewRenderer(BackendTypeSoftware, WithDevice(dev), WithSize(4, 4))
	targets := r.Targets()
	assert.Equal(t, before.LiveImages+2, dev.Counters().LiveImages)
	assert.Equal(t, before.LiveBuffers+1, dev.Counters().LiveBuffers)

	r.Release()
	assert.Equal(t, before.LiveImages, dev.Counters().LiveImages)
	assert.Equal(t, before.LiveBuffers, dev.Counters().LiveBuffers)
	_, err := dev.ReadImage(targets.Output)
	assert.Error(t, err)

	// The shared device is still usable.
	_, err = dev.CreateImage(gpu.ImageDescriptor{Width: 1, Height: 1, Format: gpu.ImageFormatRGBA8}, nil)
	assert.NoError(t, err)
}

func TestParseBackendType(t *testing.T) {
	bt, ok := ParseBackendType("wgpu")
	assert.True(t, ok)
	assert.Equal(t, BackendTypeWGPU, bt)
	bt, ok = ParseBackendType("software")
	assert.True(t, ok)
	assert.Equal(t, "software", bt.String())
	_, ok = ParseBackendType("vulkan")
	assert.False(t, ok)
}
