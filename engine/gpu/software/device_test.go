package software

import (
	"context"
	"testing"

	"github.com/Carmen-Shannon/tracey/common"
	"github.com/Carmen-Shannon/tracey/engine/gpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferAddresses(t *testing.T) {
	d := NewDevice(WithWorkers(2))
	defer d.Release()

	a, err := d.CreateBuffer(gpu.BufferDescriptor{Label: "a", Usage: gpu.BufferUsageStorage}, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	b, err := d.CreateBuffer(gpu.BufferDescriptor{Label: "b", Usage: gpu.BufferUsageStorage, Size: 64}, nil)
	require.NoError(t, err)

	assert.NotZero(t, a.DeviceAddress())
	assert.NotEqual(t, a.DeviceAddress(), b.DeviceAddress())
	assert.Equal(t, uint64(0), a.DeviceAddress()%bufferAlignment)
	assert.Equal(t, uint64(64), b.Size())

	require.NoError(t, d.WriteBuffer(b, 8, []byte{9, 9}))
	got, err := d.ReadBuffer(b)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9}, got[8:10])
	assert.Error(t, d.WriteBuffer(a, 2, []byte{1, 2, 3}))

	d.FreeBuffer(a)
	_, err = d.ReadBuffer(a)
	assert.Error(t, err)

	c := d.Counters()
	assert.Equal(t, 2, c.Buffers)
	assert.Equal(t, 1, c.LiveBuffers)
}

func TestCreateImageValidatesPixels(t *testing.T) {
	d := NewDevice()
	defer d.Release()

	_, err := d.CreateImage(gpu.ImageDescriptor{Width: 2, Height: 2, Format: gpu.ImageFormatRGBA8}, make([]byte, 15))
	assert.Error(t, err)

	img, err := d.CreateImage(gpu.ImageDescriptor{Width: 2, Height: 2, Format: gpu.ImageFormatRGBA32F, Usage: gpu.ImageUsageStorage}, nil)
	require.NoError(t, err)
	px, err := d.ReadImage(img)
	require.NoError(t, err)
	assert.Len(t, px, 64)
	assert.Equal(t, make([]byte, 64), px)
}

func TestReleasedDeviceRejectsWork(t *testing.T) {
	d := NewDevice()
	d.Release()
	_, err := d.CreateBuffer(gpu.BufferDescriptor{Size: 4}, nil)
	assert.ErrorIs(t, err, gpu.ErrReleased)
}

type testScene struct {
	sets   []gpu.DescriptorSet
	output gpu.Image
}

// newTestScene binds a 2x2 emissive quad at z=0 in front of a camera at (0, 0, 5), or an
// empty TLAS when withQuad is false.
func newTestScene(t *testing.T, d Device, size uint32, withQuad bool) testScene {
	t.Helper()
	storage := gpu.BufferUsageStorage | gpu.BufferUsageShaderDeviceAddress

	mk := func(label string, usage gpu.BufferUsage, data []byte) gpu.Buffer {
		b, err := d.CreateBuffer(gpu.BufferDescriptor{Label: label, Usage: usage}, data)
		require.NoError(t, err)
		return b
	}

	var instances []gpu.Instance
	addrs := gpu.MeshAddress{}
	if withQuad {
		pos := []mgl32.Vec3{{-1, -1, 0}, {1, -1, 0}, {1, 1, 0}, {-1, 1, 0}}
		nrm := []mgl32.Vec3{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}, {0, 0, 1}}
		uv := []mgl32.Vec2{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
		idx := []uint32{0, 1, 2, 0, 2, 3}
		ib := mk("idx", storage|gpu.BufferUsageAccelerationStructureInput, common.SliceToBytes(idx))
		pb := mk("pos", storage|gpu.BufferUsageAccelerationStructureInput, common.SliceToBytes(pos))
		nb := mk("nrm", storage, common.SliceToBytes(nrm))
		tb := mk("tan", storage, common.SliceToBytes(nrm))
		ub := mk("uv", storage, common.SliceToBytes(uv))
		blas, err := d.BuildBottomLevel(gpu.TriangleGeometry{Indices: ib, Positions: pb, IndexCount: 6, VertexCount: 4})
		require.NoError(t, err)
		instances = append(instances, gpu.Instance{Transform: mgl32.Ident4(), CustomIndex: 0, BLAS: blas})
		addrs = gpu.MeshAddress{
			Index: ib.DeviceAddress(), Position: pb.DeviceAddress(), Normal: nb.DeviceAddress(),
			Tangent: tb.DeviceAddress(), Texcoord: ub.DeviceAddress(),
		}
	}
	tlas, err := d.BuildTopLevel(instances)
	require.NoError(t, err)

	mat := gpu.GPUMaterial{
		Emission: [4]float32{1, 1, 1, 0},
		Params:   [4]float32{1, 0, 0, 0},
		Maps:     [4]int32{gpu.NoTexture, gpu.NoTexture, gpu.NoTexture, gpu.NoTexture},
	}
	matBuf := mk("materials", storage, mat.Marshal())
	meshBuf := mk("meshes", storage, addrs.Marshal())
	su := gpu.NewGPUSceneUniform(matBuf.DeviceAddress(), uint32(len(instances)))
	sceneBuf := mk("scene", gpu.BufferUsageUniform, su.Marshal())

	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 5}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(0.6, 1, 0.1, 100)
	cam := gpu.GPUCameraUniform{ViewInverse: view.Inv(), ProjectionInverse: proj.Inv()}
	camBuf := mk("camera", gpu.BufferUsageUniform, cam.Marshal())

	out, err := d.CreateImage(gpu.ImageDescriptor{Width: size, Height: size, Format: gpu.ImageFormatRGBA8, Usage: gpu.ImageUsageStorage}, nil)
	require.NoError(t, err)
	acc, err := d.CreateImage(gpu.ImageDescriptor{Width: size, Height: size, Format: gpu.ImageFormatRGBA32F, Usage: gpu.ImageUsageStorage}, nil)
	require.NoError(t, err)

	layouts := gpu.PathTracingLayouts()
	rt, err := d.NewDescriptorSet(layouts[0])
	require.NoError(t, err)
	sc, err := d.NewDescriptorSet(layouts[1])
	require.NoError(t, err)
	require.NoError(t, rt.WriteAccelerationStructure(gpu.BindingTLAS, tlas))
	require.NoError(t, rt.WriteStorageImage(gpu.BindingOutputImage, out))
	require.NoError(t, rt.WriteStorageImage(gpu.BindingAccumulationImage, acc))
	require.NoError(t, sc.WriteUniformBuffer(gpu.BindingCamera, camBuf))
	require.NoError(t, sc.WriteUniformBuffer(gpu.BindingSceneUniform, sceneBuf))
	require.NoError(t, sc.WriteStorageBuffer(gpu.BindingMeshAddresses, meshBuf))
	return testScene{sets: []gpu.DescriptorSet{rt, sc}, output: out}
}

func pixel(px []byte, size, x, y uint32) []byte {
	off := (y*size + x) * 4
	return px[off : off+4]
}

func TestTraceRaysHitsEmissiveQuad(t *testing.T) {
	d := NewDevice(WithWorkers(3), WithTileSize(4))
	defer d.Release()
	const size = 9
	ts := newTestScene(t, d, size, true)

	require.NoError(t, d.TraceRays(context.Background(), ts.sets, gpu.PushConstants{SamplesPerPixel: 2, MaxBounces: 2}, size, size))
	px, err := d.ReadImage(ts.output)
	require.NoError(t, err)

	assert.Equal(t, []byte{255, 255, 255, 255}, pixel(px, size, size/2, size/2))
	assert.Equal(t, 1, d.Counters().Dispatches)
}

func TestTraceRaysEmptySceneShowsSky(t *testing.T) {
	d := NewDevice(WithWorkers(2))
	defer d.Release()
	const size = 8
	ts := newTestScene(t, d, size, false)

	for batch := range uint32(3) {
		require.NoError(t, d.TraceRays(context.Background(), ts.sets, gpu.PushConstants{SamplesPerPixel: 1, CurrentBatch: batch, MaxBounces: 1}, size, size))
	}
	px, err := d.ReadImage(ts.output)
	require.NoError(t, err)

	top := pixel(px, size, 0, 0)
	assert.Less(t, top[0], top[2], "sky is bluer than it is red")
	assert.Equal(t, byte(255), top[3])
}

func TestTraceRaysIsDeterministic(t *testing.T) {
	render := func() []byte {
		d := NewDevice(WithWorkers(4), WithTileSize(3), WithSeed(7))
		defer d.Release()
		ts := newTestScene(t, d, 10, true)
		require.NoError(t, d.TraceRays(context.Background(), ts.sets, gpu.PushConstants{SamplesPerPixel: 1, MaxBounces: 3}, 10, 10))
		px, err := d.ReadImage(ts.output)
		require.NoError(t, err)
		return px
	}
	assert.Equal(t, render(), render())
}

func TestTraceRaysRejectsIncompleteSets(t *testing.T) {
	d := NewDevice()
	defer d.Release()
	layouts := gpu.PathTracingLayouts()
	rt, err := d.NewDescriptorSet(layouts[0])
	require.NoError(t, err)
	sc, err := d.NewDescriptorSet(layouts[1])
	require.NoError(t, err)
	assert.Error(t, d.TraceRays(context.Background(), []gpu.DescriptorSet{rt, sc}, gpu.PushConstants{}, 4, 4))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.TraceRays(ctx, nil, gpu.PushConstants{}, 4, 4), context.Canceled)
}
