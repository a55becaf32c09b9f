package frame

import (
	"testing"

	"github.com/Carmen-Shannon/tracey/engine/cache"
	"github.com/Carmen-Shannon/tracey/engine/gpu"
	"github.com/Carmen-Shannon/tracey/engine/gpu/software"
	"github.com/Carmen-Shannon/tracey/engine/resource"
	"github.com/Carmen-Shannon/tracey/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dev     software.Device
	store   resource.Store
	cache   cache.Cache
	builder Builder
}

func newFixture(t *testing.T, options ...BuilderOption) fixture {
	t.Helper()
	dev := software.NewDevice(software.WithWorkers(1))
	t.Cleanup(dev.Release)
	store := resource.NewStore()

	out, err := dev.CreateImage(gpu.ImageDescriptor{Width: 4, Height: 4, Format: gpu.ImageFormatRGBA8, Usage: gpu.ImageUsageStorage}, nil)
	require.NoError(t, err)
	acc, err := dev.CreateImage(gpu.ImageDescriptor{Width: 4, Height: 4, Format: gpu.ImageFormatRGBA32F, Usage: gpu.ImageUsageStorage}, nil)
	require.NoError(t, err)
	cam := gpu.GPUCameraUniform{ViewInverse: mgl32.Ident4(), ProjectionInverse: mgl32.Ident4()}
	camBuf, err := dev.CreateBuffer(gpu.BufferDescriptor{Label: "camera", Usage: gpu.BufferUsageUniform}, cam.Marshal())
	require.NoError(t, err)

	return fixture{
		dev:     dev,
		store:   store,
		cache:   cache.New(dev, store),
		builder: NewBuilder(dev, Targets{Output: out, Accumulation: acc, Camera: camBuf}, options...),
	}
}

func (f fixture) texture(t *testing.T, name string) resource.ID {
	t.Helper()
	res, err := f.store.AddTexture("test", name, &resource.TextureData{Width: 1, Height: 1, Pixels: make([]byte, 4)})
	require.NoError(t, err)
	return res.ID()
}

func (f fixture) triangle(t *testing.T) resource.ID {
	t.Helper()
	res, err := f.store.AddMesh("test", "tri", &resource.MeshData{
		Indices:   []uint32{0, 1, 2},
		Positions: []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Normals:   make([]mgl32.Vec3, 3),
		Tangents:  make([]mgl32.Vec3, 3),
		Texcoords: make([]mgl32.Vec2, 3),
	})
	require.NoError(t, err)
	return res.ID()
}

func (f fixture) flatten(t *testing.T, g scene.Graph) *scene.GPUScene {
	t.Helper()
	gs, err := scene.Flatten(g, f.cache, f.store, mgl32.Ident4())
	require.NoError(t, err)
	return gs
}

func TestTextureArrayKeepsFirstSlot(t *testing.T) {
	a := NewTextureArray(2)
	t1 := &cache.Texture{ID: 7}
	t2 := &cache.Texture{ID: 3}

	i, err := a.Push(t1)
	require.NoError(t, err)
	assert.Equal(t, int32(0), i)
	i, err = a.Push(t2)
	require.NoError(t, err)
	assert.Equal(t, int32(1), i)
	i, err = a.Push(t1)
	require.NoError(t, err)
	assert.Equal(t, int32(0), i)

	_, err = a.Push(&cache.Texture{ID: 9})
	assert.Error(t, err)
	assert.Equal(t, 2, a.Len())
	slot, ok := a.Slot(3)
	assert.True(t, ok)
	assert.Equal(t, int32(1), slot)
}

func TestBuildAssignsTextureSlots(t *testing.T) {
	f := newFixture(t)
	t1 := f.texture(t, "t1")
	t2 := f.texture(t, "t2")

	matA := resource.DefaultMaterialData()
	matA.BaseColorTexture = resource.Ref(t1)
	matA.NormalTexture = resource.Ref(t2)
	a, err := f.store.AddMaterial("test", "a", matA)
	require.NoError(t, err)

	matB := resource.DefaultMaterialData()
	matB.BaseColorTexture = resource.Ref(t2)
	matB.EmissionTexture = resource.Ref(t1)
	b, err := f.store.AddMaterial("test", "b", matB)
	require.NoError(t, err)

	mesh := f.triangle(t)
	g := scene.New("slots")
	for _, m := range []resource.ID{a.ID(), b.ID()} {
		n := scene.NewNode("n")
		n.Mesh = resource.Ref(mesh)
		n.Material = resource.Ref(m)
		_, err := g.AddNode(g.Root(), n)
		require.NoError(t, err)
	}

	fr, err := f.builder.Build(f.flatten(t, g))
	require.NoError(t, err)
	t.Cleanup(fr.Release)

	assert.Equal(t, 2, fr.InstanceCount())
	textures := fr.Textures()
	require.Len(t, textures, 2)
	assert.Equal(t, t1, textures[0].ID)
	assert.Equal(t, t2, textures[1].ID)

	mats := fr.Materials()
	require.Len(t, mats, 2)
	assert.Equal(t, [4]int32{0, gpu.NoTexture, 1, gpu.NoTexture}, mats[0].Maps)
	assert.Equal(t, [4]int32{1, gpu.NoTexture, gpu.NoTexture, 0}, mats[1].Maps)

	addrs := fr.MeshAddresses()
	require.Len(t, addrs, 2)
	assert.Equal(t, addrs[0], addrs[1])
	assert.Equal(t, 2, fr.TLAS().PrimitiveCount())
	assert.NoError(t, gpu.ValidateSets(fr.DescriptorSets()))
	assert.Equal(t, StateReady, f.builder.State())
}

func TestBuildEmptySceneUsesPlaceholders(t *testing.T) {
	f := newFixture(t)

	fr, err := f.builder.Build(f.flatten(t, scene.New("empty")))
	require.NoError(t, err)
	t.Cleanup(fr.Release)

	assert.Equal(t, 0, fr.InstanceCount())
	assert.Len(t, fr.Materials(), 1)
	assert.Len(t, fr.MeshAddresses(), 1)
	assert.Empty(t, fr.Textures())
	assert.Equal(t, uint64(gpu.GPUMaterialSize), fr.MaterialBuffer().Size())
	assert.Equal(t, uint64(gpu.MeshAddressSize), fr.MeshAddressBuffer().Size())

	raw, err := f.dev.ReadBuffer(fr.SceneBuffer())
	require.NoError(t, err)
	su, err := gpu.UnmarshalGPUSceneUniform(raw)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), su.InstanceCount)
	assert.Equal(t, fr.MaterialBuffer().DeviceAddress(), su.MaterialAddress)
	assert.NoError(t, gpu.ValidateSets(fr.DescriptorSets()))
}

func TestFrameGettersReturnCopies(t *testing.T) {
	f := newFixture(t)
	g := scene.New("copy")
	n := scene.NewNode("n")
	n.Mesh = resource.Ref(f.triangle(t))
	_, err := g.AddNode(g.Root(), n)
	require.NoError(t, err)

	fr, err := f.builder.Build(f.flatten(t, g))
	require.NoError(t, err)
	t.Cleanup(fr.Release)

	mats := fr.Materials()
	mats[0].BaseColor[0] = 42
	assert.NotEqual(t, float32(42), fr.Materials()[0].BaseColor[0])

	sets := fr.DescriptorSets()
	sets[0] = nil
	assert.NotNil(t, fr.DescriptorSets()[0])
}

func TestBuildRejectsConcurrentBuild(t *testing.T) {
	f := newFixture(t)
	impl := f.builder.(*builderImpl)
	impl.state.Store(int32(StateBuilding))

	_, err := f.builder.Build(f.flatten(t, scene.New("busy")))
	assert.ErrorIs(t, err, ErrBuildInProgress)

	impl.state.Store(int32(StateIdle))
	fr, err := f.builder.Build(f.flatten(t, scene.New("busy")))
	require.NoError(t, err)
	fr.Release()
}

func TestReleaseFreesFrameBuffers(t *testing.T) {
	f := newFixture(t)
	before := f.dev.Counters().LiveBuffers

	fr, err := f.builder.Build(f.flatten(t, scene.New("release")))
	require.NoError(t, err)
	assert.Equal(t, before+3, f.dev.Counters().LiveBuffers)
	fr.Release()
	assert.Equal(t, before, f.dev.Counters().LiveBuffers)
	fr.Release()
}

type callRecorder struct {
	software.Device
	calls []string
}

func (d *callRecorder) WaitIdle() error {
	d.calls = append(d.calls, "wait")
	return d.Device.WaitIdle()
}

func (d *callRecorder) FreeBuffer(buf gpu.Buffer) {
	d.calls = append(d.calls, "free")
	d.Device.FreeBuffer(buf)
}

func TestReleaseWaitsForSubmittedWork(t *testing.T) {
	f := newFixture(t)
	rec := &callRecorder{Device: f.dev}
	impl := f.builder.(*builderImpl)

	fr, err := NewBuilder(rec, impl.targets).Build(f.flatten(t, scene.New("wait")))
	require.NoError(t, err)
	rec.calls = nil

	fr.Release()
	assert.Equal(t, []string{"wait", "free", "free", "free"}, rec.calls)
}
