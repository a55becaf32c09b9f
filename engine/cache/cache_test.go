package cache

import (
	"testing"

	"github.com/Carmen-Shannon/tracey/engine/gpu"
	"github.com/Carmen-Shannon/tracey/engine/gpu/software"
	"github.com/Carmen-Shannon/tracey/engine/resource"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T, options ...CacheBuilderOption) (software.Device, resource.Store, Cache) {
	t.Helper()
	dev := software.NewDevice(software.WithWorkers(1))
	t.Cleanup(dev.Release)
	store := resource.NewStore()
	return dev, store, New(dev, store, options...)
}

func addTexture(t *testing.T, store resource.Store, name string) resource.Resource {
	t.Helper()
	res, err := store.AddTexture("test#"+name, name, &resource.TextureData{Width: 2, Height: 2, Pixels: make([]byte, 16)})
	require.NoError(t, err)
	return res
}

func addQuad(t *testing.T, store resource.Store) resource.Resource {
	t.Helper()
	res, err := store.AddMesh("test", "quad", &resource.MeshData{
		Indices:   []uint32{0, 1, 2, 0, 2, 3},
		Positions: []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
		Normals:   make([]mgl32.Vec3, 4),
		Tangents:  make([]mgl32.Vec3, 4),
		Texcoords: make([]mgl32.Vec2, 4),
	})
	require.NoError(t, err)
	return res
}

func TestNewMaterializesDefaultMaterial(t *testing.T) {
	_, store, c := newFixture(t)

	def := c.DefaultMaterial()
	require.NotNil(t, def)
	assert.Equal(t, store.DefaultMaterialID(), def.ID)
	got, ok := c.Material(store.DefaultMaterialID())
	require.True(t, ok)
	assert.Same(t, def, got)
	assert.Equal(t, 1, c.Stats().Materials)
}

func TestAddTextureIsIdempotent(t *testing.T) {
	dev, store, c := newFixture(t)
	tex := addTexture(t, store, "albedo")

	first := c.AddTexture(tex)
	second := c.AddTexture(tex)
	assert.Same(t, first, second)
	assert.Equal(t, 1, dev.Counters().Images)
	assert.Equal(t, 1, dev.Counters().Samplers)
}

func TestAddMeshIsIdempotent(t *testing.T) {
	dev, store, c := newFixture(t)
	quad := addQuad(t, store)

	m := c.AddMesh(quad)
	assert.Same(t, m, c.AddMesh(quad))
	counters := dev.Counters()
	assert.Equal(t, 5, counters.Buffers)
	assert.Equal(t, 1, counters.BottomLevel)
	assert.Equal(t, uint32(6), m.IndexCount)
	assert.Equal(t, m.Indices.DeviceAddress(), m.Address.Index)
	assert.Equal(t, m.Texcoords.DeviceAddress(), m.Address.Texcoord)
	assert.Equal(t, 2, m.BLAS.PrimitiveCount())
}

func TestAddMaterialResolvesTexturesFirst(t *testing.T) {
	var order []resource.Kind
	dev, store, c := newFixture(t, WithMaterializeHook(func(kind resource.Kind, _ resource.ID) {
		order = append(order, kind)
	}))
	order = nil

	albedo := addTexture(t, store, "albedo")
	normal := addTexture(t, store, "normal")
	data := resource.DefaultMaterialData()
	data.BaseColorTexture = resource.Ref(albedo.ID())
	data.NormalTexture = resource.Ref(normal.ID())
	data.EmissionTexture = resource.Ref(albedo.ID())
	mat, err := store.AddMaterial("test", "mat", data)
	require.NoError(t, err)

	m := c.AddMaterial(mat)
	assert.Equal(t, []resource.Kind{resource.KindTexture, resource.KindTexture, resource.KindMaterial}, order)
	assert.Equal(t, 2, dev.Counters().Images)

	require.NotNil(t, m.Textures[0])
	assert.Nil(t, m.Textures[1])
	assert.Equal(t, normal.ID(), m.Textures[2].ID)
	assert.Same(t, m.Textures[0], m.Textures[3])

	_, ok := c.Texture(albedo.ID())
	assert.True(t, ok)

	enc := m.GPU([4]int32{0, gpu.NoTexture, 1, 0})
	assert.Equal(t, [4]float32{1, 0, 0, 0}, enc.Params)
	assert.Equal(t, [4]int32{0, -1, 1, 0}, enc.Maps)
}

func TestLookupsMissBeforeMaterialization(t *testing.T) {
	_, store, c := newFixture(t)
	quad := addQuad(t, store)
	_, ok := c.Mesh(quad.ID())
	assert.False(t, ok)
	_, ok = c.Texture(quad.ID())
	assert.False(t, ok)
}

func TestWrongKindPanics(t *testing.T) {
	_, store, c := newFixture(t)
	quad := addQuad(t, store)
	assert.Panics(t, func() { c.AddTexture(quad) })
	assert.Panics(t, func() { c.AddMaterial(resource.Resource{}) })
}

func TestDeviceFailurePanics(t *testing.T) {
	dev, store, c := newFixture(t)
	tex := addTexture(t, store, "albedo")
	dev.Release()
	assert.Panics(t, func() { c.AddTexture(tex) })
}

func TestSamplersAreShared(t *testing.T) {
	dev, store, c := newFixture(t, WithSampler(gpu.SamplerDescriptor{MagFilter: gpu.FilterNearest}))
	a := c.AddTexture(addTexture(t, store, "a"))
	b := c.AddTexture(addTexture(t, store, "b"))
	assert.Same(t, a.Sampler, b.Sampler)
	assert.Equal(t, gpu.FilterNearest, a.Sampler.Descriptor().MagFilter)
	assert.Equal(t, 1, dev.Counters().Samplers)
	assert.Equal(t, 2, c.Stats().Textures)
	assert.Equal(t, uint64(32), c.Stats().BytesUploaded)
}
