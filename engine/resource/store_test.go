package resource

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quadMesh() *MeshData {
	return &MeshData{
		Indices:   []uint32{0, 1, 2, 0, 2, 3},
		Positions: []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}},
		Normals:   make([]mgl32.Vec3, 4),
		Tangents:  make([]mgl32.Vec3, 4),
		Texcoords: make([]mgl32.Vec2, 4),
	}
}

func solidTexture(w, h uint32) *TextureData {
	return &TextureData{Width: w, Height: h, Pixels: make([]byte, w*h*4)}
}

func TestNewStoreCreatesDefaultMaterial(t *testing.T) {
	s := NewStore()

	def, ok := s.Material(s.DefaultMaterialID())
	require.True(t, ok)
	assert.Equal(t, ID(1), def.ID())
	assert.Equal(t, DefaultMaterialName, def.Name())
	assert.Equal(t, mgl32.Vec4{0.5, 0.5, 0.5, 1}, def.Material().BaseColor)
	assert.Equal(t, float32(1), def.Material().Roughness)
	assert.Equal(t, float32(0), def.Material().Metallic)
	assert.Equal(t, 1, s.Len())
}

func TestStoreIDsAreMonotonic(t *testing.T) {
	s := NewStore()

	a, err := s.AddMesh("test", "a", quadMesh())
	require.NoError(t, err)
	b, err := s.AddTexture("test", "b", solidTexture(2, 2))
	require.NoError(t, err)
	c, err := s.AddMaterial("test", "c", MaterialData{BaseColorTexture: Ref(b.ID())})
	require.NoError(t, err)

	assert.Less(t, s.DefaultMaterialID(), a.ID())
	assert.Less(t, a.ID(), b.ID())
	assert.Less(t, b.ID(), c.ID())
}

func TestStoreInjectedAllocator(t *testing.T) {
	ids := NewIDAllocator(100)
	s := NewStore(WithIDAllocator(ids))

	assert.Equal(t, ID(100), s.DefaultMaterialID())
	assert.Equal(t, ID(101), ids.Peek())

	// Independent stores own independent allocators.
	other := NewStore()
	assert.Equal(t, ID(1), other.DefaultMaterialID())
}

func TestStoreTypedLookups(t *testing.T) {
	s := NewStore()
	mesh, err := s.AddMesh("test", "quad", quadMesh())
	require.NoError(t, err)

	_, ok := s.Mesh(mesh.ID())
	assert.True(t, ok)
	_, ok = s.Texture(mesh.ID())
	assert.False(t, ok)
	_, ok = s.Material(mesh.ID())
	assert.False(t, ok)
	_, ok = s.Get(9999)
	assert.False(t, ok)
}

func TestStoredResourcesCannotBeModified(t *testing.T) {
	s := NewStore()
	meshData := quadMesh()
	mesh, err := s.AddMesh("test", "quad", meshData)
	require.NoError(t, err)
	texData := solidTexture(2, 2)
	tex, err := s.AddTexture("test", "solid", texData)
	require.NoError(t, err)
	mat, err := s.AddMaterial("test", "painted", MaterialData{Roughness: 0.5, BaseColorTexture: Ref(tex.ID())})
	require.NoError(t, err)

	// Writes through the caller's payloads after Add.
	meshData.Indices[0] = 3
	texData.Pixels[0] = 0xff

	// Writes through the accessors.
	stored, ok := s.Material(mat.ID())
	require.True(t, ok)
	md := stored.Material()
	md.Roughness = 0.123
	md.NormalTexture = Ref(999)
	*md.BaseColorTexture = 999
	mesh.Mesh().Positions[1] = mgl32.Vec3{9, 9, 9}
	gotTex, ok := s.Texture(tex.ID())
	require.True(t, ok)
	gotTex.Texture().Pixels[1] = 0xff

	again, ok := s.Get(mat.ID())
	require.True(t, ok)
	assert.Equal(t, float32(0.5), again.Material().Roughness)
	assert.Nil(t, again.Material().NormalTexture)
	require.NotNil(t, again.Material().BaseColorTexture)
	assert.Equal(t, tex.ID(), *again.Material().BaseColorTexture)

	gotMesh, ok := s.Mesh(mesh.ID())
	require.True(t, ok)
	assert.Equal(t, uint32(0), gotMesh.Mesh().Indices[0])
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, gotMesh.Mesh().Positions[1])

	gotTex, ok = s.Texture(tex.ID())
	require.True(t, ok)
	assert.Equal(t, []byte{0, 0}, gotTex.Texture().Pixels[:2])
}

func TestStoreRejectsInvalidPayloads(t *testing.T) {
	s := NewStore()
	before := s.Len()

	bad := quadMesh()
	bad.Indices = []uint32{0, 1, 7}
	_, err := s.AddMesh("test", "bad", bad)
	assert.ErrorIs(t, err, ErrInvalidMesh)

	_, err = s.AddTexture("test", "bad", &TextureData{Width: 2, Height: 2, Pixels: make([]byte, 3)})
	assert.ErrorIs(t, err, ErrInvalidTexture)

	_, err = s.AddMaterial("test", "dangling", MaterialData{NormalTexture: Ref(s.DefaultMaterialID())})
	assert.ErrorIs(t, err, ErrInvalidMaterial)

	assert.Equal(t, before, s.Len())
}

func TestStoreResourcesSortedByID(t *testing.T) {
	s := NewStore()
	for range 3 {
		_, err := s.AddMesh("test", "m", quadMesh())
		require.NoError(t, err)
	}

	meshes := s.Resources(KindMesh)
	require.Len(t, meshes, 3)
	for i := 1; i < len(meshes); i++ {
		assert.Less(t, meshes[i-1].ID(), meshes[i].ID())
	}
	assert.Len(t, s.Resources(KindMaterial), 1)
}

func TestExpandRGB(t *testing.T) {
	out := ExpandRGB([]byte{1, 2, 3, 4, 5, 6})
	assert.Equal(t, []byte{1, 2, 3, 255, 4, 5, 6, 255}, out)
}

func TestMaterialTextureMapsOrder(t *testing.T) {
	m := MaterialData{
		BaseColorTexture:         Ref(1),
		MetallicRoughnessTexture: Ref(2),
		NormalTexture:            Ref(3),
		EmissionTexture:          Ref(4),
	}
	maps := m.TextureMaps()
	for i, ref := range maps {
		require.NotNil(t, ref)
		assert.Equal(t, ID(i+1), *ref)
	}
}
