package cache

import (
	"github.com/Carmen-Shannon/tracey/engine/gpu"
	"github.com/Carmen-Shannon/tracey/engine/resource"
)

// Mesh is a mesh resident on the device: its attribute buffers, its BLAS and the device
// addresses the kernel uses to fetch attributes.
type Mesh struct {
	ID          resource.ID
	Indices     gpu.Buffer
	Positions   gpu.Buffer
	Normals     gpu.Buffer
	Tangents    gpu.Buffer
	Texcoords   gpu.Buffer
	BLAS        gpu.AccelerationStructure
	Address     gpu.MeshAddress
	IndexCount  uint32
	VertexCount uint32
}

// Texture is an image resident on the device with the sampler used to read it.
type Texture struct {
	ID      resource.ID
	Image   gpu.Image
	Sampler gpu.Sampler
}

// Material holds material parameters and the resident textures of its four maps in slot order
// (albedo, metallic-roughness, normal, emission). Absent maps are nil.
type Material struct {
	ID       resource.ID
	Params   resource.MaterialData
	Textures [resource.TextureMapCount]*Texture
}

// GPU encodes the material with the given bindless slots, one per map.
//
// Parameters:
//   - slots: the texture array index of each map, or gpu.NoTexture
//
// Returns:
//   - gpu.GPUMaterial: the record uploaded to the material array
func (m *Material) GPU(slots [resource.TextureMapCount]int32) gpu.GPUMaterial {
	p := m.Params
	return gpu.GPUMaterial{
		BaseColor: p.BaseColor,
		Emission:  p.Emission,
		Params:    [4]float32{p.Roughness, p.Metallic, p.Sheen, p.ClearCoat},
		Maps:      slots,
	}
}

// Stats reports how much the cache holds. Entries are never evicted, so the numbers only grow.
type Stats struct {
	Meshes        int
	Textures      int
	Materials     int
	Samplers      int
	BytesUploaded uint64
}
