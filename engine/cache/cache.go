// Package cache keeps GPU-resident copies of store resources, keyed by resource id. Each
// resource is made resident at most once; materials pull in their textures first.
package cache

import (
	"fmt"

	"github.com/Carmen-Shannon/tracey"
	"github.com/Carmen-Shannon/tracey/common"
	"github.com/Carmen-Shannon/tracey/engine/gpu"
	"github.com/Carmen-Shannon/tracey/engine/resource"
)

// minBufferSize pads empty attribute streams so no device buffer is zero-sized.
const minBufferSize = 16

// Cache maps resource ids to shared GPU objects. Device failures while creating them are
// treated as fatal and panic. A Cache is not safe for concurrent use.
type Cache interface {
	// AddTexture makes a texture resource resident.
	//
	// Parameters:
	//   - res: a texture resource
	//
	// Returns:
	//   - *Texture: the cached handle, created on first use
	AddTexture(res resource.Resource) *Texture

	// AddMaterial makes a material resident after making each of its referenced textures
	// resident in slot order.
	//
	// Parameters:
	//   - res: a material resource
	//
	// Returns:
	//   - *Material: the cached handle, created on first use
	AddMaterial(res resource.Resource) *Material

	// AddMesh uploads the mesh attribute buffers and builds its BLAS.
	//
	// Parameters:
	//   - res: a mesh resource
	//
	// Returns:
	//   - *Mesh: the cached handle, created on first use
	AddMesh(res resource.Resource) *Mesh

	// Texture returns the resident texture for id, if any.
	Texture(id resource.ID) (*Texture, bool)

	// Material returns the resident material for id, if any.
	Material(id resource.ID) (*Material, bool)

	// Mesh returns the resident mesh for id, if any.
	Mesh(id resource.ID) (*Mesh, bool)

	// DefaultMaterial returns the store's default material, resident since New.
	DefaultMaterial() *Material

	// Sampler returns the shared sampler for desc, creating it on first use.
	Sampler(desc gpu.SamplerDescriptor) gpu.Sampler

	// Store returns the store resources are resolved against.
	Store() resource.Store

	// Device returns the device objects are created on.
	Device() gpu.Device

	// Stats reports entry counts and uploaded bytes.
	Stats() Stats
}

type cacheImpl struct {
	device gpu.Device
	store  resource.Store

	sampler gpu.SamplerDescriptor
	hook    func(resource.Kind, resource.ID)

	meshes    map[resource.ID]*Mesh
	textures  map[resource.ID]*Texture
	materials map[resource.ID]*Material
	samplers  map[gpu.SamplerDescriptor]gpu.Sampler

	defaultMaterial *Material
	uploaded        uint64
}

var _ Cache = &cacheImpl{}

// New creates a cache over device and store and makes the store's default material resident.
//
// Parameters:
//   - device: the device objects are created on
//   - store: the store texture references are resolved against
//   - options: functional options (WithSampler, WithMaterializeHook)
//
// Returns:
//   - Cache: the cache
func New(device gpu.Device, store resource.Store, options ...CacheBuilderOption) Cache {
	if device == nil {
		panic("cache: nil device")
	}
	if store == nil {
		panic("cache: nil store")
	}
	c := &cacheImpl{
		device:    device,
		store:     store,
		sampler:   gpu.DefaultSampler,
		meshes:    make(map[resource.ID]*Mesh),
		textures:  make(map[resource.ID]*Texture),
		materials: make(map[resource.ID]*Material),
		samplers:  make(map[gpu.SamplerDescriptor]gpu.Sampler),
	}
	for _, option := range options {
		option(c)
	}

	def, ok := store.Material(store.DefaultMaterialID())
	if !ok {
		panic("cache: store has no default material")
	}
	c.defaultMaterial = c.AddMaterial(def)
	return c
}

func (c *cacheImpl) AddTexture(res resource.Resource) *Texture {
	expectKind(res, resource.KindTexture)
	if t, ok := c.textures[res.ID()]; ok {
		return t
	}
	return c.materialize(res).(*Texture)
}

func (c *cacheImpl) AddMaterial(res resource.Resource) *Material {
	expectKind(res, resource.KindMaterial)
	if m, ok := c.materials[res.ID()]; ok {
		return m
	}
	return c.materialize(res).(*Material)
}

func (c *cacheImpl) AddMesh(res resource.Resource) *Mesh {
	expectKind(res, resource.KindMesh)
	if m, ok := c.meshes[res.ID()]; ok {
		return m
	}
	return c.materialize(res).(*Mesh)
}

func (c *cacheImpl) Texture(id resource.ID) (*Texture, bool) {
	t, ok := c.textures[id]
	return t, ok
}

func (c *cacheImpl) Material(id resource.ID) (*Material, bool) {
	m, ok := c.materials[id]
	return m, ok
}

func (c *cacheImpl) Mesh(id resource.ID) (*Mesh, bool) {
	m, ok := c.meshes[id]
	return m, ok
}

func (c *cacheImpl) DefaultMaterial() *Material {
	return c.defaultMaterial
}

func (c *cacheImpl) Store() resource.Store {
	return c.store
}

func (c *cacheImpl) Device() gpu.Device {
	return c.device
}

func (c *cacheImpl) Sampler(desc gpu.SamplerDescriptor) gpu.Sampler {
	if s, ok := c.samplers[desc]; ok {
		return s
	}
	s, err := c.device.CreateSampler(desc)
	if err != nil {
		panic(fmt.Errorf("cache: create sampler: %w", err))
	}
	c.samplers[desc] = s
	return s
}

func (c *cacheImpl) Stats() Stats {
	return Stats{
		Meshes:        len(c.meshes),
		Textures:      len(c.textures),
		Materials:     len(c.materials),
		Samplers:      len(c.samplers),
		BytesUploaded: c.uploaded,
	}
}

func expectKind(res resource.Resource, kind resource.Kind) {
	if res.Kind() != kind || res.IsZero() {
		panic(fmt.Sprintf("cache: resource %s is a %s, expected a %s", res.ID(), res.Kind(), kind))
	}
}

// materialize creates the device objects for res and records them. The caller has checked that
// res is not resident yet.
func (c *cacheImpl) materialize(res resource.Resource) any {
	var out any
	switch res.Kind() {
	case resource.KindTexture:
		t := c.createTexture(res)
		c.textures[res.ID()] = t
		out = t
	case resource.KindMaterial:
		m := c.createMaterial(res)
		c.materials[res.ID()] = m
		out = m
	case resource.KindMesh:
		m := c.createMesh(res)
		c.meshes[res.ID()] = m
		out = m
	default:
		panic(fmt.Sprintf("cache: unknown resource kind %s", res.Kind()))
	}
	tracey.Logger().Debug("resource resident", "kind", res.Kind(), "id", res.ID(), "name", res.Name())
	if c.hook != nil {
		c.hook(res.Kind(), res.ID())
	}
	return out
}

func (c *cacheImpl) createTexture(res resource.Resource) *Texture {
	data := res.Texture()
	img, err := c.device.CreateImage(gpu.ImageDescriptor{
		Label:  res.Name(),
		Width:  data.Width,
		Height: data.Height,
		Format: gpu.ImageFormatRGBA8,
		Usage:  gpu.ImageUsageSampled,
	}, data.Pixels)
	if err != nil {
		panic(fmt.Errorf("cache: upload texture %s (%s): %w", res.ID(), res.Origin(), err))
	}
	c.uploaded += uint64(len(data.Pixels))
	return &Texture{ID: res.ID(), Image: img, Sampler: c.Sampler(c.sampler)}
}

func (c *cacheImpl) createMaterial(res resource.Resource) *Material {
	data := *res.Material()
	m := &Material{ID: res.ID(), Params: data}
	for slot, ref := range data.TextureMaps() {
		if ref == nil {
			continue
		}
		tex, ok := c.store.Texture(*ref)
		if !ok {
			panic(fmt.Sprintf("cache: material %s map %d references missing texture %s", res.ID(), slot, *ref))
		}
		m.Textures[slot] = c.AddTexture(tex)
	}
	return m
}

func (c *cacheImpl) createMesh(res resource.Resource) *Mesh {
	data := res.Mesh()
	storage := gpu.BufferUsageStorage | gpu.BufferUsageShaderDeviceAddress
	build := storage | gpu.BufferUsageAccelerationStructureInput

	m := &Mesh{
		ID:          res.ID(),
		IndexCount:  uint32(len(data.Indices)),
		VertexCount: uint32(len(data.Positions)),
	}
	m.Indices = c.upload(res, "indices", build, common.SliceToBytes(data.Indices))
	m.Positions = c.upload(res, "positions", build, common.SliceToBytes(data.Positions))
	m.Normals = c.upload(res, "normals", storage, common.SliceToBytes(data.Normals))
	m.Tangents = c.upload(res, "tangents", storage, common.SliceToBytes(data.Tangents))
	m.Texcoords = c.upload(res, "texcoords", storage, common.SliceToBytes(data.Texcoords))

	blas, err := c.device.BuildBottomLevel(gpu.TriangleGeometry{
		Label:       res.Name(),
		Indices:     m.Indices,
		Positions:   m.Positions,
		IndexCount:  m.IndexCount,
		VertexCount: m.VertexCount,
	})
	if err != nil {
		panic(fmt.Errorf("cache: build BLAS for mesh %s (%s): %w", res.ID(), res.Origin(), err))
	}
	m.BLAS = blas
	m.Address = gpu.MeshAddress{
		Index:    m.Indices.DeviceAddress(),
		Position: m.Positions.DeviceAddress(),
		Normal:   m.Normals.DeviceAddress(),
		Tangent:  m.Tangents.DeviceAddress(),
		Texcoord: m.Texcoords.DeviceAddress(),
	}
	return m
}

func (c *cacheImpl) upload(res resource.Resource, stream string, usage gpu.BufferUsage, data []byte) gpu.Buffer {
	if len(data) < minBufferSize {
		padded := make([]byte, minBufferSize)
		copy(padded, data)
		data = padded
	}
	buf, err := c.device.CreateBuffer(gpu.BufferDescriptor{
		Label: fmt.Sprintf("%s/%s", res.Name(), stream),
		Usage: usage,
	}, data)
	if err != nil {
		panic(fmt.Errorf("cache: upload %s of mesh %s (%s): %w", stream, res.ID(), res.Origin(), err))
	}
	c.uploaded += uint64(len(data))
	return buf
}
