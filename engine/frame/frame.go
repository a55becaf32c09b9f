package frame

import (
	"errors"

	"github.com/Carmen-Shannon/tracey"
	"github.com/Carmen-Shannon/tracey/engine/cache"
	"github.com/Carmen-Shannon/tracey/engine/gpu"
)

// Targets are the render targets a frame is bound to. They are owned by the renderer and
// outlive frames.
type Targets struct {
	Output       gpu.Image
	Accumulation gpu.Image
	Camera       gpu.Buffer
}

// Frame is an immutable, renderable snapshot of a scene: the uploaded material and mesh-address
// arrays, the TLAS, the bindless textures and the two descriptor sets that bind them. Getters
// return copies.
type Frame struct {
	device        gpu.Device
	instanceCount int
	materials     []gpu.GPUMaterial
	meshAddresses []gpu.MeshAddress
	textures      []*cache.Texture
	sets          []gpu.DescriptorSet
	tlas          gpu.AccelerationStructure
	materialBuf   gpu.Buffer
	meshBuf       gpu.Buffer
	sceneBuf      gpu.Buffer
	targets       Targets
}

// InstanceCount returns the number of shape instances. Placeholder entries are not counted.
func (f *Frame) InstanceCount() int {
	return f.instanceCount
}

// Materials returns the encoded material array.
func (f *Frame) Materials() []gpu.GPUMaterial {
	return append([]gpu.GPUMaterial(nil), f.materials...)
}

// MeshAddresses returns the mesh-address array.
func (f *Frame) MeshAddresses() []gpu.MeshAddress {
	return append([]gpu.MeshAddress(nil), f.meshAddresses...)
}

// Textures returns the bindless textures in slot order.
func (f *Frame) Textures() []*cache.Texture {
	return append([]*cache.Texture(nil), f.textures...)
}

// DescriptorSets returns the sets indexed by set number.
func (f *Frame) DescriptorSets() []gpu.DescriptorSet {
	return append([]gpu.DescriptorSet(nil), f.sets...)
}

// TLAS returns the top-level acceleration structure.
func (f *Frame) TLAS() gpu.AccelerationStructure {
	return f.tlas
}

// MaterialBuffer returns the buffer holding the material array.
func (f *Frame) MaterialBuffer() gpu.Buffer {
	return f.materialBuf
}

// MeshAddressBuffer returns the buffer holding the mesh-address array.
func (f *Frame) MeshAddressBuffer() gpu.Buffer {
	return f.meshBuf
}

// SceneBuffer returns the scene uniform buffer.
func (f *Frame) SceneBuffer() gpu.Buffer {
	return f.sceneBuf
}

// Targets returns the render targets the frame was bound to.
func (f *Frame) Targets() Targets {
	return f.targets
}

// Release waits for submitted work to finish and frees the device objects the frame owns, so a
// batch abandoned by a cancelled render never reads freed ranges. Cached meshes and textures are
// untouched.
func (f *Frame) Release() {
	if f == nil || f.device == nil {
		return
	}
	if err := f.device.WaitIdle(); err != nil && !errors.Is(err, gpu.ErrReleased) {
		tracey.Logger().Warn("frame release: wait idle", "error", err)
	}
	f.device.FreeBuffer(f.materialBuf)
	f.device.FreeBuffer(f.meshBuf)
	f.device.FreeBuffer(f.sceneBuf)
	f.device.FreeAccelerationStructure(f.tlas)
	f.device = nil
}
