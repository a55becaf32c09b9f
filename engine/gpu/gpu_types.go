package gpu

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/tracey/common"
	"github.com/go-gl/mathgl/mgl32"
)

// NoTexture marks an absent texture slot in GPUMaterial.Maps.
const NoTexture int32 = -1

// GPUMaterial is the std430 material record read by the path-tracing kernel.
// Size: 64 bytes.
type GPUMaterial struct {
	BaseColor [4]float32 // offset  0: linear RGBA base color
	Emission  [4]float32 // offset 16: RGB emission, w unused
	Params    [4]float32 // offset 32: roughness, metallic, sheen, clear coat
	Maps      [4]int32   // offset 48: albedo, metallic-roughness, normal, emission slots (-1 when absent)
}

// GPUMaterialSize is the encoded size of a GPUMaterial.
const GPUMaterialSize = 64

// Size returns the size of the GPUMaterial struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUMaterial) Size() int {
	return GPUMaterialSize
}

// Marshal serializes the GPUMaterial into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload.
func (g *GPUMaterial) Marshal() []byte {
	buf := make([]byte, GPUMaterialSize)
	off := common.PutFloat32s(buf, 0, g.BaseColor[:]...)
	off = common.PutFloat32s(buf, off, g.Emission[:]...)
	off = common.PutFloat32s(buf, off, g.Params[:]...)
	common.PutInt32s(buf, off, g.Maps[:]...)
	return buf
}

// UnmarshalGPUMaterial decodes a material record.
func UnmarshalGPUMaterial(buf []byte) (GPUMaterial, error) {
	var g GPUMaterial
	if len(buf) < GPUMaterialSize {
		return g, fmt.Errorf("material record: need %d bytes, have %d", GPUMaterialSize, len(buf))
	}
	for i := range 4 {
		g.BaseColor[i] = common.Float32At(buf, i*4)
		g.Emission[i] = common.Float32At(buf, 16+i*4)
		g.Params[i] = common.Float32At(buf, 32+i*4)
		g.Maps[i] = int32(binary.LittleEndian.Uint32(buf[48+i*4:]))
	}
	return g, nil
}

// MeshAddress holds the device addresses of one mesh's attribute buffers.
// Size: 40 bytes (five u64, std430 aligned to 8).
type MeshAddress struct {
	Index    uint64 // offset  0: u32 index buffer
	Position uint64 // offset  8: vec3<f32> positions, tightly packed
	Normal   uint64 // offset 16: vec3<f32> normals
	Tangent  uint64 // offset 24: vec3<f32> tangents
	Texcoord uint64 // offset 32: vec2<f32> texture coordinates
}

// MeshAddressSize is the encoded size of a MeshAddress.
const MeshAddressSize = 40

// Size returns the size of the MeshAddress struct in bytes.
func (g *MeshAddress) Size() int {
	return MeshAddressSize
}

// Marshal serializes the MeshAddress into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 40-byte buffer ready for GPU upload.
func (g *MeshAddress) Marshal() []byte {
	buf := make([]byte, MeshAddressSize)
	common.PutUint64s(buf, 0, g.Index, g.Position, g.Normal, g.Tangent, g.Texcoord)
	return buf
}

// UnmarshalMeshAddress decodes a mesh address record.
func UnmarshalMeshAddress(buf []byte) (MeshAddress, error) {
	if len(buf) < MeshAddressSize {
		return MeshAddress{}, fmt.Errorf("mesh address record: need %d bytes, have %d", MeshAddressSize, len(buf))
	}
	le := binary.LittleEndian
	return MeshAddress{
		Index:    le.Uint64(buf[0:]),
		Position: le.Uint64(buf[8:]),
		Normal:   le.Uint64(buf[16:]),
		Tangent:  le.Uint64(buf[24:]),
		Texcoord: le.Uint64(buf[32:]),
	}, nil
}

// GPUSceneUniform is the per-frame scene uniform at set 1 binding 1.
// Size: 16 bytes.
type GPUSceneUniform struct {
	MaterialAddress uint64 // offset 0: device address of the GPUMaterial array
	InstanceCount   uint32 // offset 8: number of shape instances in the TLAS
	_pad0           uint32 // offset 12
}

// GPUSceneUniformSize is the encoded size of a GPUSceneUniform.
const GPUSceneUniformSize = 16

// NewGPUSceneUniform builds a scene uniform.
func NewGPUSceneUniform(materialAddress uint64, instanceCount uint32) GPUSceneUniform {
	return GPUSceneUniform{MaterialAddress: materialAddress, InstanceCount: instanceCount}
}

// Marshal serializes the GPUSceneUniform into a byte buffer suitable for GPU upload.
func (g *GPUSceneUniform) Marshal() []byte {
	buf := make([]byte, GPUSceneUniformSize)
	binary.LittleEndian.PutUint64(buf[0:], g.MaterialAddress)
	binary.LittleEndian.PutUint32(buf[8:], g.InstanceCount)
	return buf
}

// UnmarshalGPUSceneUniform decodes a scene uniform.
func UnmarshalGPUSceneUniform(buf []byte) (GPUSceneUniform, error) {
	if len(buf) < GPUSceneUniformSize {
		return GPUSceneUniform{}, fmt.Errorf("scene uniform: need %d bytes, have %d", GPUSceneUniformSize, len(buf))
	}
	return GPUSceneUniform{
		MaterialAddress: binary.LittleEndian.Uint64(buf[0:]),
		InstanceCount:   binary.LittleEndian.Uint32(buf[8:]),
	}, nil
}

// GPUCameraUniformSource is the WGSL definition of the CameraUniform struct. It matches the
// GPUCameraUniform layout.
//
//go:embed assets/camera_uniform.wgsl
var GPUCameraUniformSource string

// GPUCameraUniform is the camera uniform at set 1 binding 0.
// Size: 128 bytes (two column-major mat4x4<f32>).
type GPUCameraUniform struct {
	ViewInverse       mgl32.Mat4 // offset  0
	ProjectionInverse mgl32.Mat4 // offset 64
}

// GPUCameraUniformSize is the encoded size of a GPUCameraUniform.
const GPUCameraUniformSize = 128

// Size returns the size of the GPUCameraUniform struct in bytes.
func (g *GPUCameraUniform) Size() int {
	return GPUCameraUniformSize
}

// Marshal serializes the GPUCameraUniform into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 128-byte buffer ready for GPU upload.
func (g *GPUCameraUniform) Marshal() []byte {
	buf := make([]byte, GPUCameraUniformSize)
	off := common.PutMat4(buf, 0, g.ViewInverse)
	common.PutMat4(buf, off, g.ProjectionInverse)
	return buf
}

// UnmarshalGPUCameraUniform decodes a camera uniform.
func UnmarshalGPUCameraUniform(buf []byte) (GPUCameraUniform, error) {
	var g GPUCameraUniform
	if len(buf) < GPUCameraUniformSize {
		return g, fmt.Errorf("camera uniform: need %d bytes, have %d", GPUCameraUniformSize, len(buf))
	}
	for i := range 16 {
		g.ViewInverse[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		g.ProjectionInverse[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[64+i*4:]))
	}
	return g, nil
}
