package wgpu

import (
	_ "embed"
	"encoding/binary"
	"fmt"

	"github.com/Carmen-Shannon/tracey/common"
	"github.com/Carmen-Shannon/tracey/engine/gpu"
	"github.com/Carmen-Shannon/tracey/engine/gpu/bvh"
	"github.com/go-gl/mathgl/mgl32"
)

// paramsSource is the WGSL Params struct; it matches dispatchParams.Marshal.
//
//go:embed assets/params.wgsl
var paramsSource string

// textureRecordSource is the WGSL TextureRecord struct; it matches encodeTextures.
//
//go:embed assets/texture_record.wgsl
var textureRecordSource string

// Heap records read by kernel.wgsl. Every size is a multiple of 16 so records stay aligned.
const (
	headerSize        = 32
	instanceSize      = 208
	textureRecordSize = 16
	paramsSize        = 192
)

// Texture record flags.
const (
	textureNearest uint32 = 1 << 0
	textureFloat   uint32 = 1 << 8

	addressShiftU = 2
	addressShiftV = 4
)

// bottomLevelSize returns the heap bytes a BLAS over tris occupies.
func bottomLevelSize(tris *bvh.Triangles) uint64 {
	return uint64(headerSize + len(tris.Nodes)*bvh.NodeSize + len(tris.Order)*4)
}

// encodeBottomLevel lays out a BLAS placed at base:
//
//	header: nodes word, node count, order word, index word, position word, triangle count
//	nodes:  bvh.NodeSize bytes each
//	order:  one u32 triangle index per leaf slot
//
// The index and position words point at the geometry buffers the BLAS was built from.
func encodeBottomLevel(base uint64, tris *bvh.Triangles, indices, positions uint64) []byte {
	buf := make([]byte, bottomLevelSize(tris))
	nodes := base + headerSize
	order := nodes + uint64(len(tris.Nodes)*bvh.NodeSize)
	common.PutUint32s(buf, 0,
		word(nodes), uint32(len(tris.Nodes)), word(order),
		word(indices), word(positions), uint32(len(tris.Indices)/3),
	)
	copy(buf[headerSize:], tris.Marshal())
	common.PutUint32s(buf, int(order-base), tris.Order...)
	return buf
}

// instanceRecord is one TLAS instance: inverse, normal and object-to-world matrices, the
// custom index and the heap word of the BLAS header.
type instanceRecord struct {
	inverse     mgl32.Mat4
	normal      mgl32.Mat4
	transform   mgl32.Mat4
	customIndex uint32
	blas        uint32
}

func newInstanceRecord(inst gpu.Instance, blas uint32) instanceRecord {
	inv := inst.Transform.Inv()
	return instanceRecord{
		inverse:     inv,
		normal:      inv.Transpose(),
		transform:   inst.Transform,
		customIndex: inst.CustomIndex,
		blas:        blas,
	}
}

// topLevelSize returns the heap bytes a TLAS over tree and n instances occupies.
func topLevelSize(tree *bvh.Tree, n int) uint64 {
	return uint64(headerSize + len(tree.Nodes)*bvh.NodeSize + n*instanceSize + len(tree.Order)*4)
}

// encodeTopLevel lays out a TLAS placed at base:
//
//	header:    nodes word, node count, order word, instances word, instance count
//	nodes:     bvh.NodeSize bytes each
//	instances: instanceSize bytes each
//	order:     one u32 instance index per leaf slot
func encodeTopLevel(base uint64, tree *bvh.Tree, instances []instanceRecord) []byte {
	buf := make([]byte, topLevelSize(tree, len(instances)))
	nodes := base + headerSize
	records := nodes + uint64(len(tree.Nodes)*bvh.NodeSize)
	order := records + uint64(len(instances)*instanceSize)
	common.PutUint32s(buf, 0,
		word(nodes), uint32(len(tree.Nodes)), word(order),
		word(records), uint32(len(instances)),
	)
	copy(buf[headerSize:], tree.Marshal())

	off := int(records - base)
	for _, r := range instances {
		next := off + instanceSize
		off = common.PutMat4(buf, off, r.inverse)
		off = common.PutMat4(buf, off, r.normal)
		off = common.PutMat4(buf, off, r.transform)
		common.PutUint32s(buf, off, r.customIndex, r.blas)
		off = next
	}
	common.PutUint32s(buf, off, tree.Order...)
	return buf
}

// textureFlags encodes the sampler and texel format of one bindless slot.
func textureFlags(desc gpu.SamplerDescriptor, format gpu.ImageFormat) uint32 {
	var flags uint32
	if desc.MagFilter == gpu.FilterNearest {
		flags |= textureNearest
	}
	if format == gpu.ImageFormatRGBA32F {
		flags |= textureFloat
	}
	flags |= uint32(desc.AddressModeU) << addressShiftU
	flags |= uint32(desc.AddressModeV) << addressShiftV
	return flags
}

// encodeTextures builds the texture table: texel word, width, height and flags per slot.
// An empty array still yields one zeroed record because storage bindings cannot be empty.
func encodeTextures(images []gpu.SampledImage) ([]byte, error) {
	buf := make([]byte, max(len(images), 1)*textureRecordSize)
	for i, si := range images {
		img, ok := si.Image.(*imageImpl)
		if !ok || img == nil {
			return nil, fmt.Errorf("texture slot %d: image %T does not belong to the wgpu device", i, si.Image)
		}
		if img.freed {
			return nil, fmt.Errorf("texture slot %d: image %q used after free", i, img.label)
		}
		desc := gpu.DefaultSampler
		if si.Sampler != nil {
			desc = si.Sampler.Descriptor()
		}
		common.PutUint32s(buf, i*textureRecordSize,
			word(img.alloc.Offset), img.width, img.height, textureFlags(desc, img.format),
		)
	}
	return buf, nil
}

// dispatchParams is the uniform of one TraceRays dispatch. Every location is a heap word.
type dispatchParams struct {
	camera            gpu.GPUCameraUniform
	width             uint32
	height            uint32
	samples           uint32
	batch             uint32
	bounces           uint32
	seed              uint32
	tlas              uint32
	meshes            uint32
	materials         uint32
	textures          uint32
	output            uint32
	outputPitch       uint32
	accumulation      uint32
	accumulationPitch uint32
	instances         uint32
}

// Marshal encodes the params in the layout of the kernel's Params struct.
func (p *dispatchParams) Marshal() []byte {
	buf := make([]byte, paramsSize)
	copy(buf, p.camera.Marshal())
	common.PutUint32s(buf, gpu.GPUCameraUniformSize,
		p.width, p.height, p.samples, p.batch,
		p.bounces, p.seed, p.tlas, p.meshes,
		p.materials, p.textures, p.output, p.outputPitch,
		p.accumulation, p.accumulationPitch, p.instances, 0,
	)
	return buf
}

func decodeUint32s(data []byte, count int) []uint32 {
	out := make([]uint32, count)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return out
}

func decodeVec3s(data []byte, count int) []mgl32.Vec3 {
	out := make([]mgl32.Vec3, count)
	for i := range out {
		off := i * 12
		out[i] = mgl32.Vec3{common.Float32At(data, off), common.Float32At(data, off+4), common.Float32At(data, off+8)}
	}
	return out
}
