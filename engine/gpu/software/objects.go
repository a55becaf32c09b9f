package software

import (
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/tracey/common"
	"github.com/Carmen-Shannon/tracey/engine/gpu"
	"github.com/Carmen-Shannon/tracey/engine/gpu/bvh"
	"github.com/go-gl/mathgl/mgl32"
)

type bufferImpl struct {
	label string
	usage gpu.BufferUsage
	alloc gpu.Allocation
	data  []byte
	freed bool
}

var _ gpu.Buffer = &bufferImpl{}

func (b *bufferImpl) Label() string          { return b.label }
func (b *bufferImpl) Size() uint64           { return uint64(len(b.data)) }
func (b *bufferImpl) Usage() gpu.BufferUsage { return b.usage }
func (b *bufferImpl) DeviceAddress() uint64  { return b.alloc.Offset }

type imageImpl struct {
	label  string
	width  uint32
	height uint32
	format gpu.ImageFormat
	usage  gpu.ImageUsage
	data   []byte
	freed  bool
}

var _ gpu.Image = &imageImpl{}

func (i *imageImpl) Label() string           { return i.label }
func (i *imageImpl) Width() uint32           { return i.width }
func (i *imageImpl) Height() uint32          { return i.height }
func (i *imageImpl) Format() gpu.ImageFormat { return i.format }
func (i *imageImpl) Usage() gpu.ImageUsage   { return i.usage }

func (i *imageImpl) offset(x, y uint32) int {
	return int(y*i.width+x) * i.format.TexelSize()
}

// texel returns the texel at (x, y) as floats in [0, 1] for RGBA8 and raw values for RGBA32F.
func (i *imageImpl) texel(x, y uint32) mgl32.Vec4 {
	off := i.offset(x, y)
	if i.format == gpu.ImageFormatRGBA32F {
		return mgl32.Vec4{
			common.Float32At(i.data, off),
			common.Float32At(i.data, off+4),
			common.Float32At(i.data, off+8),
			common.Float32At(i.data, off+12),
		}
	}
	p := i.data[off : off+4]
	return mgl32.Vec4{float32(p[0]) / 255, float32(p[1]) / 255, float32(p[2]) / 255, float32(p[3]) / 255}
}

func (i *imageImpl) store(x, y uint32, v mgl32.Vec4) {
	off := i.offset(x, y)
	if i.format == gpu.ImageFormatRGBA32F {
		common.PutFloat32s(i.data, off, v[:]...)
		return
	}
	for c := range 4 {
		i.data[off+c] = toUnorm8(v[c])
	}
}

func toUnorm8(v float32) byte {
	v = min(max(v, 0), 1)
	return byte(v*255 + 0.5)
}

type samplerImpl struct {
	desc gpu.SamplerDescriptor
}

var _ gpu.Sampler = &samplerImpl{}

func (s *samplerImpl) Descriptor() gpu.SamplerDescriptor { return s.desc }

type blasImpl struct {
	alloc gpu.Allocation
	tris  *bvh.Triangles
}

var _ gpu.AccelerationStructure = &blasImpl{}

func (b *blasImpl) Level() gpu.ASLevel    { return gpu.ASLevelBottom }
func (b *blasImpl) DeviceAddress() uint64 { return b.alloc.Offset }
func (b *blasImpl) PrimitiveCount() int   { return len(b.tris.Indices) / 3 }

type tlasInstance struct {
	transform   mgl32.Mat4
	inverse     mgl32.Mat4
	normal      mgl32.Mat4
	customIndex uint32
	blas        *blasImpl
}

type tlasImpl struct {
	alloc     gpu.Allocation
	tree      *bvh.Tree
	instances []tlasInstance
}

var _ gpu.AccelerationStructure = &tlasImpl{}

func (t *tlasImpl) Level() gpu.ASLevel    { return gpu.ASLevelTop }
func (t *tlasImpl) DeviceAddress() uint64 { return t.alloc.Offset }
func (t *tlasImpl) PrimitiveCount() int   { return len(t.instances) }

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
		out[i] = mgl32.Vec3{
			math.Float32frombits(binary.LittleEndian.Uint32(data[off:])),
			math.Float32frombits(binary.LittleEndian.Uint32(data[off+4:])),
			math.Float32frombits(binary.LittleEndian.Uint32(data[off+8:])),
		}
	}
	return out
}
