package wgpu

import (
	"github.com/Carmen-Shannon/tracey/engine/gpu"
)

type bufferImpl struct {
	label string
	usage gpu.BufferUsage
	size  uint64
	alloc gpu.Allocation
	freed bool
}

var _ gpu.Buffer = &bufferImpl{}

func (b *bufferImpl) Label() string          { return b.label }
func (b *bufferImpl) Size() uint64           { return b.size }
func (b *bufferImpl) Usage() gpu.BufferUsage { return b.usage }
func (b *bufferImpl) DeviceAddress() uint64  { return b.alloc.Offset }

// imageImpl is a tightly packed image in the heap. RGBA8 texels are one word each.
type imageImpl struct {
	label  string
	width  uint32
	height uint32
	format gpu.ImageFormat
	usage  gpu.ImageUsage
	alloc  gpu.Allocation
	freed  bool
}

var _ gpu.Image = &imageImpl{}

func (i *imageImpl) Label() string           { return i.label }
func (i *imageImpl) Width() uint32           { return i.width }
func (i *imageImpl) Height() uint32          { return i.height }
func (i *imageImpl) Format() gpu.ImageFormat { return i.format }
func (i *imageImpl) Usage() gpu.ImageUsage   { return i.usage }

func (i *imageImpl) byteSize() uint64 {
	return uint64(i.width) * uint64(i.height) * uint64(i.format.TexelSize())
}

type samplerImpl struct {
	desc gpu.SamplerDescriptor
}

var _ gpu.Sampler = &samplerImpl{}

func (s *samplerImpl) Descriptor() gpu.SamplerDescriptor { return s.desc }

// accelImpl is a BLAS or TLAS encoded into the heap. DeviceAddress points at its header.
type accelImpl struct {
	level gpu.ASLevel
	alloc gpu.Allocation
	count int
}

var _ gpu.AccelerationStructure = &accelImpl{}

func (a *accelImpl) Level() gpu.ASLevel    { return a.level }
func (a *accelImpl) DeviceAddress() uint64 { return a.alloc.Offset }
func (a *accelImpl) PrimitiveCount() int   { return a.count }
