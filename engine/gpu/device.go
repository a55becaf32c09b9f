// Package gpu defines the device collaborator used by the resource cache, the frame builder and
// the renderer: buffers with device addresses, images, samplers, acceleration structures,
// descriptor sets and ray dispatch. Backends live in the software and wgpu sub-packages.
package gpu

import (
	"context"
	"errors"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrReleased is returned by devices after Release.
var ErrReleased = errors.New("device released")

// BufferUsage is a bit set describing how a buffer is bound.
type BufferUsage uint32

const (
	BufferUsageStorage BufferUsage = 1 << iota
	BufferUsageUniform
	BufferUsageShaderDeviceAddress
	BufferUsageAccelerationStructureInput
	BufferUsageTransferSrc
	BufferUsageTransferDst
)

// ImageFormat is the texel layout of an image.
type ImageFormat int

const (
	// ImageFormatRGBA8 is 8-bit unorm RGBA, 4 bytes per texel.
	ImageFormatRGBA8 ImageFormat = iota
	// ImageFormatRGBA32F is 32-bit float RGBA, 16 bytes per texel.
	ImageFormatRGBA32F
)

// TexelSize returns the number of bytes per texel.
func (f ImageFormat) TexelSize() int {
	switch f {
	case ImageFormatRGBA32F:
		return 16
	default:
		return 4
	}
}

func (f ImageFormat) String() string {
	switch f {
	case ImageFormatRGBA32F:
		return "rgba32f"
	default:
		return "rgba8"
	}
}

// ImageUsage is a bit set describing how an image is bound.
type ImageUsage uint32

const (
	ImageUsageSampled ImageUsage = 1 << iota
	ImageUsageStorage
	ImageUsageTransferSrc
)

// FilterMode selects texel filtering for samplers.
type FilterMode int

const (
	FilterLinear FilterMode = iota
	FilterNearest
)

// AddressMode selects how out-of-range texture coordinates are handled.
type AddressMode int

const (
	AddressRepeat AddressMode = iota
	AddressClampToEdge
	AddressMirrorRepeat
)

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	Label string
	Usage BufferUsage
	// Size is used when no initial data is given; otherwise the data length wins.
	Size uint64
}

// ImageDescriptor describes a 2D image to create.
type ImageDescriptor struct {
	Label  string
	Width  uint32
	Height uint32
	Format ImageFormat
	Usage  ImageUsage
}

// SamplerDescriptor describes a sampler. It is comparable and used as a cache key.
type SamplerDescriptor struct {
	MagFilter    FilterMode
	MinFilter    FilterMode
	AddressModeU AddressMode
	AddressModeV AddressMode
}

// DefaultSampler is linear filtering with repeat addressing.
var DefaultSampler = SamplerDescriptor{}

// Buffer is a device buffer with a stable device address.
type Buffer interface {
	Label() string
	Size() uint64
	Usage() BufferUsage
	// DeviceAddress returns the non-zero address of the first byte.
	DeviceAddress() uint64
}

// Image is a 2D device image.
type Image interface {
	Label() string
	Width() uint32
	Height() uint32
	Format() ImageFormat
	Usage() ImageUsage
}

// Sampler is a device sampler.
type Sampler interface {
	Descriptor() SamplerDescriptor
}

// SampledImage pairs an image with the sampler used to read it, one bindless array element.
type SampledImage struct {
	Image   Image
	Sampler Sampler
}

// ASLevel distinguishes bottom- and top-level acceleration structures.
type ASLevel int

const (
	ASLevelBottom ASLevel = iota
	ASLevelTop
)

// AccelerationStructure is a built BLAS or TLAS.
type AccelerationStructure interface {
	Level() ASLevel
	DeviceAddress() uint64
	// PrimitiveCount is the triangle count of a BLAS or the instance count of a TLAS.
	PrimitiveCount() int
}

// TriangleGeometry is the input of a bottom-level build: an indexed triangle list.
type TriangleGeometry struct {
	Label       string
	Indices     Buffer
	Positions   Buffer
	IndexCount  uint32
	VertexCount uint32
}

// Instance places a BLAS in the top-level structure.
type Instance struct {
	Transform mgl32.Mat4
	// CustomIndex is reported to the kernel on hit; the frame builder uses the shape index.
	CustomIndex uint32
	BLAS        AccelerationStructure
}

// PushConstants are the per-dispatch parameters of the ray-tracing kernel.
type PushConstants struct {
	SamplesPerPixel uint32
	CurrentBatch    uint32
	MaxBounces      uint32
}

// Device is the GPU collaborator. Creation failures are returned as errors; whether they are
// fatal is decided by the caller.
type Device interface {
	// Name returns a short backend identifier such as "software" or "wgpu".
	Name() string

	// CreateBuffer creates a buffer, initialised with data when data is non-nil and zeroed otherwise.
	//
	// Parameters:
	//   - desc: label, usage and (for zeroed buffers) size
	//   - data: initial contents, or nil
	//
	// Returns:
	//   - Buffer: the buffer
	//   - error: error if the device is out of memory or the size is zero
	CreateBuffer(desc BufferDescriptor, data []byte) (Buffer, error)

	// WriteBuffer copies data into buf at offset.
	WriteBuffer(buf Buffer, offset uint64, data []byte) error

	// ReadBuffer downloads the full contents of buf. Blocks until the device is idle.
	ReadBuffer(buf Buffer) ([]byte, error)

	// FreeBuffer releases buf and its address range. Using buf afterwards is an error.
	FreeBuffer(buf Buffer)

	// CreateImage creates an image, uploading pixels when non-nil and zero-filling otherwise.
	//
	// Parameters:
	//   - desc: size, format and usage
	//   - pixels: tightly packed texels, or nil
	//
	// Returns:
	//   - Image: the image
	//   - error: error if the pixel data does not match the descriptor
	CreateImage(desc ImageDescriptor, pixels []byte) (Image, error)

	// ReadImage downloads the texels of img. Blocks until the device is idle.
	ReadImage(img Image) ([]byte, error)

	// FreeImage waits for submitted work and releases img. Using img afterwards is an error.
	FreeImage(img Image)

	// CreateSampler creates a sampler.
	CreateSampler(desc SamplerDescriptor) (Sampler, error)

	// BuildBottomLevel builds a BLAS over an indexed triangle list.
	BuildBottomLevel(geom TriangleGeometry) (AccelerationStructure, error)

	// BuildTopLevel builds a TLAS over instances. An empty slice yields a valid empty TLAS.
	BuildTopLevel(instances []Instance) (AccelerationStructure, error)

	// FreeAccelerationStructure releases a BLAS or TLAS.
	FreeAccelerationStructure(as AccelerationStructure)

	// NewDescriptorSet allocates a descriptor set for layout.
	NewDescriptorSet(layout DescriptorSetLayout) (DescriptorSet, error)

	// TraceRays runs the path-tracing kernel over a width x height grid using the bound sets.
	// The call returns when the dispatch has completed.
	//
	// Parameters:
	//   - ctx: cancels waiting for the dispatch; work already submitted still completes
	//   - sets: descriptor sets indexed by set number
	//   - push: per-dispatch constants
	//   - width, height: the launch size in pixels
	//
	// Returns:
	//   - error: error if the sets are incomplete or the dispatch failed
	TraceRays(ctx context.Context, sets []DescriptorSet, push PushConstants, width, height uint32) error

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error

	// Release frees every device object. The device is unusable afterwards.
	Release()
}
