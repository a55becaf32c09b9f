// Package wgpu is a gpu.Device on WebGPU. WebGPU has neither ray-tracing pipelines nor bindless
// arrays, so the device keeps every buffer, image and acceleration structure in one storage heap.
// Acceleration structures are BVHs built on the host and encoded into the heap, and TraceRays
// runs kernel.wgsl as a compute shader that walks them.
package wgpu

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/tracey"
	"github.com/Carmen-Shannon/tracey/engine/gpu"
	"github.com/Carmen-Shannon/tracey/engine/gpu/bvh"
	"github.com/cogentcore/webgpu/wgpu"
)

const (
	// DeviceName is returned by Name.
	DeviceName = "wgpu"

	// DefaultHeapSize matches the default WebGPU storage binding limit.
	DefaultHeapSize = 128 << 20

	heapGrowth    = 4 << 20
	workgroupSize = 8
)

type deviceImpl struct {
	mu       sync.Mutex
	released bool

	forceFallbackAdapter bool
	heapSize             uint64
	seed                 uint64

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	module      *wgpu.ShaderModule
	groupLayout *wgpu.BindGroupLayout
	layout      *wgpu.PipelineLayout
	pipeline    *wgpu.ComputePipeline

	heap       *heap
	heapBuf    *wgpu.Buffer
	heapBufLen uint64
	paramsBuf  *wgpu.Buffer
	texBuf     *wgpu.Buffer
	texBufLen  uint64
	bindGroup  *wgpu.BindGroup
}

var _ gpu.Device = &deviceImpl{}

// NewDevice requests an adapter and device and compiles the path-tracing kernel.
//
// Parameters:
//   - options: functional options (WithForceFallbackAdapter, WithHeapSize, WithSeed)
//
// Returns:
//   - gpu.Device: the device
//   - error: error if no adapter is available or the kernel fails to compile
func NewDevice(options ...DeviceBuilderOption) (gpu.Device, error) {
	d := &deviceImpl{heapSize: DefaultHeapSize}
	for _, option := range options {
		option(d)
	}
	d.heap = newHeap(d.heapSize)

	d.instance = wgpu.CreateInstance(nil)
	a, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallbackAdapter,
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	d.adapter = a

	limits := wgpu.DefaultLimits()
	limits.MaxStorageBufferBindingSize = max(limits.MaxStorageBufferBindingSize, d.heapSize)
	dev, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Tracey Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	d.device = dev
	d.queue = dev.GetQueue()

	if err := d.createPipeline(); err != nil {
		d.Release()
		return nil, err
	}
	d.paramsBuf, err = d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Trace Params",
		Size:  paramsSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("create params buffer: %w", err)
	}
	tracey.Logger().Debug("wgpu device created", "heap", d.heapSize, "fallback", d.forceFallbackAdapter)
	return d, nil
}

func (d *deviceImpl) createPipeline() error {
	code, entries, err := expandKernel()
	if err != nil {
		return fmt.Errorf("expand kernel: %w", err)
	}
	d.module, err = d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: "Path Tracing Kernel",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: code,
		},
	})
	if err != nil {
		return fmt.Errorf("compile kernel: %w", err)
	}

	d.groupLayout, err = d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   "Path Tracing Bind Group Layout",
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}

	d.layout, err = d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Path Tracing Pipeline Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{d.groupLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}

	d.pipeline, err = d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  "Path Tracing Pipeline",
		Layout: d.layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     d.module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	return nil
}

func (d *deviceImpl) Name() string {
	return DeviceName
}

func (d *deviceImpl) CreateBuffer(desc gpu.BufferDescriptor, data []byte) (gpu.Buffer, error) {
	size := desc.Size
	if data != nil {
		size = uint64(len(data))
	}
	if size == 0 {
		return nil, fmt.Errorf("create buffer %q: zero size", desc.Label)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}
	alloc, err := d.heap.allocate(size)
	if err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", desc.Label, err)
	}
	if err := d.heap.write(alloc.Offset, data); err != nil {
		return nil, err
	}
	return &bufferImpl{label: desc.Label, usage: desc.Usage, size: size, alloc: alloc}, nil
}

func (d *deviceImpl) own(buf gpu.Buffer) (*bufferImpl, error) {
	b, ok := buf.(*bufferImpl)
	if !ok || b == nil {
		return nil, fmt.Errorf("buffer %T does not belong to the wgpu device", buf)
	}
	if b.freed {
		return nil, fmt.Errorf("buffer %q used after free", b.label)
	}
	return b, nil
}

func (d *deviceImpl) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return gpu.ErrReleased
	}
	b, err := d.own(buf)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("write of %d bytes at %d overflows buffer %q (%d bytes)", len(data), offset, b.label, b.size)
	}
	return d.heap.write(b.alloc.Offset+offset, data)
}

// ReadBuffer returns the host copy of buf. The kernel only writes images, so the copy is current.
func (d *deviceImpl) ReadBuffer(buf gpu.Buffer) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}
	b, err := d.own(buf)
	if err != nil {
		return nil, err
	}
	data, err := d.heap.bytes(b.alloc.Offset, b.size)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

func (d *deviceImpl) FreeBuffer(buf gpu.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.own(buf)
	if err != nil {
		return
	}
	b.freed = true
	d.heap.free(b.alloc)
}

func (d *deviceImpl) CreateImage(desc gpu.ImageDescriptor, pixels []byte) (gpu.Image, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("create image %q: zero size %dx%d", desc.Label, desc.Width, desc.Height)
	}
	img := &imageImpl{
		label:  desc.Label,
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
		usage:  desc.Usage,
	}
	size := img.byteSize()
	if pixels != nil && uint64(len(pixels)) != size {
		return nil, fmt.Errorf("create image %q: %d bytes of pixels for %dx%d %s (want %d)", desc.Label, len(pixels), desc.Width, desc.Height, desc.Format, size)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}
	alloc, err := d.heap.allocate(size)
	if err != nil {
		return nil, fmt.Errorf("create image %q: %w", desc.Label, err)
	}
	img.alloc = alloc
	if err := d.heap.write(alloc.Offset, pixels); err != nil {
		return nil, err
	}
	return img, nil
}

// ReadImage downloads img from the device heap, where the kernel writes storage images.
func (d *deviceImpl) ReadImage(img gpu.Image) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}
	i, err := ownImage(img)
	if err != nil {
		return nil, err
	}
	if err := d.sync(); err != nil {
		return nil, err
	}
	return d.download(i.alloc.Offset, i.byteSize())
}

func (d *deviceImpl) FreeImage(img gpu.Image) {
	_ = d.WaitIdle()
	d.mu.Lock()
	defer d.mu.Unlock()
	i, err := ownImage(img)
	if err != nil {
		return
	}
	i.freed = true
	d.heap.free(i.alloc)
}

func ownImage(img gpu.Image) (*imageImpl, error) {
	i, ok := img.(*imageImpl)
	if !ok || i == nil {
		return nil, fmt.Errorf("image %T does not belong to the wgpu device", img)
	}
	if i.freed {
		return nil, fmt.Errorf("image %q used after free", i.label)
	}
	return i, nil
}

func (d *deviceImpl) CreateSampler(desc gpu.SamplerDescriptor) (gpu.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}
	return &samplerImpl{desc: desc}, nil
}

func (d *deviceImpl) BuildBottomLevel(geom gpu.TriangleGeometry) (gpu.AccelerationStructure, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}
	ib, err := d.own(geom.Indices)
	if err != nil {
		return nil, fmt.Errorf("build BLAS %q: %w", geom.Label, err)
	}
	pb, err := d.own(geom.Positions)
	if err != nil {
		return nil, fmt.Errorf("build BLAS %q: %w", geom.Label, err)
	}
	if uint64(geom.IndexCount)*4 > ib.size || uint64(geom.VertexCount)*12 > pb.size {
		return nil, fmt.Errorf("build BLAS %q: counts exceed buffer sizes", geom.Label)
	}

	indices, err := d.heap.bytes(ib.alloc.Offset, uint64(geom.IndexCount)*4)
	if err != nil {
		return nil, err
	}
	positions, err := d.heap.bytes(pb.alloc.Offset, uint64(geom.VertexCount)*12)
	if err != nil {
		return nil, err
	}
	tris, err := bvh.BuildTriangles(decodeVec3s(positions, int(geom.VertexCount)), decodeUint32s(indices, int(geom.IndexCount)))
	if err != nil {
		return nil, fmt.Errorf("build BLAS %q: %w", geom.Label, err)
	}

	alloc, err := d.heap.allocate(bottomLevelSize(tris))
	if err != nil {
		return nil, fmt.Errorf("build BLAS %q: %w", geom.Label, err)
	}
	if err := d.heap.write(alloc.Offset, encodeBottomLevel(alloc.Offset, tris, ib.alloc.Offset, pb.alloc.Offset)); err != nil {
		return nil, err
	}
	tracey.Logger().Debug("built BLAS", "label", geom.Label, "triangles", geom.IndexCount/3, "nodes", len(tris.Nodes))
	return &accelImpl{level: gpu.ASLevelBottom, alloc: alloc, count: int(geom.IndexCount / 3)}, nil
}

func (d *deviceImpl) BuildTopLevel(instances []gpu.Instance) (gpu.AccelerationStructure, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}

	records := make([]instanceRecord, len(instances))
	items := make([]bvh.Item, len(instances))
	for i, inst := range instances {
		b, ok := inst.BLAS.(*accelImpl)
		if !ok || b == nil || b.level != gpu.ASLevelBottom {
			return nil, fmt.Errorf("build TLAS: instance %d has no wgpu BLAS", i)
		}
		header, err := d.heap.bytes(b.alloc.Offset, headerSize)
		if err != nil {
			return nil, fmt.Errorf("build TLAS: instance %d: %w", i, err)
		}
		bounds, err := d.blasBounds(header)
		if err != nil {
			return nil, fmt.Errorf("build TLAS: instance %d: %w", i, err)
		}
		records[i] = newInstanceRecord(inst, word(b.alloc.Offset))
		items[i] = bvh.Item{Bounds: bounds.Transform(inst.Transform), ID: uint32(i)}
	}
	tree := bvh.Build(items)

	alloc, err := d.heap.allocate(topLevelSize(tree, len(records)))
	if err != nil {
		return nil, fmt.Errorf("build TLAS: %w", err)
	}
	if err := d.heap.write(alloc.Offset, encodeTopLevel(alloc.Offset, tree, records)); err != nil {
		return nil, err
	}
	tracey.Logger().Debug("built TLAS", "instances", len(instances))
	return &accelImpl{level: gpu.ASLevelTop, alloc: alloc, count: len(instances)}, nil
}

// blasBounds reads the root box of an encoded BLAS.
func (d *deviceImpl) blasBounds(header []byte) (bvh.AABB, error) {
	h := decodeUint32s(header, 2)
	if h[1] == 0 {
		return bvh.EmptyAABB(), nil
	}
	root, err := d.heap.bytes(uint64(h[0])*4, bvh.NodeSize)
	if err != nil {
		return bvh.AABB{}, err
	}
	// Max starts at byte 16, past the Min.W slot.
	lo := decodeVec3s(root[:12], 1)
	hi := decodeVec3s(root[16:28], 1)
	return bvh.AABB{Min: lo[0], Max: hi[0]}, nil
}

func (d *deviceImpl) FreeAccelerationStructure(as gpu.AccelerationStructure) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a, ok := as.(*accelImpl); ok && a != nil {
		d.heap.free(a.alloc)
	}
}

func (d *deviceImpl) NewDescriptorSet(layout gpu.DescriptorSetLayout) (gpu.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}
	if len(layout.Bindings) == 0 {
		return nil, fmt.Errorf("descriptor set %d has no bindings", layout.Set)
	}
	return gpu.NewDescriptorSet(layout), nil
}

func (d *deviceImpl) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return gpu.ErrReleased
	}
	d.device.Poll(true, nil)
	return nil
}

func (d *deviceImpl) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return
	}
	d.released = true

	if d.device != nil {
		d.device.Poll(true, nil)
	}
	if d.bindGroup != nil {
		d.bindGroup.Release()
	}
	for _, b := range []*wgpu.Buffer{d.heapBuf, d.paramsBuf, d.texBuf} {
		if b != nil {
			b.Release()
		}
	}
	if d.pipeline != nil {
		d.pipeline.Release()
	}
	if d.layout != nil {
		d.layout.Release()
	}
	if d.groupLayout != nil {
		d.groupLayout.Release()
	}
	if d.module != nil {
		d.module.Release()
	}
	if d.queue != nil {
		d.queue.Release()
	}
	if d.device != nil {
		d.device.Release()
	}
	if d.adapter != nil {
		d.adapter.Release()
	}
	if d.instance != nil {
		d.instance.Release()
	}
	tracey.Logger().Debug("wgpu device released")
}
