// Package software is an in-process gpu.Device. Buffers live in host memory behind device
// addresses, acceleration structures are BVHs and TraceRays runs a CPU path tracer over tiles
// on a worker pool. It is deterministic for a fixed seed and counts every construction, which
// makes it the device the tests run against.
package software

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/tracey"
	"github.com/Carmen-Shannon/tracey/engine/gpu"
	"github.com/Carmen-Shannon/tracey/engine/gpu/bvh"
)

const (
	// DeviceName is returned by Name.
	DeviceName = "software"

	addressBase      = 0x1000
	bufferAlignment  = 256
	defaultAddresses = 1 << 36
	defaultTileSize  = 16
)

// Counters reports how many objects of each kind the device has constructed.
type Counters struct {
	Buffers        int
	Images         int
	Samplers       int
	BottomLevel    int
	TopLevel       int
	DescriptorSets int
	Dispatches     int
	// LiveBuffers is Buffers minus the buffers freed since.
	LiveBuffers int
	// LiveImages is Images minus the images freed since.
	LiveImages    int
	BytesUploaded uint64
}

// Device is the software gpu.Device with construction counters.
type Device interface {
	gpu.Device

	// Counters returns a snapshot of the construction counters.
	Counters() Counters
}

type deviceImpl struct {
	mu       sync.RWMutex
	released bool

	workers      int
	tileSize     uint32
	seed         uint64
	addressSpace uint64

	addresses *gpu.Allocator
	buffers   []*bufferImpl // sorted by device address
	counters  Counters

	pool    worker.DynamicWorkerPool
	pending chan struct{}
}

var _ Device = &deviceImpl{}

// NewDevice creates a software device.
//
// Parameters:
//   - options: functional options (WithWorkers, WithAddressSpace, WithTileSize, WithSeed)
//
// Returns:
//   - Device: the device
func NewDevice(options ...DeviceBuilderOption) Device {
	d := &deviceImpl{
		workers:      defaultWorkers(),
		tileSize:     defaultTileSize,
		addressSpace: defaultAddresses,
	}
	for _, option := range options {
		option(d)
	}
	d.addresses = gpu.NewAllocator(addressBase, d.addressSpace)
	d.pool = worker.NewDynamicWorkerPool(d.workers, 256, time.Second)
	tracey.Logger().Debug("software device created", "workers", d.workers, "tile", d.tileSize)
	return d
}

func (d *deviceImpl) Name() string {
	return DeviceName
}

func (d *deviceImpl) Counters() Counters {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.counters
}

func (d *deviceImpl) CreateBuffer(desc gpu.BufferDescriptor, data []byte) (gpu.Buffer, error) {
	size := desc.Size
	if data != nil {
		size = uint64(len(data))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}
	alloc, err := d.addresses.Allocate(size, bufferAlignment)
	if err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", desc.Label, err)
	}
	b := &bufferImpl{label: desc.Label, usage: desc.Usage, alloc: alloc, data: make([]byte, size)}
	copy(b.data, data)

	i := sort.Search(len(d.buffers), func(i int) bool { return d.buffers[i].alloc.Offset > alloc.Offset })
	d.buffers = append(d.buffers, nil)
	copy(d.buffers[i+1:], d.buffers[i:])
	d.buffers[i] = b

	d.counters.Buffers++
	d.counters.LiveBuffers++
	d.counters.BytesUploaded += uint64(len(data))
	return b, nil
}

func (d *deviceImpl) own(buf gpu.Buffer) (*bufferImpl, error) {
	b, ok := buf.(*bufferImpl)
	if !ok || b == nil {
		return nil, fmt.Errorf("buffer %T does not belong to the software device", buf)
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
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("write of %d bytes at %d overflows buffer %q (%d bytes)", len(data), offset, b.label, len(b.data))
	}
	copy(b.data[offset:], data)
	d.counters.BytesUploaded += uint64(len(data))
	return nil
}

func (d *deviceImpl) ReadBuffer(buf gpu.Buffer) ([]byte, error) {
	if err := d.WaitIdle(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, err := d.own(buf)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b.data...), nil
}

func (d *deviceImpl) FreeBuffer(buf gpu.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.own(buf)
	if err != nil {
		return
	}
	d.freeLocked(b)
}

func (d *deviceImpl) freeLocked(b *bufferImpl) {
	b.freed = true
	d.addresses.Free(b.alloc)
	i := sort.Search(len(d.buffers), func(i int) bool { return d.buffers[i].alloc.Offset >= b.alloc.Offset })
	if i < len(d.buffers) && d.buffers[i] == b {
		d.buffers = append(d.buffers[:i], d.buffers[i+1:]...)
	}
	d.counters.LiveBuffers--
}

// resolve returns the n bytes at a device address, the way a shader dereferences a buffer
// device address. Callers hold d.mu for reading.
func (d *deviceImpl) resolve(addr uint64, n uint64) ([]byte, error) {
	i := sort.Search(len(d.buffers), func(i int) bool { return d.buffers[i].alloc.Offset > addr }) - 1
	if i < 0 {
		return nil, fmt.Errorf("device address %#x is not mapped", addr)
	}
	b := d.buffers[i]
	rel := addr - b.alloc.Offset
	if rel+n > uint64(len(b.data)) {
		return nil, fmt.Errorf("device address %#x+%d overruns buffer %q", addr, n, b.label)
	}
	return b.data[rel : rel+n], nil
}

func (d *deviceImpl) CreateImage(desc gpu.ImageDescriptor, pixels []byte) (gpu.Image, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("create image %q: zero size %dx%d", desc.Label, desc.Width, desc.Height)
	}
	size := int(desc.Width) * int(desc.Height) * desc.Format.TexelSize()
	if pixels != nil && len(pixels) != size {
		return nil, fmt.Errorf("create image %q: %d bytes of pixels for %dx%d %s (want %d)", desc.Label, len(pixels), desc.Width, desc.Height, desc.Format, size)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}
	img := &imageImpl{
		label:  desc.Label,
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
		usage:  desc.Usage,
		data:   make([]byte, size),
	}
	copy(img.data, pixels)
	d.counters.Images++
	d.counters.LiveImages++
	d.counters.BytesUploaded += uint64(len(pixels))
	return img, nil
}

func (d *deviceImpl) ReadImage(img gpu.Image) ([]byte, error) {
	if err := d.WaitIdle(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	i, err := ownImage(img)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), i.data...), nil
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
	d.counters.LiveImages--
}

func ownImage(img gpu.Image) (*imageImpl, error) {
	i, ok := img.(*imageImpl)
	if !ok || i == nil {
		return nil, fmt.Errorf("image %T does not belong to the software device", img)
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
	d.counters.Samplers++
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
	if uint64(geom.IndexCount)*4 > uint64(len(ib.data)) || uint64(geom.VertexCount)*12 > uint64(len(pb.data)) {
		return nil, fmt.Errorf("build BLAS %q: counts exceed buffer sizes", geom.Label)
	}

	tris, err := bvh.BuildTriangles(decodeVec3s(pb.data, int(geom.VertexCount)), decodeUint32s(ib.data, int(geom.IndexCount)))
	if err != nil {
		return nil, fmt.Errorf("build BLAS %q: %w", geom.Label, err)
	}
	alloc, err := d.addresses.Allocate(uint64(max(len(tris.Nodes), 1)*bvh.NodeSize), bufferAlignment)
	if err != nil {
		return nil, fmt.Errorf("build BLAS %q: %w", geom.Label, err)
	}
	d.counters.BottomLevel++
	tracey.Logger().Debug("built BLAS", "label", geom.Label, "triangles", geom.IndexCount/3, "nodes", len(tris.Nodes))
	return &blasImpl{alloc: alloc, tris: tris}, nil
}

func (d *deviceImpl) BuildTopLevel(instances []gpu.Instance) (gpu.AccelerationStructure, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}
	t := &tlasImpl{instances: make([]tlasInstance, len(instances))}
	items := make([]bvh.Item, len(instances))
	for i, inst := range instances {
		b, ok := inst.BLAS.(*blasImpl)
		if !ok || b == nil {
			return nil, fmt.Errorf("build TLAS: instance %d has no software BLAS", i)
		}
		inv := inst.Transform.Inv()
		t.instances[i] = tlasInstance{
			transform:   inst.Transform,
			inverse:     inv,
			normal:      inv.Transpose(),
			customIndex: inst.CustomIndex,
			blas:        b,
		}
		items[i] = bvh.Item{Bounds: b.tris.Bounds().Transform(inst.Transform), ID: uint32(i)}
	}
	t.tree = bvh.Build(items)
	alloc, err := d.addresses.Allocate(uint64(max(len(t.tree.Nodes), 1)*bvh.NodeSize), bufferAlignment)
	if err != nil {
		return nil, fmt.Errorf("build TLAS: %w", err)
	}
	t.alloc = alloc
	d.counters.TopLevel++
	tracey.Logger().Debug("built TLAS", "instances", len(instances))
	return t, nil
}

func (d *deviceImpl) FreeAccelerationStructure(as gpu.AccelerationStructure) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch a := as.(type) {
	case *blasImpl:
		d.addresses.Free(a.alloc)
	case *tlasImpl:
		d.addresses.Free(a.alloc)
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
	d.counters.DescriptorSets++
	return gpu.NewDescriptorSet(layout), nil
}

func (d *deviceImpl) WaitIdle() error {
	d.mu.RLock()
	pending := d.pending
	released := d.released
	d.mu.RUnlock()
	if released {
		return gpu.ErrReleased
	}
	if pending != nil {
		<-pending
	}
	return nil
}

func (d *deviceImpl) Release() {
	_ = d.WaitIdle()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return
	}
	for _, b := range append([]*bufferImpl(nil), d.buffers...) {
		d.freeLocked(b)
	}
	d.released = true
	tracey.Logger().Debug("software device released", "dispatches", d.counters.Dispatches)
}
