package gpu

import (
	"fmt"
	"sync"
)

// DescriptorType is the kind of resource a binding holds.
type DescriptorType int

const (
	DescriptorAccelerationStructure DescriptorType = iota
	DescriptorStorageImage
	DescriptorUniformBuffer
	DescriptorStorageBuffer
	DescriptorSampledImageArray
)

func (t DescriptorType) String() string {
	switch t {
	case DescriptorAccelerationStructure:
		return "acceleration-structure"
	case DescriptorStorageImage:
		return "storage-image"
	case DescriptorUniformBuffer:
		return "uniform-buffer"
	case DescriptorStorageBuffer:
		return "storage-buffer"
	case DescriptorSampledImageArray:
		return "sampled-image-array"
	default:
		return fmt.Sprintf("descriptor(%d)", int(t))
	}
}

// LayoutBinding is one binding of a descriptor set layout.
type LayoutBinding struct {
	Binding uint32
	Type    DescriptorType
	// Count bounds array bindings; 1 for everything else.
	Count uint32
}

// DescriptorSetLayout describes the bindings of one set.
type DescriptorSetLayout struct {
	Set      uint32
	Bindings []LayoutBinding
}

// Binding looks up a binding by number.
func (l DescriptorSetLayout) Binding(binding uint32) (LayoutBinding, bool) {
	for _, b := range l.Bindings {
		if b.Binding == binding {
			return b, true
		}
	}
	return LayoutBinding{}, false
}

// Descriptor set numbers and bindings of the path-tracing pipeline.
const (
	SetRayTracing uint32 = 0
	SetScene      uint32 = 1

	BindingTLAS              uint32 = 0
	BindingOutputImage       uint32 = 1
	BindingAccumulationImage uint32 = 2

	BindingCamera        uint32 = 0
	BindingSceneUniform  uint32 = 1
	BindingTextures      uint32 = 2
	BindingMeshAddresses uint32 = 3
)

// MaxBindlessTextures bounds the bindless texture array.
const MaxBindlessTextures = 1024

// PathTracingLayouts returns the two set layouts every backend's kernel expects.
func PathTracingLayouts() []DescriptorSetLayout {
	return []DescriptorSetLayout{
		{
			Set: SetRayTracing,
			Bindings: []LayoutBinding{
				{Binding: BindingTLAS, Type: DescriptorAccelerationStructure, Count: 1},
				{Binding: BindingOutputImage, Type: DescriptorStorageImage, Count: 1},
				{Binding: BindingAccumulationImage, Type: DescriptorStorageImage, Count: 1},
			},
		},
		{
			Set: SetScene,
			Bindings: []LayoutBinding{
				{Binding: BindingCamera, Type: DescriptorUniformBuffer, Count: 1},
				{Binding: BindingSceneUniform, Type: DescriptorUniformBuffer, Count: 1},
				{Binding: BindingTextures, Type: DescriptorSampledImageArray, Count: MaxBindlessTextures},
				{Binding: BindingMeshAddresses, Type: DescriptorStorageBuffer, Count: 1},
			},
		},
	}
}

// DescriptorSet holds the resources written to each binding of a layout.
type DescriptorSet interface {
	// Layout returns the layout the set was allocated with.
	Layout() DescriptorSetLayout

	// WriteAccelerationStructure binds as to an acceleration-structure binding.
	WriteAccelerationStructure(binding uint32, as AccelerationStructure) error

	// WriteUniformBuffer binds buf to a uniform-buffer binding.
	WriteUniformBuffer(binding uint32, buf Buffer) error

	// WriteStorageBuffer binds buf to a storage-buffer binding.
	WriteStorageBuffer(binding uint32, buf Buffer) error

	// WriteStorageImage binds img to a storage-image binding.
	WriteStorageImage(binding uint32, img Image) error

	// WriteSampledImages binds a whole bindless array; element i is slot i.
	WriteSampledImages(binding uint32, images []SampledImage) error

	// AccelerationStructure returns the structure bound at binding, or nil.
	AccelerationStructure(binding uint32) AccelerationStructure

	// Buffer returns the buffer bound at binding, or nil.
	Buffer(binding uint32) Buffer

	// Image returns the storage image bound at binding, or nil.
	Image(binding uint32) Image

	// SampledImages returns a copy of the array bound at binding.
	SampledImages(binding uint32) []SampledImage

	// Writes returns how many writes the set has received.
	Writes() int
}

type descriptorSetImpl struct {
	mu      sync.RWMutex
	layout  DescriptorSetLayout
	structs map[uint32]AccelerationStructure
	buffers map[uint32]Buffer
	images  map[uint32]Image
	arrays  map[uint32][]SampledImage
	writes  int
}

var _ DescriptorSet = &descriptorSetImpl{}

// NewDescriptorSet creates a host-side descriptor set. Backends return it from
// Device.NewDescriptorSet and read it back when dispatching.
//
// Parameters:
//   - layout: the set layout
//
// Returns:
//   - DescriptorSet: an empty set
func NewDescriptorSet(layout DescriptorSetLayout) DescriptorSet {
	return &descriptorSetImpl{
		layout:  layout,
		structs: make(map[uint32]AccelerationStructure),
		buffers: make(map[uint32]Buffer),
		images:  make(map[uint32]Image),
		arrays:  make(map[uint32][]SampledImage),
	}
}

func (d *descriptorSetImpl) Layout() DescriptorSetLayout {
	return d.layout
}

func (d *descriptorSetImpl) check(binding uint32, want DescriptorType) (LayoutBinding, error) {
	b, ok := d.layout.Binding(binding)
	if !ok {
		return b, fmt.Errorf("set %d has no binding %d", d.layout.Set, binding)
	}
	if b.Type != want {
		return b, fmt.Errorf("set %d binding %d is %s, not %s", d.layout.Set, binding, b.Type, want)
	}
	return b, nil
}

func (d *descriptorSetImpl) WriteAccelerationStructure(binding uint32, as AccelerationStructure) error {
	if _, err := d.check(binding, DescriptorAccelerationStructure); err != nil {
		return err
	}
	if as == nil || as.Level() != ASLevelTop {
		return fmt.Errorf("binding %d requires a top-level acceleration structure", binding)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.structs[binding] = as
	d.writes++
	return nil
}

func (d *descriptorSetImpl) WriteUniformBuffer(binding uint32, buf Buffer) error {
	return d.writeBuffer(binding, buf, DescriptorUniformBuffer, BufferUsageUniform)
}

func (d *descriptorSetImpl) WriteStorageBuffer(binding uint32, buf Buffer) error {
	return d.writeBuffer(binding, buf, DescriptorStorageBuffer, BufferUsageStorage)
}

func (d *descriptorSetImpl) writeBuffer(binding uint32, buf Buffer, want DescriptorType, usage BufferUsage) error {
	if _, err := d.check(binding, want); err != nil {
		return err
	}
	if buf == nil {
		return fmt.Errorf("binding %d: nil buffer", binding)
	}
	if buf.Usage()&usage == 0 {
		return fmt.Errorf("binding %d: buffer %q lacks the usage for %s", binding, buf.Label(), want)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffers[binding] = buf
	d.writes++
	return nil
}

func (d *descriptorSetImpl) WriteStorageImage(binding uint32, img Image) error {
	if _, err := d.check(binding, DescriptorStorageImage); err != nil {
		return err
	}
	if img == nil || img.Usage()&ImageUsageStorage == 0 {
		return fmt.Errorf("binding %d requires a storage image", binding)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.images[binding] = img
	d.writes++
	return nil
}

func (d *descriptorSetImpl) WriteSampledImages(binding uint32, images []SampledImage) error {
	b, err := d.check(binding, DescriptorSampledImageArray)
	if err != nil {
		return err
	}
	if uint32(len(images)) > b.Count {
		return fmt.Errorf("binding %d holds at most %d images, got %d", binding, b.Count, len(images))
	}
	for i, si := range images {
		if si.Image == nil || si.Sampler == nil {
			return fmt.Errorf("binding %d element %d is incomplete", binding, i)
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.arrays[binding] = append([]SampledImage(nil), images...)
	d.writes++
	return nil
}

func (d *descriptorSetImpl) AccelerationStructure(binding uint32) AccelerationStructure {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.structs[binding]
}

func (d *descriptorSetImpl) Buffer(binding uint32) Buffer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.buffers[binding]
}

func (d *descriptorSetImpl) Image(binding uint32) Image {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.images[binding]
}

func (d *descriptorSetImpl) SampledImages(binding uint32) []SampledImage {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]SampledImage(nil), d.arrays[binding]...)
}

func (d *descriptorSetImpl) Writes() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.writes
}

// ValidateSets checks that sets match the path-tracing layouts and that every binding except
// the bindless array has been written. Backends call it before dispatching.
func ValidateSets(sets []DescriptorSet) error {
	layouts := PathTracingLayouts()
	if len(sets) != len(layouts) {
		return fmt.Errorf("expected %d descriptor sets, got %d", len(layouts), len(sets))
	}
	for i, l := range layouts {
		set := sets[i]
		if set == nil || set.Layout().Set != l.Set {
			return fmt.Errorf("descriptor set %d missing or out of order", l.Set)
		}
		for _, b := range l.Bindings {
			var bound bool
			switch b.Type {
			case DescriptorAccelerationStructure:
				bound = set.AccelerationStructure(b.Binding) != nil
			case DescriptorStorageImage:
				bound = set.Image(b.Binding) != nil
			case DescriptorUniformBuffer, DescriptorStorageBuffer:
				bound = set.Buffer(b.Binding) != nil
			case DescriptorSampledImageArray:
				bound = true
			}
			if !bound {
				return fmt.Errorf("set %d binding %d (%s) was never written", l.Set, b.Binding, b.Type)
			}
		}
	}
	return nil
}
