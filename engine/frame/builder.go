// Package frame turns a flattened GPU scene into an immutable Frame: the material and
// mesh-address arrays, the bindless texture array, the TLAS and the descriptor sets a dispatch
// binds.
package frame

import (
	"fmt"
	"sync/atomic"

	"github.com/Carmen-Shannon/tracey"
	"github.com/Carmen-Shannon/tracey/engine/gpu"
	"github.com/Carmen-Shannon/tracey/engine/resource"
	"github.com/Carmen-Shannon/tracey/engine/scene"
)

// Builder produces Frames against a fixed device and set of render targets.
type Builder interface {
	// Build encodes scene into a new Frame. An empty scene produces a valid frame with zero
	// instances.
	//
	// Parameters:
	//   - scene: the flattened scene
	//
	// Returns:
	//   - *Frame: the frame
	//   - error: ErrBuildInProgress if another build is running, or a device error
	Build(scene *scene.GPUScene) (*Frame, error)

	// State returns the current build state.
	State() State

	// Targets returns the render targets frames are bound to.
	Targets() Targets
}

type builderImpl struct {
	device      gpu.Device
	targets     Targets
	layouts     []gpu.DescriptorSetLayout
	maxTextures int
	state       atomic.Int32
}

var _ Builder = &builderImpl{}

// NewBuilder creates a frame builder.
//
// Parameters:
//   - device: the device frames are built on
//   - targets: the output, accumulation and camera targets
//   - options: functional options (WithMaxTextures, WithLayouts)
//
// Returns:
//   - Builder: the builder
func NewBuilder(device gpu.Device, targets Targets, options ...BuilderOption) Builder {
	if device == nil {
		panic("frame: nil device")
	}
	if targets.Output == nil || targets.Accumulation == nil || targets.Camera == nil {
		panic("frame: incomplete render targets")
	}
	b := &builderImpl{
		device:      device,
		targets:     targets,
		layouts:     gpu.PathTracingLayouts(),
		maxTextures: gpu.MaxBindlessTextures,
	}
	for _, option := range options {
		option(b)
	}
	return b
}

func (b *builderImpl) State() State {
	return State(b.state.Load())
}

func (b *builderImpl) Targets() Targets {
	return b.targets
}

func (b *builderImpl) Build(gs *scene.GPUScene) (*Frame, error) {
	prev := b.state.Load()
	if prev == int32(StateBuilding) || !b.state.CompareAndSwap(prev, int32(StateBuilding)) {
		return nil, ErrBuildInProgress
	}
	f, err := b.build(gs)
	if err != nil {
		b.state.Store(prev)
		return nil, err
	}
	b.state.Store(int32(StateReady))
	return f, nil
}

func (b *builderImpl) build(gs *scene.GPUScene) (*Frame, error) {
	n := gs.Len()
	f := &Frame{
		device:        b.device,
		instanceCount: n,
		materials:     make([]gpu.GPUMaterial, 0, max(n, 1)),
		meshAddresses: make([]gpu.MeshAddress, 0, max(n, 1)),
		targets:       b.targets,
	}
	textures := NewTextureArray(b.maxTextures)
	instances := make([]gpu.Instance, 0, n)

	for i := range n {
		si := gs.Instances[i]
		f.meshAddresses = append(f.meshAddresses, si.Mesh.Address)

		var slots [resource.TextureMapCount]int32
		for s, tex := range si.Material.Textures {
			slots[s] = gpu.NoTexture
			if tex == nil {
				continue
			}
			slot, err := textures.Push(tex)
			if err != nil {
				return nil, fmt.Errorf("build frame: instance %d: %w", i, err)
			}
			slots[s] = slot
		}
		f.materials = append(f.materials, si.Material.GPU(slots))
		instances = append(instances, gpu.Instance{
			Transform:   si.Transform,
			CustomIndex: uint32(i),
			BLAS:        si.Mesh.BLAS,
		})
	}
	if n == 0 {
		f.materials = append(f.materials, gpu.GPUMaterial{Maps: [4]int32{gpu.NoTexture, gpu.NoTexture, gpu.NoTexture, gpu.NoTexture}})
		f.meshAddresses = append(f.meshAddresses, gpu.MeshAddress{})
	}
	f.textures = textures.Textures()

	if err := b.upload(f); err != nil {
		return nil, err
	}
	tlas, err := b.device.BuildTopLevel(instances)
	if err != nil {
		f.Release()
		return nil, fmt.Errorf("build frame: TLAS: %w", err)
	}
	f.tlas = tlas

	if err := b.bind(f, textures); err != nil {
		f.Release()
		return nil, err
	}
	tracey.Logger().Debug("frame built", "instances", n, "textures", textures.Len(), "materials", len(f.materials))
	return f, nil
}

func (b *builderImpl) upload(f *Frame) error {
	storage := gpu.BufferUsageStorage | gpu.BufferUsageShaderDeviceAddress

	matBytes := make([]byte, 0, len(f.materials)*gpu.GPUMaterialSize)
	for i := range f.materials {
		matBytes = append(matBytes, f.materials[i].Marshal()...)
	}
	matBuf, err := b.device.CreateBuffer(gpu.BufferDescriptor{Label: "frame/materials", Usage: storage}, matBytes)
	if err != nil {
		return fmt.Errorf("build frame: material array: %w", err)
	}
	f.materialBuf = matBuf

	meshBytes := make([]byte, 0, len(f.meshAddresses)*gpu.MeshAddressSize)
	for i := range f.meshAddresses {
		meshBytes = append(meshBytes, f.meshAddresses[i].Marshal()...)
	}
	meshBuf, err := b.device.CreateBuffer(gpu.BufferDescriptor{Label: "frame/mesh-addresses", Usage: storage}, meshBytes)
	if err != nil {
		b.device.FreeBuffer(matBuf)
		return fmt.Errorf("build frame: mesh-address array: %w", err)
	}
	f.meshBuf = meshBuf

	su := gpu.NewGPUSceneUniform(matBuf.DeviceAddress(), uint32(f.instanceCount))
	sceneBuf, err := b.device.CreateBuffer(gpu.BufferDescriptor{Label: "frame/scene", Usage: gpu.BufferUsageUniform}, su.Marshal())
	if err != nil {
		b.device.FreeBuffer(matBuf)
		b.device.FreeBuffer(meshBuf)
		return fmt.Errorf("build frame: scene uniform: %w", err)
	}
	f.sceneBuf = sceneBuf
	return nil
}

func (b *builderImpl) bind(f *Frame, textures *TextureArray) error {
	f.sets = make([]gpu.DescriptorSet, len(b.layouts))
	for i, l := range b.layouts {
		set, err := b.device.NewDescriptorSet(l)
		if err != nil {
			return fmt.Errorf("build frame: descriptor set %d: %w", l.Set, err)
		}
		f.sets[i] = set
	}
	rt, sc := f.sets[gpu.SetRayTracing], f.sets[gpu.SetScene]

	writes := []func() error{
		func() error { return rt.WriteAccelerationStructure(gpu.BindingTLAS, f.tlas) },
		func() error { return rt.WriteStorageImage(gpu.BindingOutputImage, b.targets.Output) },
		func() error { return rt.WriteStorageImage(gpu.BindingAccumulationImage, b.targets.Accumulation) },
		func() error { return sc.WriteUniformBuffer(gpu.BindingCamera, b.targets.Camera) },
		func() error { return sc.WriteUniformBuffer(gpu.BindingSceneUniform, f.sceneBuf) },
		func() error { return sc.WriteSampledImages(gpu.BindingTextures, textures.SampledImages()) },
		func() error { return sc.WriteStorageBuffer(gpu.BindingMeshAddresses, f.meshBuf) },
	}
	for _, w := range writes {
		if err := w(); err != nil {
			return fmt.Errorf("build frame: %w", err)
		}
	}
	return nil
}
