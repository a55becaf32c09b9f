package wgpu

import (
	"context"
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/tracey"
	"github.com/Carmen-Shannon/tracey/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

func (d *deviceImpl) TraceRays(ctx context.Context, sets []gpu.DescriptorSet, push gpu.PushConstants, width, height uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := gpu.ValidateSets(sets); err != nil {
		return fmt.Errorf("trace rays: %w", err)
	}

	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return gpu.ErrReleased
	}
	err := d.submitTrace(sets, push, width, height)
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("trace rays: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.WaitIdle()
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	tracey.Logger().Debug("trace rays", "width", width, "height", height, "spp", push.SamplesPerPixel, "batch", push.CurrentBatch)
	return nil
}

// submitTrace resolves the bound sets into heap words, uploads everything dirty and submits
// one compute dispatch. Callers hold d.mu.
func (d *deviceImpl) submitTrace(sets []gpu.DescriptorSet, push gpu.PushConstants, width, height uint32) error {
	params, textures, err := d.bind(sets, push, width, height)
	if err != nil {
		return err
	}
	if err := d.sync(); err != nil {
		return err
	}
	if err := d.uploadTextures(textures); err != nil {
		return err
	}
	if d.bindGroup == nil {
		d.bindGroup, err = d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  "Path Tracing Bind Group",
			Layout: d.groupLayout,
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, Buffer: d.heapBuf, Size: wgpu.WholeSize},
				{Binding: 1, Buffer: d.paramsBuf, Size: wgpu.WholeSize},
				{Binding: 2, Buffer: d.texBuf, Size: wgpu.WholeSize},
			},
		})
		if err != nil {
			return fmt.Errorf("create bind group: %w", err)
		}
	}
	d.queue.WriteBuffer(d.paramsBuf, 0, params.Marshal())

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(d.pipeline)
	pass.SetBindGroup(0, d.bindGroup, nil)
	pass.DispatchWorkgroups((width+workgroupSize-1)/workgroupSize, (height+workgroupSize-1)/workgroupSize, 1)
	pass.End()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		encoder.Release()
		return err
	}
	d.queue.Submit(commandBuffer)
	commandBuffer.Release()
	encoder.Release()
	return nil
}

// bind reads the descriptor sets the way the kernel will: every resource becomes a heap word.
func (d *deviceImpl) bind(sets []gpu.DescriptorSet, push gpu.PushConstants, width, height uint32) (*dispatchParams, []byte, error) {
	rt, sc := sets[0], sets[1]
	tlas, ok := rt.AccelerationStructure(gpu.BindingTLAS).(*accelImpl)
	if !ok || tlas.level != gpu.ASLevelTop {
		return nil, nil, errors.New("TLAS does not belong to the wgpu device")
	}
	out, ok := rt.Image(gpu.BindingOutputImage).(*imageImpl)
	if !ok || out.format != gpu.ImageFormatRGBA8 {
		return nil, nil, errors.New("output image must be a wgpu RGBA8 image")
	}
	acc, ok := rt.Image(gpu.BindingAccumulationImage).(*imageImpl)
	if !ok || acc.format != gpu.ImageFormatRGBA32F {
		return nil, nil, errors.New("accumulation image must be a wgpu RGBA32F image")
	}
	if out.freed || acc.freed {
		return nil, nil, errors.New("render target used after free")
	}
	if out.width < width || out.height < height || acc.width < width || acc.height < height {
		return nil, nil, fmt.Errorf("launch %dx%d exceeds the bound images", width, height)
	}

	camBuf, err := d.own(sc.Buffer(gpu.BindingCamera))
	if err != nil {
		return nil, nil, err
	}
	raw, err := d.heap.bytes(camBuf.alloc.Offset, camBuf.size)
	if err != nil {
		return nil, nil, err
	}
	cam, err := gpu.UnmarshalGPUCameraUniform(raw)
	if err != nil {
		return nil, nil, err
	}
	sceneBuf, err := d.own(sc.Buffer(gpu.BindingSceneUniform))
	if err != nil {
		return nil, nil, err
	}
	raw, err = d.heap.bytes(sceneBuf.alloc.Offset, sceneBuf.size)
	if err != nil {
		return nil, nil, err
	}
	su, err := gpu.UnmarshalGPUSceneUniform(raw)
	if err != nil {
		return nil, nil, err
	}
	meshes, err := d.own(sc.Buffer(gpu.BindingMeshAddresses))
	if err != nil {
		return nil, nil, err
	}

	images := sc.SampledImages(gpu.BindingTextures)
	table, err := encodeTextures(images)
	if err != nil {
		return nil, nil, err
	}

	return &dispatchParams{
		camera:            cam,
		width:             width,
		height:            height,
		samples:           max(push.SamplesPerPixel, 1),
		batch:             push.CurrentBatch,
		bounces:           max(push.MaxBounces, 1),
		seed:              uint32(d.seed) ^ uint32(d.seed>>32),
		tlas:              word(tlas.alloc.Offset),
		meshes:            word(meshes.alloc.Offset),
		materials:         word(su.MaterialAddress),
		textures:          uint32(len(images)),
		output:            word(out.alloc.Offset),
		outputPitch:       out.width,
		accumulation:      word(acc.alloc.Offset),
		accumulationPitch: acc.width,
		instances:         su.InstanceCount,
	}, table, nil
}

// sync grows the device heap to cover every allocation and uploads the dirty ranges. Growing
// copies the old buffer on the device so images the kernel wrote survive. Callers hold d.mu.
func (d *deviceImpl) sync() error {
	extent := d.heap.extent()
	if d.heapBuf == nil || d.heapBufLen < extent {
		size := min(alignTo(extent, heapGrowth), d.heapSize)
		buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "Device Heap",
			Size:  size,
			Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
		})
		if err != nil {
			return fmt.Errorf("grow heap to %d bytes: %w", size, err)
		}
		if d.heapBuf != nil {
			if err := d.copyBuffer(d.heapBuf, buf, d.heapBufLen); err != nil {
				buf.Release()
				return err
			}
			d.heapBuf.Release()
		}
		d.heapBuf = buf
		d.heapBufLen = size
		d.invalidateBindGroup()
		tracey.Logger().Debug("wgpu heap resized", "bytes", size)
	}

	for _, s := range d.heap.take() {
		// Ranges past the buffer belong to allocations freed since they were written.
		end := min(s.end, d.heapBufLen)
		if s.start < end {
			d.queue.WriteBuffer(d.heapBuf, s.start, d.heap.data[s.start:end])
		}
	}
	return nil
}

func (d *deviceImpl) uploadTextures(table []byte) error {
	if d.texBuf == nil || d.texBufLen < uint64(len(table)) {
		if d.texBuf != nil {
			d.texBuf.Release()
		}
		size := alignTo(uint64(len(table)), 64*textureRecordSize)
		buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: "Texture Table",
			Size:  size,
			Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			d.texBuf = nil
			return fmt.Errorf("create texture table: %w", err)
		}
		d.texBuf = buf
		d.texBufLen = size
		d.invalidateBindGroup()
	}
	d.queue.WriteBuffer(d.texBuf, 0, table)
	return nil
}

func (d *deviceImpl) invalidateBindGroup() {
	if d.bindGroup != nil {
		d.bindGroup.Release()
		d.bindGroup = nil
	}
}

func (d *deviceImpl) copyBuffer(src, dst *wgpu.Buffer, size uint64) error {
	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	encoder.CopyBufferToBuffer(src, 0, dst, 0, size)
	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		encoder.Release()
		return err
	}
	d.queue.Submit(commandBuffer)
	commandBuffer.Release()
	encoder.Release()
	return nil
}

// download copies n heap bytes at addr into a mappable buffer and reads them back. Callers hold
// d.mu and have synced the heap.
func (d *deviceImpl) download(addr, n uint64) ([]byte, error) {
	size := alignWord(n)
	staging, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create readback buffer: %w", err)
	}
	defer staging.Release()

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	encoder.CopyBufferToBuffer(d.heapBuf, addr, staging, 0, size)
	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		encoder.Release()
		return nil, err
	}
	d.queue.Submit(commandBuffer)
	commandBuffer.Release()
	encoder.Release()

	var status wgpu.BufferMapAsyncStatus
	if err := staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
	}); err != nil {
		return nil, fmt.Errorf("map readback buffer: %w", err)
	}
	d.device.Poll(true, nil)
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("map readback buffer: status %v", status)
	}
	out := append([]byte(nil), staging.GetMappedRange(0, uint(size))[:n]...)
	staging.Unmap()
	return out, nil
}

func alignTo(v, align uint64) uint64 {
	return (v + align - 1) / align * align
}
