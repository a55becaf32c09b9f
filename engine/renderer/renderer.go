// Package renderer drives progressive path tracing. It owns the render targets and the batch
// counter and dispatches Frames built by the frame package.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/Carmen-Shannon/tracey"
	"github.com/Carmen-Shannon/tracey/engine/camera"
	"github.com/Carmen-Shannon/tracey/engine/frame"
	"github.com/Carmen-Shannon/tracey/engine/gpu"
	"github.com/Carmen-Shannon/tracey/engine/gpu/software"
	"github.com/Carmen-Shannon/tracey/engine/gpu/wgpu"
)

const (
	DefaultWidth      uint32 = 1280
	DefaultHeight     uint32 = 720
	DefaultMaxBounces uint32 = 4
)

// ErrForeignFrame is returned when a Frame bound to another renderer's targets is rendered.
var ErrForeignFrame = errors.New("frame was built for different render targets")

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	backendType RendererBackendType
	device      gpu.Device
	ownsDevice  bool
	camera      camera.Camera

	width, height uint32
	maxBounces    uint32
	batch         uint32

	output       gpu.Image
	accumulation gpu.Image
	cameraBuf    gpu.Buffer

	// Pre-creation config collected from builder options
	workers              int
	seed                 *uint64
	forceFallbackAdapter bool
}

// Renderer owns the output image, the accumulation image and the camera uniform buffer, and
// turns Frames into pixels one batch at a time.
//
// Every RenderFrame adds one batch to the running average held in the accumulation image.
// Clear restarts the average; it must be called whenever the scene or the camera changes.
type Renderer interface {
	// RenderFrame writes the camera uniform and traces one batch against f.
	//
	// Parameters:
	//   - ctx: cancels the wait for the dispatch
	//   - f: the frame to render; it is never modified
	//   - spp: samples per pixel for this batch
	//
	// Returns:
	//   - error: ErrForeignFrame, or an error from the device
	RenderFrame(ctx context.Context, f *frame.Frame, spp uint32) error

	// Clear resets the batch counter so the next batch overwrites the accumulation.
	Clear()

	// DownloadImage reads the output image back from the device.
	//
	// Returns:
	//   - *image.RGBA: the gamma-corrected output
	//   - error: an error if the read fails
	DownloadImage() (*image.RGBA, error)

	// Batch returns the number of batches accumulated since the last Clear.
	Batch() uint32

	// Width returns the output width in pixels.
	Width() uint32

	// Height returns the output height in pixels.
	Height() uint32

	// MaxBounces returns the path depth pushed to every dispatch.
	MaxBounces() uint32

	// Camera returns the camera whose uniform is written before each batch.
	Camera() camera.Camera

	// Device returns the device the renderer dispatches on.
	Device() gpu.Device

	// Targets returns the render targets frames must be built against.
	Targets() frame.Targets

	// BackendType returns the backend the renderer was created with.
	BackendType() RendererBackendType

	// Release frees the render targets and, if the renderer created it, the device. A shared
	// device keeps running and only the render targets are freed.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer on the given backend. It panics if the device or the render
// targets cannot be created.
//
// Parameters:
//   - backendType: the device implementation to create when WithDevice is not given
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: a new instance of Renderer configured with the specified backend and options
func NewRenderer(backendType RendererBackendType, options ...RendererBuilderOption) Renderer {
	r := &renderer{
		mu:          &sync.Mutex{},
		backendType: backendType,
		width:       DefaultWidth,
		height:      DefaultHeight,
		maxBounces:  DefaultMaxBounces,
	}

	// Apply options first so backend flags are available before the device is created.
	for _, opt := range options {
		opt(r)
	}

	if r.device == nil {
		r.device = r.newDevice()
		r.ownsDevice = true
	}
	if r.camera == nil {
		r.camera = camera.NewCamera()
	}
	r.camera.SetAspect(float32(r.width) / float32(r.height))

	if err := r.createTargets(); err != nil {
		panic(fmt.Errorf("renderer: %w", err))
	}
	tracey.Logger().Debug("renderer created", "backend", r.backendType, "device", r.device.Name(), "width", r.width, "height", r.height)
	return r
}

func (r *renderer) newDevice() gpu.Device {
	switch r.backendType {
	case BackendTypeWGPU:
		opts := []wgpu.DeviceBuilderOption{wgpu.WithForceFallbackAdapter(r.forceFallbackAdapter)}
		if r.seed != nil {
			opts = append(opts, wgpu.WithSeed(*r.seed))
		}
		dev, err := wgpu.NewDevice(opts...)
		if err != nil {
			panic(fmt.Errorf("renderer: %w", err))
		}
		return dev
	case BackendTypeSoftware:
		fallthrough
	default:
		opts := []software.DeviceBuilderOption{}
		if r.workers > 0 {
			opts = append(opts, software.WithWorkers(r.workers))
		}
		if r.seed != nil {
			opts = append(opts, software.WithSeed(*r.seed))
		}
		return software.NewDevice(opts...)
	}
}

func (r *renderer) createTargets() error {
	var err error
	r.output, err = r.device.CreateImage(gpu.ImageDescriptor{
		Label:  "renderer/output",
		Width:  r.width,
		Height: r.height,
		Format: gpu.ImageFormatRGBA8,
		Usage:  gpu.ImageUsageStorage | gpu.ImageUsageTransferSrc,
	}, nil)
	if err != nil {
		return fmt.Errorf("output image: %w", err)
	}
	r.accumulation, err = r.device.CreateImage(gpu.ImageDescriptor{
		Label:  "renderer/accumulation",
		Width:  r.width,
		Height: r.height,
		Format: gpu.ImageFormatRGBA32F,
		Usage:  gpu.ImageUsageStorage,
	}, nil)
	if err != nil {
		return fmt.Errorf("accumulation image: %w", err)
	}
	u := r.camera.Uniform()
	r.cameraBuf, err = r.device.CreateBuffer(gpu.BufferDescriptor{
		Label: "renderer/camera",
		Usage: gpu.BufferUsageUniform | gpu.BufferUsageTransferDst,
	}, u.Marshal())
	if err != nil {
		return fmt.Errorf("camera buffer: %w", err)
	}
	return nil
}

func (r *renderer) RenderFrame(ctx context.Context, f *frame.Frame, spp uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f == nil {
		return errors.New("render frame: nil frame")
	}
	if f.Targets().Output != r.output || f.Targets().Camera != r.cameraBuf {
		return ErrForeignFrame
	}

	u := r.camera.Uniform()
	if err := r.device.WriteBuffer(r.cameraBuf, 0, u.Marshal()); err != nil {
		return fmt.Errorf("render frame: camera uniform: %w", err)
	}
	push := gpu.PushConstants{
		SamplesPerPixel: max(spp, 1),
		CurrentBatch:    r.batch,
		MaxBounces:      r.maxBounces,
	}
	if err := r.device.TraceRays(ctx, f.DescriptorSets(), push, r.width, r.height); err != nil {
		return fmt.Errorf("render frame: batch %d: %w", r.batch, err)
	}
	r.batch++
	return nil
}

func (r *renderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batch = 0
}

func (r *renderer) DownloadImage() (*image.RGBA, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	px, err := r.device.ReadImage(r.output)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	return &image.RGBA{
		Pix:    px,
		Stride: int(r.width) * 4,
		Rect:   image.Rect(0, 0, int(r.width), int(r.height)),
	}, nil
}

func (r *renderer) Batch() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batch
}

func (r *renderer) Width() uint32                    { return r.width }
func (r *renderer) Height() uint32                   { return r.height }
func (r *renderer) MaxBounces() uint32               { return r.maxBounces }
func (r *renderer) Camera() camera.Camera            { return r.camera }
func (r *renderer) Device() gpu.Device               { return r.device }
func (r *renderer) BackendType() RendererBackendType { return r.backendType }

func (r *renderer) Targets() frame.Targets {
	return frame.Targets{Output: r.output, Accumulation: r.accumulation, Camera: r.cameraBuf}
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.device == nil {
		return
	}
	if r.ownsDevice {
		r.device.Release()
	} else {
		r.device.FreeImage(r.output)
		r.device.FreeImage(r.accumulation)
		r.device.FreeBuffer(r.cameraBuf)
	}
	r.device = nil
}
