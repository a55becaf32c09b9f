package preview

import (
	_ "embed"
	"errors"
	"fmt"
	"image"

	"github.com/cogentcore/webgpu/wgpu"
)

//go:embed present.wgsl
var presentSource string

// presenter owns the window surface and draws the last uploaded frame over it.
type presenter struct {
	instance *wgpu.Instance
	surface  *wgpu.Surface
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	surfaceFormat wgpu.TextureFormat
	alphaMode     wgpu.CompositeAlphaMode

	module      *wgpu.ShaderModule
	groupLayout *wgpu.BindGroupLayout
	layout      *wgpu.PipelineLayout
	pipeline    *wgpu.RenderPipeline
	sampler     *wgpu.Sampler
	texture     *wgpu.Texture
	view        *wgpu.TextureView
	bindGroup   *wgpu.BindGroup

	frameWidth  uint32
	frameHeight uint32
}

func newPresenter(desc *wgpu.SurfaceDescriptor, frameWidth, frameHeight uint32, width, height int) (*presenter, error) {
	if desc == nil {
		return nil, errors.New("window has no surface")
	}
	p := &presenter{
		instance:    wgpu.CreateInstance(nil),
		frameWidth:  frameWidth,
		frameHeight: frameHeight,
	}
	p.surface = p.instance.CreateSurface(desc)

	a, err := p.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: p.surface,
	})
	if err != nil {
		p.release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	p.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Preview Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		p.release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	p.device = d
	p.queue = d.GetQueue()

	capabilities := p.surface.GetCapabilities(p.adapter)
	if len(capabilities.Formats) == 0 || len(capabilities.AlphaModes) == 0 {
		p.release()
		return nil, errors.New("surface reports no formats")
	}
	p.surfaceFormat = capabilities.Formats[0]
	p.alphaMode = capabilities.AlphaModes[0]
	p.resize(width, height)

	if err := p.createPipeline(); err != nil {
		p.release()
		return nil, err
	}
	if err := p.createFrameTexture(); err != nil {
		p.release()
		return nil, err
	}
	return p, nil
}

// frameFormat picks the texture format so that an sRGB surface does not encode the already
// gamma-corrected frame a second time.
func frameFormat(surface wgpu.TextureFormat) wgpu.TextureFormat {
	switch surface {
	case wgpu.TextureFormatBGRA8UnormSrgb, wgpu.TextureFormatRGBA8UnormSrgb:
		return wgpu.TextureFormatRGBA8UnormSrgb
	default:
		return wgpu.TextureFormatRGBA8Unorm
	}
}

func (p *presenter) resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	p.surface.Configure(p.adapter, p.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      p.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   p.alphaMode,
	})
}

func (p *presenter) createPipeline() error {
	var err error
	p.module, err = p.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: "Preview Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: presentSource,
		},
	})
	if err != nil {
		return fmt.Errorf("compile preview shader: %w", err)
	}

	p.groupLayout, err = p.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Preview Bind Group Layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageFragment,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
			{
				Binding:    1,
				Visibility: wgpu.ShaderStageFragment,
				Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create preview bind group layout: %w", err)
	}

	p.layout, err = p.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Preview Pipeline Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{p.groupLayout},
	})
	if err != nil {
		return fmt.Errorf("create preview pipeline layout: %w", err)
	}

	p.pipeline, err = p.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "Preview Render Pipeline",
		Layout: p.layout,
		Vertex: wgpu.VertexState{
			Module:     p.module,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     p.module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{Format: p.surfaceFormat, WriteMask: wgpu.ColorWriteMaskAll},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("create preview pipeline: %w", err)
	}

	p.sampler, err = p.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "Preview Sampler",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return fmt.Errorf("create preview sampler: %w", err)
	}
	return nil
}

func (p *presenter) createFrameTexture() error {
	var err error
	p.texture, err = p.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     "Preview Frame",
		Usage:     wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              p.frameWidth,
			Height:             p.frameHeight,
			DepthOrArrayLayers: 1,
		},
		Format:        frameFormat(p.surfaceFormat),
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return fmt.Errorf("create preview texture: %w", err)
	}
	p.view, err = p.texture.CreateView(nil)
	if err != nil {
		return fmt.Errorf("create preview texture view: %w", err)
	}
	p.bindGroup, err = p.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Preview Bind Group",
		Layout: p.groupLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: p.view},
			{Binding: 1, Sampler: p.sampler},
		},
	})
	if err != nil {
		return fmt.Errorf("create preview bind group: %w", err)
	}
	return nil
}

// upload copies img into the frame texture. Images of another size are ignored.
func (p *presenter) upload(img *image.RGBA) {
	b := img.Bounds()
	if uint32(b.Dx()) != p.frameWidth || uint32(b.Dy()) != p.frameHeight {
		return
	}
	p.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  p.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		img.Pix,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(img.Stride),
			RowsPerImage: p.frameHeight,
		},
		&wgpu.Extent3D{
			Width:              p.frameWidth,
			Height:             p.frameHeight,
			DepthOrArrayLayers: 1,
		},
	)
}

// draw renders the frame texture over the whole surface and presents it.
func (p *presenter) draw() error {
	surfaceTexture, err := p.surface.GetCurrentTexture()
	if err != nil {
		return err
	}
	defer surfaceTexture.Release()
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		return err
	}
	defer view.Release()

	encoder, err := p.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       view,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{R: 0.1, G: 0.1, B: 0.1, A: 1.0},
			},
		},
	})
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, p.bindGroup, nil)
	pass.Draw(3, 1, 0, 0)
	pass.End()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		encoder.Release()
		return err
	}
	p.queue.Submit(commandBuffer)
	commandBuffer.Release()
	encoder.Release()
	p.surface.Present()
	return nil
}

func (p *presenter) release() {
	if p.bindGroup != nil {
		p.bindGroup.Release()
	}
	if p.view != nil {
		p.view.Release()
	}
	if p.texture != nil {
		p.texture.Release()
	}
	if p.sampler != nil {
		p.sampler.Release()
	}
	if p.pipeline != nil {
		p.pipeline.Release()
	}
	if p.layout != nil {
		p.layout.Release()
	}
	if p.groupLayout != nil {
		p.groupLayout.Release()
	}
	if p.module != nil {
		p.module.Release()
	}
	if p.queue != nil {
		p.queue.Release()
	}
	if p.device != nil {
		p.device.Release()
	}
	if p.adapter != nil {
		p.adapter.Release()
	}
	if p.surface != nil {
		p.surface.Release()
	}
	if p.instance != nil {
		p.instance.Release()
	}
}
