// Package preview shows the model's progressive output in a window and steers its camera from
// the keyboard and the scroll wheel.
package preview

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/tracey"
	"github.com/Carmen-Shannon/tracey/engine/camera"
	"github.com/Carmen-Shannon/tracey/engine/model"
	"github.com/Carmen-Shannon/tracey/engine/window"
	"golang.org/x/sync/errgroup"
)

// Preview runs the interactive window.
type Preview interface {
	// Run shows the window until it is closed or ctx is done. It must be called on the goroutine
	// that created the window.
	//
	// Parameters:
	//   - ctx: the lifetime of the preview
	//
	// Returns:
	//   - error: the first render failure, or nil when the window closes
	Run(ctx context.Context) error
}

// step is one input event waiting for the render goroutine.
type step struct {
	action camera.Action
	zoom   float32
}

type previewImpl struct {
	model      model.Model
	win        window.Window
	camera     camera.Camera
	controller camera.CameraController
	bindings   map[window.Key]camera.Action

	batchesPerFrame uint32
	maxBatches      uint32
	idle            time.Duration

	steps  chan step
	latest atomic.Pointer[image.RGBA]
}

var _ Preview = &previewImpl{}

// DefaultBindings returns the key map used when WithBindings is not given: arrows orbit, WASD
// pans in the view plane, Q and E move along the up axis and R resets.
func DefaultBindings() map[window.Key]camera.Action {
	return map[window.Key]camera.Action{
		window.KeyLeft:  camera.ActionOrbitLeft,
		window.KeyRight: camera.ActionOrbitRight,
		window.KeyUp:    camera.ActionOrbitUp,
		window.KeyDown:  camera.ActionOrbitDown,
		window.KeyW:     camera.ActionForward,
		window.KeyS:     camera.ActionBack,
		window.KeyA:     camera.ActionLeft,
		window.KeyD:     camera.ActionRight,
		window.KeyE:     camera.ActionRise,
		window.KeyQ:     camera.ActionSink,
		window.KeyR:     camera.ActionReset,
	}
}

// NewPreview creates a Preview for m shown in win.
//
// Parameters:
//   - m: a running model
//   - win: the window to present in
//   - options: functional options to configure the preview
//
// Returns:
//   - Preview: the preview, ready for Run
//   - error: error if m or win is nil
func NewPreview(m model.Model, win window.Window, options ...PreviewBuilderOption) (Preview, error) {
	if m == nil || win == nil {
		return nil, errors.New("preview: nil model or window")
	}
	return newPreview(m, win, options...), nil
}

func newPreview(m model.Model, win window.Window, options ...PreviewBuilderOption) *previewImpl {
	p := &previewImpl{
		model:           m,
		win:             win,
		bindings:        DefaultBindings(),
		batchesPerFrame: DefaultBatchesPerFrame,
		maxBatches:      DefaultMaxBatches,
		idle:            DefaultIdleInterval,
		steps:           make(chan step, 64),
	}
	for _, opt := range options {
		opt(p)
	}
	if p.camera == nil {
		p.camera = camera.NewCamera()
	}
	p.camera.SetAspect(float32(m.Width()) / float32(max(m.Height(), 1)))
	p.controller = camera.NewCameraController(p.camera)
	return p
}

func (p *previewImpl) Run(ctx context.Context) error {
	pr, err := newPresenter(p.win.SurfaceDescriptor(), p.model.Width(), p.model.Height(), p.win.Width(), p.win.Height())
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	defer pr.release()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.renderLoop(gctx)
	})

	p.win.SetKeyDownCallback(func(key window.Key) {
		if a, ok := p.bindings[key]; ok {
			p.push(step{action: a})
		}
	})
	p.win.SetScrollCallback(func(delta float32) {
		p.push(step{zoom: delta})
	})
	p.win.SetResizeCallback(pr.resize)

	var shown *image.RGBA
	p.win.SetUpdateCallback(func() {
		if gctx.Err() != nil {
			_ = p.win.Close()
			return
		}
		if img := p.latest.Load(); img != nil && img != shown {
			pr.upload(img)
			shown = img
		}
		if err := pr.draw(); err != nil {
			tracey.Logger().Warn("preview present failed", "error", err)
		}
	})

	tracey.Logger().Info("preview started", "width", p.model.Width(), "height", p.model.Height())
	p.win.ProcessMessages()
	tracey.Logger().Info("preview closed")

	return p.wait(g)
}

// wait stops the render goroutine once the window is gone and reports its failure.
func (p *previewImpl) wait(g *errgroup.Group) error {
	close(p.steps)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// push queues s without blocking the window thread. Steps beyond the buffer are dropped.
func (p *previewImpl) push(s step) {
	select {
	case p.steps <- s:
	default:
		tracey.Logger().Debug("preview step dropped")
	}
}

// renderLoop traces batches until ctx is done or the step channel closes. Pending steps are
// applied together before the next batch.
func (p *previewImpl) renderLoop(ctx context.Context) error {
	if err := p.syncCamera(ctx); err != nil {
		return err
	}
	var batches uint32
	for {
		moved := false
	drain:
		for {
			select {
			case <-ctx.Done():
				return nil
			case s, ok := <-p.steps:
				if !ok {
					return nil
				}
				moved = p.apply(s) || moved
			default:
				break drain
			}
		}
		if moved {
			if err := p.syncCamera(ctx); err != nil {
				return err
			}
			batches = 0
		}

		if p.maxBatches > 0 && batches >= p.maxBatches {
			s, ok := p.waitStep(ctx)
			if !ok {
				return nil
			}
			if p.apply(s) {
				if err := p.syncCamera(ctx); err != nil {
					return err
				}
				batches = 0
			}
			continue
		}

		err := p.model.Render(ctx, p.batchesPerFrame)
		switch {
		case errors.Is(err, model.ErrNoFrame):
			if !p.sleep(ctx) {
				return nil
			}
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, model.ErrClosed):
			return nil
		case err != nil:
			return fmt.Errorf("preview render: %w", err)
		}
		batches += p.batchesPerFrame

		img, err := p.model.Image(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("preview image: %w", err)
		}
		p.latest.Store(img)
	}
}

func (p *previewImpl) apply(s step) bool {
	if s.zoom != 0 {
		p.controller.Zoom(s.zoom)
		return true
	}
	return camera.Apply(p.controller, s.action)
}

// syncCamera copies the preview camera into the model, which restarts accumulation.
func (p *previewImpl) syncCamera(ctx context.Context) error {
	if err := p.model.SetCameraPosition(ctx, p.camera.Position()); err != nil {
		return p.ignoreStop(ctx, err)
	}
	if err := p.model.LookAt(ctx, p.camera.Target()); err != nil {
		return p.ignoreStop(ctx, err)
	}
	return nil
}

func (p *previewImpl) ignoreStop(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, model.ErrClosed) {
		return nil
	}
	return fmt.Errorf("preview camera: %w", err)
}

// waitStep blocks until a step arrives. It returns false when the preview is stopping.
func (p *previewImpl) waitStep(ctx context.Context) (step, bool) {
	select {
	case <-ctx.Done():
		return step{}, false
	case s, ok := <-p.steps:
		return s, ok
	}
}

func (p *previewImpl) sleep(ctx context.Context) bool {
	t := time.NewTimer(p.idle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
