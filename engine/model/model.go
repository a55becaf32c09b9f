// Package model is the engine's single owner of mutable state. One goroutine holds the resource
// store, the GPU cache, the project and its scene graph, the renderer and the current frame;
// every other goroutine reaches them by sending a request to it and waiting for the reply.
package model

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/tracey"
	"github.com/Carmen-Shannon/tracey/engine/cache"
	"github.com/Carmen-Shannon/tracey/engine/frame"
	"github.com/Carmen-Shannon/tracey/engine/loader"
	"github.com/Carmen-Shannon/tracey/engine/profiler"
	"github.com/Carmen-Shannon/tracey/engine/project"
	"github.com/Carmen-Shannon/tracey/engine/renderer"
	"github.com/Carmen-Shannon/tracey/engine/resource"
	"github.com/Carmen-Shannon/tracey/engine/scene"
	"github.com/Carmen-Shannon/tracey/engine/shapes"
	"github.com/go-gl/mathgl/mgl32"
)

// Model is the request interface of the engine. Every method with a context blocks until the
// model goroutine has handled the request or ctx is done; a request that was already accepted
// still runs to completion when the caller stops waiting.
type Model interface {
	// Run handles requests until ctx is done or Close is called. It must be called exactly once.
	//
	// Parameters:
	//   - ctx: the lifetime of the loop
	//
	// Returns:
	//   - error: ctx.Err() on cancellation, nil after Close, ErrRunning on a second call
	Run(ctx context.Context) error

	// Close stops the loop, releases the frame and the renderer, and closes every subscription.
	Close()

	// Load imports a glTF file and makes its scene the project graph.
	//
	// Parameters:
	//   - ctx: bounds the wait
	//   - path: the .gltf or .glb file
	//
	// Returns:
	//   - *scene.Summary: the new graph
	//   - error: error if the file cannot be imported
	Load(ctx context.Context, path string) (*scene.Summary, error)

	// Build flattens the project graph, builds a frame from it, replaces the previous frame and
	// restarts accumulation.
	//
	// Returns:
	//   - error: frame.ErrBuildInProgress while another Build is pending, or the build failure
	Build(ctx context.Context) error

	// Render traces batches batches against the current frame.
	//
	// Parameters:
	//   - ctx: bounds the wait and is passed to the device
	//   - batches: the number of batches
	//
	// Returns:
	//   - error: ErrNoFrame before the first Build, or the device failure
	Render(ctx context.Context, batches uint32) error

	// CreateBasicShape adds a built-in mesh and a node referencing it under parent.
	//
	// Parameters:
	//   - ctx: bounds the wait
	//   - shape: the shape to add
	//   - parent: the parent node index
	//
	// Returns:
	//   - int: the new node index
	//   - error: scene.ErrUnknownNode for a bad parent
	CreateBasicShape(ctx context.Context, shape shapes.Shape, parent int) (int, error)

	// Import decodes an image file into a texture resource and records it in the project.
	//
	// Returns:
	//   - resource.ID: the texture id
	//   - error: loader.ErrUnsupportedFormat or the read failure
	Import(ctx context.Context, path string) (resource.ID, error)

	// Scene summarises the project graph.
	Scene(ctx context.Context) (*scene.Summary, error)

	// GetNode summarises one node of the project graph.
	//
	// Returns:
	//   - scene.NodeSummary: the node
	//   - error: scene.ErrUnknownNode if the index does not exist
	GetNode(ctx context.Context, node int) (scene.NodeSummary, error)

	// Image downloads the renderer output.
	Image(ctx context.Context) (*image.RGBA, error)

	// Width returns the output width in pixels.
	Width() uint32

	// Height returns the output height in pixels.
	Height() uint32

	// NewProject creates a project under the configured root and makes it current. The new
	// project starts with an empty graph; the current frame is kept until the next Build.
	//
	// Returns:
	//   - string: the manifest path
	//   - error: project.ErrInvalidName or the write failure
	NewProject(ctx context.Context, name string) (string, error)

	// LookAt points the camera at target and restarts accumulation.
	LookAt(ctx context.Context, target mgl32.Vec3) error

	// MoveCamera translates the camera by delta and restarts accumulation.
	//
	// Returns:
	//   - mgl32.Vec3: the new camera position
	//   - error: ErrClosed or ctx.Err()
	MoveCamera(ctx context.Context, delta mgl32.Vec3) (mgl32.Vec3, error)

	// SetCameraPosition moves the camera to p and restarts accumulation.
	SetCameraPosition(ctx context.Context, p mgl32.Vec3) error

	// Stats reports resource, cache and timing counters.
	Stats(ctx context.Context) (Stats, error)

	// Events returns the broadcasters subscriptions attach to.
	Events() *Events
}

// state is only touched by the model goroutine.
type state struct {
	store    resource.Store
	cache    cache.Cache
	loader   loader.Loader
	project  project.Project
	renderer renderer.Renderer
	builder  frame.Builder
	frame    *frame.Frame
}

type modelImpl struct {
	st       *state
	events   *Events
	profiler *profiler.Profiler

	requests  chan func(*state)
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	started   atomic.Bool
	building  atomic.Bool

	width        uint32
	height       uint32
	samples      uint32
	projectRoot  string
	imageWorkers int
}

var _ Model = &modelImpl{}

// NewModel creates a Model. Without WithRenderer a software renderer at the default size is
// created; without WithProject the scratch project from project.Tmp is used. The model owns the
// renderer and releases it on Close.
//
// Parameters:
//   - options: functional options to configure the model
//
// Returns:
//   - Model: the model, ready for Run
//   - error: error if the scratch project cannot be created
func NewModel(options ...ModelBuilderOption) (Model, error) {
	m := &modelImpl{
		st:           &state{},
		events:       newEvents(),
		requests:     make(chan func(*state)),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		samples:      1,
		projectRoot:  project.DefaultRootPath,
		imageWorkers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range options {
		opt(m)
	}
	if m.profiler == nil {
		m.profiler = profiler.NewProfiler()
	}
	if m.st.project == nil {
		p, err := project.Tmp()
		if err != nil {
			if m.st.renderer != nil {
				m.st.renderer.Release()
			}
			return nil, fmt.Errorf("new model: %w", err)
		}
		m.st.project = p
	}
	if m.st.renderer == nil {
		m.st.renderer = renderer.NewRenderer(renderer.BackendTypeSoftware)
	}

	r := m.st.renderer
	m.width, m.height = r.Width(), r.Height()
	m.st.store = resource.NewStore()
	m.st.cache = cache.New(r.Device(), m.st.store)
	m.st.loader = loader.NewLoader(loader.BackendTypeGLTF, m.st.store, loader.WithImageWorkers(m.imageWorkers))
	m.st.builder = frame.NewBuilder(r.Device(), r.Targets())

	tracey.Logger().Info("model created",
		"device", r.Device().Name(),
		"width", m.width,
		"height", m.height,
		"project", m.st.project.Name(),
	)
	return m, nil
}

func (m *modelImpl) Run(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer m.shutdown()

	for {
		select {
		case req := <-m.requests:
			req(m.st)
		case <-m.quit:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *modelImpl) Close() {
	m.closeOnce.Do(func() { close(m.quit) })
	if m.started.CompareAndSwap(false, true) {
		m.shutdown()
	}
	<-m.done
}

func (m *modelImpl) shutdown() {
	if m.st.frame != nil {
		m.st.frame.Release()
		m.st.frame = nil
	}
	m.st.renderer.Release()
	m.events.close()
	close(m.done)
	tracey.Logger().Info("model closed")
}

func (m *modelImpl) submit(ctx context.Context, req func(*state)) error {
	select {
	case m.requests <- req:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

type result[T any] struct {
	v   T
	err error
}

func await[T any](ctx context.Context, m *modelImpl, reply <-chan result[T]) (T, error) {
	select {
	case r := <-reply:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-m.done:
		select {
		case r := <-reply:
			return r.v, r.err
		default:
		}
		var zero T
		return zero, ErrClosed
	}
}

func call[T any](ctx context.Context, m *modelImpl, fn func(*state) (T, error)) (T, error) {
	reply := make(chan result[T], 1)
	err := m.submit(ctx, func(s *state) {
		v, err := fn(s)
		reply <- result[T]{v, err}
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return await(ctx, m, reply)
}

func (m *modelImpl) Load(ctx context.Context, path string) (*scene.Summary, error) {
	return call(ctx, m, func(s *state) (*scene.Summary, error) {
		res, err := s.loader.Load(path)
		if err != nil {
			return nil, err
		}
		if err := s.project.SetGraph(res.Graph, path); err != nil {
			tracey.Logger().Warn("project manifest not saved", "error", err)
		}
		summary := res.Graph.Summary()
		m.events.SceneLoaded.Publish(SceneLoaded{Path: path, Scene: summary})
		tracey.Logger().Info("scene loaded",
			"path", path,
			"nodes", len(summary.Nodes),
			"meshes", len(res.Meshes),
			"materials", len(res.Materials),
			"textures", len(res.Textures),
		)
		return summary, nil
	})
}

func (m *modelImpl) Build(ctx context.Context) error {
	if !m.building.CompareAndSwap(false, true) {
		return frame.ErrBuildInProgress
	}
	reply := make(chan result[struct{}], 1)
	err := m.submit(ctx, func(s *state) {
		defer m.building.Store(false)
		reply <- result[struct{}]{err: m.build(s)}
	})
	if err != nil {
		m.building.Store(false)
		return err
	}
	_, err = await(ctx, m, reply)
	return err
}

func (m *modelImpl) build(s *state) error {
	start := m.profiler.Start()
	gs, err := scene.Flatten(s.project.Graph(), s.cache, s.store, mgl32.Ident4())
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	f, err := s.builder.Build(gs)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	if s.frame != nil {
		s.frame.Release()
	}
	s.frame = f
	s.renderer.Clear()
	d := m.profiler.ObserveBuild(start)
	tracey.Logger().Info("frame built", "instances", f.InstanceCount(), "duration", d)
	return nil
}

func (m *modelImpl) Render(ctx context.Context, batches uint32) error {
	_, err := call(ctx, m, func(s *state) (struct{}, error) {
		if s.frame == nil {
			return struct{}{}, ErrNoFrame
		}
		rays := uint64(m.width) * uint64(m.height) * uint64(m.samples)
		for range batches {
			start := m.profiler.Start()
			if err := s.renderer.RenderFrame(ctx, s.frame, m.samples); err != nil {
				return struct{}{}, err
			}
			d := m.profiler.ObserveRender(start, rays)
			tracey.Logger().Debug("batch rendered", "batch", s.renderer.Batch(), "duration", d)
			m.profiler.Tick()
		}
		return struct{}{}, nil
	})
	return err
}

func (m *modelImpl) CreateBasicShape(ctx context.Context, shape shapes.Shape, parent int) (int, error) {
	return call(ctx, m, func(s *state) (int, error) {
		g := s.project.Graph()
		if _, err := g.Node(parent); err != nil {
			return 0, err
		}
		mesh, err := s.store.AddMesh("builtin:"+strings.ToLower(shape.String()), shape.String(), shape.Mesh())
		if err != nil {
			return 0, err
		}
		n := scene.NewNode(shape.String())
		n.Mesh = resource.Ref(mesh.ID())
		idx, err := g.AddNode(parent, n)
		if err != nil {
			return 0, err
		}
		if summary, ok := g.Summary().Node(idx); ok {
			m.events.NodeAdded.Publish(NodeAdded{Node: summary})
		}
		return idx, nil
	})
}

func (m *modelImpl) Import(ctx context.Context, path string) (resource.ID, error) {
	return call(ctx, m, func(s *state) (resource.ID, error) {
		res, err := s.loader.ImportImage(path)
		if err != nil {
			return 0, err
		}
		if err := s.project.AddAsset(path); err != nil {
			tracey.Logger().Warn("project manifest not saved", "error", err)
		}
		return res.ID(), nil
	})
}

func (m *modelImpl) Scene(ctx context.Context) (*scene.Summary, error) {
	return call(ctx, m, func(s *state) (*scene.Summary, error) {
		return s.project.Graph().Summary(), nil
	})
}

func (m *modelImpl) GetNode(ctx context.Context, node int) (scene.NodeSummary, error) {
	return call(ctx, m, func(s *state) (scene.NodeSummary, error) {
		n, ok := s.project.Graph().Summary().Node(node)
		if !ok {
			return scene.NodeSummary{}, fmt.Errorf("%w: %d", scene.ErrUnknownNode, node)
		}
		return n, nil
	})
}

func (m *modelImpl) Image(ctx context.Context) (*image.RGBA, error) {
	return call(ctx, m, func(s *state) (*image.RGBA, error) {
		return s.renderer.DownloadImage()
	})
}

func (m *modelImpl) Width() uint32 {
	return m.width
}

func (m *modelImpl) Height() uint32 {
	return m.height
}

func (m *modelImpl) NewProject(ctx context.Context, name string) (string, error) {
	return call(ctx, m, func(s *state) (string, error) {
		p, err := project.Create(m.projectRoot, name)
		if err != nil {
			return "", err
		}
		s.project = p
		m.events.ProjectCreated.Publish(ProjectCreated{Name: p.Name(), Path: p.Path()})
		return p.Path(), nil
	})
}

func (m *modelImpl) LookAt(ctx context.Context, target mgl32.Vec3) error {
	_, err := call(ctx, m, func(s *state) (struct{}, error) {
		s.renderer.Camera().LookAt(target)
		s.renderer.Clear()
		return struct{}{}, nil
	})
	return err
}

func (m *modelImpl) MoveCamera(ctx context.Context, delta mgl32.Vec3) (mgl32.Vec3, error) {
	return call(ctx, m, func(s *state) (mgl32.Vec3, error) {
		p := s.renderer.Camera().Move(delta)
		s.renderer.Clear()
		return p, nil
	})
}

func (m *modelImpl) SetCameraPosition(ctx context.Context, p mgl32.Vec3) error {
	_, err := call(ctx, m, func(s *state) (struct{}, error) {
		s.renderer.Camera().SetPosition(p)
		s.renderer.Clear()
		return struct{}{}, nil
	})
	return err
}

func (m *modelImpl) Stats(ctx context.Context) (Stats, error) {
	return call(ctx, m, func(s *state) (Stats, error) {
		st := Stats{
			Project:   s.project.Name(),
			Resources: s.store.Len(),
			Nodes:     s.project.Graph().Len(),
			Batch:     s.renderer.Batch(),
			Device:    s.renderer.Device().Name(),
			Cache:     s.cache.Stats(),
			Profile:   m.profiler.Snapshot(),
		}
		if s.frame != nil {
			st.Instances = s.frame.InstanceCount()
		}
		return st, nil
	})
}

func (m *modelImpl) Events() *Events {
	return m.events
}
