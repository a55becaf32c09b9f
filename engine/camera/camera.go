// Package camera is the pinhole camera rays are generated from. It produces the inverse view and
// projection matrices the ray-generation kernel consumes.
package camera

import (
	"sync"

	"github.com/Carmen-Shannon/tracey/engine/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

// Default camera settings.
const (
	DefaultFovy float32 = 1.134
	DefaultNear float32 = 0.1
	DefaultFar  float32 = 1000
)

var (
	// DefaultPosition is where a new camera sits.
	DefaultPosition = mgl32.Vec3{1, 1, 5}
	// DefaultUp is the world up vector.
	DefaultUp = mgl32.Vec3{0, 1, 0}
)

// Camera is a perspective camera looking from a position at a target.
type Camera interface {
	// Position returns the world-space eye position.
	Position() mgl32.Vec3

	// Target returns the world-space point the camera looks at.
	Target() mgl32.Vec3

	// Up returns the up vector.
	Up() mgl32.Vec3

	// Fovy returns the vertical field of view in radians.
	Fovy() float32

	// Aspect returns the aspect ratio (width / height).
	Aspect() float32

	// Near returns the near clipping plane distance.
	Near() float32

	// Far returns the far clipping plane distance.
	Far() float32

	// SetPosition moves the eye without changing the target.
	//
	// Parameters:
	//   - p: the new world-space position
	SetPosition(p mgl32.Vec3)

	// LookAt points the camera at target.
	//
	// Parameters:
	//   - target: the world-space point to look at
	LookAt(target mgl32.Vec3)

	// Move translates the eye and the target by delta.
	//
	// Parameters:
	//   - delta: the world-space offset
	//
	// Returns:
	//   - mgl32.Vec3: the new position
	Move(delta mgl32.Vec3) mgl32.Vec3

	// SetAspect sets the aspect ratio.
	//
	// Parameters:
	//   - aspect: width / height
	SetAspect(aspect float32)

	// View returns the world-to-camera matrix.
	View() mgl32.Mat4

	// Projection returns the perspective projection matrix.
	Projection() mgl32.Mat4

	// ViewInverse returns the camera-to-world matrix.
	ViewInverse() mgl32.Mat4

	// ProjectionInverse returns the inverse projection.
	ProjectionInverse() mgl32.Mat4

	// Uniform returns the camera uniform uploaded before each dispatch.
	//
	// Returns:
	//   - gpu.GPUCameraUniform: view_inverse and projection_inverse
	Uniform() gpu.GPUCameraUniform
}

type cameraImpl struct {
	mu *sync.Mutex

	position mgl32.Vec3
	target   mgl32.Vec3
	up       mgl32.Vec3

	fovy   float32
	aspect float32
	near   float32
	far    float32
}

var _ Camera = &cameraImpl{}

// NewCamera creates a camera at DefaultPosition looking at the origin.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:       &sync.Mutex{},
		position: DefaultPosition,
		up:       DefaultUp,
		fovy:     DefaultFovy,
		aspect:   1,
		near:     DefaultNear,
		far:      DefaultFar,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *cameraImpl) Position() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) Target() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *cameraImpl) Up() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up
}

func (c *cameraImpl) Fovy() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fovy
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) SetPosition(p mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = p
}

func (c *cameraImpl) LookAt(target mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = target
}

func (c *cameraImpl) Move(delta mgl32.Vec3) mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = c.position.Add(delta)
	c.target = c.target.Add(delta)
	return c.position
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if aspect > 0 {
		c.aspect = aspect
	}
}

func (c *cameraImpl) View() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view()
}

// view falls back to looking down -Z when the eye sits on the target. Caller must hold the mutex.
func (c *cameraImpl) view() mgl32.Mat4 {
	target := c.target
	if target.Sub(c.position).Len() < 1e-6 {
		target = c.position.Sub(mgl32.Vec3{0, 0, 1})
	}
	return mgl32.LookAtV(c.position, target, c.up)
}

func (c *cameraImpl) Projection() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return mgl32.Perspective(c.fovy, c.aspect, c.near, c.far)
}

func (c *cameraImpl) ViewInverse() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view().Inv()
}

func (c *cameraImpl) ProjectionInverse() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return mgl32.Perspective(c.fovy, c.aspect, c.near, c.far).Inv()
}

func (c *cameraImpl) Uniform() gpu.GPUCameraUniform {
	return gpu.GPUCameraUniform{
		ViewInverse:       c.ViewInverse(),
		ProjectionInverse: c.ProjectionInverse(),
	}
}
