package camera

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// CameraController drives a Camera from discrete input steps. Orbit methods rotate the eye around
// the target on a sphere; pan methods translate eye and target together along the camera axes.
type CameraController interface {
	// Camera returns the driven camera.
	Camera() Camera

	// OrbitLeft rotates the eye left around the target by one orbit step.
	OrbitLeft()

	// OrbitRight rotates the eye right around the target by one orbit step.
	OrbitRight()

	// OrbitUp tilts the eye upward by one orbit step, clamped below the pole.
	OrbitUp()

	// OrbitDown tilts the eye downward by one orbit step, clamped above the pole.
	OrbitDown()

	// PanRight translates along the camera's right axis. Negative delta moves left.
	//
	// Parameters:
	//   - delta: pan amount scaled by the pan speed
	PanRight(delta float32)

	// PanUp translates along the camera's up axis.
	PanUp(delta float32)

	// PanForward translates along the viewing direction.
	PanForward(delta float32)

	// Zoom moves the eye toward the target without passing it.
	//
	// Parameters:
	//   - delta: zoom amount scaled by the zoom speed; positive moves closer
	Zoom(delta float32)
}

type cameraControllerImpl struct {
	cam Camera

	orbitSpeed float32
	panSpeed   float32
	zoomSpeed  float32
	minRadius  float32
	maxPitch   float32
}

var _ CameraController = &cameraControllerImpl{}

// NewCameraController creates a controller for cam.
//
// Parameters:
//   - cam: the camera to drive
//   - options: functional options to configure the controller
//
// Returns:
//   - CameraController: the newly created controller
func NewCameraController(cam Camera, options ...CameraControllerOption) CameraController {
	if cam == nil {
		panic("camera: nil camera")
	}
	cc := &cameraControllerImpl{
		cam:        cam,
		orbitSpeed: 0.05,
		panSpeed:   0.25,
		zoomSpeed:  0.5,
		minRadius:  0.1,
		maxPitch:   math32.Pi/2 - 0.05,
	}
	for _, option := range options {
		option(cc)
	}
	return cc
}

func (cc *cameraControllerImpl) Camera() Camera {
	return cc.cam
}

// spherical returns radius, azimuth and elevation of the eye relative to the target.
func (cc *cameraControllerImpl) spherical() (float32, float32, float32) {
	off := cc.cam.Position().Sub(cc.cam.Target())
	r := off.Len()
	if r < 1e-6 {
		return 0, 0, 0
	}
	return r, math32.Atan2(off[0], off[2]), math32.Asin(min(max(off[1]/r, -1), 1))
}

func (cc *cameraControllerImpl) place(r, azimuth, elevation float32) {
	elevation = min(max(elevation, -cc.maxPitch), cc.maxPitch)
	off := mgl32.Vec3{
		r * math32.Cos(elevation) * math32.Sin(azimuth),
		r * math32.Sin(elevation),
		r * math32.Cos(elevation) * math32.Cos(azimuth),
	}
	cc.cam.SetPosition(cc.cam.Target().Add(off))
}

func (cc *cameraControllerImpl) orbit(dAzimuth, dElevation float32) {
	r, az, el := cc.spherical()
	if r == 0 {
		return
	}
	cc.place(r, az+dAzimuth, el+dElevation)
}

func (cc *cameraControllerImpl) OrbitLeft() {
	cc.orbit(-cc.orbitSpeed, 0)
}

func (cc *cameraControllerImpl) OrbitRight() {
	cc.orbit(cc.orbitSpeed, 0)
}

func (cc *cameraControllerImpl) OrbitUp() {
	cc.orbit(0, cc.orbitSpeed)
}

func (cc *cameraControllerImpl) OrbitDown() {
	cc.orbit(0, -cc.orbitSpeed)
}

// axes returns right, up and forward consistent with the view matrix.
func (cc *cameraControllerImpl) axes() (mgl32.Vec3, mgl32.Vec3, mgl32.Vec3) {
	inv := cc.cam.ViewInverse()
	return inv.Col(0).Vec3(), inv.Col(1).Vec3(), inv.Col(2).Vec3().Mul(-1)
}

func (cc *cameraControllerImpl) PanRight(delta float32) {
	right, _, _ := cc.axes()
	cc.cam.Move(right.Mul(delta * cc.panSpeed))
}

func (cc *cameraControllerImpl) PanUp(delta float32) {
	_, up, _ := cc.axes()
	cc.cam.Move(up.Mul(delta * cc.panSpeed))
}

func (cc *cameraControllerImpl) PanForward(delta float32) {
	_, _, fwd := cc.axes()
	cc.cam.Move(fwd.Mul(delta * cc.panSpeed))
}

func (cc *cameraControllerImpl) Zoom(delta float32) {
	r, az, el := cc.spherical()
	if r == 0 {
		return
	}
	cc.place(max(r-delta*cc.zoomSpeed, cc.minRadius), az, el)
}
