package camera

import "github.com/go-gl/mathgl/mgl32"

// Action is one discrete camera input step, the unit the preview binds keys to.
type Action int

const (
	ActionNone Action = iota
	ActionOrbitLeft
	ActionOrbitRight
	ActionOrbitUp
	ActionOrbitDown
	ActionForward
	ActionBack
	ActionLeft
	ActionRight
	ActionRise
	ActionSink
	// ActionReset returns the camera to DefaultPosition looking at the origin.
	ActionReset
)

// Apply performs a on cc.
//
// Parameters:
//   - cc: the controller to drive
//   - a: the action
//
// Returns:
//   - bool: false for ActionNone and unknown actions, which leave the camera untouched
func Apply(cc CameraController, a Action) bool {
	switch a {
	case ActionOrbitLeft:
		cc.OrbitLeft()
	case ActionOrbitRight:
		cc.OrbitRight()
	case ActionOrbitUp:
		cc.OrbitUp()
	case ActionOrbitDown:
		cc.OrbitDown()
	case ActionForward:
		cc.PanForward(1)
	case ActionBack:
		cc.PanForward(-1)
	case ActionLeft:
		cc.PanRight(-1)
	case ActionRight:
		cc.PanRight(1)
	case ActionRise:
		cc.PanUp(1)
	case ActionSink:
		cc.PanUp(-1)
	case ActionReset:
		cc.Camera().SetPosition(DefaultPosition)
		cc.Camera().LookAt(mgl32.Vec3{})
	default:
		return false
	}
	return true
}
