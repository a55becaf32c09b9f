package camera

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := NewCamera(WithSize(1280, 720))
	assert.Equal(t, mgl32.Vec3{1, 1, 5}, c.Position())
	assert.Equal(t, mgl32.Vec3{}, c.Target())
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, c.Up())
	assert.InDelta(t, 1.134, c.Fovy(), 1e-6)
	assert.InDelta(t, 0.1, c.Near(), 1e-6)
	assert.InDelta(t, 1000, c.Far(), 1e-3)
	assert.InDelta(t, 1280.0/720.0, c.Aspect(), 1e-6)
}

func TestViewInverseRecoversEye(t *testing.T) {
	c := NewCamera(WithPosition(mgl32.Vec3{3, 2, 1}))
	eye := c.ViewInverse().Mul4x1(mgl32.Vec4{0, 0, 0, 1}).Vec3()
	assert.True(t, eye.ApproxEqualThreshold(mgl32.Vec3{3, 2, 1}, 1e-4))
	assert.True(t, c.View().Mul4(c.ViewInverse()).ApproxEqualThreshold(mgl32.Ident4(), 1e-4))
	assert.True(t, c.Projection().Mul4(c.ProjectionInverse()).ApproxEqualThreshold(mgl32.Ident4(), 1e-3))
}

func TestMoveTranslatesEyeAndTarget(t *testing.T) {
	c := NewCamera()
	pos := c.Move(mgl32.Vec3{1, 0, 0})
	assert.Equal(t, mgl32.Vec3{2, 1, 5}, pos)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, c.Target())

	c.LookAt(mgl32.Vec3{0, 5, 0})
	c.SetPosition(mgl32.Vec3{0, 5, 10})
	assert.Equal(t, mgl32.Vec3{0, 5, 0}, c.Target())
	assert.Equal(t, mgl32.Vec3{0, 5, 10}, c.Position())
}

func TestUniformLayout(t *testing.T) {
	c := NewCamera()
	u := c.Uniform()
	buf := u.Marshal()
	require.Len(t, buf, 128)
	assert.Equal(t, c.ViewInverse(), u.ViewInverse)
}

func TestControllerOrbitKeepsRadius(t *testing.T) {
	c := NewCamera(WithPosition(mgl32.Vec3{0, 0, 10}))
	cc := NewCameraController(c, WithOrbitSpeed(0.5))
	cc.OrbitRight()
	cc.OrbitUp()
	assert.InDelta(t, 10, c.Position().Len(), 1e-4)
	assert.NotEqual(t, mgl32.Vec3{0, 0, 10}, c.Position())

	cc.Zoom(100)
	assert.InDelta(t, 0.1, c.Position().Sub(c.Target()).Len(), 1e-4)
}

func TestControllerPanMovesTarget(t *testing.T) {
	c := NewCamera(WithPosition(mgl32.Vec3{0, 0, 10}))
	cc := NewCameraController(c, WithPanSpeed(1))
	cc.PanRight(2)
	assert.True(t, c.Target().ApproxEqualThreshold(mgl32.Vec3{2, 0, 0}, 1e-4))
	cc.PanForward(1)
	assert.True(t, c.Position().ApproxEqualThreshold(mgl32.Vec3{2, 0, 9}, 1e-4))
}

func TestApplyActions(t *testing.T) {
	c := NewCamera(WithPosition(mgl32.Vec3{0, 0, 10}))
	cc := NewCameraController(c, WithPanSpeed(1))

	assert.False(t, Apply(cc, ActionNone))
	assert.Equal(t, mgl32.Vec3{0, 0, 10}, c.Position())

	require.True(t, Apply(cc, ActionForward))
	assert.True(t, c.Position().ApproxEqualThreshold(mgl32.Vec3{0, 0, 9}, 1e-4))
	require.True(t, Apply(cc, ActionBack))
	require.True(t, Apply(cc, ActionRight))
	assert.True(t, c.Position().ApproxEqualThreshold(mgl32.Vec3{1, 0, 10}, 1e-4))
	require.True(t, Apply(cc, ActionRise))
	assert.True(t, c.Target().ApproxEqualThreshold(mgl32.Vec3{1, 1, 0}, 1e-4))

	require.True(t, Apply(cc, ActionOrbitLeft))
	assert.InDelta(t, 10, c.Position().Sub(c.Target()).Len(), 1e-4)

	require.True(t, Apply(cc, ActionReset))
	assert.Equal(t, DefaultPosition, c.Position())
	assert.Equal(t, mgl32.Vec3{}, c.Target())
}
