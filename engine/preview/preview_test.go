package preview

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Carmen-Shannon/tracey/engine/camera"
	"github.com/Carmen-Shannon/tracey/engine/model"
	"github.com/Carmen-Shannon/tracey/engine/renderer"
	"github.com/Carmen-Shannon/tracey/engine/window"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startModel(t *testing.T) model.Model {
	t.Helper()
	r := renderer.NewRenderer(renderer.BackendTypeSoftware,
		renderer.WithSize(8, 8), renderer.WithWorkers(1), renderer.WithSeed(1), renderer.WithMaxBounces(1))
	m, err := model.NewModel(model.WithRenderer(r), model.WithProjectRoot(t.TempDir()), model.WithImageWorkers(1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- m.Run(ctx) }()
	t.Cleanup(func() {
		m.Close()
		cancel()
		assert.NoError(t, <-errs)
	})
	return m
}

func TestDefaultBindings(t *testing.T) {
	b := DefaultBindings()
	assert.Equal(t, camera.ActionOrbitLeft, b[window.KeyLeft])
	assert.Equal(t, camera.ActionForward, b[window.KeyW])
	assert.Equal(t, camera.ActionReset, b[window.KeyR])
	_, ok := b[window.KeyUnknown]
	assert.False(t, ok)
}

func TestPushDropsWhenFull(t *testing.T) {
	p := &previewImpl{steps: make(chan step, 1)}
	p.push(step{action: camera.ActionForward})
	p.push(step{action: camera.ActionBack})
	require.Len(t, p.steps, 1)
	assert.Equal(t, camera.ActionForward, (<-p.steps).action)
}

func TestRenderLoop(t *testing.T) {
	m := startModel(t)
	ctx := context.Background()

	path, err := filepath.Abs(filepath.Join("..", "model", "testdata", "triangle.gltf"))
	require.NoError(t, err)
	_, err = m.Load(ctx, path)
	require.NoError(t, err)
	require.NoError(t, m.Build(ctx))

	p := newPreview(m, nil, WithMaxBatches(2), WithBatchesPerFrame(1))
	done := make(chan error, 1)
	go func() { done <- p.renderLoop(ctx) }()

	require.Eventually(t, func() bool { return p.latest.Load() != nil }, 5*time.Second, 10*time.Millisecond)
	img := p.latest.Load()
	assert.Equal(t, 8, img.Bounds().Dx())

	p.push(step{action: camera.ActionForward})
	want := p.camera.Position()
	require.Eventually(t, func() bool {
		pos, err := m.MoveCamera(ctx, mgl32.Vec3{})
		return err == nil && !pos.ApproxEqual(want)
	}, 5*time.Second, 10*time.Millisecond)

	close(p.steps)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("render loop did not stop")
	}
	pos, err := m.MoveCamera(ctx, mgl32.Vec3{})
	require.NoError(t, err)
	assert.True(t, pos.ApproxEqual(p.camera.Position()))
}

func TestRenderLoopWaitsForFrame(t *testing.T) {
	m := startModel(t)
	p := newPreview(m, nil)
	p.idle = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.renderLoop(ctx) }()

	time.Sleep(20 * time.Millisecond)
	assert.Nil(t, p.latest.Load())
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("render loop did not stop")
	}
}
