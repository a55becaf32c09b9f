package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/tracey/engine/model"
	"github.com/Carmen-Shannon/tracey/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTarget counts loads and republishes them like the model does.
type fakeTarget struct {
	events *model.Events
	loads  atomic.Int32
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{events: &model.Events{
		SceneLoaded:    model.NewBroadcaster[model.SceneLoaded]("sceneLoaded"),
		NodeAdded:      model.NewBroadcaster[model.NodeAdded]("nodeAdded"),
		ProjectCreated: model.NewBroadcaster[model.ProjectCreated]("projectCreated"),
	}}
}

func (f *fakeTarget) Load(_ context.Context, path string) (*scene.Summary, error) {
	f.loads.Add(1)
	s := scene.New("reloaded").Summary()
	f.events.SceneLoaded.Publish(model.SceneLoaded{Path: path, Scene: s})
	return s, nil
}

func (f *fakeTarget) Events() *model.Events {
	return f.events
}

func startWatcher(t *testing.T, target Target, options ...WatcherBuilderOption) Watcher {
	t.Helper()
	w := NewWatcher(target, options...)
	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-errs)
	})
	return w
}

func TestReloadsAfterWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.gltf")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	target := newFakeTarget()
	w := startWatcher(t, target, WithDebounce(50*time.Millisecond))

	require.Eventually(t, func() bool { return target.events.SceneLoaded.Len() == 1 }, 5*time.Second, 5*time.Millisecond)
	target.events.SceneLoaded.Publish(model.SceneLoaded{Path: path})
	require.Eventually(t, func() bool { return w.Path() == path }, 5*time.Second, 5*time.Millisecond)

	for range 3 {
		require.NoError(t, os.WriteFile(path, []byte(`{"asset":{}}`), 0o644))
	}
	require.Eventually(t, func() bool { return target.loads.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	// Other files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.gltf"), []byte("{}"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), target.loads.Load())
}

func TestFollowsNewScenes(t *testing.T) {
	first := filepath.Join(t.TempDir(), "a.gltf")
	second := filepath.Join(t.TempDir(), "b.gltf")
	require.NoError(t, os.WriteFile(first, []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("{}"), 0o644))

	target := newFakeTarget()
	w := startWatcher(t, target, WithPath(first), WithDebounce(20*time.Millisecond))
	require.Eventually(t, func() bool { return w.Path() == first }, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return target.events.SceneLoaded.Len() == 1 }, 5*time.Second, 5*time.Millisecond)

	target.events.SceneLoaded.Publish(model.SceneLoaded{Path: second})
	require.Eventually(t, func() bool { return w.Path() == second }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, os.WriteFile(second, []byte("{ }"), 0o644))
	require.Eventually(t, func() bool { return target.loads.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestNilTargetPanics(t *testing.T) {
	assert.Panics(t, func() { NewWatcher(nil) })
}
