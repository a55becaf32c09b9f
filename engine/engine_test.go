package engine

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/Carmen-Shannon/tracey/engine/model"
	"github.com/Carmen-Shannon/tracey/engine/renderer"
	"github.com/Carmen-Shannon/tracey/engine/server"
	"github.com/Carmen-Shannon/tracey/engine/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newModel(t *testing.T) model.Model {
	t.Helper()
	r := renderer.NewRenderer(renderer.BackendTypeSoftware, renderer.WithSize(4, 4), renderer.WithWorkers(1))
	m, err := model.NewModel(model.WithRenderer(r), model.WithProjectRoot(t.TempDir()))
	require.NoError(t, err)
	return m
}

func runEngine(e Engine, ctx context.Context) <-chan error {
	errs := make(chan error, 1)
	go func() { errs <- e.Run(ctx) }()
	return errs
}

func waitStopped(t *testing.T, errs <-chan error) {
	t.Helper()
	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestNewEnginePanicsOnNilModel(t *testing.T) {
	assert.Panics(t, func() { NewEngine(nil) })
}

func TestQuitStopsRun(t *testing.T) {
	m := newModel(t)
	e := NewEngine(m, WithStatusInterval(time.Millisecond), WithWatcher(watcher.NewWatcher(m)))
	assert.Equal(t, m, e.Model())

	errs := runEngine(e, context.Background())
	require.Eventually(t, func() bool {
		_, err := m.Scene(context.Background())
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	e.Quit()
	e.Quit()
	waitStopped(t, errs)

	_, err := m.Scene(context.Background())
	assert.ErrorIs(t, err, model.ErrClosed)
}

func TestCancelStopsServer(t *testing.T) {
	m := newModel(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	e := NewEngine(m, WithServer(server.NewServer(m, server.WithAddress(addr))))
	ctx, cancel := context.WithCancel(context.Background())
	errs := runEngine(e, ctx)

	require.Eventually(t, func() bool {
		c, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		_ = c.Close()
		return true
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	waitStopped(t, errs)
}
