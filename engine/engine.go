// Package engine runs a Model together with the surfaces that drive it: the GraphQL server, the
// scene file watcher and the preview window.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Carmen-Shannon/tracey"
	"github.com/Carmen-Shannon/tracey/engine/model"
	"github.com/Carmen-Shannon/tracey/engine/preview"
	"github.com/Carmen-Shannon/tracey/engine/server"
	"github.com/Carmen-Shannon/tracey/engine/watcher"
	"golang.org/x/sync/errgroup"
)

// engine implements the Engine interface.
type engine struct {
	model   model.Model
	server  server.Server
	watcher watcher.Watcher
	preview preview.Preview

	quitChannel chan struct{}
	quitOnce    sync.Once

	statusInterval time.Duration
}

// Engine owns the lifecycle of a Model and the goroutines that talk to it.
type Engine interface {
	// Model returns the model the engine runs.
	Model() model.Model

	// Run starts the model loop and every configured surface and blocks until ctx is done, Quit
	// is called, the preview window closes or one of them fails. The preview, when configured,
	// runs on the calling goroutine.
	//
	// Parameters:
	//   - ctx: the lifetime of the engine
	//
	// Returns:
	//   - error: the first failure, or nil on an orderly stop
	Run(ctx context.Context) error

	// Quit signals Run to stop. Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

var _ Engine = &engine{}

// NewEngine creates an Engine for m.
//
// Parameters:
//   - m: the model; Run starts its loop and closes it on the way out
//   - options: functional options for the surfaces to run alongside the model
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(m model.Model, options ...EngineBuilderOption) Engine {
	if m == nil {
		panic("engine: nil model")
	}
	e := &engine{
		model:       m,
		quitChannel: make(chan struct{}),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

func (e *engine) Model() model.Model {
	return e.model
}

func (e *engine) Quit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

func (e *engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-e.quitChannel:
			cancel()
		}
		return nil
	})
	g.Go(func() error {
		defer e.model.Close()
		return ignoreCanceled(e.model.Run(gctx))
	})
	if e.server != nil {
		g.Go(func() error {
			return e.server.Serve(gctx)
		})
	}
	if e.watcher != nil {
		g.Go(func() error {
			return ignoreCanceled(e.watcher.Run(gctx))
		})
	}
	if e.statusInterval > 0 {
		g.Go(func() error {
			e.handleStatus(gctx)
			return nil
		})
	}

	if e.preview != nil {
		err := e.preview.Run(gctx)
		cancel()
		if werr := g.Wait(); err == nil {
			err = werr
		}
		return err
	}
	return g.Wait()
}

// handleStatus logs the model counters at the status interval until ctx is done.
func (e *engine) handleStatus(ctx context.Context) {
	ticker := time.NewTicker(e.statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := e.model.Stats(ctx)
			if err != nil {
				continue
			}
			tracey.Logger().Info("status",
				"nodes", stats.Nodes,
				"instances", stats.Instances,
				"batch", stats.Batch,
				"builds", stats.Profile.Builds,
				"rays", stats.Profile.Rays,
				"rays_per_second", stats.Profile.RaysPerSecond(),
			)
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
