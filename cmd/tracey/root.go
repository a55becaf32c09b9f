package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Carmen-Shannon/tracey"
	"github.com/Carmen-Shannon/tracey/engine/config"
	"github.com/Carmen-Shannon/tracey/engine/model"
	"github.com/Carmen-Shannon/tracey/engine/project"
	"github.com/Carmen-Shannon/tracey/engine/renderer"
	"github.com/spf13/cobra"
)

// options are the flags shared by every command. Flags the user did not set leave the
// configuration file values alone.
type options struct {
	configPath string
	logLevel   string
	backend    string
	width      uint32
	height     uint32
	samples    uint32
	bounces    uint32
	workers    int
	cfg        config.Config
}

func newRootCommand() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:          "tracey",
		Short:        "Path-tracing scene server",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.load(cmd)
		},
	}
	f := cmd.PersistentFlags()
	f.StringVar(&o.configPath, "config", "", "TOML configuration file")
	f.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn or error")
	f.StringVar(&o.backend, "backend", "", "device backend: software or wgpu")
	f.Uint32Var(&o.width, "width", 0, "output width in pixels")
	f.Uint32Var(&o.height, "height", 0, "output height in pixels")
	f.Uint32Var(&o.samples, "spp", 0, "samples per pixel per batch")
	f.Uint32Var(&o.bounces, "bounces", 0, "maximum path depth")
	f.IntVar(&o.workers, "workers", 0, "software device worker count")

	cmd.AddCommand(newServeCommand(o), newRenderCommand(o), newPreviewCommand(o))
	return cmd
}

// load merges the defaults, the configuration file and the flags, then installs the logger.
func (o *options) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if f.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if f.Changed("backend") {
		cfg.Render.Backend = o.backend
	}
	if f.Changed("width") {
		cfg.Render.Width = o.width
	}
	if f.Changed("height") {
		cfg.Render.Height = o.height
	}
	if f.Changed("spp") {
		cfg.Render.SamplesPerPixel = o.samples
	}
	if f.Changed("bounces") {
		cfg.Render.MaxBounces = o.bounces
	}
	if f.Changed("workers") {
		cfg.Render.Workers = o.workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	tracey.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	o.cfg = cfg
	return nil
}

// newModel creates a model on the configured backend. The renderer panics when the device
// cannot be created; that is reported as an error here.
func (o *options) newModel() (m model.Model, err error) {
	backend, ok := renderer.ParseBackendType(o.cfg.Render.Backend)
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", o.cfg.Render.Backend)
	}
	root, err := project.ExpandRoot(o.cfg.Project.Root)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("create %s renderer: %v", backend, r)
		}
	}()
	r := renderer.NewRenderer(backend,
		renderer.WithSize(o.cfg.Render.Width, o.cfg.Render.Height),
		renderer.WithMaxBounces(o.cfg.Render.MaxBounces),
		renderer.WithWorkers(o.cfg.Render.Workers),
	)
	return model.NewModel(
		model.WithRenderer(r),
		model.WithProjectRoot(root),
		model.WithSamplesPerPixel(o.cfg.Render.SamplesPerPixel),
	)
}

// loadScene loads and builds path once the model loop accepts requests. An empty path is a
// no-op.
func loadScene(ctx context.Context, m model.Model, path string) error {
	if path == "" {
		return nil
	}
	start := time.Now()
	summary, err := m.Load(ctx, path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	if err := m.Build(ctx); err != nil {
		return fmt.Errorf("build %s: %w", path, err)
	}
	tracey.Logger().Info("scene ready", "path", path, "nodes", len(summary.Nodes), "elapsed", time.Since(start))
	return nil
}
