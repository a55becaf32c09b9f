package main

import (
	"github.com/Carmen-Shannon/tracey"
	"github.com/Carmen-Shannon/tracey/engine"
	"github.com/Carmen-Shannon/tracey/engine/server"
	"github.com/Carmen-Shannon/tracey/engine/watcher"
	"github.com/spf13/cobra"
)

func newServeCommand(o *options) *cobra.Command {
	var (
		address string
		scene   string
		watch   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the GraphQL API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := o.cfg
			if cmd.Flags().Changed("address") {
				cfg.Server.Address = address
			}
			if cmd.Flags().Changed("watch") {
				cfg.Watch.Enabled = watch
			}

			m, err := o.newModel()
			if err != nil {
				return err
			}
			opts := []engine.EngineBuilderOption{
				engine.WithServer(server.NewServer(m,
					server.WithAddress(cfg.Server.Address),
					server.WithShutdownGrace(cfg.Server.ShutdownGrace.Std()),
				)),
			}
			if cfg.Watch.Enabled {
				opts = append(opts, engine.WithWatcher(watcher.NewWatcher(m, watcher.WithDebounce(cfg.Watch.Debounce.Std()))))
			}
			e := engine.NewEngine(m, opts...)

			ctx := cmd.Context()
			go func() {
				if err := loadScene(ctx, m, scene); err != nil {
					tracey.Logger().Error("initial scene", "error", err)
				}
			}()
			tracey.Logger().Info("serving", "address", cfg.Server.Address, "backend", cfg.Render.Backend)
			return e.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "listen address, host:port")
	cmd.Flags().StringVar(&scene, "scene", "", "glTF scene to load and build on start")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload the loaded scene file when it changes")
	return cmd
}
