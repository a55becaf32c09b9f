package main

import (
	"github.com/Carmen-Shannon/tracey"
	"github.com/Carmen-Shannon/tracey/engine"
	"github.com/Carmen-Shannon/tracey/engine/preview"
	"github.com/Carmen-Shannon/tracey/engine/watcher"
	"github.com/Carmen-Shannon/tracey/engine/window"
	"github.com/spf13/cobra"
)

func newPreviewCommand(o *options) *cobra.Command {
	var (
		scene    string
		batches  uint32
		maxBatch uint32
		watch    bool
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show a scene in an interactive window",
		Long: "Show a scene in an interactive window. Arrow keys orbit, WASD pans, Q and E move " +
			"down and up, R resets the camera and the scroll wheel zooms. Escape closes the window.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := o.newModel()
			if err != nil {
				return err
			}
			win, err := window.NewWindow(
				window.WithTitle("Tracey - "+scene),
				window.WithSize(int(o.cfg.Render.Width), int(o.cfg.Render.Height)),
			)
			if err != nil {
				m.Close()
				return err
			}
			p, err := preview.NewPreview(m, win,
				preview.WithBatchesPerFrame(batches),
				preview.WithMaxBatches(maxBatch),
			)
			if err != nil {
				m.Close()
				return err
			}

			opts := []engine.EngineBuilderOption{engine.WithPreview(p)}
			if watch || o.cfg.Watch.Enabled {
				opts = append(opts, engine.WithWatcher(watcher.NewWatcher(m, watcher.WithDebounce(o.cfg.Watch.Debounce.Std()))))
			}
			e := engine.NewEngine(m, opts...)

			ctx := cmd.Context()
			go func() {
				if err := loadScene(ctx, m, scene); err != nil {
					tracey.Logger().Error("preview scene", "error", err)
					e.Quit()
				}
			}()
			return e.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&scene, "scene", "", "glTF scene to show")
	cmd.Flags().Uint32Var(&batches, "batches-per-frame", preview.DefaultBatchesPerFrame, "batches traced between window updates")
	cmd.Flags().Uint32Var(&maxBatch, "max-batches", preview.DefaultMaxBatches, "stop tracing after this many batches until the camera moves, 0 never stops")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload the scene file when it changes")
	return cmd
}
