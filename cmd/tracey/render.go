package main

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"

	"github.com/Carmen-Shannon/tracey"
	"github.com/Carmen-Shannon/tracey/engine"
	"github.com/spf13/cobra"
)

func newRenderCommand(o *options) *cobra.Command {
	var (
		scene   string
		out     string
		batches uint32
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a scene to a PNG file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if scene == "" {
				return errors.New("--scene is required")
			}
			m, err := o.newModel()
			if err != nil {
				return err
			}
			e := engine.NewEngine(m)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- e.Run(ctx) }()

			renderErr := renderToFile(ctx, e, scene, out, max(batches, 1))
			e.Quit()
			if err := <-done; renderErr == nil {
				renderErr = err
			}
			return renderErr
		},
	}
	cmd.Flags().StringVar(&scene, "scene", "", "glTF scene to render")
	cmd.Flags().StringVar(&out, "out", "render.png", "output PNG file")
	cmd.Flags().Uint32Var(&batches, "batches", 16, "number of batches to accumulate")
	return cmd
}

func renderToFile(ctx context.Context, e engine.Engine, scene, out string, batches uint32) error {
	m := e.Model()
	if err := loadScene(ctx, m, scene); err != nil {
		return err
	}
	if err := m.Render(ctx, batches); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	img, err := m.Image(ctx)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	tracey.Logger().Info("render written", "path", out, "batches", batches, "width", m.Width(), "height", m.Height())
	return nil
}
