package main

import (
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	watchOutput   string
	watchInterval time.Duration
)

func init() {
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "", "image rewritten after every reload (default: config output)")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 16*time.Millisecond, "time between frames")
}

var watchCmd = &cobra.Command{
	Use:   "watch <project>",
	Short: "Render continuously and hot reload shaders",
	Long: `Render a project every interval and reload shaders when their files change.

Parameter values and links survive a reload as long as the parameter keeps
its name and type. The output image is rewritten after the first frame and
after every frame that follows a reload.

Images are decoded with the built-in PNG, JPEG, GIF, BMP, TIFF and WebP
decoders. OpenEXR (.exr), DDS and KTX files have no built-in decoder: a
frame that samples one fails, and the CLI warns about them on open, so
convert such images to PNG or TIFF first.

Press Ctrl+C to stop.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output := watchOutput
		if output == "" {
			output = cfg.Output
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Frames are encoded off the render loop; a frame is dropped while
		// the previous one is still being written.
		frames := make(chan image.Image, 1)
		var wantFrame bool
		app, closeApp, err := newApp(func(img image.Image) error {
			if !wantFrame {
				return nil
			}
			select {
			case frames <- img:
				wantFrame = false
			default:
			}
			return nil
		}, true)
		if err != nil {
			return err
		}
		defer closeApp()

		if err := app.OpenProject(args[0]); err != nil {
			return err
		}
		reportShaderErrors(app)
		reportUndecodableImages(app)
		fmt.Printf("Watching %d shader(s), writing %s. Press Ctrl+C to stop.\n",
			len(app.Package().ShaderPaths()), output)

		g, ctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			defer close(frames)
			ticker := time.NewTicker(watchInterval)
			defer ticker.Stop()

			wantFrame = true
			var lastErr string
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}

				if app.ReloadChanged() > 0 {
					wantFrame = true
					reportShaderErrors(app)
				}
				err := app.FrameWithContext(ctx)
				switch {
				case err == nil && lastErr != "":
					okColor.Println("✓ rendering again")
					lastErr = ""
				case err != nil && err.Error() != lastErr && ctx.Err() == nil:
					warnColor.Printf("⚠ %v\n", err)
					lastErr = err.Error()
				}
			}
		})

		g.Go(func() error {
			for img := range frames {
				if err := imaging.Save(img, output); err != nil {
					return fmt.Errorf("write %s: %w", output, err)
				}
				dimColor.Printf("wrote %s\n", output)
			}
			return nil
		})

		err = g.Wait()
		fmt.Println("\nStopped.")
		return err
	},
}
