package main

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
)

var (
	renderOutput string
	renderFrames int
)

func init() {
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "output image (default: config output)")
	renderCmd.Flags().IntVar(&renderFrames, "frames", 1, "number of frames to render; the last one is written")
}

var renderCmd = &cobra.Command{
	Use:   "render <project>",
	Short: "Render a project to an image file",
	Long: `Render a project and write the image the Output pass receives.

The output format follows the file extension (png, jpg, gif, tif, bmp).

Images are decoded with the built-in PNG, JPEG, GIF, BMP, TIFF and WebP
decoders. OpenEXR (.exr), DDS and KTX files have no built-in decoder: a
frame that samples one fails, and the CLI warns about them on open, so
convert such images to PNG or TIFF first.

Examples:
  rendertoy render scene.rtoy
  rendertoy render scene.rtoy -o frame.png --width 1920 --height 1080`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output := renderOutput
		if output == "" {
			output = cfg.Output
		}
		if renderFrames < 1 {
			return fmt.Errorf("--frames must be at least 1")
		}

		var last image.Image
		app, closeApp, err := newApp(func(img image.Image) error {
			last = img
			return nil
		}, false)
		if err != nil {
			return err
		}
		defer closeApp()

		if err := app.OpenProject(args[0]); err != nil {
			return err
		}
		if n := reportShaderErrors(app); n > 0 {
			warnColor.Printf("%d shader(s) failed to compile\n", n)
		}
		reportUndecodableImages(app)

		for range renderFrames {
			if err := app.Frame(); err != nil {
				return err
			}
		}
		if last == nil {
			return fmt.Errorf("backend %q does not read frames back", backendName)
		}

		if err := imaging.Save(last, output); err != nil {
			return fmt.Errorf("write %s: %w", output, err)
		}
		s := app.Stats()
		okColor.Printf("✓ %s ", output)
		dimColor.Printf("(%dx%d, %d passes, %d dispatches)\n",
			last.Bounds().Dx(), last.Bounds().Dy(), s.Passes, s.Dispatch.Dispatches)
		return nil
	},
}
