package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gogpu/rendertoy/internal/nodegraph"
)

var newForce bool

func init() {
	newCmd.Flags().BoolVarP(&newForce, "force", "f", false, "overwrite an existing project")
}

var newCmd = &cobra.Command{
	Use:   "new <project> [shader...]",
	Short: "Create a project",
	Long: `Create a project containing the Output pass and a compute pass for
every shader given. The passes are chained in order: the first output image
of each pass feeds the next pass, and the last one feeds the Output pass.

Examples:
  rendertoy new scene.rtoy
  rendertoy new scene.rtoy noise.wgsl blur.wgsl`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, shaders := args[0], args[1:]
		if _, err := os.Stat(path); err == nil && !newForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		app, closeApp, err := newApp(nil, false)
		if err != nil {
			return err
		}
		defer closeApp()

		var prev nodegraph.NodeHandle
		for i, shader := range shaders {
			h, err := app.AddShader(shader)
			if err != nil {
				return err
			}
			if i > 0 {
				if _, err := app.Connect(prev, h); err != nil {
					warnColor.Printf("⚠ %s -> %s: %v\n", shaders[i-1], shader, err)
				}
			}
			prev = h
		}
		if len(shaders) > 0 {
			if err := connectOutput(app, prev); err != nil {
				warnColor.Printf("⚠ %s: not connected to Output: %v\n", shaders[len(shaders)-1], err)
			}
		}
		reportShaderErrors(app)

		if err := app.SaveProject(path); err != nil {
			return err
		}
		okColor.Printf("✓ created %s ", path)
		dimColor.Printf("(%d shader(s))\n", len(shaders))
		return nil
	},
}
