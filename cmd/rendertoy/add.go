package main

import (
	"github.com/spf13/cobra"
)

var addConnect bool

func init() {
	addCmd.Flags().BoolVar(&addConnect, "connect", false, "feed the shader's first output image to the Output pass")
}

var addCmd = &cobra.Command{
	Use:   "add <project> <shader>...",
	Short: "Add shaders to a project",
	Long: `Add a compute pass for every shader to an existing project.

With --connect the last shader added replaces whatever fed the Output pass.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, shaders := args[0], args[1:]

		app, closeApp, err := newApp(nil, false)
		if err != nil {
			return err
		}
		defer closeApp()

		if err := app.OpenProject(path); err != nil {
			return err
		}
		for i, shader := range shaders {
			h, err := app.AddShader(shader)
			if err != nil {
				return err
			}
			if addConnect && i == len(shaders)-1 {
				if err := connectOutput(app, h); err != nil {
					return err
				}
			}
		}
		reportShaderErrors(app)

		if err := app.SaveProject(path); err != nil {
			return err
		}
		okColor.Printf("✓ added %d shader(s) to %s\n", len(shaders), path)
		return nil
	},
}
