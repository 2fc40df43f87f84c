package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gogpu/rendertoy"
	"github.com/gogpu/rendertoy/backend"
	"github.com/gogpu/rendertoy/internal/nodegraph"
)

var infoCmd = &cobra.Command{
	Use:   "info [project]",
	Short: "Show backends, configuration and project contents",
	Long: `Show the registered GPU backends and the effective configuration.

With a project, also list its passes with their parameters and links. The
project's shaders are compiled, so a device is opened.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("rendertoy %s\n", rendertoy.Version)
		fmt.Printf("backends: %s\n", strings.Join(backend.Available(), ", "))
		fmt.Printf("window:   %dx%d\n", cfg.Window.Width, cfg.Window.Height)
		fmt.Printf("budget:   %d MB\n", cfg.Textures.BudgetMB)
		fmt.Printf("shaders:  %s\n", strings.Join(cfg.Shaders.Extensions, " "))
		if len(args) == 0 {
			return nil
		}

		app, closeApp, err := newApp(nil, false)
		if err != nil {
			return err
		}
		defer closeApp()
		fmt.Printf("device:   %s\n", deviceName(app))

		if err := app.OpenProject(args[0]); err != nil {
			return err
		}
		pkg := app.Package()
		if err := pkg.UpdateGraph(); err != nil {
			return err
		}
		g := pkg.Graph()

		fmt.Println()
		for h, ps := range pkg.Passes() {
			okColor.Printf("%s ", ps.DisplayName())
			dimColor.Printf("[%s %s]\n", ps.Kind(), h)
			for _, p := range ps.Params() {
				fmt.Printf("  %-20s %-10s", p.Desc.Name, p.Desc.Type)
				dimColor.Printf(" uid=%d\n", p.UID)
			}
			for port := range g.NodeInputPorts(h) {
				info, _ := pkg.PortInfo(port)
				p, _ := g.Port(port)
				name := info.Name
				if !info.Valid {
					name = warnColor.Sprintf("%s (orphaned)", name)
				}
				if p.Link == nodegraph.InvalidLink {
					fmt.Printf("  <- %s: unlinked\n", name)
					continue
				}
				src, _ := g.LinkSource(p.Link)
				from := "?"
				if sp, ok := pkg.Pass(src); ok {
					from = sp.DisplayName()
				}
				fmt.Printf("  <- %s: %s\n", name, from)
			}
		}

		fmt.Println()
		if n := reportShaderErrors(app); n == 0 {
			okColor.Println("✓ all shaders compiled")
		}
		return nil
	},
}

// deviceName returns the adapter name when the device reports one.
func deviceName(app *rendertoy.App) string {
	if n, ok := app.Device().(interface{ Name() string }); ok {
		return n.Name()
	}
	return "unknown"
}
