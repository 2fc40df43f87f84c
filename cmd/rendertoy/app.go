package main

import (
	"fmt"
	"image"
	"time"

	"github.com/fatih/color"

	"github.com/gogpu/rendertoy"
	"github.com/gogpu/rendertoy/backend"
	"github.com/gogpu/rendertoy/gpucore"
	"github.com/gogpu/rendertoy/internal/nodegraph"
	"github.com/gogpu/rendertoy/internal/param"
	"github.com/gogpu/rendertoy/internal/pass"
	"github.com/gogpu/rendertoy/internal/texture"

	// Register the HAL backends.
	_ "github.com/gogpu/rendertoy/backend/native"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.Faint)
)

// openDevice opens the backend named by --backend, or the best available.
func openDevice(present func(image.Image) error) (gpucore.Device, error) {
	opts := backend.Options{Presenter: present}
	if backendName != "" {
		return backend.Open(backendName, opts)
	}
	return backend.OpenDefault(opts)
}

// newApp opens a device and an App configured from cfg. The returned
// function closes both.
func newApp(present func(image.Image) error, hotReload bool) (*rendertoy.App, func(), error) {
	dev, err := openDevice(present)
	if err != nil {
		return nil, nil, err
	}

	opts := []rendertoy.Option{
		rendertoy.WithWindowSize(cfg.Window.Width, cfg.Window.Height),
		rendertoy.WithTextureBudget(cfg.Textures.BudgetMB),
		rendertoy.WithShaderExtensions(cfg.Shaders.Extensions...),
	}
	if hotReload {
		opts = append(opts, rendertoy.WithHotReload(time.Duration(cfg.Watch.Debounce)))
	}
	app, err := rendertoy.NewApp(dev, opts...)
	if err != nil {
		dev.Close()
		return nil, nil, err
	}
	return app, func() {
		_ = app.Close()
		dev.Close()
	}, nil
}

// reportShaderErrors prints the compile error of every pass that has one
// and returns how many there were.
func reportShaderErrors(app *rendertoy.App) int {
	n := 0
	for _, ps := range app.Package().Passes() {
		c, ok := ps.(*pass.Compute)
		if !ok || c.Error() == nil {
			continue
		}
		n++
		errColor.Printf("✗ %s: ", c.ShaderPath())
		fmt.Println(c.Error())
	}
	return n
}

// reportUndecodableImages warns about loaded images no built-in decoder can
// read and returns how many there were.
func reportUndecodableImages(app *rendertoy.App) int {
	n := 0
	for _, ps := range app.Package().Passes() {
		for _, prm := range ps.Params() {
			tv := prm.Value.Texture
			if !prm.Desc.Type.IsTexture() || tv.Source != param.SourceLoad || tv.Path == "" || texture.HasDecoder(tv.Path) {
				continue
			}
			n++
			warnColor.Printf("! %s: ", ps.DisplayName())
			fmt.Printf("%s needs a decoder this build does not include (.exr, .dds and .ktx are not built in)\n", tv.Path)
		}
	}
	return n
}

// connectOutput feeds the first output image of h to the Output pass,
// replacing the link the Output pass had.
func connectOutput(app *rendertoy.App, h nodegraph.NodeHandle) error {
	out, err := app.OutputNode()
	if err != nil {
		return err
	}
	if err := app.Package().UpdateGraph(); err != nil {
		return err
	}
	g := app.Package().Graph()
	for p := range g.NodeInputPorts(out) {
		if port, ok := g.Port(p); ok && port.Link != nodegraph.InvalidLink {
			g.RemoveLink(port.Link)
		}
	}
	_, err = app.Connect(h, out)
	return err
}
