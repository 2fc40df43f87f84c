package rendertoy

import (
	"time"

	"github.com/gogpu/rendertoy/internal/shader"
	"github.com/gogpu/rendertoy/internal/texture"
)

// Default application settings.
const (
	DefaultWidth  = 1280
	DefaultHeight = 720
)

// Option configures an App during creation.
//
// Example:
//
//	app, err := rendertoy.NewApp(dev,
//		rendertoy.WithWindowSize(1920, 1080),
//		rendertoy.WithHotReload(100*time.Millisecond),
//	)
type Option func(*options)

// options holds optional configuration for App creation.
type options struct {
	window     [2]uint32
	budgetMB   int
	extensions []string
	hotReload  bool
	debounce   time.Duration
	compiler   shader.Compiler
	decode     func(path string) (*texture.Image, error)
}

// defaultOptions returns the default app options.
func defaultOptions() options {
	return options{
		window: [2]uint32{DefaultWidth, DefaultHeight},
	}
}

// WithWindowSize sets the size window-relative images scale against and the
// dispatch grid of passes that create no image. Zero dimensions are ignored.
func WithWindowSize(width, height uint32) Option {
	return func(o *options) {
		if width > 0 && height > 0 {
			o.window = [2]uint32{width, height}
		}
	}
}

// WithTextureBudget caps the memory held by idle transient textures.
func WithTextureBudget(megabytes int) Option {
	return func(o *options) {
		o.budgetMB = megabytes
	}
}

// WithShaderExtensions sets the file extensions accepted as compute shaders.
func WithShaderExtensions(exts ...string) Option {
	return func(o *options) {
		o.extensions = exts
	}
}

// WithHotReload watches the shaders of the project and reloads the passes
// running a shader when its file changes. Changes are picked up by Frame.
func WithHotReload(debounce time.Duration) Option {
	return func(o *options) {
		o.hotReload = true
		o.debounce = debounce
	}
}

// WithCompiler replaces the WGSL compiler.
func WithCompiler(c shader.Compiler) Option {
	return func(o *options) {
		o.compiler = c
	}
}

// WithDecoder replaces the image decoder used for loaded textures.
func WithDecoder(decode func(path string) (*texture.Image, error)) Option {
	return func(o *options) {
		o.decode = decode
	}
}
