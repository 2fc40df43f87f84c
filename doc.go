// Package rendertoy is a node-graph compute shader compositor.
//
// # Overview
//
// A project is a graph of render passes. Each compute pass runs one WGSL
// compute shader; its uniforms become parameters and its textures become
// images that are loaded from files, created at a size relative to the
// window or to another image, or fed by a link from an upstream pass. The
// single Output pass receives the final image.
//
// Every frame the graph is compiled into an ordered list of passes with
// resolved GPU images and dispatched. Transient images are returned to a
// cache at the end of the frame and reused by the next one.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/rendertoy"
//		"github.com/gogpu/rendertoy/backend"
//		_ "github.com/gogpu/rendertoy/backend/native"
//	)
//
//	dev, err := backend.OpenDefault(backend.Options{Presenter: show})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	app, err := rendertoy.NewApp(dev, rendertoy.WithHotReload(100*time.Millisecond))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer app.Close()
//
//	if err := app.OpenProject("scene.rtoy"); err != nil {
//		log.Fatal(err)
//	}
//	for running {
//		if err := app.Frame(); err != nil {
//			log.Print(err) // skip this frame, try again next one
//		}
//	}
//
// # Hot Reload
//
// With WithHotReload the App watches the shader files of the project. File
// events are queued by a background watcher and applied at the start of the
// next Frame on the calling goroutine, so passes and GPU objects are only
// ever touched from one goroutine. Parameter values and graph links survive
// a reload as long as the parameter keeps its name and type.
//
// # Architecture
//
// The module is organized into:
//   - Public API: App, backend registry, gpucore device interface
//   - Backends: native (gogpu/wgpu HAL: Vulkan, Metal, DX12, GL, software)
//   - Internal: param, shader (naga), texture (cache), nodegraph, pass,
//     project (compiler and files), dispatch, watch, config
package rendertoy

// Version information
const (
	// Version is the current version of the module
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
