// Package backend selects the GPU device the compositor runs on.
//
// Devices are provided by factories registered under a name, typically from
// init() functions of backend packages. The HAL backends are registered by
// importing the native package:
//
//	import _ "github.com/gogpu/rendertoy/backend/native"
//
// # Backend Selection
//
// Use OpenDefault to open the best available device, or Open to request a
// specific backend by name:
//
//	dev, err := backend.OpenDefault(backend.Options{})
//
//	// Or request a specific backend
//	dev, err := backend.Open("vulkan", backend.Options{})
//
// # Available Backends
//
//   - "vulkan": Vulkan via gogpu/wgpu (Linux, Windows, macOS via MoltenVK)
//   - "metal": Metal via gogpu/wgpu (macOS)
//   - "dx12": DirectX 12 via gogpu/wgpu (Windows)
//   - "gl": OpenGL ES via gogpu/wgpu (Linux, Windows)
//   - "software": the gogpu/wgpu CPU backend (always available)
package backend
