// Package gpucore provides the GPU abstraction used by the rendertoy
// compositor.
//
// This package defines the [Device] interface together with the small set of
// value types it exchanges: opaque resource IDs, texture formats, sampler
// wrap modes and compute binding descriptors. The pass compiler and the
// dispatch executor are written once against [Device], while thin backends
// translate calls to a concrete GPU API.
//
// # Architecture
//
//	               +------------------+
//	               |  internal/pass   |
//	               | internal/dispatch|
//	               +--------+---------+
//	                        |
//	               +--------v---------+
//	               |  gpucore.Device  |
//	               +--------+---------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	| backend/native  |          | internal/gputest|
//	|  (hal.Device)   |          |   (in memory)   |
//	+--------+--------+          +-----------------+
//	         |
//	+--------v--------+
//	|   gogpu/wgpu    |
//	|   (Pure Go)     |
//	+-----------------+
//
// # Resource Management
//
// Resources are identified by opaque IDs (TextureID, SamplerID,
// ComputePipelineID). The texture cache in internal/texture is the only code
// that creates and destroys textures; passes hold IDs without owning them.
//
// # Bindings
//
// Every compute shader uses a single bind group (group 0). Scalar and vector
// parameters travel in one uniform buffer, Sampler2D parameters as a sampled
// texture plus a sampler, and Image2D parameters as storage textures.
package gpucore
