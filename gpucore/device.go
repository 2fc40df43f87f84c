package gpucore

// Device abstracts over GPU backend implementations.
//
// The compositor talks to the GPU only through this interface, which lets
// the compile and dispatch path run against gogpu/wgpu HAL in production and
// against an in-memory device in tests.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a resource while in use by a pending dispatch is undefined behavior
//   - IDs become invalid after destruction and are never reused
//
// Work submission is open-loop: Dispatch records work, Present flushes all
// recorded work and then presents the given texture. DiscardFrame drops
// recorded work that will not be presented.
type Device interface {
	// === Capabilities ===

	// MaxWorkgroupSize returns the maximum workgroup size in each dimension.
	MaxWorkgroupSize() [3]uint32

	// === Textures ===

	// CreateTexture allocates a 2D texture.
	//
	// Returns the texture ID or an error if allocation fails.
	CreateTexture(desc *TextureDesc) (TextureID, error)

	// WriteTexture uploads texel data covering the whole texture.
	//
	// Parameters:
	//   - id: destination texture
	//   - data: tightly packed rows; the first row is stored at y = 0
	//   - bytesPerRow: row pitch of data in bytes
	WriteTexture(id TextureID, data []byte, bytesPerRow uint32) error

	// DestroyTexture releases a texture.
	DestroyTexture(id TextureID)

	// === Samplers ===

	// CreateSampler creates a linear-filtering sampler.
	CreateSampler(desc *SamplerDesc) (SamplerID, error)

	// DestroySampler releases a sampler.
	DestroySampler(id SamplerID)

	// === Pipelines ===

	// CreateComputePipeline creates the shader module, bind group layout,
	// pipeline layout and compute pipeline described by desc.
	CreateComputePipeline(desc *ComputePipelineDesc) (ComputePipelineID, error)

	// DestroyComputePipeline releases a pipeline and everything created with it.
	DestroyComputePipeline(id ComputePipelineID)

	// === Frame ===

	// Dispatch records one compute dispatch.
	Dispatch(desc *DispatchDesc) error

	// Present submits all recorded work and presents texture id.
	Present(id TextureID) error

	// DiscardFrame drops the work recorded since the last Present and
	// releases the per-frame resources it holds. It is a no-op when nothing
	// is recorded.
	DiscardFrame()

	// Close releases every resource owned by the device.
	Close()
}
