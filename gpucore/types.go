package gpucore

import (
	"errors"
	"fmt"
)

// Resource IDs
//
// These opaque IDs represent GPU resources. Each device implementation
// maintains a mapping between IDs and actual backend resources.
// IDs are uint64 to accommodate various backend handle sizes.

// TextureID is an opaque handle to a GPU texture.
type TextureID uint64

// SamplerID is an opaque handle to a texture sampler.
type SamplerID uint64

// ComputePipelineID is an opaque handle to a compute pipeline together with
// its shader module and layouts.
type ComputePipelineID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// ErrUnknownTextureFormat is returned by ParseTextureFormat for names that
// do not denote a supported format.
var ErrUnknownTextureFormat = errors.New("gpucore: unknown texture format")

// TextureFormat specifies the format of texture data.
type TextureFormat uint32

// Texture formats.
const (
	// TextureFormatRGBA16Float is 16-bit RGBA, floating point.
	// This is the format of every created (intermediate) image.
	TextureFormatRGBA16Float TextureFormat = iota + 1

	// TextureFormatR32Uint is 32-bit red channel only, unsigned integer.
	TextureFormatR32Uint

	// TextureFormatRGBA8UnormSRGB is 8-bit RGBA, normalized unsigned integer in sRGB color space.
	// Decoded 8-bit images use this format.
	TextureFormatRGBA8UnormSRGB

	// TextureFormatRGBA8Unorm is 8-bit RGBA, normalized unsigned integer.
	TextureFormatRGBA8Unorm

	// TextureFormatRGBA32Float is 32-bit RGBA, floating point.
	TextureFormatRGBA32Float
)

// String returns the short name used in project files and logs.
func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA16Float:
		return "rgba16f"
	case TextureFormatR32Uint:
		return "r32ui"
	case TextureFormatRGBA8UnormSRGB:
		return "rgba8-srgb"
	case TextureFormatRGBA8Unorm:
		return "rgba8"
	case TextureFormatRGBA32Float:
		return "rgba32f"
	default:
		return fmt.Sprintf("TextureFormat(%d)", uint32(f))
	}
}

// ParseTextureFormat returns the format with the given short name.
func ParseTextureFormat(s string) (TextureFormat, error) {
	for f := TextureFormatRGBA16Float; f <= TextureFormatRGBA32Float; f++ {
		if f.String() == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTextureFormat, s)
}

// BytesPerPixel returns the size of one texel in bytes.
func (f TextureFormat) BytesPerPixel() uint32 {
	switch f {
	case TextureFormatRGBA16Float:
		return 8
	case TextureFormatR32Uint, TextureFormatRGBA8UnormSRGB, TextureFormatRGBA8Unorm:
		return 4
	case TextureFormatRGBA32Float:
		return 16
	default:
		return 4
	}
}

// TextureUsage is a bitmask specifying how a texture will be used.
type TextureUsage uint32

// Texture usage flags.
const (
	// TextureUsageCopySrc indicates the texture can be used as a copy source.
	TextureUsageCopySrc TextureUsage = 1 << 0

	// TextureUsageCopyDst indicates the texture can be used as a copy destination.
	TextureUsageCopyDst TextureUsage = 1 << 1

	// TextureUsageTextureBinding indicates the texture can be bound as a sampled texture.
	TextureUsageTextureBinding TextureUsage = 1 << 2

	// TextureUsageStorageBinding indicates the texture can be bound as a storage texture.
	TextureUsageStorageBinding TextureUsage = 1 << 3
)

// TextureDesc describes a 2D texture.
type TextureDesc struct {
	// Label is an optional debug label.
	Label string

	// Width and Height are the texture dimensions in texels. Both must be > 0.
	Width  uint32
	Height uint32

	// Format is the texel format.
	Format TextureFormat

	// Usage is a bitmask of TextureUsage* flags.
	Usage TextureUsage
}

// AddressMode selects how texture coordinates outside [0, 1] are resolved.
type AddressMode uint8

// Address modes.
const (
	// AddressModeClampToEdge clamps coordinates to the edge texels.
	AddressModeClampToEdge AddressMode = iota

	// AddressModeRepeat wraps coordinates around.
	AddressModeRepeat
)

// String returns the string representation of AddressMode.
func (m AddressMode) String() string {
	switch m {
	case AddressModeClampToEdge:
		return "ClampToEdge"
	case AddressModeRepeat:
		return "Repeat"
	default:
		return fmt.Sprintf("AddressMode(%d)", uint8(m))
	}
}

// WrapMode returns AddressModeRepeat when wrap is true and
// AddressModeClampToEdge otherwise.
func WrapMode(wrap bool) AddressMode {
	if wrap {
		return AddressModeRepeat
	}
	return AddressModeClampToEdge
}

// SamplerDesc describes a linear-filtering sampler.
type SamplerDesc struct {
	// Label is an optional debug label.
	Label string

	// AddressModeU and AddressModeV are the horizontal and vertical wrap modes.
	AddressModeU AddressMode
	AddressModeV AddressMode
}

// BindingType specifies the type of a shader binding.
type BindingType uint32

// Binding types.
const (
	// BindingTypeUniformBuffer is a uniform buffer binding.
	BindingTypeUniformBuffer BindingType = iota + 1

	// BindingTypeSampler is a texture sampler binding.
	BindingTypeSampler

	// BindingTypeSampledTexture is a sampled texture binding.
	BindingTypeSampledTexture

	// BindingTypeStorageTexture is a storage texture binding.
	BindingTypeStorageTexture
)

// String returns the string representation of BindingType.
func (t BindingType) String() string {
	switch t {
	case BindingTypeUniformBuffer:
		return "UniformBuffer"
	case BindingTypeSampler:
		return "Sampler"
	case BindingTypeSampledTexture:
		return "SampledTexture"
	case BindingTypeStorageTexture:
		return "StorageTexture"
	default:
		return fmt.Sprintf("BindingType(%d)", uint32(t))
	}
}

// StorageAccess is the access mode of a storage texture binding.
type StorageAccess uint8

// Storage access modes.
const (
	// StorageAccessWriteOnly allows stores only.
	StorageAccessWriteOnly StorageAccess = iota

	// StorageAccessReadOnly allows loads only.
	StorageAccessReadOnly

	// StorageAccessReadWrite allows loads and stores.
	StorageAccessReadWrite
)

// String returns the WGSL spelling of the access mode.
func (a StorageAccess) String() string {
	switch a {
	case StorageAccessWriteOnly:
		return "write"
	case StorageAccessReadOnly:
		return "read"
	case StorageAccessReadWrite:
		return "read_write"
	default:
		return fmt.Sprintf("StorageAccess(%d)", uint8(a))
	}
}

// BindGroupLayoutEntry describes a single binding in the pipeline's
// (only) bind group.
type BindGroupLayoutEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Type is the type of resource bound at this index.
	Type BindingType

	// Access and Format apply to storage texture bindings.
	Access StorageAccess
	Format TextureFormat

	// MinBindingSize is the minimum buffer size for buffer bindings.
	// Set to 0 for non-buffer bindings.
	MinBindingSize uint64
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	// Label is an optional debug label.
	Label string

	// SPIRV is the compiled compute shader as little-endian words.
	SPIRV []uint32

	// EntryPoint is the name of the shader entry point function.
	EntryPoint string

	// Layout lists every binding of bind group 0.
	Layout []BindGroupLayoutEntry
}

// BindGroupEntry binds one resource for a dispatch. Exactly one of
// Texture, Sampler or Data is set.
type BindGroupEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Texture is the texture to bind (sampled or storage bindings).
	Texture TextureID

	// Sampler is the sampler to bind.
	Sampler SamplerID

	// Data holds the uniform buffer contents for uniform bindings.
	Data []byte
}

// DispatchDesc describes one compute dispatch.
type DispatchDesc struct {
	// Label is an optional debug label.
	Label string

	// Pipeline is the compute pipeline to run.
	Pipeline ComputePipelineID

	// Entries are the resource bindings of bind group 0.
	Entries []BindGroupEntry

	// Workgroups is the number of workgroups in each dimension.
	Workgroups [3]uint32
}
