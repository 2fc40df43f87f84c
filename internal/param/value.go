package param

import (
	"fmt"

	"github.com/gogpu/rendertoy/gpucore"
)

// WindowRelative is the ScaleRelativeTo value meaning "relative to the
// output window" rather than to a sibling parameter.
const WindowRelative = "#window"

// Source says where the image behind a texture parameter comes from.
type Source uint8

// Texture sources.
const (
	// SourceInput means the image is fed by a graph link.
	SourceInput Source = iota

	// SourceLoad means the image is decoded from TextureDesc.Path.
	SourceLoad

	// SourceCreate means the pass allocates a transient image whose size is
	// absolute or relative to the window or to a sibling parameter.
	SourceCreate
)

// String returns the name used in project files.
func (s Source) String() string {
	switch s {
	case SourceInput:
		return "Input"
	case SourceLoad:
		return "Load"
	case SourceCreate:
		return "Create"
	default:
		return fmt.Sprintf("Source(%d)", uint8(s))
	}
}

// ParseSource returns the source with the given project-file name.
func ParseSource(s string) (Source, error) {
	switch s {
	case "Input":
		return SourceInput, nil
	case "Load":
		return SourceLoad, nil
	case "Create":
		return SourceCreate, nil
	default:
		return 0, fmt.Errorf("param: unknown texture source %q", s)
	}
}

// TextureDesc is the value of a Sampler2D or Image2D parameter.
type TextureDesc struct {
	Source Source

	// Path is the image file for SourceLoad.
	Path string

	// CreateFormat is the texel format for SourceCreate.
	CreateFormat gpucore.TextureFormat

	// UseRelativeScale selects RelativeScale/ScaleRelativeTo over Resolution
	// for SourceCreate.
	UseRelativeScale bool

	// ScaleRelativeTo is WindowRelative or the name of a sibling texture
	// parameter whose dimensions are scaled.
	ScaleRelativeTo string
	RelativeScale   [2]float32

	// Resolution is the absolute size used when UseRelativeScale is false.
	Resolution [2]int32

	// WrapS and WrapT select repeat (true) or clamp-to-edge (false)
	// addressing for Sampler2D parameters.
	WrapS bool
	WrapT bool
}

// DefaultTextureDesc returns the value a texture parameter starts with.
func DefaultTextureDesc() TextureDesc {
	return TextureDesc{
		Source:           SourceInput,
		CreateFormat:     gpucore.TextureFormatRGBA16Float,
		UseRelativeScale: true,
		ScaleRelativeTo:  WindowRelative,
		RelativeScale:    [2]float32{1, 1},
		Resolution:       [2]int32{1, 1},
		WrapS:            true,
		WrapT:            true,
	}
}

// Value is the runtime value of a parameter. Which field is meaningful
// depends on the parameter Type: float types use the first Components()
// entries of Float, integer types those of Int, texture types Texture.
type Value struct {
	Float   [4]float32
	Int     [4]int32
	Texture TextureDesc
}

// DefaultValue returns the value a freshly reflected parameter of type t
// starts with.
func DefaultValue(t Type) Value {
	var v Value
	if t.IsTexture() {
		v.Texture = DefaultTextureDesc()
	}
	return v
}

// Param bundles a descriptor with its value and UID. It is the element type
// of pass parameter views and of the displaced-parameter list kept across
// shader reloads.
type Param struct {
	Desc  Descriptor
	Value Value
	UID   UID
}
