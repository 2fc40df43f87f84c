// Package pass implements the render passes of a compositor graph.
//
// A [Pass] is one of two variants: the [Output] sentinel, which receives the
// final image, or a [Compute] pass wrapping a compute shader and its
// parameters. Each frame the project compiler calls Compile on every pass in
// dependency order to resolve texture parameters into GPU images, producing
// a [Compiled] pass the dispatch executor can run.
//
// Parameters are identified by UID rather than position so that graph links
// survive shader edits; see [Compute.Reload] for how values and UIDs are
// carried across a recompile.
package pass

import (
	"errors"
	"fmt"
	"iter"

	"github.com/gogpu/rendertoy/gpucore"
	"github.com/gogpu/rendertoy/internal/param"
	"github.com/gogpu/rendertoy/internal/shader"
	"github.com/gogpu/rendertoy/internal/texture"
)

// Pass errors.
var (
	// ErrMissingTexture is returned by Compile when a texture parameter
	// could not be resolved to an image.
	ErrMissingTexture = errors.New("pass: missing texture")

	// ErrNoProgram is returned by Compile for a compute pass whose shader
	// never compiled successfully.
	ErrNoProgram = errors.New("pass: shader not compiled")

	// ErrUnknownParam is returned when naming a parameter the pass lacks.
	ErrUnknownParam = errors.New("pass: unknown parameter")

	// ErrTypeMismatch is returned when a value is set for a parameter of a
	// different type.
	ErrTypeMismatch = errors.New("pass: parameter type mismatch")
)

// OutputParamName is the name of the Output pass's only parameter.
const OutputParamName = "image"

// Kind tells the pass variants apart.
type Kind uint8

// Pass kinds.
const (
	KindOutput Kind = iota + 1
	KindCompute
)

// String returns the name used in project files.
func (k Kind) String() string {
	switch k {
	case KindOutput:
		return "Output"
	case KindCompute:
		return "Compute"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind returns the kind with the given project-file name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "Output":
		return KindOutput, nil
	case "Compute":
		return KindCompute, nil
	default:
		return 0, fmt.Errorf("pass: unknown pass type %q", s)
	}
}

// Pass is a node of the compositor graph. The set of implementations is
// closed: *Output and *Compute.
type Pass interface {
	// Kind returns the variant.
	Kind() Kind

	// DisplayName returns the name shown for the node.
	DisplayName() string

	// Params yields (index, parameter) pairs over the current parameter
	// list. The sequence can be ranged over repeatedly; it reflects the list
	// at the time of each iteration step.
	Params() iter.Seq2[int, param.Param]

	// NumParams returns the length of the parameter list.
	NumParams() int

	// FindParamByPortUID returns the index of the parameter with the given
	// UID, or -1 when the port is orphaned.
	FindParamByPortUID(uid param.UID) int

	// CanBeRemoved reports whether the user may delete the pass.
	CanBeRemoved() bool

	// Compile resolves the pass's texture parameters into out.Images. The
	// project compiler has already copied upstream textures into the input
	// image slots of out.
	Compile(s *Settings, out *Compiled) error

	// Encode returns the project-file form of the pass.
	Encode() (JSON, error)

	// MarshalJSON encodes the pass as Encode does.
	MarshalJSON() ([]byte, error)

	// Close releases GPU objects owned by the pass.
	Close()

	sealed()
}

// Textures is the texture source used while compiling.
type Textures interface {
	Load(path string) (*texture.Texture, error)
	CreateTransient(key texture.Key) (*texture.Texture, error)
	Release(tex *texture.Texture) error
}

// Settings are the per-frame inputs of Compile.
type Settings struct {
	// WindowSize is the output size in pixels. Window-relative images scale
	// it.
	WindowSize [2]uint32

	Textures Textures
}

// Env is the shared context passes are created in.
type Env struct {
	Compiler shader.Compiler
	Device   gpucore.Device

	// UIDs mints parameter UIDs. All passes of a project share it.
	UIDs *param.UIDs
}

// CompiledImage is the image bound to one texture parameter for a frame.
type CompiledImage struct {
	Texture *texture.Texture

	// Owned is set for transients created by this pass. They are released
	// to the cache after the frame's dispatch.
	Owned bool
}

// Compiled is a pass resolved for one frame.
type Compiled struct {
	Pass Pass

	// Program and Pipeline are unset for the Output pass.
	Program  *shader.Program
	Pipeline gpucore.ComputePipelineID

	// Params is a snapshot of the pass parameters.
	Params []param.Param

	// Images is parallel to Params. Entries for non-texture parameters are
	// empty.
	Images []CompiledImage
}

// Reset sizes Images for n parameters and clears every slot.
func (c *Compiled) Reset(n int) {
	if cap(c.Images) < n {
		c.Images = make([]CompiledImage, n)
		return
	}
	c.Images = c.Images[:n]
	clear(c.Images)
}

// FirstImage returns the first resolved image, or nil.
func (c *Compiled) FirstImage() *texture.Texture {
	for _, img := range c.Images {
		if img.Texture != nil {
			return img.Texture
		}
	}
	return nil
}

// PrimaryKey returns the key of the first image the pass created. Dispatch
// sizes its grid from it.
func (c *Compiled) PrimaryKey() (texture.Key, bool) {
	for _, img := range c.Images {
		if img.Owned && img.Texture != nil {
			return img.Texture.Key, true
		}
	}
	return texture.Key{}, false
}

// Release hands every owned image back to t. It keeps going after an error
// and returns the first one.
func (c *Compiled) Release(t Textures) error {
	var first error
	for i := range c.Images {
		img := &c.Images[i]
		if img.Owned && img.Texture != nil {
			if err := t.Release(img.Texture); err != nil && first == nil {
				first = err
			}
		}
		*img = CompiledImage{}
	}
	return first
}

// NeedsInputPort reports whether p is exposed as an input port: an Image2D
// fed by a link.
func NeedsInputPort(p param.Param) bool {
	return p.Desc.Type == param.TypeImage2D && p.Value.Texture.Source == param.SourceInput
}

// NeedsOutputPort reports whether p is exposed as an output port: an Image2D
// the pass creates.
func NeedsOutputPort(p param.Param) bool {
	return p.Desc.Type == param.TypeImage2D && p.Value.Texture.Source == param.SourceCreate
}

func findByUID(params []param.Param, uid param.UID) int {
	for i := range params {
		if params[i].UID == uid {
			return i
		}
	}
	return -1
}

func findByName(params []param.Param, name string) int {
	for i := range params {
		if params[i].Desc.Name == name {
			return i
		}
	}
	return -1
}

func paramSeq(params *[]param.Param) iter.Seq2[int, param.Param] {
	return func(yield func(int, param.Param) bool) {
		for i := 0; i < len(*params); i++ {
			if !yield(i, (*params)[i]) {
				return
			}
		}
	}
}
