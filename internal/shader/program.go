// Package shader compiles WGSL compute shaders and reflects their parameters.
//
// A compiled [Program] carries the SPIR-V handed to the GPU device together
// with everything the pass layer needs to drive it: the ordered parameter
// descriptors, the binding slot of each parameter, the layout of the uniform
// blocks that hold scalar and vector parameters, and the entry point's
// workgroup size.
//
// Reflection rules:
//
//   - Members of a var<uniform> struct become scalar or vector parameters.
//     A var<uniform> of scalar or vector type is a parameter by itself.
//   - A texture_2d global becomes a Sampler2D parameter. A sampler global
//     named "<texture>_sampler" is paired with it.
//   - A texture_storage_2d global becomes an Image2D parameter; its texel
//     format and access mode are taken from the declaration.
//   - Line comments of the form "// @min(0) @max(4) @color" after a
//     declaration become the parameter's annotations.
//
// All resources must live in bind group 0.
package shader

import (
	"errors"
	"fmt"

	"github.com/gogpu/rendertoy/gpucore"
	"github.com/gogpu/rendertoy/internal/param"
)

// Reflection errors.
var (
	// ErrNoComputeEntryPoint is returned when a module has no @compute function.
	ErrNoComputeEntryPoint = errors.New("shader: no compute entry point")

	// ErrUnsupportedUniform is returned for uniform members that are not
	// 32-bit scalars or vectors.
	ErrUnsupportedUniform = errors.New("shader: unsupported uniform type")

	// ErrUnsupportedGroup is returned for resources outside bind group 0.
	ErrUnsupportedGroup = errors.New("shader: resources must be in bind group 0")

	// ErrDuplicateParam is returned when two resources reflect to the same
	// parameter name.
	ErrDuplicateParam = errors.New("shader: duplicate parameter name")
)

// CompileError carries the diagnostic text of a failed shader compilation.
type CompileError struct {
	// Path is the shader file.
	Path string

	// Stage names the step that failed: "read", "parse", "lower",
	// "reflect" or "spirv".
	Stage string

	Err error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Stage, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// BindingKind classifies how a parameter is bound.
type BindingKind uint8

// Binding kinds.
const (
	// BindUniform places the value at Offset inside a uniform block.
	BindUniform BindingKind = iota + 1

	// BindSampledTexture binds a filtered texture at Slot and, when
	// HasSampler is set, its sampler at SamplerSlot.
	BindSampledTexture

	// BindStorageTexture binds a storage image at Slot.
	BindStorageTexture
)

// String returns a short name for diagnostics.
func (k BindingKind) String() string {
	switch k {
	case BindUniform:
		return "uniform"
	case BindSampledTexture:
		return "sampled"
	case BindStorageTexture:
		return "storage"
	default:
		return fmt.Sprintf("BindingKind(%d)", uint8(k))
	}
}

// Binding locates a parameter in the pipeline layout.
type Binding struct {
	Kind BindingKind

	// Slot is the @binding index of the texture. Unused for BindUniform.
	Slot uint32

	// Block indexes Program.Uniforms and Offset is the byte offset of the
	// value inside that block. BindUniform only.
	Block  int
	Offset uint32

	// HasSampler reports whether a sampler is paired with a sampled texture.
	HasSampler  bool
	SamplerSlot uint32

	// Access and Format describe a storage texture.
	Access gpucore.StorageAccess
	Format gpucore.TextureFormat
}

// UniformBlock is one var<uniform> buffer.
type UniformBlock struct {
	Name string
	Slot uint32

	// Size is the buffer size in bytes, a multiple of 16.
	Size uint32
}

// Program is a compiled and reflected compute shader.
type Program struct {
	// Path is the source file the program was compiled from.
	Path string

	// SPIRV is the compiled module as little-endian 32-bit words.
	SPIRV []uint32

	// EntryPoint is the name of the @compute function.
	EntryPoint string

	// Workgroup is the @workgroup_size of the entry point. Unspecified
	// dimensions are 1.
	Workgroup [3]uint32

	// Params lists the reflected parameters in declaration order.
	Params []param.Descriptor

	// Uniforms lists the uniform blocks referenced by BindUniform bindings.
	Uniforms []UniformBlock

	bindings map[string]Binding
}

// NewProgram returns an empty program for the given entry point. Compilers
// and test doubles fill it with AddParam.
func NewProgram(path, entryPoint string, workgroup [3]uint32) *Program {
	for i := range workgroup {
		workgroup[i] = max(workgroup[i], 1)
	}
	return &Program{
		Path:       path,
		EntryPoint: entryPoint,
		Workgroup:  workgroup,
		bindings:   make(map[string]Binding),
	}
}

// AddParam appends a parameter and its binding.
func (p *Program) AddParam(d param.Descriptor, b Binding) error {
	if _, dup := p.bindings[d.Name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateParam, d.Name)
	}
	if p.bindings == nil {
		p.bindings = make(map[string]Binding)
	}
	p.bindings[d.Name] = b
	p.Params = append(p.Params, d)
	return nil
}

// Binding returns the binding of the named parameter.
func (p *Program) Binding(name string) (Binding, bool) {
	b, ok := p.bindings[name]
	return b, ok
}

// String returns a one-line summary for diagnostics.
func (p *Program) String() string {
	return fmt.Sprintf("%s (%s, %d params, workgroup %v)", p.Path, p.EntryPoint, len(p.Params), p.Workgroup)
}

// Layout returns the bind group 0 layout entries of the program, ordered by
// uniform blocks first and then parameters in declaration order.
func (p *Program) Layout() []gpucore.BindGroupLayoutEntry {
	entries := make([]gpucore.BindGroupLayoutEntry, 0, len(p.Uniforms)+len(p.Params))
	for _, u := range p.Uniforms {
		entries = append(entries, gpucore.BindGroupLayoutEntry{
			Binding:        u.Slot,
			Type:           gpucore.BindingTypeUniformBuffer,
			MinBindingSize: uint64(u.Size),
		})
	}
	for _, d := range p.Params {
		b := p.bindings[d.Name]
		switch b.Kind {
		case BindSampledTexture:
			entries = append(entries, gpucore.BindGroupLayoutEntry{
				Binding: b.Slot,
				Type:    gpucore.BindingTypeSampledTexture,
			})
			if b.HasSampler {
				entries = append(entries, gpucore.BindGroupLayoutEntry{
					Binding: b.SamplerSlot,
					Type:    gpucore.BindingTypeSampler,
				})
			}
		case BindStorageTexture:
			entries = append(entries, gpucore.BindGroupLayoutEntry{
				Binding: b.Slot,
				Type:    gpucore.BindingTypeStorageTexture,
				Access:  b.Access,
				Format:  b.Format,
			})
		}
	}
	return entries
}

// Compiler turns a shader file into a Program.
//
// Implementations report failures as *CompileError so callers can surface
// the diagnostic text.
type Compiler interface {
	Compile(path string) (*Program, error)
}
