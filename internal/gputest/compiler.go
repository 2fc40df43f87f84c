package gputest

import (
	"io/fs"
	"sync"

	"github.com/gogpu/rendertoy/gpucore"
	"github.com/gogpu/rendertoy/internal/param"
	"github.com/gogpu/rendertoy/internal/shader"
)

// Compiler is an in-memory shader.Compiler. Tests register the program (or
// error) each path compiles to and swap it to simulate edits.
type Compiler struct {
	mu       sync.Mutex
	programs map[string]*shader.Program
	errs     map[string]error
	calls    map[string]int
}

// NewCompiler returns an empty compiler. Unregistered paths fail as if the
// file did not exist.
func NewCompiler() *Compiler {
	return &Compiler{
		programs: make(map[string]*shader.Program),
		errs:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

// Set makes path compile to prog.
func (c *Compiler) Set(path string, prog *shader.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.programs[path] = prog
	delete(c.errs, path)
}

// Fail makes path fail to compile with err.
func (c *Compiler) Fail(path string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[path] = &shader.CompileError{Path: path, Stage: "parse", Err: err}
}

// Calls returns how often path was compiled.
func (c *Compiler) Calls(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[path]
}

// Compile implements shader.Compiler.
func (c *Compiler) Compile(path string) (*shader.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls[path]++
	if err, ok := c.errs[path]; ok {
		return nil, err
	}
	prog, ok := c.programs[path]
	if !ok {
		return nil, &shader.CompileError{Path: path, Stage: "read", Err: fs.ErrNotExist}
	}
	return prog, nil
}

// NewProgram builds a program with the given parameters laid out the way
// the WGSL compiler lays out a shader declaring them in order: scalar and
// vector parameters share one uniform block at binding 0, one 16-byte slot
// each, and textures take the following bindings. Sampled textures are
// paired with a sampler in the next binding.
func NewProgram(path string, params ...param.Descriptor) *shader.Program {
	prog := shader.NewProgram(path, "main", [3]uint32{8, 8, 1})

	var uniforms uint32
	for _, d := range params {
		if !d.Type.IsTexture() {
			uniforms++
		}
	}
	slot := uint32(0)
	if uniforms > 0 {
		prog.Uniforms = append(prog.Uniforms, shader.UniformBlock{Name: "params", Slot: 0, Size: 16 * uniforms})
		slot = 1
	}

	var offset uint32
	for _, d := range params {
		var b shader.Binding
		switch d.Type {
		case param.TypeSampler2D:
			b = shader.Binding{Kind: shader.BindSampledTexture, Slot: slot, HasSampler: true, SamplerSlot: slot + 1}
			slot += 2
		case param.TypeImage2D:
			b = shader.Binding{
				Kind:   shader.BindStorageTexture,
				Slot:   slot,
				Access: gpucore.StorageAccessReadWrite,
				Format: gpucore.TextureFormatRGBA16Float,
			}
			slot++
		default:
			b = shader.Binding{Kind: shader.BindUniform, Block: 0, Offset: offset}
			offset += 16
		}
		if err := prog.AddParam(d, b); err != nil {
			panic(err)
		}
	}
	return prog
}

// Desc is shorthand for a parameter descriptor without annotations.
func Desc(name string, t param.Type) param.Descriptor {
	return param.Descriptor{Name: name, Type: t}
}

var _ shader.Compiler = (*Compiler)(nil)
