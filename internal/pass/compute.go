package pass

import (
	"encoding/json"
	"fmt"
	"iter"
	"path/filepath"
	"strings"

	"github.com/gogpu/rendertoy/gpucore"
	"github.com/gogpu/rendertoy/internal/param"
	"github.com/gogpu/rendertoy/internal/shader"
)

// Compute is a pass that runs one compute shader.
//
// Compute is not safe for concurrent use; the compositor mutates passes only
// from its main goroutine.
type Compute struct {
	env  Env
	path string

	program  *shader.Program
	pipeline gpucore.ComputePipelineID

	params []param.Param

	// prev holds parameters dropped by earlier reloads, so a later reload
	// that reintroduces a name gets its value and UID back.
	prev []param.Param

	// err is the error of the most recent Reload, nil after a success.
	err error
}

// NewCompute creates a pass for the shader at path and compiles it.
//
// A compile failure is not fatal: the pass is returned with no parameters
// and Error reports the diagnostic until a later Reload succeeds.
func NewCompute(env Env, path string) *Compute {
	c := &Compute{env: env, path: path}
	_ = c.Reload()
	return c
}

func (*Compute) sealed() {}

// Kind returns KindCompute.
func (*Compute) Kind() Kind { return KindCompute }

// DisplayName returns the shader file name without its extension.
func (c *Compute) DisplayName() string {
	base := filepath.Base(c.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ShaderPath returns the path of the shader source.
func (c *Compute) ShaderPath() string { return c.path }

// Program returns the last successfully compiled program, or nil.
func (c *Compute) Program() *shader.Program { return c.program }

// Error returns the error of the most recent Reload.
func (c *Compute) Error() error { return c.err }

func (c *Compute) Params() iter.Seq2[int, param.Param] { return paramSeq(&c.params) }

func (c *Compute) NumParams() int { return len(c.params) }

func (c *Compute) FindParamByPortUID(uid param.UID) int {
	return findByUID(c.params, uid)
}

// FindInvalidParamNameByUID returns the name a displaced parameter had, for
// labelling ports whose parameter disappeared from the shader.
func (c *Compute) FindInvalidParamNameByUID(uid param.UID) (string, bool) {
	if i := findByUID(c.prev, uid); i >= 0 {
		return c.prev[i].Desc.Name, true
	}
	return "", false
}

// CanBeRemoved returns true.
func (*Compute) CanBeRemoved() bool { return true }

// SetValue replaces the value of the named parameter.
func (c *Compute) SetValue(name string, v param.Value) error {
	i := findByName(c.params, name)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}
	c.params[i].Value = v
	return nil
}

// Reload recompiles the shader and reconciles the parameter list with the
// new reflection.
//
// On failure the previous program, pipeline and parameters stay in place and
// the error is also kept for Error.
func (c *Compute) Reload() error {
	prog, err := c.env.Compiler.Compile(c.path)
	if err != nil {
		c.err = err
		slogger().Warn("shader compile failed", "path", c.path, "err", err)
		return err
	}

	pipeline, err := c.env.Device.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:      c.DisplayName(),
		SPIRV:      prog.SPIRV,
		EntryPoint: prog.EntryPoint,
		Layout:     prog.Layout(),
	})
	if err != nil {
		c.err = &shader.CompileError{Path: c.path, Stage: "pipeline", Err: err}
		slogger().Warn("pipeline creation failed", "path", c.path, "err", err)
		return c.err
	}

	if c.pipeline != gpucore.InvalidID {
		c.env.Device.DestroyComputePipeline(c.pipeline)
	}
	c.program = prog
	c.pipeline = pipeline
	c.err = nil
	c.reconcile(prog.Params)

	slogger().Debug("shader loaded", "path", c.path, "params", len(c.params))
	return nil
}

// reconcile rebuilds the parameter list for fresh descriptors. Values and
// UIDs are taken from a same-named current parameter, else from a
// same-named displaced one, as long as the type is unchanged. Current
// parameters that found no new descriptor become displaced.
func (c *Compute) reconcile(descs []param.Descriptor) {
	next := make([]param.Param, len(descs))
	consumed := make([]bool, len(c.params))

	for i, d := range descs {
		next[i].Desc = d

		if j := findByName(c.params, d.Name); j >= 0 && !consumed[j] {
			consumed[j] = true
			c.adopt(&next[i], c.params[j])
			continue
		}
		if j := findByName(c.prev, d.Name); j >= 0 {
			c.adopt(&next[i], c.prev[j])
			c.prev[j].Desc.Name = ""
			continue
		}
		next[i].Value = defaultValue(d)
		next[i].UID = c.env.UIDs.Next()
	}

	kept := c.prev[:0]
	for _, p := range c.prev {
		if p.Desc.Name != "" {
			kept = append(kept, p)
		}
	}
	c.prev = kept
	for j, p := range c.params {
		if !consumed[j] {
			c.prev = append(c.prev, p)
		}
	}
	c.params = next
}

// adopt carries value and UID from old into p when the type matches, and
// mints a fresh UID with a default value otherwise.
func (c *Compute) adopt(p *param.Param, old param.Param) {
	if old.Desc.Type == p.Desc.Type {
		p.Value = old.Value
		p.UID = old.UID
		return
	}
	p.Value = defaultValue(p.Desc)
	p.UID = c.env.UIDs.Next()
}

// OutputAnnotation marks an Image2D parameter that the pass creates by
// default instead of expecting it from a link:
//
//	var dst: texture_storage_2d<rgba16float, write>; // @output
const OutputAnnotation = "output"

func defaultValue(d param.Descriptor) param.Value {
	v := param.DefaultValue(d.Type)
	if d.Type == param.TypeImage2D && d.Annotations.Has(OutputAnnotation) {
		v.Texture.Source = param.SourceCreate
	}
	return v
}

// Compile resolves Load-sourced textures first, then Image2D parameters
// that the pass creates, so created images can be sized relative to loaded
// ones.
func (c *Compute) Compile(s *Settings, out *Compiled) error {
	if c.program == nil {
		return fmt.Errorf("%w: %s", ErrNoProgram, c.path)
	}
	out.Pass = c
	out.Program = c.program
	out.Pipeline = c.pipeline
	out.Params = append(out.Params[:0], c.params...)
	if len(out.Images) != len(c.params) {
		return fmt.Errorf("pass: %s: %d image slots for %d params", c.DisplayName(), len(out.Images), len(c.params))
	}

	for i, p := range c.params {
		if p.Desc.Type.IsTexture() && p.Value.Texture.Source == param.SourceLoad {
			if err := compileImage(s, c.params, i, out); err != nil {
				return fmt.Errorf("%s: %w", c.DisplayName(), err)
			}
		}
	}
	for i, p := range c.params {
		if p.Desc.Type == param.TypeImage2D && p.Value.Texture.Source != param.SourceLoad {
			if err := compileImage(s, c.params, i, out); err != nil {
				return fmt.Errorf("%s: %w", c.DisplayName(), err)
			}
		}
	}

	for i, p := range c.params {
		if p.Desc.Type.IsTexture() && out.Images[i].Texture == nil {
			return fmt.Errorf("%s: %w: %q", c.DisplayName(), ErrMissingTexture, p.Desc.Name)
		}
	}
	return nil
}

func (c *Compute) Encode() (JSON, error) {
	typ := KindCompute.String()
	path := c.path
	j := JSON{Type: &typ, Shader: &path, Params: []param.ParamJSON{}}
	for _, p := range c.params {
		pj, err := param.MarshalParam(p)
		if err != nil {
			return JSON{}, err
		}
		j.Params = append(j.Params, pj)
	}
	return j, nil
}

func (c *Compute) MarshalJSON() ([]byte, error) {
	j, err := c.Encode()
	if err != nil {
		return nil, err
	}
	return json.Marshal(j)
}

// Close destroys the pipeline.
func (c *Compute) Close() {
	if c.pipeline != gpucore.InvalidID {
		c.env.Device.DestroyComputePipeline(c.pipeline)
		c.pipeline = gpucore.InvalidID
	}
}
