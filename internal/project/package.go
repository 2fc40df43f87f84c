// Package project holds a compositor package: the render passes, the node
// graph that wires them, and the editor's node positions. It compiles the
// package into an ordered list of passes for a frame and reads and writes
// project files.
//
// Passes are stored by node slot index, so a pass and its node share an
// index for as long as both live.
package project

import (
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gogpu/rendertoy/internal/nodegraph"
	"github.com/gogpu/rendertoy/internal/param"
	"github.com/gogpu/rendertoy/internal/pass"
)

// Package errors.
var (
	// ErrPassNotRemovable is returned by DeletePass for the Output pass.
	ErrPassNotRemovable = errors.New("project: pass cannot be removed")

	// ErrUnsupportedShader is returned by AddComputePass for files without
	// a shader extension.
	ErrUnsupportedShader = errors.New("project: unsupported shader file")

	// ErrDuplicateOutput is returned when a project file holds more than one
	// Output pass.
	ErrDuplicateOutput = errors.New("project: more than one Output pass")
)

// DefaultShaderExtensions lists the extensions AddComputePass accepts when
// Config.ShaderExtensions is empty.
var DefaultShaderExtensions = []string{".wgsl"}

// Config holds configuration for creating a Package.
type Config struct {
	// ShaderExtensions are the file extensions accepted as compute shaders.
	// Defaults to DefaultShaderExtensions.
	ShaderExtensions []string
}

// Package is a set of passes wired by a node graph.
//
// Package is not safe for concurrent use.
type Package struct {
	env   pass.Env
	exts  []string
	graph *nodegraph.Graph

	// passes is indexed by node slot. Entries of removed nodes are nil.
	passes []pass.Pass

	positions map[int32][2]float32
}

// NewPackage returns an empty package. Passes are created in env.
func NewPackage(env pass.Env, cfg Config) *Package {
	exts := cfg.ShaderExtensions
	if len(exts) == 0 {
		exts = DefaultShaderExtensions
	}
	norm := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		norm = append(norm, e)
	}
	return &Package{
		env:       env,
		exts:      norm,
		graph:     nodegraph.New(),
		positions: make(map[int32][2]float32),
	}
}

// Graph returns the node graph. Callers may add and remove links; nodes are
// managed through the Package.
func (p *Package) Graph() *nodegraph.Graph { return p.graph }

// Env returns the environment passes are created in.
func (p *Package) Env() pass.Env { return p.env }

// Pass returns the pass of node h.
func (p *Package) Pass(h nodegraph.NodeHandle) (pass.Pass, bool) {
	if !p.graph.Valid(h) || int(h.Idx) >= len(p.passes) || p.passes[h.Idx] == nil {
		return nil, false
	}
	return p.passes[h.Idx], true
}

// Passes yields every live node with its pass, in node slot order.
func (p *Package) Passes() iter.Seq2[nodegraph.NodeHandle, pass.Pass] {
	return func(yield func(nodegraph.NodeHandle, pass.Pass) bool) {
		for h := range p.graph.Nodes() {
			if !yield(h, p.passes[h.Idx]) {
				return
			}
		}
	}
}

func (p *Package) addPass(ps pass.Pass) nodegraph.NodeHandle {
	h := p.graph.AddNode()
	for int(h.Idx) >= len(p.passes) {
		p.passes = append(p.passes, nil)
	}
	p.passes[h.Idx] = ps
	return h
}

// AddOutputPass adds the Output pass. A package holds at most one: when it
// already has one, that node is returned and nothing is added.
func (p *Package) AddOutputPass() nodegraph.NodeHandle {
	for h, ps := range p.Passes() {
		if ps.Kind() == pass.KindOutput {
			return h
		}
	}
	return p.addPass(pass.NewOutput(p.env.UIDs))
}

// AddComputePass adds a compute pass for the shader at path. A shader that
// fails to compile is still added; its error is reported by the pass.
func (p *Package) AddComputePass(path string) (nodegraph.NodeHandle, error) {
	if !p.IsShaderFile(path) {
		return nodegraph.NodeHandle{}, fmt.Errorf("%w: %s", ErrUnsupportedShader, path)
	}
	c := pass.NewCompute(p.env, path)
	if err := c.Error(); err != nil {
		slogger().Warn("added pass with compile error", "shader", path, "err", err)
	}
	return p.addPass(c), nil
}

// IsShaderFile reports whether path has one of the configured shader
// extensions.
func (p *Package) IsShaderFile(path string) bool {
	return slices.Contains(p.exts, strings.ToLower(filepath.Ext(path)))
}

// DeletePass removes the pass of node h together with its node, ports and
// links.
func (p *Package) DeletePass(h nodegraph.NodeHandle) error {
	ps, ok := p.Pass(h)
	if !ok {
		return fmt.Errorf("%w: %s", nodegraph.ErrStaleHandle, h)
	}
	if !ps.CanBeRemoved() {
		return fmt.Errorf("%w: %s", ErrPassNotRemovable, ps.DisplayName())
	}
	if err := p.graph.RemoveNode(h); err != nil {
		return err
	}
	ps.Close()
	p.passes[h.Idx] = nil
	delete(p.positions, h.Idx)
	return nil
}

// Reset removes every pass.
func (p *Package) Reset() {
	for _, ps := range p.passes {
		if ps != nil {
			ps.Close()
		}
	}
	p.passes = nil
	p.graph = nodegraph.New()
	clear(p.positions)
}

// Close releases the GPU objects of every pass.
func (p *Package) Close() {
	p.Reset()
}

// PassByShader returns the nodes of the compute passes running the shader
// at path.
func (p *Package) PassByShader(path string) []nodegraph.NodeHandle {
	path = filepath.Clean(path)
	var out []nodegraph.NodeHandle
	for h, ps := range p.Passes() {
		if c, ok := ps.(*pass.Compute); ok && filepath.Clean(c.ShaderPath()) == path {
			out = append(out, h)
		}
	}
	return out
}

// ShaderPaths returns the distinct shader paths of all compute passes.
func (p *Package) ShaderPaths() []string {
	var out []string
	for _, ps := range p.Passes() {
		if c, ok := ps.(*pass.Compute); ok && !slices.Contains(out, c.ShaderPath()) {
			out = append(out, c.ShaderPath())
		}
	}
	return out
}

// NodeDesc returns the ports a pass exposes: Image2D inputs become input
// ports and created Image2D parameters become output ports.
func NodeDesc(ps pass.Pass) nodegraph.NodeDesc {
	var desc nodegraph.NodeDesc
	for _, prm := range ps.Params() {
		switch {
		case pass.NeedsInputPort(prm):
			desc.Inputs = append(desc.Inputs, prm.UID)
		case pass.NeedsOutputPort(prm):
			desc.Outputs = append(desc.Outputs, prm.UID)
		}
	}
	return desc
}

// UpdateGraph reconciles the ports of every node with its pass parameters.
// Ports of parameters that disappeared or stopped needing a port are
// removed with their links.
func (p *Package) UpdateGraph() error {
	for h, ps := range p.Passes() {
		if err := p.graph.UpdateNode(h, NodeDesc(ps)); err != nil {
			return err
		}
	}
	return nil
}

// PortInfo describes a port for display.
type PortInfo struct {
	// Name is the parameter name. For an invalid port it is the name the
	// parameter had before it disappeared, when known.
	Name string

	// Valid is false when the pass has no parameter for the port's UID.
	Valid bool
}

// PortInfo returns display information for port h.
func (p *Package) PortInfo(h nodegraph.PortHandle) (PortInfo, bool) {
	port, ok := p.graph.Port(h)
	if !ok {
		return PortInfo{}, false
	}
	ps, ok := p.Pass(port.Node)
	if !ok {
		return PortInfo{}, false
	}
	if i := ps.FindParamByPortUID(port.UID); i >= 0 {
		return PortInfo{Name: paramAt(ps, i).Desc.Name, Valid: true}, true
	}
	var info PortInfo
	if c, ok := ps.(*pass.Compute); ok {
		info.Name, _ = c.FindInvalidParamNameByUID(port.UID)
	}
	return info, true
}

// SetNodePosition records where the editor draws node h.
func (p *Package) SetNodePosition(h nodegraph.NodeHandle, pos [2]float32) {
	if p.graph.Valid(h) {
		p.positions[h.Idx] = pos
	}
}

// NodePosition returns the recorded position of node h.
func (p *Package) NodePosition(h nodegraph.NodeHandle) ([2]float32, bool) {
	if !p.graph.Valid(h) {
		return [2]float32{}, false
	}
	pos, ok := p.positions[h.Idx]
	return pos, ok
}

func paramAt(ps pass.Pass, idx int) param.Param {
	for i, prm := range ps.Params() {
		if i == idx {
			return prm
		}
	}
	return param.Param{}
}
