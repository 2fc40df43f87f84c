package project

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/rendertoy/internal/nodegraph"
	"github.com/gogpu/rendertoy/internal/pass"
	"github.com/gogpu/rendertoy/internal/texture"
)

// Compile errors.
var (
	// ErrNoOutputNode is returned when the package has no Output pass.
	ErrNoOutputNode = errors.New("project: no output node")

	// ErrUnboundInput is returned when an input port has no link, or its
	// link's source produced no image.
	ErrUnboundInput = errors.New("project: unbound input")

	// ErrCyclicGraph is returned when the passes feeding the output depend
	// on each other in a cycle.
	ErrCyclicGraph = errors.New("project: cyclic graph")
)

// CycleError reports a dependency cycle.
type CycleError struct {
	// Nodes lists the node slots on the cycle, from a consumer up through
	// its producers.
	Nodes []int32

	// Names are the display names of the passes on the cycle.
	Names []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCyclicGraph, strings.Join(e.Names, " <- "))
}

func (e *CycleError) Unwrap() error { return ErrCyclicGraph }

// AsCycleError extracts a *CycleError from err.
func AsCycleError(err error) (*CycleError, bool) {
	var ce *CycleError
	ok := errors.As(err, &ce)
	return ce, ok
}

// CompiledPackage is a package resolved for one frame.
type CompiledPackage struct {
	// Passes are in dependency order; the Output pass is last.
	Passes []*pass.Compiled

	// Output is the image the Output pass receives.
	Output *texture.Texture
}

// Release hands the transient images of every pass back to t.
func (c *CompiledPackage) Release(t pass.Textures) error {
	var first error
	for _, cp := range c.Passes {
		if err := cp.Release(t); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OutputNode returns the node of the Output pass: a node without output
// ports running the Output variant.
func (p *Package) OutputNode() (nodegraph.NodeHandle, error) {
	var (
		out   nodegraph.NodeHandle
		found bool
	)
	for h, ps := range p.Passes() {
		if ps.Kind() != pass.KindOutput {
			continue
		}
		hasOutputs := false
		for range p.graph.NodeOutputPorts(h) {
			hasOutputs = true
			break
		}
		if !hasOutputs {
			out, found = h, true
		}
	}
	if !found {
		return nodegraph.NodeHandle{}, ErrNoOutputNode
	}
	return out, nil
}

type visit uint8

const (
	unvisited visit = iota
	onPath
	done
)

type stackEntry struct {
	node nodegraph.NodeHandle
	from int32
	post bool
}

// PassOrder returns the nodes out depends on, producers before consumers,
// ending with out. Only nodes reachable from out through links are
// included.
//
// The walk is an iterative depth-first search with pre and post markers. A
// node reached again while still on the search path closes a cycle, which
// is reported as a *CycleError.
func (p *Package) PassOrder(out nodegraph.NodeHandle) ([]nodegraph.NodeHandle, error) {
	if !p.graph.Valid(out) {
		return nil, fmt.Errorf("%w: %s", nodegraph.ErrStaleHandle, out)
	}

	n := p.graph.NodeSlots()
	state := make([]visit, n)
	parent := make([]int32, n)

	var order []nodegraph.NodeHandle
	stack := []stackEntry{{node: out, from: -1}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		idx := top.node.Idx

		if top.post {
			if state[idx] != done {
				state[idx] = done
				order = append(order, top.node)
			}
			continue
		}

		switch state[idx] {
		case done:
			continue
		case onPath:
			return nil, p.cycleError(idx, top.from, parent)
		}

		state[idx] = onPath
		parent[idx] = top.from
		stack = append(stack, stackEntry{node: top.node, post: true})
		for l := range p.graph.NodeIncidentLinks(top.node) {
			src, ok := p.graph.LinkSource(l)
			if !ok {
				continue
			}
			stack = append(stack, stackEntry{node: src, from: idx})
		}
	}
	return order, nil
}

// cycleError builds the error for the back edge consumer -> producer, where
// producer is still on the search path above consumer.
func (p *Package) cycleError(producer, consumer int32, parent []int32) *CycleError {
	ce := &CycleError{}
	for cur := consumer; cur >= 0; cur = parent[cur] {
		ce.Nodes = append(ce.Nodes, cur)
		if cur == producer {
			break
		}
	}
	for _, idx := range ce.Nodes {
		name := fmt.Sprintf("node %d", idx)
		if int(idx) < len(p.passes) && p.passes[idx] != nil {
			name = p.passes[idx].DisplayName()
		}
		ce.Names = append(ce.Names, name)
	}
	return ce
}

// Compile resolves the passes feeding the Output pass for one frame.
//
// Passes compile in dependency order. Before a pass compiles, the image of
// every linked upstream output is copied into the matching input slot; an
// input port without a link, or whose source produced no image, fails the
// whole compile with ErrUnboundInput. Ports whose parameter no longer exists
// are ignored.
//
// On failure every transient created so far is released and nothing is
// returned.
func (p *Package) Compile(s *pass.Settings) (*CompiledPackage, error) {
	out, err := p.OutputNode()
	if err != nil {
		return nil, err
	}
	order, err := p.PassOrder(out)
	if err != nil {
		return nil, err
	}

	cp := &CompiledPackage{Passes: make([]*pass.Compiled, 0, len(order))}
	byNode := make(map[int32]*pass.Compiled, len(order))
	fail := func(err error) (*CompiledPackage, error) {
		_ = cp.Release(s.Textures)
		return nil, err
	}

	for _, h := range order {
		ps := p.passes[h.Idx]
		c := &pass.Compiled{Pass: ps}
		c.Reset(ps.NumParams())
		byNode[h.Idx] = c
		cp.Passes = append(cp.Passes, c)

		if err := p.bindInputs(h, ps, c, byNode); err != nil {
			return fail(err)
		}
		if err := ps.Compile(s, c); err != nil {
			return fail(err)
		}
	}

	cp.Output = byNode[out.Idx].FirstImage()
	slogger().Debug("package compiled", "passes", len(cp.Passes), "window", s.WindowSize)
	return cp, nil
}

func (p *Package) bindInputs(h nodegraph.NodeHandle, ps pass.Pass, c *pass.Compiled, byNode map[int32]*pass.Compiled) error {
	for ph := range p.graph.NodeInputPorts(h) {
		port, _ := p.graph.Port(ph)
		dst := ps.FindParamByPortUID(port.UID)
		if dst < 0 {
			continue
		}
		unbound := fmt.Errorf("%w: %s.%s", ErrUnboundInput, ps.DisplayName(), paramAt(ps, dst).Desc.Name)

		if port.Link == nodegraph.InvalidLink {
			return unbound
		}
		link, _ := p.graph.Link(port.Link)
		srcNode, ok := p.graph.LinkSource(port.Link)
		if !ok {
			return unbound
		}
		srcCompiled := byNode[srcNode.Idx]
		srcPort, _ := p.graph.Port(link.Src)
		si := p.passes[srcNode.Idx].FindParamByPortUID(srcPort.UID)
		if srcCompiled == nil || si < 0 || si >= len(srcCompiled.Images) || srcCompiled.Images[si].Texture == nil {
			return unbound
		}
		c.Images[dst] = pass.CompiledImage{Texture: srcCompiled.Images[si].Texture}
	}
	return nil
}
