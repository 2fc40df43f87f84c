// Package nodegraph stores a directed graph of nodes, ports and links
// independent of what the nodes compute.
//
// Nodes live in a slot map: a [NodeHandle] is a slot index plus a generation
// that is bumped whenever the slot is freed, so handles held across a
// RemoveNode are detected as stale. Ports and links live in flat arrays with
// free lists. Each node threads its input and output ports through singly
// linked lists stored as next-indices in the port array.
//
// An input port accepts at most one incoming link. An output port may feed
// any number of links.
//
// Traversals are lazy [iter.Seq] values over the current arrays. Their order
// is deterministic for a given graph state and otherwise unspecified.
//
// A Graph is not safe for concurrent use.
package nodegraph

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/gogpu/rendertoy/internal/param"
)

// Graph errors.
var (
	// ErrStaleHandle is returned for a node handle whose slot was freed or
	// reused since the handle was issued.
	ErrStaleHandle = errors.New("nodegraph: stale node handle")

	// ErrInvalidPort is returned for a port handle that does not name a
	// live port.
	ErrInvalidPort = errors.New("nodegraph: invalid port")

	// ErrPortAttached is returned when attaching a port that already
	// belongs to a node.
	ErrPortAttached = errors.New("nodegraph: port already attached")
)

// NodeHandle identifies a node. The zero value is never valid.
type NodeHandle struct {
	Idx int32
	Gen uint32
}

// String returns "idx@gen".
func (h NodeHandle) String() string {
	return fmt.Sprintf("%d@%d", h.Idx, h.Gen)
}

// PortHandle is the index of a port.
type PortHandle int32

// LinkHandle is the index of a link.
type LinkHandle int32

// Sentinel handles.
const (
	InvalidPort PortHandle = -1
	InvalidLink LinkHandle = -1
)

const none = -1

// NodeDesc lists the parameter UIDs a node exposes as ports.
type NodeDesc struct {
	Inputs  []param.UID
	Outputs []param.UID
}

// Port is the public view of a port.
type Port struct {
	// Node owns the port. It is the zero handle for a detached port.
	Node NodeHandle

	// UID is the parameter the port is bound to.
	UID param.UID

	// Output reports whether the port is in its node's output list.
	Output bool

	// Link is the incoming link of an input port, or InvalidLink.
	Link LinkHandle
}

// Link connects an output port to an input port.
type Link struct {
	Src PortHandle
	Dst PortHandle
}

type nodeSlot struct {
	gen     uint32
	live    bool
	inputs  int32
	outputs int32
}

type portSlot struct {
	Port
	live bool
	next int32
}

type linkSlot struct {
	Link
	live bool
}

// Graph is a node graph.
type Graph struct {
	nodes []nodeSlot
	ports []portSlot
	links []linkSlot

	freeNodes []int32
	freePorts []int32
	freeLinks []int32
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{}
}

// AddNode allocates a node without ports. A freed slot is reused with a new
// generation before the node array grows.
func (g *Graph) AddNode() NodeHandle {
	var idx int32
	if n := len(g.freeNodes); n > 0 {
		idx = g.freeNodes[n-1]
		g.freeNodes = g.freeNodes[:n-1]
	} else {
		idx = int32(len(g.nodes)) //nolint:gosec // G115: graphs hold far fewer than 2^31 nodes
		g.nodes = append(g.nodes, nodeSlot{})
	}

	s := &g.nodes[idx]
	s.gen++
	s.live = true
	s.inputs = none
	s.outputs = none
	return NodeHandle{Idx: idx, Gen: s.gen}
}

// Valid reports whether h names a live node.
func (g *Graph) Valid(h NodeHandle) bool {
	if h.Idx < 0 || int(h.Idx) >= len(g.nodes) {
		return false
	}
	s := &g.nodes[h.Idx]
	return s.live && s.gen == h.Gen
}

// NodeSlots returns the length of the node array. Node indices are below it.
func (g *Graph) NodeSlots() int { return len(g.nodes) }

// Node returns the handle of the live node in slot idx.
func (g *Graph) Node(idx int32) (NodeHandle, bool) {
	if idx < 0 || int(idx) >= len(g.nodes) || !g.nodes[idx].live {
		return NodeHandle{}, false
	}
	return NodeHandle{Idx: idx, Gen: g.nodes[idx].gen}, true
}

// RemoveNode removes a node, its ports and every link touching them.
func (g *Graph) RemoveNode(h NodeHandle) error {
	if !g.Valid(h) {
		return fmt.Errorf("%w: %s", ErrStaleHandle, h)
	}
	for _, p := range slices.Collect(g.NodeInputPorts(h)) {
		g.freePort(p)
	}
	for _, p := range slices.Collect(g.NodeOutputPorts(h)) {
		g.freePort(p)
	}

	s := &g.nodes[h.Idx]
	s.live = false
	s.inputs = none
	s.outputs = none
	g.freeNodes = append(g.freeNodes, h.Idx)
	return nil
}

// AddPort allocates a detached port bound to uid.
func (g *Graph) AddPort(uid param.UID) PortHandle {
	var idx int32
	if n := len(g.freePorts); n > 0 {
		idx = g.freePorts[n-1]
		g.freePorts = g.freePorts[:n-1]
	} else {
		idx = int32(len(g.ports)) //nolint:gosec // G115: bounded by graph size
		g.ports = append(g.ports, portSlot{})
	}
	g.ports[idx] = portSlot{
		Port: Port{UID: uid, Link: InvalidLink},
		live: true,
		next: none,
	}
	return PortHandle(idx)
}

// AddInputPortToNode appends a detached port to the node's input list.
func (g *Graph) AddInputPortToNode(h NodeHandle, p PortHandle) error {
	return g.attach(h, p, false)
}

// AddOutputPortToNode appends a detached port to the node's output list.
func (g *Graph) AddOutputPortToNode(h NodeHandle, p PortHandle) error {
	return g.attach(h, p, true)
}

func (g *Graph) attach(h NodeHandle, p PortHandle, output bool) error {
	if !g.Valid(h) {
		return fmt.Errorf("%w: %s", ErrStaleHandle, h)
	}
	ps := g.port(p)
	if ps == nil {
		return fmt.Errorf("%w: %d", ErrInvalidPort, p)
	}
	if ps.Node != (NodeHandle{}) {
		return fmt.Errorf("%w: %d", ErrPortAttached, p)
	}
	ps.Node = h
	ps.Output = output
	ps.next = none

	head := &g.nodes[h.Idx].inputs
	if output {
		head = &g.nodes[h.Idx].outputs
	}
	if *head == none {
		*head = int32(p)
		return nil
	}
	tail := *head
	for g.ports[tail].next != none {
		tail = g.ports[tail].next
	}
	g.ports[tail].next = int32(p)
	return nil
}

// RemovePort detaches and frees a port, removing its incoming link and, for
// output ports, every link it feeds.
func (g *Graph) RemovePort(p PortHandle) error {
	ps := g.port(p)
	if ps == nil {
		return fmt.Errorf("%w: %d", ErrInvalidPort, p)
	}
	if g.Valid(ps.Node) {
		head := &g.nodes[ps.Node.Idx].inputs
		if ps.Output {
			head = &g.nodes[ps.Node.Idx].outputs
		}
		g.unlinkFromList(head, p)
	}
	g.freePort(p)
	return nil
}

// unlinkFromList removes p from the list starting at *head.
func (g *Graph) unlinkFromList(head *int32, p PortHandle) {
	if *head == int32(p) {
		*head = g.ports[p].next
		return
	}
	for cur := *head; cur != none; cur = g.ports[cur].next {
		if g.ports[cur].next == int32(p) {
			g.ports[cur].next = g.ports[p].next
			return
		}
	}
}

// freePort drops every link touching p and returns p to the free list. The
// caller has already unthreaded p from its node, or is freeing the node.
func (g *Graph) freePort(p PortHandle) {
	for i := range g.links {
		l := &g.links[i]
		if l.live && (l.Src == p || l.Dst == p) {
			g.freeLink(LinkHandle(i))
		}
	}
	g.ports[p] = portSlot{Port: Port{Link: InvalidLink}, next: none}
	g.freePorts = append(g.freePorts, int32(p))
}

func (g *Graph) port(p PortHandle) *portSlot {
	if p < 0 || int(p) >= len(g.ports) || !g.ports[p].live {
		return nil
	}
	return &g.ports[p]
}

// Port returns the port p.
func (g *Graph) Port(p PortHandle) (Port, bool) {
	ps := g.port(p)
	if ps == nil {
		return Port{}, false
	}
	return ps.Port, true
}

// AddLink connects output port src to input port dst. It returns
// (InvalidLink, false) without changing the graph when dst already has an
// incoming link or when either port is not live, attached and of the right
// direction.
func (g *Graph) AddLink(src, dst PortHandle) (LinkHandle, bool) {
	sp, dp := g.port(src), g.port(dst)
	if sp == nil || dp == nil || !sp.Output || dp.Output {
		return InvalidLink, false
	}
	if !g.Valid(sp.Node) || !g.Valid(dp.Node) {
		return InvalidLink, false
	}
	if dp.Link != InvalidLink {
		return InvalidLink, false
	}

	var idx int32
	if n := len(g.freeLinks); n > 0 {
		idx = g.freeLinks[n-1]
		g.freeLinks = g.freeLinks[:n-1]
	} else {
		idx = int32(len(g.links)) //nolint:gosec // G115: bounded by graph size
		g.links = append(g.links, linkSlot{})
	}
	g.links[idx] = linkSlot{Link: Link{Src: src, Dst: dst}, live: true}
	dp.Link = LinkHandle(idx)
	return LinkHandle(idx), true
}

// RemoveLink removes a link. Removing a dead link is a no-op.
func (g *Graph) RemoveLink(l LinkHandle) {
	if l < 0 || int(l) >= len(g.links) || !g.links[l].live {
		return
	}
	g.freeLink(l)
}

func (g *Graph) freeLink(l LinkHandle) {
	ls := &g.links[l]
	if dp := g.port(ls.Dst); dp != nil && dp.Link == l {
		dp.Link = InvalidLink
	}
	*ls = linkSlot{}
	g.freeLinks = append(g.freeLinks, int32(l))
}

// Link returns the link l.
func (g *Graph) Link(l LinkHandle) (Link, bool) {
	if l < 0 || int(l) >= len(g.links) || !g.links[l].live {
		return Link{}, false
	}
	return g.links[l].Link, true
}

// LinkSource returns the node owning the source port of l.
func (g *Graph) LinkSource(l LinkHandle) (NodeHandle, bool) {
	link, ok := g.Link(l)
	if !ok {
		return NodeHandle{}, false
	}
	sp := g.port(link.Src)
	if sp == nil || !g.Valid(sp.Node) {
		return NodeHandle{}, false
	}
	return sp.Node, true
}

// UpdateNode reconciles the ports of h with desc: ports whose UID is not
// listed are removed together with their links, and listed UIDs without a
// port gain one. Surviving ports keep their handles and links.
func (g *Graph) UpdateNode(h NodeHandle, desc NodeDesc) error {
	if !g.Valid(h) {
		return fmt.Errorf("%w: %s", ErrStaleHandle, h)
	}
	if err := g.reconcile(h, desc.Inputs, false); err != nil {
		return err
	}
	return g.reconcile(h, desc.Outputs, true)
}

func (g *Graph) reconcile(h NodeHandle, uids []param.UID, output bool) error {
	ports := g.NodeInputPorts(h)
	if output {
		ports = g.NodeOutputPorts(h)
	}

	have := make(map[param.UID]bool)
	for _, p := range slices.Collect(ports) {
		uid := g.ports[p].UID
		if !slices.Contains(uids, uid) || have[uid] {
			if err := g.RemovePort(p); err != nil {
				return err
			}
			continue
		}
		have[uid] = true
	}

	for _, uid := range uids {
		if have[uid] {
			continue
		}
		p := g.AddPort(uid)
		if err := g.attach(h, p, output); err != nil {
			return err
		}
		have[uid] = true
	}
	return nil
}

// Nodes yields every live node in slot order.
func (g *Graph) Nodes() iter.Seq[NodeHandle] {
	return func(yield func(NodeHandle) bool) {
		for i := range g.nodes {
			s := &g.nodes[i]
			if !s.live {
				continue
			}
			if !yield(NodeHandle{Idx: int32(i), Gen: s.gen}) { //nolint:gosec // G115: bounded by graph size
				return
			}
		}
	}
}

// NodeInputPorts yields the input ports of h in list order.
func (g *Graph) NodeInputPorts(h NodeHandle) iter.Seq[PortHandle] {
	return g.portList(h, false)
}

// NodeOutputPorts yields the output ports of h in list order.
func (g *Graph) NodeOutputPorts(h NodeHandle) iter.Seq[PortHandle] {
	return g.portList(h, true)
}

func (g *Graph) portList(h NodeHandle, output bool) iter.Seq[PortHandle] {
	return func(yield func(PortHandle) bool) {
		if !g.Valid(h) {
			return
		}
		cur := g.nodes[h.Idx].inputs
		if output {
			cur = g.nodes[h.Idx].outputs
		}
		for cur != none {
			next := g.ports[cur].next
			if !yield(PortHandle(cur)) {
				return
			}
			cur = next
		}
	}
}

// NodeIncidentLinks yields the incoming links of h: the links whose
// destination is one of its input ports.
func (g *Graph) NodeIncidentLinks(h NodeHandle) iter.Seq[LinkHandle] {
	return func(yield func(LinkHandle) bool) {
		for p := range g.NodeInputPorts(h) {
			l := g.ports[p].Link
			if l == InvalidLink {
				continue
			}
			if !yield(l) {
				return
			}
		}
	}
}
