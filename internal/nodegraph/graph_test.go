package nodegraph

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/rendertoy/internal/param"
)

// build creates a producer node with one output port (uid 1) and a consumer
// with one input port (uid 2), linked together.
func build(t *testing.T) (g *Graph, producer, consumer NodeHandle, out, in PortHandle, link LinkHandle) {
	t.Helper()
	g = New()
	producer = g.AddNode()
	consumer = g.AddNode()
	if err := g.UpdateNode(producer, NodeDesc{Outputs: []param.UID{1}}); err != nil {
		t.Fatalf("UpdateNode: %v", err)
	}
	if err := g.UpdateNode(consumer, NodeDesc{Inputs: []param.UID{2}}); err != nil {
		t.Fatalf("UpdateNode: %v", err)
	}
	out = slices.Collect(g.NodeOutputPorts(producer))[0]
	in = slices.Collect(g.NodeInputPorts(consumer))[0]
	link, ok := g.AddLink(out, in)
	if !ok {
		t.Fatal("AddLink failed")
	}
	return g, producer, consumer, out, in, link
}

func TestStaleHandleAfterSlotReuse(t *testing.T) {
	g := New()
	a := g.AddNode()
	if !g.Valid(a) {
		t.Fatal("fresh handle invalid")
	}
	if err := g.RemoveNode(a); err != nil {
		t.Fatalf("RemoveNode: %v", err)
	}
	if g.Valid(a) {
		t.Error("removed handle still valid")
	}

	b := g.AddNode()
	if b.Idx != a.Idx {
		t.Fatalf("slot not reused: %v vs %v", b, a)
	}
	if b.Gen == a.Gen {
		t.Error("generation not bumped on reuse")
	}
	if g.Valid(a) {
		t.Error("stale handle validates against reused slot")
	}
	if err := g.RemoveNode(a); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("RemoveNode(stale) = %v, want ErrStaleHandle", err)
	}
	if err := g.UpdateNode(a, NodeDesc{}); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("UpdateNode(stale) = %v, want ErrStaleHandle", err)
	}
	if g.Valid(NodeHandle{}) {
		t.Error("zero handle valid")
	}
}

func TestAddLinkSingleIncoming(t *testing.T) {
	g, producer, _, out, in, link := build(t)

	if _, ok := g.AddLink(out, in); ok {
		t.Error("second link into the same input accepted")
	}

	port, _ := g.Port(in)
	if port.Link != link {
		t.Errorf("input link = %d, want %d", port.Link, link)
	}
	src, ok := g.LinkSource(link)
	if !ok || src != producer {
		t.Errorf("LinkSource = %v, %v; want %v", src, ok, producer)
	}

	// Direction is enforced.
	if _, ok := g.AddLink(in, out); ok {
		t.Error("input-to-output link accepted")
	}
}

func TestOutputFanOut(t *testing.T) {
	g, _, _, out, _, _ := build(t)
	third := g.AddNode()
	if err := g.UpdateNode(third, NodeDesc{Inputs: []param.UID{3}}); err != nil {
		t.Fatalf("UpdateNode: %v", err)
	}
	in3 := slices.Collect(g.NodeInputPorts(third))[0]
	if _, ok := g.AddLink(out, in3); !ok {
		t.Fatal("output fan-out rejected")
	}
	if n := len(slices.Collect(g.NodeIncidentLinks(third))); n != 1 {
		t.Errorf("incident links = %d, want 1", n)
	}
}

func TestRemovePortDropsLinks(t *testing.T) {
	g, _, consumer, out, in, link := build(t)

	if err := g.RemovePort(out); err != nil {
		t.Fatalf("RemovePort: %v", err)
	}
	if _, ok := g.Link(link); ok {
		t.Error("link survived removal of its source port")
	}
	port, ok := g.Port(in)
	if !ok || port.Link != InvalidLink {
		t.Errorf("input port = %+v, want no link", port)
	}
	if n := len(slices.Collect(g.NodeIncidentLinks(consumer))); n != 0 {
		t.Errorf("incident links = %d, want 0", n)
	}
	if err := g.RemovePort(out); !errors.Is(err, ErrInvalidPort) {
		t.Errorf("double RemovePort = %v, want ErrInvalidPort", err)
	}
}

func TestUpdateNodeDropsOrphanedPort(t *testing.T) {
	g, _, consumer, _, in, link := build(t)

	// The consumer's parameter 2 disappears, parameter 4 appears.
	if err := g.UpdateNode(consumer, NodeDesc{Inputs: []param.UID{4}}); err != nil {
		t.Fatalf("UpdateNode: %v", err)
	}
	if _, ok := g.Port(in); ok {
		p, _ := g.Port(in)
		if p.UID == 2 {
			t.Error("orphaned port still present")
		}
	}
	if _, ok := g.Link(link); ok {
		t.Error("link of orphaned port was not dropped")
	}

	var uids []param.UID
	for p := range g.NodeInputPorts(consumer) {
		port, _ := g.Port(p)
		uids = append(uids, port.UID)
	}
	if !slices.Equal(uids, []param.UID{4}) {
		t.Errorf("input uids = %v, want [4]", uids)
	}
}

func TestUpdateNodeKeepsSurvivingPorts(t *testing.T) {
	g, _, consumer, _, in, link := build(t)

	if err := g.UpdateNode(consumer, NodeDesc{Inputs: []param.UID{2, 5}}); err != nil {
		t.Fatalf("UpdateNode: %v", err)
	}
	ports := slices.Collect(g.NodeInputPorts(consumer))
	if len(ports) != 2 || ports[0] != in {
		t.Fatalf("ports = %v, want [%d, new]", ports, in)
	}
	if l, _ := g.Port(in); l.Link != link {
		t.Error("surviving port lost its link")
	}
}

func TestRemoveNodeFreesPortsAndLinks(t *testing.T) {
	g, producer, consumer, _, in, link := build(t)

	if err := g.RemoveNode(producer); err != nil {
		t.Fatalf("RemoveNode: %v", err)
	}
	if _, ok := g.Link(link); ok {
		t.Error("link survived removal of its source node")
	}
	if p, _ := g.Port(in); p.Link != InvalidLink {
		t.Error("consumer port still references removed link")
	}

	nodes := slices.Collect(g.Nodes())
	if len(nodes) != 1 || nodes[0] != consumer {
		t.Errorf("Nodes() = %v, want [%v]", nodes, consumer)
	}

	// Freed port slots are reused.
	p := g.AddPort(9)
	if p != 0 {
		t.Errorf("AddPort = %d, want reused slot 0", p)
	}
}

func TestAttachErrors(t *testing.T) {
	g := New()
	n := g.AddNode()
	p := g.AddPort(1)
	if err := g.AddInputPortToNode(n, p); err != nil {
		t.Fatalf("AddInputPortToNode: %v", err)
	}
	if err := g.AddOutputPortToNode(n, p); !errors.Is(err, ErrPortAttached) {
		t.Errorf("re-attach = %v, want ErrPortAttached", err)
	}
	if err := g.AddInputPortToNode(n, 42); !errors.Is(err, ErrInvalidPort) {
		t.Errorf("attach unknown port = %v, want ErrInvalidPort", err)
	}
}

func TestIterationIsDeterministicAndStoppable(t *testing.T) {
	g := New()
	n := g.AddNode()
	if err := g.UpdateNode(n, NodeDesc{Inputs: []param.UID{10, 11, 12}}); err != nil {
		t.Fatal(err)
	}
	first := slices.Collect(g.NodeInputPorts(n))
	second := slices.Collect(g.NodeInputPorts(n))
	if !slices.Equal(first, second) {
		t.Errorf("iteration differs: %v vs %v", first, second)
	}

	count := 0
	for range g.NodeInputPorts(n) {
		count++
		break
	}
	if count != 1 {
		t.Errorf("early break visited %d ports", count)
	}
}
