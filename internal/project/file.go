package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gogpu/rendertoy/internal/nodegraph"
	"github.com/gogpu/rendertoy/internal/param"
	"github.com/gogpu/rendertoy/internal/pass"
)

// FileExtension is the extension of project files.
const FileExtension = ".rtoy"

// FileError reports a malformed project file.
type FileError struct {
	// File is the project file, when known.
	File string

	// Path locates the offending element, such as "passes[1].params[0]".
	Path string

	Err error
}

func (e *FileError) Error() string {
	msg := "project: "
	if e.File != "" {
		msg += e.File + ": "
	}
	if e.Path != "" {
		msg += e.Path + ": "
	}
	return msg + e.Err.Error()
}

func (e *FileError) Unwrap() error { return e.Err }

func missingKey(path, key string) error {
	return &FileError{Path: path, Err: fmt.Errorf("%w %q", param.ErrMissingKey, key)}
}

type fileJSON struct {
	Passes []pass.JSON `json:"passes"`
	Graph  *graphJSON  `json:"graph"`
	GUI    *guiJSON    `json:"gui,omitempty"`
}

type graphJSON struct {
	Nodes []nodeJSON `json:"nodes"`
}

type nodeJSON struct {
	Idx     *int32     `json:"idx"`
	Inputs  []portJSON `json:"inputs"`
	Outputs []portJSON `json:"outputs"`
}

type portJSON struct {
	Idx *int32     `json:"idx"`
	UID *param.UID `json:"uid"`
	Src *int32     `json:"src,omitempty"`
}

type guiJSON struct {
	Nodes []guiNodeJSON `json:"nodes"`
}

type guiNodeJSON struct {
	Idx *int32      `json:"idx"`
	Pos *[2]float32 `json:"pos"`
}

func ptr[T any](v T) *T { return &v }

// Save writes the package as an indented JSON project file.
func (p *Package) Save(w io.Writer) error {
	f := fileJSON{Passes: []pass.JSON{}, Graph: &graphJSON{Nodes: []nodeJSON{}}, GUI: &guiJSON{Nodes: []guiNodeJSON{}}}

	for h, ps := range p.Passes() {
		pj, err := ps.Encode()
		if err != nil {
			return fmt.Errorf("project: encode %s: %w", ps.DisplayName(), err)
		}
		pj.Idx = ptr(h.Idx)
		f.Passes = append(f.Passes, pj)

		nj := nodeJSON{Idx: ptr(h.Idx), Inputs: []portJSON{}, Outputs: []portJSON{}}
		for ph := range p.graph.NodeInputPorts(h) {
			port, _ := p.graph.Port(ph)
			pj := portJSON{Idx: ptr(int32(ph)), UID: ptr(port.UID)}
			if link, ok := p.graph.Link(port.Link); ok {
				pj.Src = ptr(int32(link.Src))
			}
			nj.Inputs = append(nj.Inputs, pj)
		}
		for ph := range p.graph.NodeOutputPorts(h) {
			port, _ := p.graph.Port(ph)
			nj.Outputs = append(nj.Outputs, portJSON{Idx: ptr(int32(ph)), UID: ptr(port.UID)})
		}
		f.Graph.Nodes = append(f.Graph.Nodes, nj)

		if pos, ok := p.positions[h.Idx]; ok {
			f.GUI.Nodes = append(f.GUI.Nodes, guiNodeJSON{Idx: ptr(h.Idx), Pos: ptr(pos)})
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(f)
}

// SaveFile writes the package to path.
func (p *Package) SaveFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.Save(file); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	slogger().Info("project saved", "path", path)
	return nil
}

// Load reads a project file into a new package.
//
// Serialized UIDs are local to the file: every parameter gets a fresh UID
// and ports, links and node positions are resolved through the remapping.
// Ports whose UID no longer maps to a parameter are dropped, as are links
// touching them. Missing keys fail the load with a *FileError and no
// package is returned, as does a file without exactly one Output pass.
func Load(env pass.Env, cfg Config, r io.Reader) (*Package, error) {
	var f fileJSON
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, &FileError{Err: err}
	}
	if f.Passes == nil {
		return nil, missingKey("", "passes")
	}
	if f.Graph == nil {
		return nil, missingKey("", "graph")
	}
	if err := validateGraph(f.Graph); err != nil {
		return nil, err
	}
	if err := validateGUI(f.GUI); err != nil {
		return nil, err
	}

	p := NewPackage(env, cfg)
	uidMap := make(map[param.UID]param.UID)
	nodeMap := make(map[int32]nodegraph.NodeHandle)
	outputs := 0

	for i, pj := range f.Passes {
		path := fmt.Sprintf("passes[%d]", i)
		if pj.Idx == nil {
			p.Reset()
			return nil, missingKey(path, "idx")
		}
		ps, err := pass.Decode(env, pj, uidMap)
		if err != nil {
			p.Reset()
			return nil, &FileError{Path: path, Err: err}
		}
		if ps.Kind() == pass.KindOutput {
			outputs++
			if outputs > 1 {
				ps.Close()
				p.Reset()
				return nil, &FileError{Path: path, Err: ErrDuplicateOutput}
			}
		}
		nodeMap[*pj.Idx] = p.addPass(ps)
	}
	if outputs == 0 {
		p.Reset()
		return nil, &FileError{Path: "passes", Err: ErrNoOutputNode}
	}

	if err := p.loadGraph(f.Graph, nodeMap, uidMap); err != nil {
		p.Reset()
		return nil, err
	}

	if f.GUI != nil {
		for _, gn := range f.GUI.Nodes {
			if h, ok := nodeMap[*gn.Idx]; ok {
				p.positions[h.Idx] = *gn.Pos
			}
		}
	}

	slogger().Info("project loaded", "passes", len(f.Passes))
	return p, nil
}

// LoadFile reads the project file at path.
func LoadFile(env pass.Env, cfg Config, path string) (*Package, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	p, err := Load(env, cfg, file)
	if err != nil {
		var fe *FileError
		if errors.As(err, &fe) {
			fe.File = path
		}
		return nil, err
	}
	return p, nil
}

func validateGraph(g *graphJSON) error {
	if g.Nodes == nil {
		return missingKey("graph", "nodes")
	}
	for i, n := range g.Nodes {
		path := fmt.Sprintf("graph.nodes[%d]", i)
		if n.Idx == nil {
			return missingKey(path, "idx")
		}
		if n.Inputs == nil {
			return missingKey(path, "inputs")
		}
		if n.Outputs == nil {
			return missingKey(path, "outputs")
		}
		lists := []struct {
			key   string
			ports []portJSON
		}{{"inputs", n.Inputs}, {"outputs", n.Outputs}}
		for _, list := range lists {
			for j, pj := range list.ports {
				ppath := fmt.Sprintf("%s.%s[%d]", path, list.key, j)
				if pj.Idx == nil {
					return missingKey(ppath, "idx")
				}
				if pj.UID == nil {
					return missingKey(ppath, "uid")
				}
			}
		}
	}
	return nil
}

func validateGUI(g *guiJSON) error {
	if g == nil {
		return nil
	}
	if g.Nodes == nil {
		return missingKey("gui", "nodes")
	}
	for i, n := range g.Nodes {
		path := fmt.Sprintf("gui.nodes[%d]", i)
		if n.Idx == nil {
			return missingKey(path, "idx")
		}
		if n.Pos == nil {
			return missingKey(path, "pos")
		}
	}
	return nil
}

// loadGraph recreates ports in a first sweep and links in a second, so a
// link may name a port declared by a later node.
func (p *Package) loadGraph(g *graphJSON, nodeMap map[int32]nodegraph.NodeHandle, uidMap map[param.UID]param.UID) error {
	portMap := make(map[int32]nodegraph.PortHandle)

	addPorts := func(h nodegraph.NodeHandle, ports []portJSON, output bool) error {
		for _, pj := range ports {
			uid, ok := uidMap[*pj.UID]
			if !ok {
				continue
			}
			ph := p.graph.AddPort(uid)
			var err error
			if output {
				err = p.graph.AddOutputPortToNode(h, ph)
			} else {
				err = p.graph.AddInputPortToNode(h, ph)
			}
			if err != nil {
				return err
			}
			portMap[*pj.Idx] = ph
		}
		return nil
	}

	for _, n := range g.Nodes {
		h, ok := nodeMap[*n.Idx]
		if !ok {
			continue
		}
		if err := addPorts(h, n.Inputs, false); err != nil {
			return err
		}
		if err := addPorts(h, n.Outputs, true); err != nil {
			return err
		}
	}

	for _, n := range g.Nodes {
		if _, ok := nodeMap[*n.Idx]; !ok {
			continue
		}
		for _, pj := range n.Inputs {
			if pj.Src == nil {
				continue
			}
			src, ok := portMap[*pj.Src]
			if !ok {
				continue
			}
			dst, ok := portMap[*pj.Idx]
			if !ok {
				continue
			}
			if _, ok := p.graph.AddLink(src, dst); !ok {
				slogger().Warn("dropped link from project file", "src", *pj.Src, "dst", *pj.Idx)
			}
		}
	}
	return nil
}
