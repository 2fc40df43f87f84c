package pass

import (
	"errors"
	"fmt"

	"github.com/gogpu/rendertoy/internal/param"
)

// JSON is one element of a project file's "passes" array.
type JSON struct {
	// Idx is the node slot the pass belongs to. The project layer fills it.
	Idx *int32 `json:"idx"`

	Type   *string           `json:"type"`
	Shader *string           `json:"shader,omitempty"`
	Params []param.ParamJSON `json:"params"`
}

// Decode builds a pass from its project-file form.
//
// Every serialized parameter UID is replaced with a freshly minted one and
// the mapping is recorded in uidMap, so links and other references can be
// remapped afterwards.
func Decode(env Env, j JSON, uidMap map[param.UID]param.UID) (Pass, error) {
	if j.Type == nil {
		return nil, fmt.Errorf("%w %q", param.ErrMissingKey, "type")
	}
	if j.Params == nil {
		return nil, fmt.Errorf("%w %q", param.ErrMissingKey, "params")
	}
	kind, err := ParseKind(*j.Type)
	if err != nil {
		return nil, err
	}

	params := make([]param.Param, 0, len(j.Params))
	for i, pj := range j.Params {
		p, fileUID, err := param.UnmarshalParam(pj)
		if err != nil {
			return nil, fmt.Errorf("params[%d]: %w", i, err)
		}
		p.UID = env.UIDs.Next()
		uidMap[fileUID] = p.UID
		params = append(params, p)
	}

	switch kind {
	case KindOutput:
		if len(params) != 1 || params[0].Desc.Type != param.TypeImage2D {
			return nil, errors.New("pass: Output must have a single Image2d parameter")
		}
		return &Output{params: params}, nil

	default:
		if j.Shader == nil {
			return nil, fmt.Errorf("%w %q", param.ErrMissingKey, "shader")
		}
		// The saved parameters seed the displaced list; the first
		// reconciliation restores their values and UIDs by name.
		c := &Compute{env: env, path: *j.Shader, prev: params}
		_ = c.Reload()
		return c, nil
	}
}
