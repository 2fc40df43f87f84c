package pass

import (
	"encoding/json"
	"iter"

	"github.com/gogpu/rendertoy/internal/param"
)

// Output is the sentinel pass that receives the final image. A project has
// exactly one and it cannot be removed.
type Output struct {
	params []param.Param
}

// NewOutput returns an Output pass with a single Image2D input parameter
// whose UID is minted from uids.
func NewOutput(uids *param.UIDs) *Output {
	return &Output{params: []param.Param{{
		Desc:  param.Descriptor{Name: OutputParamName, Type: param.TypeImage2D},
		Value: param.DefaultValue(param.TypeImage2D),
		UID:   uids.Next(),
	}}}
}

func (*Output) sealed() {}

// Kind returns KindOutput.
func (*Output) Kind() Kind { return KindOutput }

// DisplayName returns "Output".
func (*Output) DisplayName() string { return "Output" }

func (o *Output) Params() iter.Seq2[int, param.Param] { return paramSeq(&o.params) }

func (o *Output) NumParams() int { return len(o.params) }

// UID returns the UID of the image parameter.
func (o *Output) UID() param.UID { return o.params[0].UID }

func (o *Output) FindParamByPortUID(uid param.UID) int {
	return findByUID(o.params, uid)
}

// CanBeRemoved returns false.
func (*Output) CanBeRemoved() bool { return false }

func (o *Output) Compile(s *Settings, out *Compiled) error {
	out.Pass = o
	out.Params = append(out.Params[:0], o.params...)
	for i := range o.params {
		if o.params[i].Desc.Type.IsTexture() {
			if err := compileImage(s, o.params, i, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Output) Encode() (JSON, error) {
	typ := KindOutput.String()
	j := JSON{Type: &typ}
	for _, p := range o.params {
		pj, err := param.MarshalParam(p)
		if err != nil {
			return JSON{}, err
		}
		j.Params = append(j.Params, pj)
	}
	return j, nil
}

func (o *Output) MarshalJSON() ([]byte, error) {
	j, err := o.Encode()
	if err != nil {
		return nil, err
	}
	return json.Marshal(j)
}

// Close does nothing; the Output pass owns no GPU objects.
func (*Output) Close() {}
