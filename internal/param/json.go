package param

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gogpu/rendertoy/gpucore"
)

// ErrMissingKey is returned when a serialized parameter lacks a required key.
// The wrapping error names the key.
var ErrMissingKey = errors.New("param: missing key")

func missing(key string) error {
	return fmt.Errorf("%w %q", ErrMissingKey, key)
}

// descriptorJSON is the "refl" object of a serialized parameter.
type descriptorJSON struct {
	Name       *string           `json:"name"`
	Type       *string           `json:"type"`
	Annotation map[string]string `json:"annotation,omitempty"`
}

// ParamJSON is one element of a pass's "params" array.
type ParamJSON struct {
	Refl  json.RawMessage `json:"refl"`
	Value json.RawMessage `json:"value"`
	UID   *UID            `json:"uid"`
}

// textureJSON is the serialized form of a TextureDesc. Only the keys that
// apply to the source (and, for wrap modes, to Sampler2D) are written.
type textureJSON struct {
	Source           *string     `json:"source"`
	Path             *string     `json:"path,omitempty"`
	UseRelativeScale *bool       `json:"useRelativeScale,omitempty"`
	ScaleRelativeTo  *string     `json:"scaleRelativeTo,omitempty"`
	RelativeScale    *[2]float32 `json:"relativeScale,omitempty"`
	Resolution       *[2]int32   `json:"resolution,omitempty"`
	Format           *string     `json:"format,omitempty"`
	WrapS            *bool       `json:"wrapS,omitempty"`
	WrapT            *bool       `json:"wrapT,omitempty"`
}

// MarshalParam encodes p in project-file form.
func MarshalParam(p Param) (ParamJSON, error) {
	name, typ := p.Desc.Name, p.Desc.Type.String()
	refl, err := json.Marshal(descriptorJSON{Name: &name, Type: &typ, Annotation: p.Desc.Annotations})
	if err != nil {
		return ParamJSON{}, err
	}
	value, err := MarshalValue(p.Desc.Type, p.Value)
	if err != nil {
		return ParamJSON{}, fmt.Errorf("param %q: %w", p.Desc.Name, err)
	}
	uid := p.UID
	return ParamJSON{Refl: refl, Value: value, UID: &uid}, nil
}

// UnmarshalParam decodes a serialized parameter. The returned UID is the
// file-local UID; callers remap it.
func UnmarshalParam(pj ParamJSON) (Param, UID, error) {
	if pj.Refl == nil {
		return Param{}, 0, missing("refl")
	}
	if pj.Value == nil {
		return Param{}, 0, missing("value")
	}
	if pj.UID == nil {
		return Param{}, 0, missing("uid")
	}

	var dj descriptorJSON
	if err := json.Unmarshal(pj.Refl, &dj); err != nil {
		return Param{}, 0, fmt.Errorf("param: refl: %w", err)
	}
	if dj.Name == nil {
		return Param{}, 0, fmt.Errorf("refl: %w", missing("name"))
	}
	if dj.Type == nil {
		return Param{}, 0, fmt.Errorf("refl: %w", missing("type"))
	}
	t, err := ParseType(*dj.Type)
	if err != nil {
		return Param{}, 0, err
	}

	v, err := UnmarshalValue(t, pj.Value)
	if err != nil {
		return Param{}, 0, fmt.Errorf("param %q: %w", *dj.Name, err)
	}

	p := Param{
		Desc:  Descriptor{Name: *dj.Name, Type: t, Annotations: Annotations(dj.Annotation)},
		Value: v,
	}
	return p, *pj.UID, nil
}

// MarshalValue encodes v as the JSON value of a parameter of type t:
// a number, an array of numbers, or a texture object.
func MarshalValue(t Type, v Value) (json.RawMessage, error) {
	n := t.Components()
	switch {
	case t.IsFloat() && n == 1:
		return json.Marshal(v.Float[0])
	case t.IsFloat():
		return json.Marshal(v.Float[:n])
	case t.IsInt() && n == 1:
		return json.Marshal(v.Int[0])
	case t.IsInt():
		return json.Marshal(v.Int[:n])
	case t.IsTexture():
		return json.Marshal(marshalTexture(t, v.Texture))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
}

func marshalTexture(t Type, td TextureDesc) textureJSON {
	src := td.Source.String()
	out := textureJSON{Source: &src}

	switch td.Source {
	case SourceLoad:
		out.Path = &td.Path
	case SourceCreate:
		out.UseRelativeScale = &td.UseRelativeScale
		if td.UseRelativeScale {
			out.ScaleRelativeTo = &td.ScaleRelativeTo
			out.RelativeScale = &td.RelativeScale
		} else {
			out.Resolution = &td.Resolution
		}
		if td.CreateFormat != gpucore.TextureFormatRGBA16Float {
			f := td.CreateFormat.String()
			out.Format = &f
		}
	}

	if t == TypeSampler2D {
		out.WrapS = &td.WrapS
		out.WrapT = &td.WrapT
	}
	return out
}

// UnmarshalValue decodes the JSON value of a parameter of type t.
func UnmarshalValue(t Type, data json.RawMessage) (Value, error) {
	v := DefaultValue(t)
	n := t.Components()

	switch {
	case t.IsFloat() && n == 1:
		if err := json.Unmarshal(data, &v.Float[0]); err != nil {
			return v, fmt.Errorf("param: %s value: %w", t, err)
		}
	case t.IsFloat():
		var xs []float32
		if err := json.Unmarshal(data, &xs); err != nil {
			return v, fmt.Errorf("param: %s value: %w", t, err)
		}
		if len(xs) != n {
			return v, fmt.Errorf("param: %s value has %d components, want %d", t, len(xs), n)
		}
		copy(v.Float[:], xs)
	case t.IsInt() && n == 1:
		if err := json.Unmarshal(data, &v.Int[0]); err != nil {
			return v, fmt.Errorf("param: %s value: %w", t, err)
		}
	case t.IsInt():
		var xs []int32
		if err := json.Unmarshal(data, &xs); err != nil {
			return v, fmt.Errorf("param: %s value: %w", t, err)
		}
		if len(xs) != n {
			return v, fmt.Errorf("param: %s value has %d components, want %d", t, len(xs), n)
		}
		copy(v.Int[:], xs)
	case t.IsTexture():
		td, err := unmarshalTexture(t, data)
		if err != nil {
			return v, err
		}
		v.Texture = td
	default:
		return v, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	return v, nil
}

func unmarshalTexture(t Type, data json.RawMessage) (TextureDesc, error) {
	td := DefaultTextureDesc()

	var tj textureJSON
	if err := json.Unmarshal(data, &tj); err != nil {
		return td, fmt.Errorf("param: texture value: %w", err)
	}
	if tj.Source == nil {
		return td, missing("source")
	}
	src, err := ParseSource(*tj.Source)
	if err != nil {
		return td, err
	}
	td.Source = src

	switch src {
	case SourceLoad:
		if tj.Path == nil {
			return td, missing("path")
		}
		td.Path = *tj.Path
	case SourceCreate:
		if tj.UseRelativeScale == nil {
			return td, missing("useRelativeScale")
		}
		td.UseRelativeScale = *tj.UseRelativeScale
		if td.UseRelativeScale {
			if tj.ScaleRelativeTo == nil {
				return td, missing("scaleRelativeTo")
			}
			if tj.RelativeScale == nil {
				return td, missing("relativeScale")
			}
			td.ScaleRelativeTo = *tj.ScaleRelativeTo
			td.RelativeScale = *tj.RelativeScale
		} else {
			if tj.Resolution == nil {
				return td, missing("resolution")
			}
			td.Resolution = *tj.Resolution
		}
		if tj.Format != nil {
			f, err := gpucore.ParseTextureFormat(*tj.Format)
			if err != nil {
				return td, err
			}
			td.CreateFormat = f
		}
	}

	if t == TypeSampler2D {
		if tj.WrapS == nil {
			return td, missing("wrapS")
		}
		if tj.WrapT == nil {
			return td, missing("wrapT")
		}
		td.WrapS = *tj.WrapS
		td.WrapT = *tj.WrapT
	}
	return td, nil
}
