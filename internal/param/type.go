// Package param defines shader parameter descriptors and their runtime values.
//
// A parameter is described by a [Descriptor] (name, [Type], annotations),
// which the shader compiler produces by reflection, and carries a [Value]
// entered by the user or restored from a project file. Texture-typed
// parameters hold a [TextureDesc] that says where the image comes from.
//
// Parameters are identified across shader reloads and project round-trips by
// a [UID] minted from a [UIDs] counter owned by the caller.
package param

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownType is returned by ParseType for unrecognised type names.
var ErrUnknownType = errors.New("param: unknown parameter type")

// Type is the reflected type of a shader parameter.
type Type uint8

// Parameter types.
const (
	// TypeUnknown is the zero value and never describes a valid parameter.
	TypeUnknown Type = iota
	TypeFloat
	TypeFloat2
	TypeFloat3
	TypeFloat4
	TypeInt
	TypeInt2
	TypeInt3
	TypeInt4

	// TypeSampler2D is a filtered texture read through a sampler.
	TypeSampler2D

	// TypeImage2D is a storage image, read or written texel by texel.
	TypeImage2D
)

var typeNames = [...]string{
	TypeUnknown:   "Unknown",
	TypeFloat:     "Float",
	TypeFloat2:    "Float2",
	TypeFloat3:    "Float3",
	TypeFloat4:    "Float4",
	TypeInt:       "Int",
	TypeInt2:      "Int2",
	TypeInt3:      "Int3",
	TypeInt4:      "Int4",
	TypeSampler2D: "Sampler2d",
	TypeImage2D:   "Image2d",
}

// String returns the name used in project files.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// ParseType returns the type with the given project-file name.
func ParseType(s string) (Type, error) {
	for t := TypeFloat; t <= TypeImage2D; t++ {
		if typeNames[t] == s {
			return t, nil
		}
	}
	return TypeUnknown, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// IsTexture reports whether parameters of this type hold a TextureDesc.
func (t Type) IsTexture() bool {
	return t == TypeSampler2D || t == TypeImage2D
}

// IsFloat reports whether t is one of the float scalar or vector types.
func (t Type) IsFloat() bool {
	return t >= TypeFloat && t <= TypeFloat4
}

// IsInt reports whether t is one of the integer scalar or vector types.
func (t Type) IsInt() bool {
	return t >= TypeInt && t <= TypeInt4
}

// Components returns the number of vector components of a scalar or vector
// type, and 0 for texture types.
func (t Type) Components() int {
	switch {
	case t.IsFloat():
		return int(t-TypeFloat) + 1
	case t.IsInt():
		return int(t-TypeInt) + 1
	default:
		return 0
	}
}

// Annotations holds reflection hints attached to a parameter in the shader
// source, such as "min", "max" or "color".
type Annotations map[string]string

// Has reports whether the annotation key is present.
func (a Annotations) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// Float returns the annotation parsed as a float, or def when it is absent
// or malformed.
func (a Annotations) Float(key string, def float32) float32 {
	s, ok := a[key]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return def
	}
	return float32(f)
}

// Int returns the annotation parsed as an integer, or def when it is absent
// or malformed.
func (a Annotations) Int(key string, def int32) int32 {
	s, ok := a[key]
	if !ok {
		return def
	}
	i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return def
	}
	return int32(i)
}

// Descriptor is the static reflection of one shader parameter.
// Descriptors are replaced wholesale when a shader is recompiled.
type Descriptor struct {
	// Name is unique within a pass.
	Name string

	// Type is the reflected parameter type.
	Type Type

	// Annotations are optional hints from the shader source.
	Annotations Annotations
}
