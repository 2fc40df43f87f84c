package shader

import (
	"fmt"

	"github.com/gogpu/naga/ir"

	"github.com/gogpu/rendertoy/gpucore"
	"github.com/gogpu/rendertoy/internal/param"
)

// samplerSuffix names the sampler paired with a sampled texture.
const samplerSuffix = "_sampler"

// Reflect builds a Program from a lowered module. src is the WGSL text the
// module was lowered from; it supplies annotations and the declared format
// and access of storage textures. The returned program has no SPIR-V.
func Reflect(module *ir.Module, src string) (*Program, error) {
	ep, err := computeEntryPoint(module)
	if err != nil {
		return nil, err
	}
	var wg [3]uint32
	for i := range wg {
		wg[i] = uint32(ep.Workgroup[i])
	}
	prog := NewProgram("", ep.Name, wg)

	notes := ParseAnnotations(src)
	storage := parseStorageDecls(src)

	samplers := make(map[string]uint32)
	for _, gv := range module.GlobalVariables {
		if gv.Binding == nil {
			continue
		}
		if _, ok := module.Types[gv.Type].Inner.(ir.SamplerType); ok {
			samplers[gv.Name] = gv.Binding.Binding
		}
	}

	add := func(name string, t param.Type, b Binding) error {
		return prog.AddParam(param.Descriptor{Name: name, Type: t, Annotations: notes[name]}, b)
	}

	for _, gv := range module.GlobalVariables {
		if gv.Binding == nil {
			continue
		}
		if gv.Binding.Group != 0 {
			return nil, fmt.Errorf("%w: %q is in group %d", ErrUnsupportedGroup, gv.Name, gv.Binding.Group)
		}
		inner := module.Types[gv.Type].Inner

		switch gv.Space {
		case ir.SpaceUniform:
			if err := reflectUniform(module, prog, gv, inner, add); err != nil {
				return nil, err
			}

		case ir.SpaceHandle:
			img, ok := inner.(ir.ImageType)
			if !ok || img.Dim != ir.Dim2D {
				continue
			}
			if decl, ok := storage[gv.Name]; ok {
				err = add(gv.Name, param.TypeImage2D, Binding{
					Kind:   BindStorageTexture,
					Slot:   gv.Binding.Binding,
					Access: decl.access,
					Format: decl.format,
				})
			} else if img.Class == ir.ImageClassSampled {
				b := Binding{Kind: BindSampledTexture, Slot: gv.Binding.Binding}
				b.SamplerSlot, b.HasSampler = samplers[gv.Name+samplerSuffix]
				err = add(gv.Name, param.TypeSampler2D, b)
			}
			if err != nil {
				return nil, err
			}
		}
	}

	slogger().Debug("shader: reflected",
		"entry", prog.EntryPoint,
		"params", len(prog.Params),
		"uniforms", len(prog.Uniforms),
		"workgroup", prog.Workgroup)
	return prog, nil
}

func computeEntryPoint(module *ir.Module) (*ir.EntryPoint, error) {
	for i := range module.EntryPoints {
		if module.EntryPoints[i].Stage == ir.StageCompute {
			return &module.EntryPoints[i], nil
		}
	}
	return nil, ErrNoComputeEntryPoint
}

// reflectUniform adds one uniform block and the parameters it holds.
func reflectUniform(module *ir.Module, prog *Program, gv ir.GlobalVariable, inner any,
	add func(string, param.Type, Binding) error) error {
	block := UniformBlock{Name: gv.Name, Slot: gv.Binding.Binding}
	blockIdx := len(prog.Uniforms)

	if st, ok := inner.(ir.StructType); ok {
		var offset uint32
		for _, m := range st.Members {
			t, size, align, err := uniformType(module.Types[m.Type].Inner)
			if err != nil {
				return fmt.Errorf("%w: %s.%s", err, gv.Name, m.Name)
			}
			offset = alignUp(offset, align)
			if err := add(m.Name, t, Binding{Kind: BindUniform, Block: blockIdx, Offset: offset}); err != nil {
				return err
			}
			offset += size
		}
		block.Size = alignUp(offset, 16)
	} else {
		t, size, _, err := uniformType(inner)
		if err != nil {
			return fmt.Errorf("%w: %s", err, gv.Name)
		}
		if err := add(gv.Name, t, Binding{Kind: BindUniform, Block: blockIdx}); err != nil {
			return err
		}
		block.Size = alignUp(size, 16)
	}

	if block.Size == 0 {
		block.Size = 16
	}
	prog.Uniforms = append(prog.Uniforms, block)
	return nil
}

// uniformType maps a 32-bit scalar or vector to a parameter type and
// returns its WGSL uniform size and alignment.
func uniformType(inner any) (t param.Type, size, align uint32, err error) {
	var scalar ir.ScalarType
	n := uint32(1)

	switch v := inner.(type) {
	case ir.ScalarType:
		scalar = v
	case ir.VectorType:
		scalar = v.Scalar
		switch v.Size {
		case ir.Vec2:
			n = 2
		case ir.Vec3:
			n = 3
		case ir.Vec4:
			n = 4
		}
	default:
		return 0, 0, 0, ErrUnsupportedUniform
	}
	if scalar.Width != 4 {
		return 0, 0, 0, ErrUnsupportedUniform
	}

	switch scalar.Kind {
	case ir.ScalarFloat:
		t = param.TypeFloat + param.Type(n-1)
	case ir.ScalarSint, ir.ScalarUint:
		t = param.TypeInt + param.Type(n-1)
	default:
		return 0, 0, 0, ErrUnsupportedUniform
	}

	size = 4 * n
	switch n {
	case 1:
		align = 4
	case 2:
		align = 8
	default:
		align = 16
	}
	return t, size, align, nil
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}

// storageDecl is the declared format and access of a storage texture.
type storageDecl struct {
	format gpucore.TextureFormat
	access gpucore.StorageAccess
}

// wgslFormats maps WGSL texel format names to device formats.
var wgslFormats = map[string]gpucore.TextureFormat{
	"rgba16float": gpucore.TextureFormatRGBA16Float,
	"r32uint":     gpucore.TextureFormatR32Uint,
	"rgba8unorm":  gpucore.TextureFormatRGBA8Unorm,
	"rgba32float": gpucore.TextureFormatRGBA32Float,
}

var wgslAccess = map[string]gpucore.StorageAccess{
	"write":      gpucore.StorageAccessWriteOnly,
	"read":       gpucore.StorageAccessReadOnly,
	"read_write": gpucore.StorageAccessReadWrite,
}

func parseStorageDecls(src string) map[string]storageDecl {
	decls := make(map[string]storageDecl)
	for _, m := range storageDeclRe.FindAllStringSubmatch(src, -1) {
		f, ok := wgslFormats[m[2]]
		if !ok {
			slogger().Warn("shader: unsupported storage format", "name", m[1], "format", m[2])
			continue
		}
		access, ok := wgslAccess[m[3]]
		if !ok {
			continue
		}
		decls[m[1]] = storageDecl{format: f, access: access}
	}
	return decls
}
