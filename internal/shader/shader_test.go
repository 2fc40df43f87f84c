package shader

import (
	"errors"
	"testing"

	"github.com/gogpu/naga/ir"

	"github.com/gogpu/rendertoy/gpucore"
	"github.com/gogpu/rendertoy/internal/param"
)

const blurSource = `
struct Params {
    radius: f32, // @min(0) @max(32)
    offset: vec2<f32>,
    taps: i32, // @min(1) @max(16)
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var src: texture_2d<f32>;
@group(0) @binding(2) var src_sampler: sampler;
@group(0) @binding(3) var dst: texture_storage_2d<rgba16float, write>; // @output

@compute @workgroup_size(8, 8)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let size = textureDimensions(dst);
    if (id.x >= size.x || id.y >= size.y) {
        return;
    }
    let uv = (vec2<f32>(id.xy) + 0.5) / vec2<f32>(size);
    textureStore(dst, id.xy, textureSampleLevel(src, src_sampler, uv, 0.0));
}
`

// blurModule is the lowered form of blurSource as far as reflection sees it.
func blurModule() *ir.Module {
	f32 := ir.ScalarType{Kind: ir.ScalarFloat, Width: 4}
	i32 := ir.ScalarType{Kind: ir.ScalarSint, Width: 4}

	types := []ir.Type{
		{Name: "", Inner: f32}, // 0
		{Name: "", Inner: ir.VectorType{Size: ir.Vec2, Scalar: f32}}, // 1
		{Name: "", Inner: i32}, // 2
		{Name: "Params", Inner: ir.StructType{Members: []ir.StructMember{
			{Name: "radius", Type: 0},
			{Name: "offset", Type: 1},
			{Name: "taps", Type: 2},
		}}}, // 3
		{Name: "", Inner: ir.ImageType{Dim: ir.Dim2D, Class: ir.ImageClassSampled}}, // 4
		{Name: "", Inner: ir.SamplerType{Comparison: false}},                        // 5
		{Name: "", Inner: ir.ImageType{Dim: ir.Dim2D}},                              // 6: storage
	}

	globals := []ir.GlobalVariable{
		{Name: "params", Space: ir.SpaceUniform, Binding: &ir.ResourceBinding{Group: 0, Binding: 0}, Type: 3},
		{Name: "src", Space: ir.SpaceHandle, Binding: &ir.ResourceBinding{Group: 0, Binding: 1}, Type: 4},
		{Name: "src_sampler", Space: ir.SpaceHandle, Binding: &ir.ResourceBinding{Group: 0, Binding: 2}, Type: 5},
		{Name: "dst", Space: ir.SpaceHandle, Binding: &ir.ResourceBinding{Group: 0, Binding: 3}, Type: 6},
	}

	return &ir.Module{
		Types:           types,
		GlobalVariables: globals,
		EntryPoints: []ir.EntryPoint{
			{Name: "main", Stage: ir.StageCompute, Function: ir.Function{}, Workgroup: [3]uint32{8, 8, 0}},
		},
	}
}

func TestReflectParams(t *testing.T) {
	prog, err := Reflect(blurModule(), blurSource)
	if err != nil {
		t.Fatalf("Reflect() error = %v", err)
	}

	want := []struct {
		name string
		typ  param.Type
	}{
		{"radius", param.TypeFloat},
		{"offset", param.TypeFloat2},
		{"taps", param.TypeInt},
		{"src", param.TypeSampler2D},
		{"dst", param.TypeImage2D},
	}
	if len(prog.Params) != len(want) {
		t.Fatalf("got %d params, want %d: %+v", len(prog.Params), len(want), prog.Params)
	}
	for i, w := range want {
		if prog.Params[i].Name != w.name || prog.Params[i].Type != w.typ {
			t.Errorf("param %d = %s %v, want %s %v", i, prog.Params[i].Name, prog.Params[i].Type, w.name, w.typ)
		}
	}

	if prog.EntryPoint != "main" {
		t.Errorf("EntryPoint = %q, want main", prog.EntryPoint)
	}
	if prog.Workgroup != [3]uint32{8, 8, 1} {
		t.Errorf("Workgroup = %v, want [8 8 1]", prog.Workgroup)
	}
}

func TestReflectBindings(t *testing.T) {
	prog, err := Reflect(blurModule(), blurSource)
	if err != nil {
		t.Fatalf("Reflect() error = %v", err)
	}

	tests := []struct {
		name string
		want Binding
	}{
		{"radius", Binding{Kind: BindUniform, Block: 0, Offset: 0}},
		{"offset", Binding{Kind: BindUniform, Block: 0, Offset: 8}},
		{"taps", Binding{Kind: BindUniform, Block: 0, Offset: 16}},
		{"src", Binding{Kind: BindSampledTexture, Slot: 1, HasSampler: true, SamplerSlot: 2}},
		{"dst", Binding{
			Kind:   BindStorageTexture,
			Slot:   3,
			Access: gpucore.StorageAccessWriteOnly,
			Format: gpucore.TextureFormatRGBA16Float,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := prog.Binding(tt.name)
			if !ok {
				t.Fatalf("no binding for %q", tt.name)
			}
			if got != tt.want {
				t.Errorf("Binding(%q) = %+v, want %+v", tt.name, got, tt.want)
			}
		})
	}

	if _, ok := prog.Binding("src_sampler"); ok {
		t.Error("paired sampler should not be a parameter")
	}

	if len(prog.Uniforms) != 1 {
		t.Fatalf("got %d uniform blocks, want 1", len(prog.Uniforms))
	}
	if u := prog.Uniforms[0]; u.Name != "params" || u.Slot != 0 || u.Size != 32 {
		t.Errorf("uniform block = %+v, want params@0 size 32", u)
	}
}

func TestReflectAnnotations(t *testing.T) {
	prog, err := Reflect(blurModule(), blurSource)
	if err != nil {
		t.Fatalf("Reflect() error = %v", err)
	}
	radius := prog.Params[0].Annotations
	if got := radius.Float("max", 1); got != 32 {
		t.Errorf("radius max = %v, want 32", got)
	}
	if got := prog.Params[2].Annotations.Int("min", 0); got != 1 {
		t.Errorf("taps min = %v, want 1", got)
	}
	if prog.Params[1].Annotations != nil {
		t.Errorf("offset annotations = %v, want none", prog.Params[1].Annotations)
	}
	if !prog.Params[4].Annotations.Has("output") {
		t.Error("dst should carry the output flag")
	}
}

func TestLayout(t *testing.T) {
	prog, err := Reflect(blurModule(), blurSource)
	if err != nil {
		t.Fatalf("Reflect() error = %v", err)
	}
	layout := prog.Layout()

	want := []gpucore.BindGroupLayoutEntry{
		{Binding: 0, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: 32},
		{Binding: 1, Type: gpucore.BindingTypeSampledTexture},
		{Binding: 2, Type: gpucore.BindingTypeSampler},
		{Binding: 3, Type: gpucore.BindingTypeStorageTexture,
			Access: gpucore.StorageAccessWriteOnly, Format: gpucore.TextureFormatRGBA16Float},
	}
	if len(layout) != len(want) {
		t.Fatalf("layout has %d entries, want %d", len(layout), len(want))
	}
	for i := range want {
		if layout[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, layout[i], want[i])
		}
	}
}

func TestReflectErrors(t *testing.T) {
	t.Run("no compute entry", func(t *testing.T) {
		m := blurModule()
		m.EntryPoints[0].Stage = ir.StageFragment
		if _, err := Reflect(m, blurSource); !errors.Is(err, ErrNoComputeEntryPoint) {
			t.Errorf("error = %v, want ErrNoComputeEntryPoint", err)
		}
	})

	t.Run("group 1", func(t *testing.T) {
		m := blurModule()
		m.GlobalVariables[1].Binding = &ir.ResourceBinding{Group: 1, Binding: 0}
		if _, err := Reflect(m, blurSource); !errors.Is(err, ErrUnsupportedGroup) {
			t.Errorf("error = %v, want ErrUnsupportedGroup", err)
		}
	})

	t.Run("f16 uniform", func(t *testing.T) {
		m := blurModule()
		m.Types[0].Inner = ir.ScalarType{Kind: ir.ScalarFloat, Width: 2}
		if _, err := Reflect(m, blurSource); !errors.Is(err, ErrUnsupportedUniform) {
			t.Errorf("error = %v, want ErrUnsupportedUniform", err)
		}
	})
}

func TestParseAnnotations(t *testing.T) {
	src := `
struct U {
    gain: f32, // @min(-1.5) @max( 2 )
    tint: vec3<f32>, // @color
    plain: f32, // just a comment
    bare: f32,
}
`
	got := ParseAnnotations(src)

	if g := got["gain"]; g["min"] != "-1.5" || g["max"] != "2" {
		t.Errorf("gain = %v", g)
	}
	if tint, ok := got["tint"]; !ok || !tint.Has("color") || tint["color"] != "" {
		t.Errorf("tint = %v, want color flag", tint)
	}
	if _, ok := got["plain"]; ok {
		t.Error("comment without annotations should be ignored")
	}
	if _, ok := got["bare"]; ok {
		t.Error("line without comment should be ignored")
	}
}

func TestNewProgramAddParam(t *testing.T) {
	p := NewProgram("x.wgsl", "main", [3]uint32{16, 0, 0})
	if p.Workgroup != [3]uint32{16, 1, 1} {
		t.Errorf("Workgroup = %v", p.Workgroup)
	}
	d := param.Descriptor{Name: "out", Type: param.TypeImage2D}
	if err := p.AddParam(d, Binding{Kind: BindStorageTexture}); err != nil {
		t.Fatalf("AddParam: %v", err)
	}
	if err := p.AddParam(d, Binding{Kind: BindStorageTexture}); !errors.Is(err, ErrDuplicateParam) {
		t.Errorf("duplicate AddParam error = %v, want ErrDuplicateParam", err)
	}
}

func TestCompileError(t *testing.T) {
	c := &WGSLCompiler{readFile: func(string) ([]byte, error) { return nil, errors.New("gone") }}
	_, err := c.Compile("missing.wgsl")

	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %T %v, want *CompileError", err, err)
	}
	if ce.Path != "missing.wgsl" || ce.Stage != "read" {
		t.Errorf("CompileError = %+v", ce)
	}
}

func TestCompileSource(t *testing.T) {
	prog, err := CompileSource("blur.wgsl", blurSource)
	if err != nil {
		var ce *CompileError
		if errors.As(err, &ce) && ce.Stage != "reflect" {
			t.Skipf("naga cannot compile the sample (skipping): %v", err)
		}
		t.Fatalf("CompileSource() error = %v", err)
	}
	if len(prog.SPIRV) == 0 || prog.SPIRV[0] != 0x07230203 {
		t.Errorf("SPIR-V header missing")
	}
	if len(prog.Params) != 5 {
		t.Errorf("got %d params, want 5", len(prog.Params))
	}
}

func TestCompilerCachesUnchangedSource(t *testing.T) {
	src := blurSource
	reads := 0
	c := NewWGSLCompiler()
	c.readFile = func(string) ([]byte, error) {
		reads++
		return []byte(src), nil
	}

	first, err := c.Compile("blur.wgsl")
	if err != nil {
		t.Skipf("naga cannot compile the sample (skipping): %v", err)
	}
	second, err := c.Compile("blur.wgsl")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("unchanged source was recompiled")
	}
	if reads != 2 {
		t.Errorf("read the file %d times, want 2", reads)
	}

	src = blurSource + "\n// edited\n"
	third, err := c.Compile("blur.wgsl")
	if err != nil {
		t.Fatal(err)
	}
	if third == first {
		t.Error("edited source returned the cached program")
	}
	if s := c.CacheStats(); s.Hits != 1 || s.Len != 2 {
		t.Errorf("cache stats = %+v, want 1 hit and 2 entries", s)
	}
}
