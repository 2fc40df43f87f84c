package shader

import (
	"crypto/sha256"
	"os"

	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
	"github.com/gogpu/naga/wgsl"

	"github.com/gogpu/rendertoy/internal/cache"
)

// ProgramCacheSize is the number of compiled programs a WGSLCompiler keeps.
const ProgramCacheSize = 64

type programKey struct {
	path string
	sum  [sha256.Size]byte
}

// WGSLCompiler compiles WGSL files with naga.
//
// Programs are cached by path and source content, so passes sharing a
// shader and saves that leave the source unchanged skip recompilation.
// Cached programs are shared and must not be modified.
type WGSLCompiler struct {
	readFile func(string) ([]byte, error)
	programs *cache.Cache[programKey, *Program]
}

// NewWGSLCompiler returns a compiler reading shader files from disk.
func NewWGSLCompiler() *WGSLCompiler {
	return &WGSLCompiler{
		readFile: os.ReadFile,
		programs: cache.New[programKey, *Program](ProgramCacheSize),
	}
}

// Compile reads, parses, reflects and compiles the shader at path.
func (c *WGSLCompiler) Compile(path string) (*Program, error) {
	src, err := c.readFile(path)
	if err != nil {
		return nil, &CompileError{Path: path, Stage: "read", Err: err}
	}
	if c.programs == nil {
		return CompileSource(path, string(src))
	}

	key := programKey{path: path, sum: sha256.Sum256(src)}
	if prog, ok := c.programs.Get(key); ok {
		slogger().Debug("shader: unchanged, using cached program", "path", path)
		return prog, nil
	}
	prog, err := CompileSource(path, string(src))
	if err != nil {
		return nil, err
	}
	c.programs.Set(key, prog)
	return prog, nil
}

// CacheStats returns statistics of the program cache.
func (c *WGSLCompiler) CacheStats() cache.Stats {
	if c.programs == nil {
		return cache.Stats{}
	}
	return c.programs.Stats()
}

// CompileSource compiles WGSL source text. path is only used for labels and
// diagnostics.
func CompileSource(path, src string) (*Program, error) {
	module, err := lower(path, src)
	if err != nil {
		return nil, err
	}

	prog, err := Reflect(module, src)
	if err != nil {
		return nil, &CompileError{Path: path, Stage: "reflect", Err: err}
	}
	prog.Path = path

	code, err := spirv.NewBackend(spirv.DefaultOptions()).Compile(module)
	if err != nil {
		return nil, &CompileError{Path: path, Stage: "spirv", Err: err}
	}
	prog.SPIRV = spirvWords(code)

	slogger().Info("shader: compiled", "path", path, "params", len(prog.Params), "words", len(prog.SPIRV))
	return prog, nil
}

func lower(path, src string) (*ir.Module, error) {
	tokens, err := wgsl.NewLexer(src).Tokenize()
	if err != nil {
		return nil, &CompileError{Path: path, Stage: "parse", Err: err}
	}
	ast, err := wgsl.NewParser(tokens).Parse()
	if err != nil {
		return nil, &CompileError{Path: path, Stage: "parse", Err: err}
	}
	module, err := wgsl.LowerWithSource(ast, src)
	if err != nil {
		return nil, &CompileError{Path: path, Stage: "lower", Err: err}
	}
	return module, nil
}

// spirvWords converts SPIR-V bytes to little-endian 32-bit words.
func spirvWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words
}
