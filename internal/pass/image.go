package pass

import (
	"fmt"
	"math"

	"github.com/gogpu/rendertoy/internal/param"
	"github.com/gogpu/rendertoy/internal/texture"
)

// compileImage resolves the texture parameter at index i of params into
// out.Images[i]. Input-sourced images are left alone; the project compiler
// fills them from links.
func compileImage(s *Settings, params []param.Param, i int, out *Compiled) error {
	td := params[i].Value.Texture
	switch td.Source {
	case param.SourceCreate:
		key, err := createKey(s, params, td, out)
		if err != nil {
			return fmt.Errorf("%q: %w", params[i].Desc.Name, err)
		}
		tex, err := s.Textures.CreateTransient(key)
		if err != nil {
			return fmt.Errorf("%q: %w", params[i].Desc.Name, err)
		}
		out.Images[i] = CompiledImage{Texture: tex, Owned: true}

	case param.SourceLoad:
		tex, err := s.Textures.Load(td.Path)
		if err != nil {
			return fmt.Errorf("%w: %q: %w", ErrMissingTexture, params[i].Desc.Name, err)
		}
		out.Images[i] = CompiledImage{Texture: tex}
	}
	return nil
}

// createKey computes the size of a created image. Sizes are clamped to at
// least 1x1.
func createKey(s *Settings, params []param.Param, td param.TextureDesc, out *Compiled) (texture.Key, error) {
	key := texture.Key{Width: 1, Height: 1, Format: td.CreateFormat}

	switch {
	case !td.UseRelativeScale:
		key.Width = clampDim(float64(td.Resolution[0]))
		key.Height = clampDim(float64(td.Resolution[1]))

	case td.ScaleRelativeTo == param.WindowRelative:
		key.Width = scaleDim(td.RelativeScale[0], s.WindowSize[0])
		key.Height = scaleDim(td.RelativeScale[1], s.WindowSize[1])

	default:
		j := findByName(params, td.ScaleRelativeTo)
		if j < 0 {
			slogger().Warn("relative size target not found", "target", td.ScaleRelativeTo)
			break
		}
		other := params[j]
		if !other.Desc.Type.IsTexture() || other.Value.Texture.Source == param.SourceCreate {
			slogger().Warn("relative size target is not an input image", "target", td.ScaleRelativeTo)
			break
		}
		src := out.Images[j].Texture
		if src == nil {
			return key, fmt.Errorf("%w: size target %q", ErrMissingTexture, td.ScaleRelativeTo)
		}
		key.Width = scaleDim(td.RelativeScale[0], src.Key.Width)
		key.Height = scaleDim(td.RelativeScale[1], src.Key.Height)
	}
	return key, nil
}

func scaleDim(scale float32, size uint32) uint32 {
	return clampDim(float64(max(0, scale)) * float64(size))
}

func clampDim(v float64) uint32 {
	if v < 1 || math.IsNaN(v) {
		return 1
	}
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}
