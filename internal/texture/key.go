// Package texture owns the GPU images used by the compositor.
//
// Two kinds of image live in a [Cache]:
//
//   - Loaded textures are decoded from files. Each path is decoded and
//     uploaded at most once per cache; the entry is kept until the cache is
//     closed, and a failed load is remembered as absent.
//   - Transient textures are intermediate images created by passes. They are
//     checked out by [Key] and handed back with Release after the frame's
//     dispatch. A released texture is reused by the next request with the
//     same key; idle textures beyond the byte budget are destroyed, least
//     recently released first.
//
// Transient contents are not preserved across frames.
package texture

import (
	"fmt"

	"github.com/gogpu/rendertoy/gpucore"
)

// Key identifies interchangeable textures: two textures with equal keys can
// stand in for each other.
type Key struct {
	Width  uint32
	Height uint32
	Format gpucore.TextureFormat
}

// Bytes returns the memory footprint of a texture with this key.
func (k Key) Bytes() uint64 {
	return uint64(k.Width) * uint64(k.Height) * uint64(k.Format.BytesPerPixel())
}

// String returns "WxH format".
func (k Key) String() string {
	return fmt.Sprintf("%dx%d %s", k.Width, k.Height, k.Format)
}

// Texture is a GPU image owned by a Cache. Passes hold *Texture values as
// shared references; only the cache destroys the underlying resource.
type Texture struct {
	ID  gpucore.TextureID
	Key Key

	// Path is the source file of a loaded texture, empty for transients.
	Path string
}

// Transient reports whether the texture came from CreateTransient.
func (t *Texture) Transient() bool { return t.Path == "" }
