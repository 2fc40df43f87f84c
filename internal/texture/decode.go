package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"

	// Register additional decoders with the image package.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/gogpu/rendertoy/gpucore"
)

// ErrNoDecoder is returned when no decoder handles a file.
var ErrNoDecoder = errors.New("texture: no decoder for file")

// Image is a decoded image ready for upload. Rows are stored bottom row
// first, matching the texture coordinate convention of the shaders.
type Image struct {
	Width  uint32
	Height uint32
	Format gpucore.TextureFormat

	// Stride is the length of one row of Pixels in bytes.
	Stride uint32
	Pixels []byte
}

// Decoder decodes one image format. Implementations return rows bottom
// row first.
type Decoder func(r io.Reader) (*Image, error)

var (
	decodersMu sync.RWMutex
	decoders   = map[string]Decoder{}
)

// specialExts are formats the standard decoders cannot read. Files with these
// extensions need a registered Decoder.
var specialExts = map[string]bool{
	".exr": true,
	".dds": true,
	".ktx": true,
}

// RegisterDecoder installs d for files with extension ext (".exr", "dds",
// any case). A registered decoder takes precedence over the built-in ones.
func RegisterDecoder(ext string, d Decoder) {
	ext = normalizeExt(ext)

	decodersMu.Lock()
	defer decodersMu.Unlock()
	if d == nil {
		delete(decoders, ext)
		return
	}
	decoders[ext] = d
}

// HasDecoder reports whether files at path can be decoded without a
// content check: it is false only for a special extension (.exr, .dds, .ktx)
// with no registered decoder.
func HasDecoder(path string) bool {
	ext := normalizeExt(filepath.Ext(path))
	return !specialExts[ext] || lookupDecoder(ext) != nil
}

func lookupDecoder(ext string) Decoder {
	decodersMu.RLock()
	defer decodersMu.RUnlock()
	return decoders[normalizeExt(ext)]
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Decode reads and decodes the image at path.
//
// The decoder is picked by content signature first, then by file extension:
// a decoder registered for the sniffed type, then one registered for the
// extension, then the built-in decoders for PNG, JPEG, GIF, BMP, TIFF and
// WebP. Files with a special extension (.exr, .dds, .ktx) and no registered
// decoder fail with ErrNoDecoder.
func Decode(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeBytes(filepath.Ext(path), data)
}

// DecodeBytes decodes data that was read from a file with extension ext.
func DecodeBytes(ext string, data []byte) (*Image, error) {
	ext = normalizeExt(ext)

	kind, _ := filetype.Match(data)
	if kind != filetype.Unknown {
		if d := lookupDecoder(kind.Extension); d != nil {
			return d(bytes.NewReader(data))
		}
	}
	if d := lookupDecoder(ext); d != nil {
		return d(bytes.NewReader(data))
	}
	if specialExts[ext] && !filetype.IsImage(data) {
		return nil, fmt.Errorf("%w: %s", ErrNoDecoder, ext)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("%w: %s: %w", ErrNoDecoder, ext, err)
		}
		return nil, err
	}
	return FromImage(img), nil
}

// FromImage converts a decoded image to 8-bit sRGB RGBA, flipped so the
// bottom row comes first.
func FromImage(img image.Image) *Image {
	flipped := imaging.FlipV(img)
	b := flipped.Bounds()

	//nolint:gosec // G115: image dimensions are non-negative
	return &Image{
		Width:  uint32(b.Dx()),
		Height: uint32(b.Dy()),
		Format: gpucore.TextureFormatRGBA8UnormSRGB,
		Stride: uint32(flipped.Stride),
		Pixels: flipped.Pix,
	}
}
