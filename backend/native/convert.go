// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package native

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/x448/float16"

	"github.com/gogpu/rendertoy/gpucore"
	srgb "github.com/gogpu/rendertoy/internal/color"
)

// convertTextureFormat maps a gpucore format onto gputypes.
func convertTextureFormat(format gpucore.TextureFormat) gputypes.TextureFormat {
	switch format {
	case gpucore.TextureFormatRGBA16Float:
		return gputypes.TextureFormatRGBA16Float
	case gpucore.TextureFormatR32Uint:
		return gputypes.TextureFormatR32Uint
	case gpucore.TextureFormatRGBA8UnormSRGB:
		return gputypes.TextureFormatRGBA8UnormSrgb
	case gpucore.TextureFormatRGBA8Unorm:
		return gputypes.TextureFormatRGBA8Unorm
	case gpucore.TextureFormatRGBA32Float:
		return gputypes.TextureFormatRGBA32Float
	default:
		return gputypes.TextureFormatRGBA16Float
	}
}

func convertTextureUsage(usage gpucore.TextureUsage) gputypes.TextureUsage {
	var out gputypes.TextureUsage
	if usage&gpucore.TextureUsageCopySrc != 0 {
		out |= gputypes.TextureUsageCopySrc
	}
	if usage&gpucore.TextureUsageCopyDst != 0 {
		out |= gputypes.TextureUsageCopyDst
	}
	if usage&gpucore.TextureUsageTextureBinding != 0 {
		out |= gputypes.TextureUsageTextureBinding
	}
	if usage&gpucore.TextureUsageStorageBinding != 0 {
		out |= gputypes.TextureUsageStorageBinding
	}
	return out
}

func convertAddressMode(m gpucore.AddressMode) gputypes.AddressMode {
	if m == gpucore.AddressModeRepeat {
		return gputypes.AddressModeRepeat
	}
	return gputypes.AddressModeClampToEdge
}

func convertStorageAccess(a gpucore.StorageAccess) gputypes.StorageTextureAccess {
	switch a {
	case gpucore.StorageAccessReadOnly:
		return gputypes.StorageTextureAccessReadOnly
	case gpucore.StorageAccessReadWrite:
		return gputypes.StorageTextureAccessReadWrite
	default:
		return gputypes.StorageTextureAccessWriteOnly
	}
}

// convertBindGroupLayoutEntry converts a gpucore layout entry to gputypes.
// Sampled textures are declared filterable float, matching the linear
// samplers the cache hands out.
func convertBindGroupLayoutEntry(entry gpucore.BindGroupLayoutEntry) (gputypes.BindGroupLayoutEntry, error) {
	result := gputypes.BindGroupLayoutEntry{
		Binding:    entry.Binding,
		Visibility: gputypes.ShaderStageCompute,
	}
	switch entry.Type {
	case gpucore.BindingTypeUniformBuffer:
		result.Buffer = &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeUniform,
			MinBindingSize: entry.MinBindingSize,
		}
	case gpucore.BindingTypeSampler:
		result.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	case gpucore.BindingTypeSampledTexture:
		result.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case gpucore.BindingTypeStorageTexture:
		result.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        convertStorageAccess(entry.Access),
			Format:        convertTextureFormat(entry.Format),
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	default:
		return result, fmt.Errorf("native: binding %d: unsupported type %s", entry.Binding, entry.Type)
	}
	return result, nil
}

// alignRow rounds a row pitch up to the copy alignment of buffer-texture
// copies.
func alignRow(bytesPerRow uint32) uint32 {
	const copyPitchAlignment = 256
	return (bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
}

// unorm16 maps a linear float in [0, 1] to 16 bits, clamping out-of-range
// and NaN values.
func unorm16(f float32) uint16 {
	if !(f > 0) {
		return 0
	}
	if f >= 1 {
		return 0xffff
	}
	return uint16(f*0xffff + 0.5)
}

// toImage converts tightly packed texels of the given format to an image.
// Float formats hold linear color and become sRGB-encoded NRGBA64 with
// values clamped to [0, 1]; r32ui becomes Gray16 keeping the low 16 bits.
func toImage(data []byte, width, height int, format gpucore.TextureFormat) (image.Image, error) {
	rect := image.Rect(0, 0, width, height)
	bpp := int(format.BytesPerPixel())
	if len(data) < width*height*bpp {
		return nil, fmt.Errorf("native: readback has %d bytes, want %d", len(data), width*height*bpp)
	}

	switch format {
	case gpucore.TextureFormatRGBA8Unorm, gpucore.TextureFormatRGBA8UnormSRGB:
		img := image.NewNRGBA(rect)
		copy(img.Pix, data[:width*height*4])
		return img, nil

	case gpucore.TextureFormatRGBA16Float, gpucore.TextureFormatRGBA32Float:
		img := image.NewNRGBA64(rect)
		for y := range height {
			for x := range width {
				var c [4]float32
				off := (y*width + x) * bpp
				for i := range 4 {
					if format == gpucore.TextureFormatRGBA16Float {
						c[i] = float16.Frombits(binary.LittleEndian.Uint16(data[off+2*i:])).Float32()
					} else {
						c[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off+4*i:]))
					}
				}
				img.SetNRGBA64(x, y, color.NRGBA64{
					R: srgb.EncodeSRGB16(c[0]),
					G: srgb.EncodeSRGB16(c[1]),
					B: srgb.EncodeSRGB16(c[2]),
					A: unorm16(c[3]),
				})
			}
		}
		return img, nil

	case gpucore.TextureFormatR32Uint:
		img := image.NewGray16(rect)
		for i := range width * height {
			v := binary.LittleEndian.Uint32(data[4*i:])
			img.SetGray16(i%width, i/width, color.Gray16{Y: uint16(v)}) //nolint:gosec // G115: low 16 bits kept
		}
		return img, nil

	default:
		return nil, fmt.Errorf("native: cannot read back format %s", format)
	}
}
