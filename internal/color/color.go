// Package color converts between linear and sRGB-encoded color components.
//
// Compute passes work on linear floating-point color. Images leaving the
// GPU for display or files are sRGB-encoded; alpha is never encoded.
//
// References:
//   - IEC 61966-2-1 (sRGB): https://www.w3.org/Graphics/Color/sRGB
package color

import "math"

// lutBits is the input precision of the encode table.
const lutBits = 12

const lutSize = 1 << lutBits

// linearToSRGB16 maps a linear value quantized to lutBits to a 16-bit sRGB
// value.
var linearToSRGB16 [lutSize]uint16

func init() {
	for i := range lutSize {
		s := LinearToSRGB(float32(i) / (lutSize - 1))
		linearToSRGB16[i] = uint16(math.Round(float64(s) * 0xffff)) //nolint:gosec // G115: s is in [0,1]
	}
}

// SRGBToLinear decodes an sRGB component in [0,1].
func SRGBToLinear(s float32) float32 {
	if s <= 0.04045 {
		return s / 12.92
	}
	return float32(math.Pow(float64((s+0.055)/1.055), 2.4))
}

// LinearToSRGB encodes a linear component. Values outside [0,1] and NaN are
// clamped first.
func LinearToSRGB(l float32) float32 {
	l = clamp01(l)
	if l <= 0.0031308 {
		return l * 12.92
	}
	return 1.055*float32(math.Pow(float64(l), 1.0/2.4)) - 0.055
}

// EncodeSRGB16 encodes a linear component to a 16-bit sRGB value using a
// lookup table with 12 bits of input precision.
func EncodeSRGB16(l float32) uint16 {
	return linearToSRGB16[int(clamp01(l)*(lutSize-1)+0.5)]
}

func clamp01(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v >= 0:
		return v
	default: // negative or NaN
		return 0
	}
}
