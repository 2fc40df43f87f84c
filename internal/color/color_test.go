package color

import (
	"math"
	"testing"
)

func TestSRGBRoundTrip(t *testing.T) {
	for i := range 256 {
		s := float32(i) / 255
		got := LinearToSRGB(SRGBToLinear(s))
		if math.Abs(float64(got-s)) > 1e-4 {
			t.Errorf("round trip of %v = %v", s, got)
		}
	}
}

func TestLinearToSRGB(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want float32
	}{
		{"black", 0, 0},
		{"white", 1, 1},
		{"linear segment", 0.002, 0.002 * 12.92},
		{"mid grey", 0.5, 0.7354},
		{"negative", -3, 0},
		{"over range", 8, 1},
		{"NaN", float32(math.NaN()), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LinearToSRGB(tt.in); math.Abs(float64(got-tt.want)) > 1e-4 {
				t.Errorf("LinearToSRGB(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncodeSRGB16(t *testing.T) {
	if got := EncodeSRGB16(0); got != 0 {
		t.Errorf("EncodeSRGB16(0) = %d", got)
	}
	if got := EncodeSRGB16(1); got != 0xffff {
		t.Errorf("EncodeSRGB16(1) = %#x", got)
	}
	if got := EncodeSRGB16(2); got != 0xffff {
		t.Errorf("EncodeSRGB16(2) = %#x", got)
	}

	// The table agrees with the exact curve to within one 8-bit step.
	for i := range 1000 {
		l := float32(i) / 999
		exact := float64(LinearToSRGB(l)) * 0xffff
		if d := math.Abs(float64(EncodeSRGB16(l)) - exact); d > 0xffff/255 {
			t.Errorf("EncodeSRGB16(%v) = %d, exact %.0f", l, EncodeSRGB16(l), exact)
		}
	}

	prev := uint16(0)
	for i := range 4096 {
		v := EncodeSRGB16(float32(i) / 4095)
		if v < prev {
			t.Fatalf("EncodeSRGB16 not monotonic at %d", i)
		}
		prev = v
	}
}
