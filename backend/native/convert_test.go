// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package native

import (
	"encoding/binary"
	"image"
	"math"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendertoy/gpucore"
	srgb "github.com/gogpu/rendertoy/internal/color"
)

func TestAlignRow(t *testing.T) {
	tests := []struct {
		in, want uint32
	}{
		{0, 0},
		{1, 256},
		{256, 256},
		{257, 512},
		{100 * 8, 1024},
	}
	for _, tt := range tests {
		if got := alignRow(tt.in); got != tt.want {
			t.Errorf("alignRow(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestToImageHalfRange(t *testing.T) {
	tests := []struct {
		name  string
		red   uint16
		wantR uint16
	}{
		{"negative", 0xc000, 0},
		{"max", 0x7bff, 0xffff},
		{"inf", 0x7c00, 0xffff},
		{"nan", 0x7e00, 0},
		{"negative zero", 0x8000, 0},
		{"quarter", 0x3400, srgb.EncodeSRGB16(0.25)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, 8)
			binary.LittleEndian.PutUint16(data, tt.red)
			binary.LittleEndian.PutUint16(data[6:], 0x3c00)
			img, err := toImage(data, 1, 1, gpucore.TextureFormatRGBA16Float)
			if err != nil {
				t.Fatal(err)
			}
			if c := img.(*image.NRGBA64).NRGBA64At(0, 0); c.R != tt.wantR || c.A != 0xffff {
				t.Errorf("red %#04x -> %v, want R=%#x", tt.red, c, tt.wantR)
			}
		})
	}
}

func TestUnorm16(t *testing.T) {
	tests := []struct {
		in   float32
		want uint16
	}{
		{-1, 0},
		{0, 0},
		{0.5, 0x8000},
		{1, 0xffff},
		{4, 0xffff},
		{float32(math.NaN()), 0},
	}
	for _, tt := range tests {
		if got := unorm16(tt.in); got != tt.want {
			t.Errorf("unorm16(%v) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}

func TestToImage(t *testing.T) {
	t.Run("rgba8", func(t *testing.T) {
		data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
		img, err := toImage(data, 2, 1, gpucore.TextureFormatRGBA8Unorm)
		if err != nil {
			t.Fatal(err)
		}
		nrgba, ok := img.(*image.NRGBA)
		if !ok {
			t.Fatalf("got %T, want *image.NRGBA", img)
		}
		if c := nrgba.NRGBAAt(1, 0); c.R != 5 || c.A != 8 {
			t.Errorf("pixel (1,0) = %v", c)
		}
	})

	t.Run("rgba16f", func(t *testing.T) {
		data := make([]byte, 8)
		for i, h := range []uint16{0x3c00, 0x3800, 0x0000, 0x4000} { // 1, 0.5, 0, 2
			binary.LittleEndian.PutUint16(data[2*i:], h)
		}
		img, err := toImage(data, 1, 1, gpucore.TextureFormatRGBA16Float)
		if err != nil {
			t.Fatal(err)
		}
		c := img.(*image.NRGBA64).NRGBA64At(0, 0)
		if c.R != 0xffff || c.G != srgb.EncodeSRGB16(0.5) || c.B != 0 || c.A != 0xffff {
			t.Errorf("pixel = %v", c)
		}
		if c.G <= 0x8000 {
			t.Errorf("green %#x was not sRGB-encoded", c.G)
		}
	})

	t.Run("rgba32f", func(t *testing.T) {
		data := make([]byte, 16)
		for i, f := range []float32{0.25, 1, 0, 1} {
			binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(f))
		}
		img, err := toImage(data, 1, 1, gpucore.TextureFormatRGBA32Float)
		if err != nil {
			t.Fatal(err)
		}
		if c := img.(*image.NRGBA64).NRGBA64At(0, 0); c.R != srgb.EncodeSRGB16(0.25) || c.G != 0xffff {
			t.Errorf("pixel = %v", c)
		}
	})

	t.Run("r32ui", func(t *testing.T) {
		data := make([]byte, 8)
		binary.LittleEndian.PutUint32(data, 7)
		binary.LittleEndian.PutUint32(data[4:], 0x12345)
		img, err := toImage(data, 2, 1, gpucore.TextureFormatR32Uint)
		if err != nil {
			t.Fatal(err)
		}
		g := img.(*image.Gray16)
		if g.Gray16At(0, 0).Y != 7 || g.Gray16At(1, 0).Y != 0x2345 {
			t.Errorf("pixels = %v %v", g.Gray16At(0, 0), g.Gray16At(1, 0))
		}
	})

	t.Run("short data", func(t *testing.T) {
		if _, err := toImage(make([]byte, 3), 1, 1, gpucore.TextureFormatRGBA8Unorm); err == nil {
			t.Error("expected error for short readback")
		}
	})
}

func TestConvertBindGroupLayoutEntry(t *testing.T) {
	got, err := convertBindGroupLayoutEntry(gpucore.BindGroupLayoutEntry{
		Binding: 3,
		Type:    gpucore.BindingTypeStorageTexture,
		Access:  gpucore.StorageAccessReadWrite,
		Format:  gpucore.TextureFormatR32Uint,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Binding != 3 || got.Visibility != gputypes.ShaderStageCompute {
		t.Errorf("entry = %+v", got)
	}
	if got.StorageTexture == nil ||
		got.StorageTexture.Access != gputypes.StorageTextureAccessReadWrite ||
		got.StorageTexture.Format != gputypes.TextureFormatR32Uint {
		t.Errorf("storage texture = %+v", got.StorageTexture)
	}

	got, err = convertBindGroupLayoutEntry(gpucore.BindGroupLayoutEntry{
		Binding:        0,
		Type:           gpucore.BindingTypeUniformBuffer,
		MinBindingSize: 32,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Buffer == nil || got.Buffer.MinBindingSize != 32 || got.Buffer.Type != gputypes.BufferBindingTypeUniform {
		t.Errorf("buffer = %+v", got.Buffer)
	}

	if _, err := convertBindGroupLayoutEntry(gpucore.BindGroupLayoutEntry{Type: gpucore.BindingType(99)}); err == nil {
		t.Error("expected error for unknown binding type")
	}
}
