package texture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/gogpu/rendertoy/gpucore"
	"github.com/gogpu/rendertoy/internal/gputest"
)

var keyRGBA16 = Key{Width: 800, Height: 600, Format: gpucore.TextureFormatRGBA16Float}

func fakeDecode(calls *int) func(string) (*Image, error) {
	return func(path string) (*Image, error) {
		*calls++
		if filepath.Base(path) == "broken.png" {
			return nil, errors.New("corrupt")
		}
		return &Image{
			Width:  4,
			Height: 2,
			Format: gpucore.TextureFormatRGBA8UnormSRGB,
			Stride: 16,
			Pixels: make([]byte, 32),
		}, nil
	}
}

func TestKeyBytes(t *testing.T) {
	if got := keyRGBA16.Bytes(); got != 800*600*8 {
		t.Errorf("Bytes() = %d, want %d", got, 800*600*8)
	}
	if got := keyRGBA16.String(); got != "800x600 rgba16f" {
		t.Errorf("String() = %q", got)
	}
}

func TestTransientReuse(t *testing.T) {
	dev := gputest.NewDevice()
	c := NewCache(dev, CacheConfig{})
	defer c.Close()

	a, err := c.CreateTransient(keyRGBA16)
	if err != nil {
		t.Fatalf("CreateTransient: %v", err)
	}
	if err := c.Release(a); err != nil {
		t.Fatalf("Release: %v", err)
	}

	b, err := c.CreateTransient(keyRGBA16)
	if err != nil {
		t.Fatalf("CreateTransient: %v", err)
	}
	if b != a || b.ID != a.ID {
		t.Errorf("released texture was not reused: %v vs %v", b.ID, a.ID)
	}
	if dev.TexturesCreated() != 1 {
		t.Errorf("TexturesCreated = %d, want 1", dev.TexturesCreated())
	}

	s := c.Stats()
	if s.Allocations != 1 || s.Reuses != 1 || s.CheckedOut != 1 || s.Idle != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestTransientAtMostOneCheckout(t *testing.T) {
	dev := gputest.NewDevice()
	c := NewCache(dev, CacheConfig{})
	defer c.Close()

	a, _ := c.CreateTransient(keyRGBA16)
	b, err := c.CreateTransient(keyRGBA16)
	if err != nil {
		t.Fatalf("CreateTransient: %v", err)
	}
	if a == b || a.ID == b.ID {
		t.Fatal("same texture handed out twice while checked out")
	}

	other := Key{Width: 800, Height: 600, Format: gpucore.TextureFormatR32Uint}
	_ = c.Release(a)
	d, _ := c.CreateTransient(other)
	if d.ID == a.ID {
		t.Error("texture reused across different formats")
	}
	if dev.TexturesCreated() != 3 {
		t.Errorf("TexturesCreated = %d, want 3", dev.TexturesCreated())
	}
}

func TestReleaseErrors(t *testing.T) {
	c := NewCache(gputest.NewDevice(), CacheConfig{})
	defer c.Close()

	a, _ := c.CreateTransient(keyRGBA16)
	if err := c.Release(a); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := c.Release(a); !errors.Is(err, ErrNotCheckedOut) {
		t.Errorf("double Release error = %v, want ErrNotCheckedOut", err)
	}
	if err := c.Release(nil); err != nil {
		t.Errorf("Release(nil) = %v, want nil", err)
	}
	if _, err := c.CreateTransient(Key{Width: 0, Height: 4, Format: gpucore.TextureFormatRGBA16Float}); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("zero key error = %v, want ErrInvalidKey", err)
	}
}

func TestIdleEviction(t *testing.T) {
	dev := gputest.NewDevice()
	c := NewCache(dev, CacheConfig{BudgetMB: MinBudgetMB})
	defer c.Close()

	// 1024x1024 rgba16f is 8 MB; three idle textures exceed 16 MB.
	big := Key{Width: 1024, Height: 1024, Format: gpucore.TextureFormatRGBA16Float}
	var texs []*Texture
	for range 3 {
		tex, err := c.CreateTransient(big)
		if err != nil {
			t.Fatalf("CreateTransient: %v", err)
		}
		texs = append(texs, tex)
	}
	for _, tex := range texs {
		if err := c.Release(tex); err != nil {
			t.Fatalf("Release: %v", err)
		}
	}

	s := c.Stats()
	if s.Evictions != 1 || s.Idle != 2 || s.IdleBytes != 2*big.Bytes() {
		t.Errorf("stats after eviction = %+v", s)
	}
	if dev.LiveTextures() != 2 {
		t.Errorf("LiveTextures = %d, want 2", dev.LiveTextures())
	}
	if _, ok := dev.Texture(texs[0].ID); ok {
		t.Error("least recently released texture should be destroyed")
	}
}

func TestLoadCachesByPath(t *testing.T) {
	dev := gputest.NewDevice()
	calls := 0
	c := NewCache(dev, CacheConfig{Decode: fakeDecode(&calls)})
	defer c.Close()

	a, err := c.Load("img.exr")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, err := c.Load("img.exr")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a != b || calls != 1 {
		t.Errorf("second Load decoded again (calls=%d)", calls)
	}
	if a.Key != (Key{Width: 4, Height: 2, Format: gpucore.TextureFormatRGBA8UnormSRGB}) {
		t.Errorf("Key = %v", a.Key)
	}
	if a.Transient() {
		t.Error("loaded texture reports transient")
	}
	if got, ok := dev.Texture(a.ID); !ok || len(got.Data) != 32 {
		t.Errorf("upload missing: %+v", got)
	}
}

func TestLoadFailureIsRemembered(t *testing.T) {
	calls := 0
	c := NewCache(gputest.NewDevice(), CacheConfig{Decode: fakeDecode(&calls)})
	defer c.Close()

	for range 2 {
		tex, err := c.Load("broken.png")
		if tex != nil || !errors.Is(err, ErrLoadFailed) {
			t.Errorf("Load = %v, %v; want nil, ErrLoadFailed", tex, err)
		}
	}
	if calls != 1 {
		t.Errorf("decode calls = %d, want 1", calls)
	}
	if s := c.Stats(); s.LoadFailures != 1 || s.Loaded != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestSamplerShared(t *testing.T) {
	dev := gputest.NewDevice()
	c := NewCache(dev, CacheConfig{})
	defer c.Close()

	a, _ := c.Sampler(true, false)
	b, _ := c.Sampler(true, false)
	d, _ := c.Sampler(false, false)
	if a != b {
		t.Error("same wrap modes should share a sampler")
	}
	if a == d {
		t.Error("different wrap modes should not share a sampler")
	}
	desc, ok := dev.Sampler(a)
	if !ok || desc.AddressModeU != gpucore.AddressModeRepeat || desc.AddressModeV != gpucore.AddressModeClampToEdge {
		t.Errorf("sampler desc = %+v", desc)
	}
}

func TestCloseDestroysEverything(t *testing.T) {
	dev := gputest.NewDevice()
	calls := 0
	c := NewCache(dev, CacheConfig{Decode: fakeDecode(&calls)})

	_, _ = c.Load("a.png")
	idle, _ := c.CreateTransient(keyRGBA16)
	_, _ = c.CreateTransient(keyRGBA16)
	_ = c.Release(idle)

	c.Close()
	if dev.LiveTextures() != 0 {
		t.Errorf("LiveTextures = %d after Close", dev.LiveTextures())
	}
	if _, err := c.CreateTransient(keyRGBA16); !errors.Is(err, ErrCacheClosed) {
		t.Errorf("CreateTransient after Close = %v, want ErrCacheClosed", err)
	}
	c.Close()
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	red := color.NRGBA{R: 255, A: 255}
	blue := color.NRGBA{B: 255, A: 255}
	img.Set(0, 0, red)
	img.Set(1, 0, red)
	img.Set(0, 1, blue)
	img.Set(1, 1, blue)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeFlipsRows(t *testing.T) {
	img, err := DecodeBytes(".png", encodePNG(t))
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if img.Width != 2 || img.Height != 2 || img.Stride != 8 {
		t.Fatalf("image = %dx%d stride %d", img.Width, img.Height, img.Stride)
	}
	if img.Format != gpucore.TextureFormatRGBA8UnormSRGB {
		t.Errorf("Format = %v", img.Format)
	}
	// The bottom (blue) row comes first.
	if img.Pixels[0] != 0 || img.Pixels[2] != 255 {
		t.Errorf("first row = %v, want blue", img.Pixels[:4])
	}
	if img.Pixels[8] != 255 || img.Pixels[10] != 0 {
		t.Errorf("second row = %v, want red", img.Pixels[8:12])
	}
}

func TestDecodeFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tile.PNG")
	if err := os.WriteFile(path, encodePNG(t), 0o600); err != nil {
		t.Fatal(err)
	}
	img, err := Decode(path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Width != 2 {
		t.Errorf("Width = %d", img.Width)
	}

	if _, err := Decode(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("Decode of missing file should fail")
	}
}

func TestDecodeSpecialFormats(t *testing.T) {
	data := []byte("not an image at all")

	if _, err := DecodeBytes(".exr", data); !errors.Is(err, ErrNoDecoder) {
		t.Errorf(".exr without decoder = %v, want ErrNoDecoder", err)
	}
	if _, err := DecodeBytes(".xyz", data); !errors.Is(err, ErrNoDecoder) {
		t.Errorf("unknown format = %v, want ErrNoDecoder", err)
	}

	for path, want := range map[string]bool{
		"img.exr":      false,
		"maps/env.DDS": false,
		"tex.ktx":      false,
		"photo.png":    true,
		"scan.tif":     true,
		"no-extension": true,
	} {
		if got := HasDecoder(path); got != want {
			t.Errorf("HasDecoder(%q) = %v, want %v", path, got, want)
		}
	}

	RegisterDecoder("EXR", func(r io.Reader) (*Image, error) {
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return &Image{Width: uint32(len(b)), Height: 1, Format: gpucore.TextureFormatRGBA32Float}, nil
	})
	t.Cleanup(func() { RegisterDecoder(".exr", nil) })

	if !HasDecoder("img.exr") {
		t.Error("HasDecoder(img.exr) = false after RegisterDecoder")
	}
	img, err := DecodeBytes(".exr", data)
	if err != nil {
		t.Fatalf("registered decoder: %v", err)
	}
	if img.Width != uint32(len(data)) || img.Format != gpucore.TextureFormatRGBA32Float {
		t.Errorf("image = %+v", img)
	}
}

func TestPreload(t *testing.T) {
	var calls atomic.Int32
	decode := func(path string) (*Image, error) {
		calls.Add(1)
		if filepath.Base(path) == "broken.png" {
			return nil, errors.New("corrupt")
		}
		return &Image{Width: 2, Height: 2, Format: gpucore.TextureFormatRGBA8Unorm, Stride: 8, Pixels: make([]byte, 16)}, nil
	}
	dev := gputest.NewDevice()
	c := NewCache(dev, CacheConfig{Decode: decode})
	defer c.Close()

	paths := []string{"a.png", "b.png", "a.png", "broken.png", "c.png"}
	err := c.Preload(context.Background(), paths)
	if !errors.Is(err, ErrLoadFailed) {
		t.Errorf("Preload() = %v, want ErrLoadFailed for broken.png", err)
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("decoded %d times, want 4", got)
	}
	if s := c.Stats(); s.Loaded != 3 || s.LoadFailures != 1 {
		t.Errorf("stats = %+v", s)
	}

	// Preloaded paths are served without decoding again.
	if _, err := c.Load("b.png"); err != nil {
		t.Fatalf("Load(b.png): %v", err)
	}
	if err := c.Preload(context.Background(), []string{"a.png", "c.png"}); err != nil {
		t.Errorf("second Preload: %v", err)
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("decoded %d times after reuse, want 4", got)
	}
}

func TestPreloadCanceled(t *testing.T) {
	c := NewCache(gputest.NewDevice(), CacheConfig{Decode: fakeDecode(new(int))})
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Preload(ctx, []string{"x.png"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Preload(canceled) = %v, want context.Canceled", err)
	}
	if s := c.Stats(); s.Loaded != 0 {
		t.Errorf("canceled preload loaded %d textures", s.Loaded)
	}
}
