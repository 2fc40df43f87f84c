// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package native

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Register every HAL backend of this platform via init().
	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/gogpu/rendertoy/gpucore"
)

// Device errors.
var (
	// ErrNoAdapter is returned by New when no GPU adapter is available.
	ErrNoAdapter = errors.New("native: no GPU adapter found")

	// ErrNoHAL is returned by NewFromProvider when the provider does not
	// expose HAL device and queue handles.
	ErrNoHAL = errors.New("native: provider does not expose HAL types")

	// ErrUnknownResource is returned when an ID does not name a live
	// resource of this device.
	ErrUnknownResource = errors.New("native: unknown resource")

	// ErrClosed is returned by operations on a closed device.
	ErrClosed = errors.New("native: device closed")
)

// Presenter receives the presented image of every frame.
type Presenter func(img image.Image) error

// Config holds configuration for creating a Device.
type Config struct {
	// Backend selects the HAL backend for New. The zero value,
	// gputypes.BackendEmpty, is the gogpu/wgpu software backend.
	Backend gputypes.Backend

	// Presenter receives the output image on Present. When nil the frame is
	// submitted and nothing is read back.
	Presenter Presenter
}

type texture struct {
	tex   hal.Texture
	view  hal.TextureView
	desc  gpucore.TextureDesc
	usage gputypes.TextureUsage // current usage, for barriers
}

type pipeline struct {
	module   hal.ShaderModule
	bgl      hal.BindGroupLayout
	layout   hal.PipelineLayout
	pipeline hal.ComputePipeline
	entries  map[uint32]gpucore.BindGroupLayoutEntry
}

// Device is a gpucore.Device backed by a HAL device.
//
// Resource creation is safe for concurrent use. Dispatch and Present must be
// called from one goroutine.
type Device struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	external bool // device and queue belong to a provider
	name     string

	maxWorkgroup [3]uint32
	presenter    Presenter

	nextID atomic.Uint64

	textures  map[gpucore.TextureID]*texture
	samplers  map[gpucore.SamplerID]hal.Sampler
	pipelines map[gpucore.ComputePipelineID]*pipeline

	// Per-frame recording state.
	encoder    hal.CommandEncoder
	frameBufs  []hal.Buffer
	frameGroup []hal.BindGroup

	closed bool
}

var _ gpucore.Device = (*Device)(nil)

// New opens the first discrete or integrated GPU of the configured backend,
// falling back to any adapter.
func New(cfg Config) (*Device, error) {
	variant := cfg.Backend
	backend, ok := hal.GetBackend(variant)
	if !ok {
		return nil, fmt.Errorf("native: %s backend not available", variant)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("native: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	limits := gputypes.DefaultLimits()
	open, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("native: open device: %w", err)
	}

	d := newDevice(open.Device, open.Queue, limits, cfg)
	d.instance = instance
	d.name = selected.Info.Name
	slogger().Info("GPU device opened", "adapter", d.name, "backend", variant)
	return d, nil
}

// NewFromProvider shares the device of a host application. The provider
// must implement HalDevice() any and HalQueue() any returning hal.Device
// and hal.Queue. The shared device is not destroyed by Close.
func NewFromProvider(provider gpucontext.DeviceProvider, cfg Config) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHAL)
	}

	d := newDevice(device, queue, gputypes.DefaultLimits(), cfg)
	d.external = true
	d.name = provider.AdapterInfo().Name
	slogger().Info("using shared GPU device", "adapter", d.name, "surface", provider.SurfaceFormat())
	return d, nil
}

func newDevice(device hal.Device, queue hal.Queue, limits gputypes.Limits, cfg Config) *Device {
	d := &Device{
		device: device,
		queue:  queue,
		maxWorkgroup: [3]uint32{
			limits.MaxComputeWorkgroupSizeX,
			limits.MaxComputeWorkgroupSizeY,
			limits.MaxComputeWorkgroupSizeZ,
		},
		presenter: cfg.Presenter,
		textures:  make(map[gpucore.TextureID]*texture),
		samplers:  make(map[gpucore.SamplerID]hal.Sampler),
		pipelines: make(map[gpucore.ComputePipelineID]*pipeline),
	}
	// Start ID generation at 1 (0 is invalid)
	d.nextID.Store(1)
	return d
}

func (d *Device) newID() uint64 {
	return d.nextID.Add(1) - 1
}

// Name returns the adapter name.
func (d *Device) Name() string { return d.name }

// SetPresenter replaces the presenter.
func (d *Device) SetPresenter(p Presenter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presenter = p
}

// MaxWorkgroupSize returns the maximum workgroup size in each dimension.
func (d *Device) MaxWorkgroupSize() [3]uint32 { return d.maxWorkgroup }

// === Textures ===

// CreateTexture creates a 2D texture and its default view.
func (d *Device) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: texture %q: dimensions must be positive", desc.Label)
	}
	format := convertTextureFormat(desc.Format)

	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         convertTextureUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create texture %q: %w", desc.Label, err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         desc.Label + " view",
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return gpucore.InvalidID, fmt.Errorf("native: create view %q: %w", desc.Label, err)
	}

	id := gpucore.TextureID(d.newID())
	d.mu.Lock()
	d.textures[id] = &texture{tex: tex, view: view, desc: *desc}
	d.mu.Unlock()
	return id, nil
}

// WriteTexture uploads data covering the whole texture.
func (d *Device) WriteTexture(id gpucore.TextureID, data []byte, bytesPerRow uint32) error {
	d.mu.Lock()
	t, ok := d.textures[id]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: texture %d", ErrUnknownResource, id)
	}
	if need := uint64(bytesPerRow) * uint64(t.desc.Height); uint64(len(data)) < need {
		return fmt.Errorf("native: texture %d: %d bytes, want %d", id, len(data), need)
	}

	err := d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0, Aspect: gputypes.TextureAspectAll},
		data,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: bytesPerRow, RowsPerImage: t.desc.Height},
		&hal.Extent3D{Width: t.desc.Width, Height: t.desc.Height, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("native: write texture %d: %w", id, err)
	}
	t.usage = gputypes.TextureUsageCopyDst
	return nil
}

// DestroyTexture releases a texture and its view.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	t, ok := d.textures[id]
	if ok {
		delete(d.textures, id)
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroyTextureView(t.view)
		d.device.DestroyTexture(t.tex)
	}
}

// === Samplers ===

// CreateSampler creates a linear-filtering sampler.
func (d *Device) CreateSampler(desc *gpucore.SamplerDesc) (gpucore.SamplerID, error) {
	s, err := d.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        desc.Label,
		AddressModeU: convertAddressMode(desc.AddressModeU),
		AddressModeV: convertAddressMode(desc.AddressModeV),
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
		Anisotropy:   1,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create sampler %q: %w", desc.Label, err)
	}

	id := gpucore.SamplerID(d.newID())
	d.mu.Lock()
	d.samplers[id] = s
	d.mu.Unlock()
	return id, nil
}

// DestroySampler releases a sampler.
func (d *Device) DestroySampler(id gpucore.SamplerID) {
	d.mu.Lock()
	s, ok := d.samplers[id]
	if ok {
		delete(d.samplers, id)
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroySampler(s)
	}
}

// === Pipelines ===

// CreateComputePipeline creates the shader module, bind group layout,
// pipeline layout and pipeline for desc.
func (d *Device) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	if len(desc.SPIRV) == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: pipeline %q: empty SPIR-V", desc.Label)
	}

	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(desc.Layout))
	byBinding := make(map[uint32]gpucore.BindGroupLayoutEntry, len(desc.Layout))
	for _, e := range desc.Layout {
		ge, err := convertBindGroupLayoutEntry(e)
		if err != nil {
			return gpucore.InvalidID, err
		}
		entries = append(entries, ge)
		byBinding[e.Binding] = e
	}

	p := &pipeline{entries: byBinding}
	var err error
	p.module, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: desc.SPIRV},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create shader module %q: %w", desc.Label, err)
	}
	p.bgl, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label + " bind layout",
		Entries: entries,
	})
	if err != nil {
		d.destroyPipeline(p)
		return gpucore.InvalidID, fmt.Errorf("native: create bind group layout %q: %w", desc.Label, err)
	}
	p.layout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label + " layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bgl},
	})
	if err != nil {
		d.destroyPipeline(p)
		return gpucore.InvalidID, fmt.Errorf("native: create pipeline layout %q: %w", desc.Label, err)
	}
	p.pipeline, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   desc.Label,
		Layout:  p.layout,
		Compute: hal.ComputeState{Module: p.module, EntryPoint: desc.EntryPoint},
	})
	if err != nil {
		d.destroyPipeline(p)
		return gpucore.InvalidID, fmt.Errorf("native: create compute pipeline %q: %w", desc.Label, err)
	}

	id := gpucore.ComputePipelineID(d.newID())
	d.mu.Lock()
	d.pipelines[id] = p
	d.mu.Unlock()
	slogger().Debug("compute pipeline created", "label", desc.Label, "bindings", len(entries))
	return id, nil
}

// DestroyComputePipeline releases a pipeline and the objects created with it.
func (d *Device) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	d.mu.Lock()
	p, ok := d.pipelines[id]
	if ok {
		delete(d.pipelines, id)
	}
	d.mu.Unlock()

	if ok {
		d.destroyPipeline(p)
	}
}

func (d *Device) destroyPipeline(p *pipeline) {
	if p.pipeline != nil {
		d.device.DestroyComputePipeline(p.pipeline)
	}
	if p.layout != nil {
		d.device.DestroyPipelineLayout(p.layout)
	}
	if p.bgl != nil {
		d.device.DestroyBindGroupLayout(p.bgl)
	}
	if p.module != nil {
		d.device.DestroyShaderModule(p.module)
	}
}

// Close releases every resource. A device obtained from a provider is left
// open.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true

	if d.encoder != nil {
		d.encoder.DiscardEncoding()
		d.encoder = nil
	}
	_ = d.device.WaitIdle()
	d.releaseFrameLocked()

	for id, p := range d.pipelines {
		d.destroyPipeline(p)
		delete(d.pipelines, id)
	}
	for id, s := range d.samplers {
		d.device.DestroySampler(s)
		delete(d.samplers, id)
	}
	for id, t := range d.textures {
		d.device.DestroyTextureView(t.view)
		d.device.DestroyTexture(t.tex)
		delete(d.textures, id)
	}

	if !d.external {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.queue = nil
	d.instance = nil
}
