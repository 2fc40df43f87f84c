// Package gputest provides an in-memory gpucore.Device for tests.
//
// The device performs no GPU work. It records every call so tests can
// assert how many textures were allocated or destroyed, which pipelines were
// built and what each dispatch bound.
package gputest

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/rendertoy/gpucore"
)

// ErrUnknownResource is returned when an ID does not name a live resource.
var ErrUnknownResource = errors.New("gputest: unknown resource")

// Texture is the recorded state of one texture.
type Texture struct {
	Desc gpucore.TextureDesc

	// Data is the last upload, if any.
	Data []byte
}

// Device is a test double for gpucore.Device.
//
// Device is safe for concurrent use.
type Device struct {
	mu   sync.Mutex
	next uint64

	textures  map[gpucore.TextureID]*Texture
	samplers  map[gpucore.SamplerID]gpucore.SamplerDesc
	pipelines map[gpucore.ComputePipelineID]*gpucore.ComputePipelineDesc

	dispatches []gpucore.DispatchDesc
	presented  []gpucore.TextureID
	pending    int
	discarded  int

	created   int
	destroyed int

	// FailCreateTexture, when set, is returned by CreateTexture.
	FailCreateTexture error

	// FailCreatePipeline, when set, is returned by CreateComputePipeline.
	FailCreatePipeline error

	// FailDispatch, when set, is called by Dispatch; a non-nil result is
	// returned without recording the dispatch.
	FailDispatch func(desc *gpucore.DispatchDesc) error
}

// NewDevice returns an empty device.
func NewDevice() *Device {
	return &Device{
		textures:  make(map[gpucore.TextureID]*Texture),
		samplers:  make(map[gpucore.SamplerID]gpucore.SamplerDesc),
		pipelines: make(map[gpucore.ComputePipelineID]*gpucore.ComputePipelineDesc),
	}
}

func (d *Device) nextID() uint64 {
	d.next++
	return d.next
}

// MaxWorkgroupSize returns the WebGPU default limits.
func (d *Device) MaxWorkgroupSize() [3]uint32 { return [3]uint32{256, 256, 64} }

// CreateTexture records a texture.
func (d *Device) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailCreateTexture != nil {
		return gpucore.InvalidID, d.FailCreateTexture
	}
	if desc.Width == 0 || desc.Height == 0 {
		return gpucore.InvalidID, fmt.Errorf("gputest: invalid texture size %dx%d", desc.Width, desc.Height)
	}
	id := gpucore.TextureID(d.nextID())
	d.textures[id] = &Texture{Desc: *desc}
	d.created++
	return id, nil
}

// WriteTexture stores a copy of data.
func (d *Device) WriteTexture(id gpucore.TextureID, data []byte, bytesPerRow uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tex, ok := d.textures[id]
	if !ok {
		return fmt.Errorf("%w: texture %d", ErrUnknownResource, id)
	}
	want := uint64(bytesPerRow) * uint64(tex.Desc.Height)
	if uint64(len(data)) < want {
		return fmt.Errorf("gputest: upload of %d bytes, want %d", len(data), want)
	}
	tex.Data = slices.Clone(data)
	return nil
}

// DestroyTexture forgets a texture.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.textures[id]; ok {
		delete(d.textures, id)
		d.destroyed++
	}
}

// CreateSampler records a sampler.
func (d *Device) CreateSampler(desc *gpucore.SamplerDesc) (gpucore.SamplerID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := gpucore.SamplerID(d.nextID())
	d.samplers[id] = *desc
	return id, nil
}

// DestroySampler forgets a sampler.
func (d *Device) DestroySampler(id gpucore.SamplerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.samplers, id)
}

// CreateComputePipeline records a pipeline.
func (d *Device) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailCreatePipeline != nil {
		return gpucore.InvalidID, d.FailCreatePipeline
	}
	id := gpucore.ComputePipelineID(d.nextID())
	cp := *desc
	cp.Layout = slices.Clone(desc.Layout)
	d.pipelines[id] = &cp
	return id, nil
}

// DestroyComputePipeline forgets a pipeline.
func (d *Device) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pipelines, id)
}

// Dispatch records a dispatch after checking that every bound resource is live.
func (d *Device) Dispatch(desc *gpucore.DispatchDesc) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailDispatch != nil {
		if err := d.FailDispatch(desc); err != nil {
			return err
		}
	}
	if _, ok := d.pipelines[desc.Pipeline]; !ok {
		return fmt.Errorf("%w: pipeline %d", ErrUnknownResource, desc.Pipeline)
	}
	for _, e := range desc.Entries {
		if e.Texture != gpucore.InvalidID {
			if _, ok := d.textures[e.Texture]; !ok {
				return fmt.Errorf("%w: texture %d at binding %d", ErrUnknownResource, e.Texture, e.Binding)
			}
		}
		if e.Sampler != gpucore.InvalidID {
			if _, ok := d.samplers[e.Sampler]; !ok {
				return fmt.Errorf("%w: sampler %d at binding %d", ErrUnknownResource, e.Sampler, e.Binding)
			}
		}
	}
	cp := *desc
	cp.Entries = slices.Clone(desc.Entries)
	d.dispatches = append(d.dispatches, cp)
	d.pending++
	return nil
}

// Present records the presented texture.
func (d *Device) Present(id gpucore.TextureID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.textures[id]; !ok {
		return fmt.Errorf("%w: texture %d", ErrUnknownResource, id)
	}
	d.presented = append(d.presented, id)
	d.pending = 0
	return nil
}

// DiscardFrame drops the pending dispatches. Frames with no pending
// dispatch are not counted.
func (d *Device) DiscardFrame() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending > 0 {
		d.discarded++
	}
	d.pending = 0
}

// Close destroys all resources.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.destroyed += len(d.textures)
	clear(d.textures)
	clear(d.samplers)
	clear(d.pipelines)
}

// Texture returns the recorded state of a live texture.
func (d *Device) Texture(id gpucore.TextureID) (Texture, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tex, ok := d.textures[id]
	if !ok {
		return Texture{}, false
	}
	return *tex, true
}

// Sampler returns the descriptor of a live sampler.
func (d *Device) Sampler(id gpucore.SamplerID) (gpucore.SamplerDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	desc, ok := d.samplers[id]
	return desc, ok
}

// Pipeline returns the descriptor of a live pipeline.
func (d *Device) Pipeline(id gpucore.ComputePipelineID) (*gpucore.ComputePipelineDesc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	desc, ok := d.pipelines[id]
	return desc, ok
}

// TexturesCreated returns the number of successful CreateTexture calls.
func (d *Device) TexturesCreated() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created
}

// TexturesDestroyed returns the number of textures destroyed.
func (d *Device) TexturesDestroyed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

// LiveTextures returns the number of textures not yet destroyed.
func (d *Device) LiveTextures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.textures)
}

// LivePipelines returns the number of pipelines not yet destroyed.
func (d *Device) LivePipelines() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pipelines)
}

// Dispatches returns a copy of the recorded dispatches.
func (d *Device) Dispatches() []gpucore.DispatchDesc {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.dispatches)
}

// Presented returns the textures passed to Present, oldest first.
func (d *Device) Presented() []gpucore.TextureID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.presented)
}

// PendingDispatches returns the number of dispatches recorded since the
// last Present or DiscardFrame.
func (d *Device) PendingDispatches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// FramesDiscarded returns how many frames with pending dispatches were
// dropped by DiscardFrame.
func (d *Device) FramesDiscarded() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.discarded
}

// Reset clears the recorded dispatches, presents and discards.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatches = nil
	d.presented = nil
	d.pending = 0
	d.discarded = 0
}

var _ gpucore.Device = (*Device)(nil)
