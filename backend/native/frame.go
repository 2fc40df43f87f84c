// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

//go:build !nogpu

package native

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rendertoy/gpucore"
)

// uniformAlignment is the size granularity of uniform buffers.
const uniformAlignment = 16

// Dispatch records one compute dispatch into the current frame.
//
// Every texture bound by the dispatch is transitioned to the usage its
// binding needs before the compute pass begins. Uniform data is uploaded
// into a per-dispatch buffer that lives until the frame is presented.
func (d *Device) Dispatch(desc *gpucore.DispatchDesc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	p, ok := d.pipelines[desc.Pipeline]
	if !ok {
		return fmt.Errorf("%w: pipeline %d", ErrUnknownResource, desc.Pipeline)
	}
	if err := d.beginFrameLocked(); err != nil {
		return err
	}

	entries := make([]gputypes.BindGroupEntry, 0, len(desc.Entries))
	var barriers []hal.TextureBarrier
	for _, e := range desc.Entries {
		layout, ok := p.entries[e.Binding]
		if !ok {
			return fmt.Errorf("native: %s: binding %d not in pipeline layout", desc.Label, e.Binding)
		}

		switch layout.Type {
		case gpucore.BindingTypeUniformBuffer:
			buf, err := d.uniformLocked(desc.Label, e.Data)
			if err != nil {
				return err
			}
			entries = append(entries, gputypes.BindGroupEntry{
				Binding:  e.Binding,
				Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Size: uint64(len(e.Data))},
			})

		case gpucore.BindingTypeSampler:
			s, ok := d.samplers[e.Sampler]
			if !ok {
				return fmt.Errorf("%w: sampler %d", ErrUnknownResource, e.Sampler)
			}
			entries = append(entries, gputypes.BindGroupEntry{
				Binding:  e.Binding,
				Resource: gputypes.SamplerBinding{Sampler: s.NativeHandle()},
			})

		case gpucore.BindingTypeSampledTexture, gpucore.BindingTypeStorageTexture:
			t, ok := d.textures[e.Texture]
			if !ok {
				return fmt.Errorf("%w: texture %d", ErrUnknownResource, e.Texture)
			}
			usage := gputypes.TextureUsageTextureBinding
			if layout.Type == gpucore.BindingTypeStorageTexture {
				usage = gputypes.TextureUsageStorageBinding
			}
			if b, ok := transition(t, usage); ok {
				barriers = append(barriers, b)
			}
			entries = append(entries, gputypes.BindGroupEntry{
				Binding:  e.Binding,
				Resource: gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()},
			})
		}
	}

	group, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  p.bgl,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("native: %s: create bind group: %w", desc.Label, err)
	}
	d.frameGroup = append(d.frameGroup, group)

	if len(barriers) > 0 {
		d.encoder.TransitionTextures(barriers)
	}
	pass := d.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: desc.Label})
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, group, nil)
	pass.Dispatch(desc.Workgroups[0], desc.Workgroups[1], desc.Workgroups[2])
	pass.End()
	return nil
}

// Present submits the frame and waits for it. When a presenter is set, the
// texture is copied into a staging buffer, read back and handed to it.
func (d *Device) Present(id gpucore.TextureID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	t, ok := d.textures[id]
	if !ok {
		return fmt.Errorf("%w: texture %d", ErrUnknownResource, id)
	}
	if err := d.beginFrameLocked(); err != nil {
		return err
	}
	defer d.releaseFrameLocked()

	if d.presenter == nil {
		return d.submitLocked()
	}

	w, h := t.desc.Width, t.desc.Height
	bpp := t.desc.Format.BytesPerPixel()
	tight := w * bpp
	padded := alignRow(tight)
	size := uint64(padded) * uint64(h)

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "present staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("native: create staging buffer: %w", err)
	}
	d.frameBufs = append(d.frameBufs, staging)

	if b, ok := transition(t, gputypes.TextureUsageCopySrc); ok {
		d.encoder.TransitionTextures([]hal.TextureBarrier{b})
	}
	d.encoder.CopyTextureToBuffer(t.tex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: padded, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0, Aspect: gputypes.TextureAspectAll},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})

	if err := d.submitLocked(); err != nil {
		return err
	}

	mapping, err := d.device.MapBuffer(staging, 0, size)
	if err != nil {
		return fmt.Errorf("native: map staging buffer: %w", err)
	}
	mapped := unsafe.Slice((*byte)(mapping.Ptr), size)
	pixels := make([]byte, int(tight)*int(h))
	for y := range int(h) {
		copy(pixels[y*int(tight):(y+1)*int(tight)], mapped[y*int(padded):])
	}
	if err := d.device.UnmapBuffer(staging); err != nil {
		return fmt.Errorf("native: unmap staging buffer: %w", err)
	}

	img, err := toImage(pixels, int(w), int(h), t.desc.Format)
	if err != nil {
		return err
	}
	return d.presenter(img)
}

// beginFrameLocked starts recording if no frame is open.
func (d *Device) beginFrameLocked() error {
	if d.encoder != nil {
		return nil
	}
	enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "frame"})
	if err != nil {
		return fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding("frame"); err != nil {
		return fmt.Errorf("native: begin encoding: %w", err)
	}
	d.encoder = enc
	return nil
}

// submitLocked ends the open frame, submits it and waits until the GPU is
// idle.
func (d *Device) submitLocked() error {
	enc := d.encoder
	d.encoder = nil

	cmd, err := enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("native: end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmd)

	if _, err := d.queue.Submit([]hal.CommandBuffer{cmd}); err != nil {
		return fmt.Errorf("native: submit: %w", err)
	}
	if err := d.device.WaitIdle(); err != nil {
		return fmt.Errorf("native: wait idle: %w", err)
	}
	return nil
}

// DiscardFrame drops the dispatches recorded since the last Present without
// submitting them.
func (d *Device) DiscardFrame() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.encoder != nil || len(d.frameGroup) > 0 || len(d.frameBufs) > 0 {
		slogger().Debug("native: discarding frame", "bindGroups", len(d.frameGroup))
	}
	d.releaseFrameLocked()
}

// releaseFrameLocked destroys the per-frame bind groups and buffers. The
// frame must have completed or never been submitted.
func (d *Device) releaseFrameLocked() {
	if d.encoder != nil {
		d.encoder.DiscardEncoding()
		d.encoder = nil
	}
	for _, g := range d.frameGroup {
		d.device.DestroyBindGroup(g)
	}
	for _, b := range d.frameBufs {
		d.device.DestroyBuffer(b)
	}
	d.frameGroup = d.frameGroup[:0]
	d.frameBufs = d.frameBufs[:0]
}

// uniformLocked uploads data into a new uniform buffer owned by the frame.
func (d *Device) uniformLocked(label string, data []byte) (hal.Buffer, error) {
	size := (uint64(len(data)) + uniformAlignment - 1) &^ (uniformAlignment - 1)
	if size == 0 {
		size = uniformAlignment
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label + " uniforms",
		Size:  size,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("native: %s: create uniform buffer: %w", label, err)
	}
	d.frameBufs = append(d.frameBufs, buf)
	if len(data) > 0 {
		if err := d.queue.WriteBuffer(buf, 0, data); err != nil {
			return nil, fmt.Errorf("native: %s: write uniforms: %w", label, err)
		}
	}
	return buf, nil
}

// transition returns the barrier moving t to usage and records the new
// usage. ok is false when t is already in that usage.
func transition(t *texture, usage gputypes.TextureUsage) (hal.TextureBarrier, bool) {
	if t.usage == usage && usage != gputypes.TextureUsageStorageBinding {
		return hal.TextureBarrier{}, false
	}
	b := hal.TextureBarrier{
		Texture: t.tex,
		Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll},
		Usage:   hal.TextureUsageTransition{OldUsage: t.usage, NewUsage: usage},
	}
	t.usage = usage
	return b, true
}
