// Package dispatch runs a compiled package on the GPU.
//
// For every compute pass the executor packs scalar and vector parameters
// into their uniform blocks, binds sampled and storage textures, sizes the
// grid from the first image the pass creates (or the window when it creates
// none) and records one dispatch. It then presents the output image and
// hands the frame's transient textures back to the cache.
//
// All resources live in bind group 0.
package dispatch

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/rendertoy/gpucore"
	"github.com/gogpu/rendertoy/internal/param"
	"github.com/gogpu/rendertoy/internal/pass"
	"github.com/gogpu/rendertoy/internal/project"
	"github.com/gogpu/rendertoy/internal/shader"
)

// Dispatch errors.
var (
	// ErrNoOutputImage is returned when the compiled package has no output
	// image to present.
	ErrNoOutputImage = errors.New("dispatch: no output image")

	// ErrUnboundImage is returned when a texture parameter has no image.
	ErrUnboundImage = errors.New("dispatch: texture parameter has no image")

	// ErrFormatMismatch is returned when a storage image's format differs
	// from the format the shader declares.
	ErrFormatMismatch = errors.New("dispatch: storage image format mismatch")
)

// Textures supplies samplers and takes back transient images.
// *texture.Cache implements it.
type Textures interface {
	pass.Textures
	Sampler(wrapS, wrapT bool) (gpucore.SamplerID, error)
}

// Stats counts the work of the last frame.
type Stats struct {
	Dispatches int
	Workgroups uint64
}

// Executor records the dispatches of compiled packages on a device.
//
// Executor is not safe for concurrent use.
type Executor struct {
	device   gpucore.Device
	textures Textures
	stats    Stats
}

// NewExecutor returns an executor for device. Samplers are taken from and
// transients released to textures.
func NewExecutor(device gpucore.Device, textures Textures) *Executor {
	return &Executor{device: device, textures: textures}
}

// Stats returns the counters of the last Render.
func (e *Executor) Stats() Stats { return e.stats }

// WorkgroupCount returns the number of workgroups covering a width x height
// grid with the given workgroup size. Every dimension is at least 1.
func WorkgroupCount(size [2]uint32, workgroup [3]uint32) [3]uint32 {
	count := [3]uint32{1, 1, 1}
	for i := range 2 {
		wg := max(workgroup[i], 1)
		count[i] = max((size[i]+wg-1)/wg, 1)
	}
	return count
}

// Render runs cp on the device and presents its output.
//
// For cancellable rendering, use RenderWithContext.
func (e *Executor) Render(cp *project.CompiledPackage, window [2]uint32) error {
	return e.RenderWithContext(context.Background(), cp, window)
}

// RenderWithContext runs cp, checking ctx between passes. The transient
// images of cp are released whether or not rendering succeeds; cp must not
// be rendered again.
//
// A frame is all or nothing: every pass is bound and validated before the
// first dispatch is recorded, and work already recorded is discarded on the
// device when a later step fails.
func (e *Executor) RenderWithContext(ctx context.Context, cp *project.CompiledPackage, window [2]uint32) (err error) {
	defer func() {
		if rerr := cp.Release(e.textures); rerr != nil && err == nil {
			err = rerr
		}
	}()
	defer func() {
		if err != nil {
			e.device.DiscardFrame()
		}
	}()

	e.stats = Stats{}
	if cp.Output == nil {
		return ErrNoOutputImage
	}

	descs := make([]*gpucore.DispatchDesc, 0, len(cp.Passes))
	for _, c := range cp.Passes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.Program == nil {
			continue
		}
		d, err := e.bind(c, window)
		if err != nil {
			return fmt.Errorf("dispatch: %s: %w", c.Pass.DisplayName(), err)
		}
		descs = append(descs, d)
	}

	var stats Stats
	for _, d := range descs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.device.Dispatch(d); err != nil {
			return fmt.Errorf("dispatch: %s: %w", d.Label, err)
		}
		stats.Dispatches++
		stats.Workgroups += uint64(d.Workgroups[0]) * uint64(d.Workgroups[1]) * uint64(d.Workgroups[2])
		slogger().Debug("dispatched", "pass", d.Label, "workgroups", d.Workgroups)
	}

	if err := e.device.Present(cp.Output.ID); err != nil {
		return err
	}
	e.stats = stats
	return nil
}

// bind resolves the bindings of one compiled pass into a dispatch.
func (e *Executor) bind(c *pass.Compiled, window [2]uint32) (*gpucore.DispatchDesc, error) {
	prog := c.Program

	size := window
	if key, ok := c.PrimaryKey(); ok {
		size = [2]uint32{key.Width, key.Height}
	}

	blocks := make([][]byte, len(prog.Uniforms))
	for i, u := range prog.Uniforms {
		blocks[i] = make([]byte, u.Size)
	}
	entries := make([]gpucore.BindGroupEntry, 0, len(prog.Uniforms)+len(c.Params))

	for i, p := range c.Params {
		b, ok := prog.Binding(p.Desc.Name)
		if !ok {
			continue
		}
		switch b.Kind {
		case shader.BindUniform:
			if b.Block < 0 || b.Block >= len(blocks) {
				return nil, fmt.Errorf("%q: uniform block %d out of range", p.Desc.Name, b.Block)
			}
			putValue(blocks[b.Block], b.Offset, p)

		case shader.BindSampledTexture:
			tex := c.Images[i].Texture
			if tex == nil {
				return nil, fmt.Errorf("%w: %q", ErrUnboundImage, p.Desc.Name)
			}
			entries = append(entries, gpucore.BindGroupEntry{Binding: b.Slot, Texture: tex.ID})
			if b.HasSampler {
				s, err := e.textures.Sampler(p.Value.Texture.WrapS, p.Value.Texture.WrapT)
				if err != nil {
					return nil, err
				}
				entries = append(entries, gpucore.BindGroupEntry{Binding: b.SamplerSlot, Sampler: s})
			}

		case shader.BindStorageTexture:
			tex := c.Images[i].Texture
			if tex == nil {
				return nil, fmt.Errorf("%w: %q", ErrUnboundImage, p.Desc.Name)
			}
			if tex.Key.Format != b.Format {
				return nil, fmt.Errorf("%w: %q is %s, shader declares %s", ErrFormatMismatch, p.Desc.Name, tex.Key.Format, b.Format)
			}
			checkAccess(c, p, b)
			entries = append(entries, gpucore.BindGroupEntry{Binding: b.Slot, Texture: tex.ID})
		}
	}
	for i, u := range prog.Uniforms {
		entries = append(entries, gpucore.BindGroupEntry{Binding: u.Slot, Data: blocks[i]})
	}

	return &gpucore.DispatchDesc{
		Label:      c.Pass.DisplayName(),
		Pipeline:   c.Pipeline,
		Entries:    entries,
		Workgroups: WorkgroupCount(size, prog.Workgroup),
	}, nil
}

// checkAccess warns when the declared access of a storage image contradicts
// how the image is sourced: inputs are read, created images are written.
func checkAccess(c *pass.Compiled, p param.Param, b shader.Binding) {
	switch {
	case p.Value.Texture.Source == param.SourceInput && b.Access == gpucore.StorageAccessWriteOnly:
		slogger().Warn("input image declared write-only", "pass", c.Pass.DisplayName(), "param", p.Desc.Name)
	case p.Value.Texture.Source == param.SourceCreate && b.Access == gpucore.StorageAccessReadOnly:
		slogger().Warn("created image declared read-only", "pass", c.Pass.DisplayName(), "param", p.Desc.Name)
	}
}

// putValue writes the components of a scalar or vector parameter at offset
// as little-endian 32-bit values.
func putValue(buf []byte, offset uint32, p param.Param) {
	n := p.Desc.Type.Components()
	for i := range n {
		at := int(offset) + 4*i
		if at+4 > len(buf) {
			return
		}
		var bits uint32
		switch {
		case p.Desc.Type.IsFloat():
			bits = math.Float32bits(p.Value.Float[i])
		case p.Desc.Type.IsInt():
			bits = uint32(p.Value.Int[i]) //nolint:gosec // G115: two's complement reinterpretation
		}
		binary.LittleEndian.PutUint32(buf[at:], bits)
	}
}
