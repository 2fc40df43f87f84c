package backend

import (
	"errors"
	"image"

	"github.com/gogpu/rendertoy/gpucore"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered or no registered backend could open a device.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Backend names.
const (
	BackendVulkan   = "vulkan"
	BackendMetal    = "metal"
	BackendDX12     = "dx12"
	BackendGL       = "gl"
	BackendSoftware = "software"
)

// Options configures an opened device.
type Options struct {
	// Presenter receives the image of every presented frame. When nil,
	// frames are submitted without readback.
	Presenter func(img image.Image) error
}

// Factory opens a device. A factory returns an error when its backend is
// registered but cannot run on this machine.
type Factory func(opts Options) (gpucore.Device, error)
