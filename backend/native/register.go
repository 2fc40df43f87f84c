//go:build !nogpu

package native

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendertoy"
	"github.com/gogpu/rendertoy/backend"
	"github.com/gogpu/rendertoy/gpucore"
)

func init() {
	rendertoy.RegisterLoggerSetter(SetLogger)

	for name, variant := range map[string]gputypes.Backend{
		backend.BackendVulkan:   gputypes.BackendVulkan,
		backend.BackendMetal:    gputypes.BackendMetal,
		backend.BackendDX12:     gputypes.BackendDX12,
		backend.BackendGL:       gputypes.BackendGL,
		backend.BackendSoftware: gputypes.BackendEmpty,
	} {
		backend.Register(name, factory(variant))
	}
}

func factory(variant gputypes.Backend) backend.Factory {
	return func(opts backend.Options) (gpucore.Device, error) {
		d, err := New(Config{Backend: variant, Presenter: opts.Presenter})
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}
