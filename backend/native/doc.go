// Package native runs the compositor on gogpu/wgpu HAL devices.
//
// A Device either opens its own adapter (New) or shares the device of a host
// application through gpucontext (NewFromProvider). Dispatches are recorded
// into one command encoder per frame; Present submits the frame, waits for it,
// reads the presented texture back and hands it to the configured Presenter.
//
// Importing the package registers the HAL backends of the current platform
// with the backend registry. Build with the nogpu tag to leave them out.
package native
