package backend

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/rendertoy/gpucore"
)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Priority order for backend selection (first device that opens wins).
	backendPriority = []string{BackendVulkan, BackendMetal, BackendDX12, BackendGL, BackendSoftware}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the sorted names of registered backends.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Open opens a device on the named backend.
func Open(name string, opts Options) (gpucore.Device, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	dev, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", name, err)
	}
	return dev, nil
}

// OpenDefault opens a device on the best available backend. Backends are
// tried in priority order, then the remaining registered backends by name.
// The errors of every failed backend are returned when none opens.
func OpenDefault(opts Options) (gpucore.Device, error) {
	order := make([]string, 0, len(backendPriority))
	for _, name := range backendPriority {
		if IsRegistered(name) {
			order = append(order, name)
		}
	}
	for _, name := range Available() {
		if !slices.Contains(order, name) {
			order = append(order, name)
		}
	}
	if len(order) == 0 {
		return nil, ErrBackendNotAvailable
	}

	var errs []error
	for _, name := range order {
		dev, err := Open(name, opts)
		if err == nil {
			return dev, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w: %w", ErrBackendNotAvailable, errors.Join(errs...))
}
