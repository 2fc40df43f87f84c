package backend

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/rendertoy/gpucore"
	"github.com/gogpu/rendertoy/internal/gputest"
)

// register installs a factory for the duration of the test.
func register(t *testing.T, name string, f Factory) {
	t.Helper()
	Register(name, f)
	t.Cleanup(func() { Unregister(name) })
}

func testDevice(Options) (gpucore.Device, error) { return gputest.NewDevice(), nil }

func failing(err error) Factory {
	return func(Options) (gpucore.Device, error) { return nil, err }
}

func TestRegistry(t *testing.T) {
	register(t, "test-b", testDevice)
	register(t, "test-a", testDevice)

	if !IsRegistered("test-a") {
		t.Error("IsRegistered(test-a) = false")
	}
	if IsRegistered("test-missing") {
		t.Error("IsRegistered(test-missing) = true")
	}

	names := Available()
	if !slices.IsSorted(names) {
		t.Errorf("Available() = %v, want sorted", names)
	}
	if !slices.Contains(names, "test-a") || !slices.Contains(names, "test-b") {
		t.Errorf("Available() = %v", names)
	}

	Unregister("test-b")
	if IsRegistered("test-b") {
		t.Error("test-b still registered after Unregister")
	}
}

func TestOpen(t *testing.T) {
	register(t, "test", testDevice)

	dev, err := Open("test", Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	dev.Close()

	if _, err := Open("test-missing", Options{}); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Open(missing) = %v, want ErrBackendNotAvailable", err)
	}

	boom := errors.New("no adapter")
	register(t, "test-broken", failing(boom))
	if _, err := Open("test-broken", Options{}); !errors.Is(err, boom) {
		t.Errorf("Open(broken) = %v, want %v", err, boom)
	}
}

func TestOpenDefaultPriority(t *testing.T) {
	var opened []string
	track := func(name string, err error) Factory {
		return func(Options) (gpucore.Device, error) {
			opened = append(opened, name)
			if err != nil {
				return nil, err
			}
			return gputest.NewDevice(), nil
		}
	}
	register(t, "zz-extra", track("zz-extra", nil))
	register(t, BackendSoftware, track(BackendSoftware, nil))
	register(t, BackendVulkan, track(BackendVulkan, errors.New("no vulkan")))

	dev, err := OpenDefault(Options{})
	if err != nil {
		t.Fatalf("OpenDefault: %v", err)
	}
	dev.Close()

	want := []string{BackendVulkan, BackendSoftware}
	if !slices.Equal(opened, want) {
		t.Errorf("tried %v, want %v", opened, want)
	}
}

func TestOpenDefaultAllFail(t *testing.T) {
	errVulkan := errors.New("no vulkan")
	register(t, BackendVulkan, failing(errVulkan))
	register(t, "test-other", failing(errors.New("nope")))

	_, err := OpenDefault(Options{})
	if !errors.Is(err, ErrBackendNotAvailable) || !errors.Is(err, errVulkan) {
		t.Errorf("OpenDefault = %v, want ErrBackendNotAvailable wrapping %v", err, errVulkan)
	}
}
