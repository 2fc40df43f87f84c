package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newWatcher(t *testing.T) *Watcher {
	t.Helper()
	w, err := NewWatcher(Config{Debounce: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

// waitEvent returns the first event for path, failing after a timeout.
func waitEvent(t *testing.T, w *Watcher, path string) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.Path == path {
				return ev
			}
		case <-timeout:
			t.Fatalf("no event for %s", path)
			return Event{}
		}
	}
}

func TestWatcherReportsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blur.wgsl")
	writeFile(t, path, "v1")

	w := newWatcher(t)
	if err := w.Watch(path); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeFile(t, path, "v2")
	ev := waitEvent(t, w, path)
	if ev.Op != OpChanged {
		t.Errorf("op = %v, want changed", ev.Op)
	}
}

func TestWatcherReportsAtomicSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blur.wgsl")
	writeFile(t, path, "v1")

	w := newWatcher(t)
	if err := w.Watch(path); err != nil {
		t.Fatal(err)
	}

	tmp := filepath.Join(dir, ".blur.wgsl.swp")
	writeFile(t, tmp, "v2")
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	ev := waitEvent(t, w, path)
	if ev.Op != OpChanged {
		t.Errorf("op = %v, want changed", ev.Op)
	}
}

func TestWatcherIgnoresUnwatchedFiles(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "a.wgsl")
	other := filepath.Join(dir, "b.wgsl")
	writeFile(t, watched, "a")
	writeFile(t, other, "b")

	w := newWatcher(t)
	if err := w.Watch(watched); err != nil {
		t.Fatal(err)
	}

	writeFile(t, other, "b2")
	writeFile(t, watched, "a2")

	if ev := waitEvent(t, w, watched); ev.Op != OpChanged {
		t.Errorf("op = %v, want changed", ev.Op)
	}
	select {
	case ev := <-w.Events():
		if ev.Path == other {
			t.Errorf("got event for unwatched file %s", other)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatchReferenceCounting(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.wgsl")
	b := filepath.Join(dir, "b.wgsl")
	writeFile(t, a, "")
	writeFile(t, b, "")

	w := newWatcher(t)
	for _, p := range []string{a, a, b} {
		if err := w.Watch(p); err != nil {
			t.Fatal(err)
		}
	}
	if got := w.Watched(); len(got) != 2 {
		t.Fatalf("Watched() = %v, want 2 files", got)
	}

	if err := w.Unwatch(a); err != nil {
		t.Fatal(err)
	}
	if got := w.Watched(); len(got) != 2 {
		t.Errorf("after one Unwatch: %v, want a still watched", got)
	}
	if err := w.Unwatch(a); err != nil {
		t.Fatal(err)
	}
	if got := w.Watched(); len(got) != 1 || got[0] != b {
		t.Errorf("Watched() = %v, want [%s]", got, b)
	}
	if err := w.Unwatch(a); err != nil {
		t.Errorf("Unwatch of unwatched path: %v", err)
	}
	if err := w.Unwatch(b); err != nil {
		t.Fatal(err)
	}
	if len(w.dirs) != 0 {
		t.Errorf("directories still watched: %v", w.dirs)
	}
}

func TestWatcherClose(t *testing.T) {
	w, err := NewWatcher(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := w.Watch(filepath.Join(t.TempDir(), "x.wgsl")); err != ErrClosed {
		t.Errorf("Watch after Close = %v, want ErrClosed", err)
	}
}

func TestDebouncerCoalesces(t *testing.T) {
	got := make(chan Event, 8)
	d := newDebouncer(20*time.Millisecond, func(ev Event) { got <- ev })
	defer d.stop()

	d.add("/a", OpChanged)
	d.add("/b", OpChanged)
	d.add("/a", OpRemoved)

	want := []Event{{"/a", OpRemoved}, {"/b", OpChanged}}
	for i, w := range want {
		select {
		case ev := <-got:
			if ev != w {
				t.Errorf("event %d = %v, want %v", i, ev, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("event %d not flushed", i)
		}
	}
	select {
	case ev := <-got:
		t.Errorf("unexpected extra event %v", ev)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestPumpDrain(t *testing.T) {
	events := make(chan Event, 8)
	p := NewPump(events)

	if n := p.Drain(func(Event) { t.Error("handler called on empty queue") }); n != 0 {
		t.Errorf("Drain on empty queue = %d", n)
	}

	events <- Event{"/a", OpChanged}
	events <- Event{"/b", OpChanged}
	events <- Event{"/a", OpRemoved}
	events <- Event{"/c", OpChanged}

	var handled []Event
	n := p.Drain(func(ev Event) { handled = append(handled, ev) })
	if n != 3 {
		t.Errorf("Drain = %d, want 3", n)
	}
	want := []Event{{"/a", OpRemoved}, {"/b", OpChanged}, {"/c", OpChanged}}
	if len(handled) != len(want) {
		t.Fatalf("handled %v, want %v", handled, want)
	}
	for i := range want {
		if handled[i] != want[i] {
			t.Errorf("handled[%d] = %v, want %v", i, handled[i], want[i])
		}
	}

	if n := p.Drain(func(Event) {}); n != 0 {
		t.Errorf("second Drain = %d, want 0", n)
	}
}

func TestPumpNilChannel(t *testing.T) {
	p := NewPump(nil)
	if n := p.Drain(func(Event) {}); n != 0 {
		t.Errorf("Drain = %d, want 0", n)
	}
}
