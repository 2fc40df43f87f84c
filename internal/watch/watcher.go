// Package watch reports changes to shader files.
//
// A Watcher observes the directories of the watched files with fsnotify,
// debounces bursts of events per file and posts the result to a channel.
// Nothing is reloaded from the watcher goroutine: the frame loop drains the
// channel through a Pump on its own goroutine and reloads the passes there.
//
// Directories are watched rather than files because editors commonly save
// by writing a temporary file and renaming it over the original, which
// detaches a watch placed on the file itself.
package watch

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used when Config.Debounce is zero.
const DefaultDebounce = 100 * time.Millisecond

// DefaultQueueSize is the event buffer used when Config.QueueSize is zero.
const DefaultQueueSize = 64

// ErrClosed is returned by operations on a closed Watcher.
var ErrClosed = errors.New("watch: watcher closed")

// Op is the kind of change reported for a file.
type Op uint8

// Change kinds.
const (
	// OpChanged means the file was written or (re)created.
	OpChanged Op = iota + 1

	// OpRemoved means the file was removed or renamed away.
	OpRemoved
)

// String returns the name of the change kind.
func (o Op) String() string {
	switch o {
	case OpChanged:
		return "changed"
	case OpRemoved:
		return "removed"
	default:
		return fmt.Sprintf("Op(%d)", uint8(o))
	}
}

// Event reports a change to a watched file. Path is the cleaned absolute
// path given to Watch.
type Event struct {
	Path string
	Op   Op
}

// Config holds configuration for creating a Watcher.
type Config struct {
	// Debounce is how long a file must stay quiet before its change is
	// posted. Defaults to DefaultDebounce.
	Debounce time.Duration

	// QueueSize is the capacity of the event channel. Events posted while
	// the channel is full are dropped. Defaults to DefaultQueueSize.
	QueueSize int
}

// Watcher watches a set of files for changes.
//
// Watch, Unwatch and Close may be called from any goroutine.
type Watcher struct {
	fs        *fsnotify.Watcher
	debouncer *debouncer
	events    chan Event

	mu     sync.Mutex
	files  map[string]int // watched file -> reference count
	dirs   map[string]int // watched directory -> number of watched files in it
	closed bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher creates a watcher and starts its event loop.
func NewWatcher(cfg Config) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	w := &Watcher{
		fs:     fw,
		events: make(chan Event, cfg.QueueSize),
		files:  make(map[string]int),
		dirs:   make(map[string]int),
		stop:   make(chan struct{}),
	}
	w.debouncer = newDebouncer(cfg.Debounce, w.post)

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Events returns the channel changes are posted to. It is never closed;
// drain it with a Pump.
func (w *Watcher) Events() <-chan Event { return w.events }

// Watch starts watching path. Watching the same path again only increments
// its reference count.
func (w *Watcher) Watch(path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	if w.files[path] > 0 {
		w.files[path]++
		return nil
	}
	dir := filepath.Dir(path)
	if w.dirs[dir] == 0 {
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watch: %s: %w", dir, err)
		}
		slogger().Debug("watching directory", "dir", dir)
	}
	w.dirs[dir]++
	w.files[path] = 1
	return nil
}

// Unwatch drops one reference to path. The file stops being watched when
// its last reference is dropped. Unwatching a path that is not watched is a
// no-op.
func (w *Watcher) Unwatch(path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	n, ok := w.files[path]
	if !ok {
		return nil
	}
	if n > 1 {
		w.files[path] = n - 1
		return nil
	}
	delete(w.files, path)

	dir := filepath.Dir(path)
	w.dirs[dir]--
	if w.dirs[dir] > 0 {
		return nil
	}
	delete(w.dirs, dir)
	if err := w.fs.Remove(dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
		return fmt.Errorf("watch: %s: %w", dir, err)
	}
	return nil
}

// Watched returns the watched files in lexical order.
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files))
	for path := range w.files {
		out = append(out, path)
	}
	slices.Sort(out)
	return out
}

// Close stops the watcher. Pending debounced events are discarded. Close is
// idempotent.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.stop)
	w.wg.Wait()
	w.debouncer.stop()
	return w.fs.Close()
}

func (w *Watcher) watched(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[path] > 0
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			path := filepath.Clean(ev.Name)
			if !w.watched(path) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create):
				w.debouncer.add(path, OpChanged)
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				w.debouncer.add(path, OpRemoved)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slogger().Warn("watcher error", "err", err)

		case <-w.stop:
			return
		}
	}
}

// post hands a debounced event to the queue without blocking the watcher.
func (w *Watcher) post(ev Event) {
	select {
	case w.events <- ev:
		slogger().Debug("file event", "path", ev.Path, "op", ev.Op)
	default:
		slogger().Warn("event queue full, dropping event", "path", ev.Path, "op", ev.Op)
	}
}

// debouncer coalesces events per path and flushes them once no event has
// arrived for the configured duration. The last operation seen for a path
// wins.
type debouncer struct {
	duration time.Duration
	flushTo  func(Event)

	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]Op
	order   []string
	stopped bool
}

func newDebouncer(d time.Duration, flushTo func(Event)) *debouncer {
	return &debouncer{
		duration: d,
		flushTo:  flushTo,
		pending:  make(map[string]Op),
	}
}

func (d *debouncer) add(path string, op Op) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if _, ok := d.pending[path]; !ok {
		d.order = append(d.order, path)
	}
	d.pending[path] = op

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, d.flush)
}

func (d *debouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.order) == 0 {
		d.mu.Unlock()
		return
	}
	events := make([]Event, 0, len(d.order))
	for _, path := range d.order {
		events = append(events, Event{Path: path, Op: d.pending[path]})
	}
	d.order = d.order[:0]
	clear(d.pending)
	d.mu.Unlock()

	for _, ev := range events {
		d.flushTo(ev)
	}
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	clear(d.pending)
	d.order = nil
}
