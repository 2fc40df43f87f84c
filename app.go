package rendertoy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/gogpu/rendertoy/gpucore"
	"github.com/gogpu/rendertoy/internal/dispatch"
	"github.com/gogpu/rendertoy/internal/nodegraph"
	"github.com/gogpu/rendertoy/internal/param"
	"github.com/gogpu/rendertoy/internal/pass"
	"github.com/gogpu/rendertoy/internal/project"
	"github.com/gogpu/rendertoy/internal/shader"
	"github.com/gogpu/rendertoy/internal/texture"
	"github.com/gogpu/rendertoy/internal/watch"
)

// App errors.
var (
	// ErrClosed is returned by operations on a closed App.
	ErrClosed = errors.New("rendertoy: app closed")

	// ErrNoPort is returned by Connect when the source has no output port or
	// the destination has no unlinked input port.
	ErrNoPort = errors.New("rendertoy: no free port")
)

// FrameStats describes the last rendered frame.
type FrameStats struct {
	// Frames is the number of frames rendered successfully so far.
	Frames uint64

	// Passes is the number of passes in the last compiled package.
	Passes int

	Dispatch dispatch.Stats
	Textures texture.Stats
}

// App runs a compositor project on a device: each Frame applies pending
// shader changes, reconciles the graph, compiles it and dispatches it.
//
// App is not safe for concurrent use; call it from the thread that owns the
// device.
type App struct {
	device gpucore.Device
	env    pass.Env
	pcfg   project.Config
	cache  *texture.Cache
	exec   *dispatch.Executor
	pkg    *project.Package
	window [2]uint32

	watcher *watch.Watcher
	pump    *watch.Pump
	// watched maps absolute shader paths to the paths passes store.
	watched map[string]string

	stats  FrameStats
	closed bool
}

// NewApp returns an App with a new project containing only the Output pass.
// The App does not own device; the caller closes it after the App.
func NewApp(device gpucore.Device, opts ...Option) (*App, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	compiler := o.compiler
	if compiler == nil {
		compiler = shader.NewWGSLCompiler()
	}

	cache := texture.NewCache(device, texture.CacheConfig{BudgetMB: o.budgetMB, Decode: o.decode})
	a := &App{
		device: device,
		env: pass.Env{
			Compiler: compiler,
			Device:   device,
			UIDs:     param.NewUIDs(),
		},
		pcfg:    project.Config{ShaderExtensions: o.extensions},
		cache:   cache,
		exec:    dispatch.NewExecutor(device, cache),
		window:  o.window,
		watched: make(map[string]string),
	}

	if o.hotReload {
		w, err := watch.NewWatcher(watch.Config{Debounce: o.debounce})
		if err != nil {
			cache.Close()
			return nil, fmt.Errorf("rendertoy: %w", err)
		}
		a.watcher = w
		a.pump = watch.NewPump(w.Events())
	}

	a.NewProject()
	return a, nil
}

// Package returns the current project. It is replaced by NewProject and
// OpenProject.
func (a *App) Package() *project.Package { return a.pkg }

// Device returns the device the App renders on.
func (a *App) Device() gpucore.Device { return a.device }

// WindowSize returns the render size.
func (a *App) WindowSize() [2]uint32 { return a.window }

// SetWindowSize changes the render size. Zero dimensions are ignored.
func (a *App) SetWindowSize(width, height uint32) {
	if width > 0 && height > 0 {
		a.window = [2]uint32{width, height}
	}
}

// Stats returns statistics of the last frame.
func (a *App) Stats() FrameStats {
	s := a.stats
	s.Textures = a.cache.Stats()
	return s
}

// NewProject replaces the project with one containing only the Output pass.
func (a *App) NewProject() {
	a.replace(project.NewPackage(a.env, a.pcfg))
	a.pkg.AddOutputPass()
	a.syncWatches()
}

// OpenProject replaces the project with the project file at path. On error
// the current project is kept.
func (a *App) OpenProject(path string) error {
	if a.closed {
		return ErrClosed
	}
	p, err := project.LoadFile(a.env, a.pcfg, path)
	if err != nil {
		return fmt.Errorf("rendertoy: open %s: %w", path, err)
	}
	a.replace(p)
	a.syncWatches()

	var images []string
	for _, ps := range a.pkg.Passes() {
		if c, ok := ps.(*pass.Compute); ok && c.Error() != nil {
			Logger().Warn("shader failed to compile", "shader", c.ShaderPath(), "err", c.Error())
		}
		for _, prm := range ps.Params() {
			if prm.Desc.Type.IsTexture() && prm.Value.Texture.Source == param.SourceLoad && prm.Value.Texture.Path != "" {
				images = append(images, prm.Value.Texture.Path)
			}
		}
	}
	// Failed images are reported again by the frame that uses them.
	if err := a.cache.Preload(context.Background(), images); err != nil {
		Logger().Warn("image preload failed", "err", err)
	}
	Logger().Info("project opened", "path", path)
	return nil
}

// SaveProject writes the project to path.
func (a *App) SaveProject(path string) error {
	if a.closed {
		return ErrClosed
	}
	if err := a.pkg.SaveFile(path); err != nil {
		return fmt.Errorf("rendertoy: save %s: %w", path, err)
	}
	return nil
}

// AddShader adds a compute pass running the shader at path. A shader that
// does not compile is still added; see pass.Compute.Error.
func (a *App) AddShader(path string) (nodegraph.NodeHandle, error) {
	if a.closed {
		return nodegraph.NodeHandle{}, ErrClosed
	}
	h, err := a.pkg.AddComputePass(path)
	if err != nil {
		return nodegraph.NodeHandle{}, fmt.Errorf("rendertoy: %w", err)
	}
	a.syncWatches()
	return h, nil
}

// OutputNode returns the node of the Output pass.
func (a *App) OutputNode() (nodegraph.NodeHandle, error) {
	return a.pkg.OutputNode()
}

// Connect links the first output port of src to the first input port of dst
// that has no link yet. Ports are reconciled with the pass parameters first.
func (a *App) Connect(src, dst nodegraph.NodeHandle) (nodegraph.LinkHandle, error) {
	if err := a.pkg.UpdateGraph(); err != nil {
		return nodegraph.InvalidLink, err
	}
	g := a.pkg.Graph()

	from := nodegraph.InvalidPort
	for p := range g.NodeOutputPorts(src) {
		from = p
		break
	}
	to := nodegraph.InvalidPort
	for p := range g.NodeInputPorts(dst) {
		if port, ok := g.Port(p); ok && port.Link == nodegraph.InvalidLink {
			to = p
			break
		}
	}
	if from == nodegraph.InvalidPort || to == nodegraph.InvalidPort {
		return nodegraph.InvalidLink, fmt.Errorf("%w: %s -> %s", ErrNoPort, src, dst)
	}

	l, ok := g.AddLink(from, to)
	if !ok {
		return nodegraph.InvalidLink, fmt.Errorf("%w: %s -> %s", ErrNoPort, src, dst)
	}
	return l, nil
}

// ReloadChanged reloads the passes whose shader files changed since the last
// call and returns the number of files handled. It does nothing without hot
// reload.
func (a *App) ReloadChanged() int {
	if a.pump == nil {
		return 0
	}
	return a.pump.Drain(func(ev watch.Event) {
		path, ok := a.watched[ev.Path]
		if !ok {
			return
		}
		if ev.Op == watch.OpRemoved {
			Logger().Warn("shader removed, keeping last program", "shader", path)
			return
		}
		for _, h := range a.pkg.PassByShader(path) {
			ps, _ := a.pkg.Pass(h)
			c, ok := ps.(*pass.Compute)
			if !ok {
				continue
			}
			if err := c.Reload(); err != nil {
				Logger().Warn("shader reload failed", "shader", path, "err", err)
				continue
			}
			Logger().Info("shader reloaded", "shader", path, "node", h)
		}
	})
}

// Frame renders one frame.
func (a *App) Frame() error {
	return a.FrameWithContext(context.Background())
}

// FrameWithContext applies pending shader changes, reconciles the graph with
// the pass parameters, compiles the project and dispatches it. A compile
// error skips the frame and is returned; the next frame tries again.
func (a *App) FrameWithContext(ctx context.Context) error {
	if a.closed {
		return ErrClosed
	}
	a.syncWatches()
	a.ReloadChanged()

	if err := a.pkg.UpdateGraph(); err != nil {
		return fmt.Errorf("rendertoy: update graph: %w", err)
	}
	cp, err := a.pkg.Compile(&pass.Settings{WindowSize: a.window, Textures: a.cache})
	if err != nil {
		return fmt.Errorf("rendertoy: compile: %w", err)
	}
	passes := len(cp.Passes)
	if err := a.exec.RenderWithContext(ctx, cp, a.window); err != nil {
		return fmt.Errorf("rendertoy: render: %w", err)
	}

	a.stats.Frames++
	a.stats.Passes = passes
	a.stats.Dispatch = a.exec.Stats()
	return nil
}

// Close releases the project, the texture cache and the watcher. The device
// is left open.
func (a *App) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.pkg.Close()
	a.cache.Close()
	if a.watcher != nil {
		return a.watcher.Close()
	}
	return nil
}

func (a *App) replace(p *project.Package) {
	if a.pkg != nil {
		a.pkg.Close()
	}
	a.pkg = p
}

// syncWatches makes the watched set equal the shaders of the project.
func (a *App) syncWatches() {
	if a.watcher == nil {
		return
	}
	want := make(map[string]string)
	for _, path := range a.pkg.ShaderPaths() {
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		want[abs] = path
	}

	for abs := range a.watched {
		if _, ok := want[abs]; ok {
			continue
		}
		if err := a.watcher.Unwatch(abs); err != nil {
			Logger().Warn("unwatch failed", "path", abs, "err", err)
		}
		delete(a.watched, abs)
	}

	added := make([]string, 0, len(want))
	for abs := range want {
		if _, ok := a.watched[abs]; !ok {
			added = append(added, abs)
		}
	}
	slices.Sort(added)
	for _, abs := range added {
		// A failed path is still recorded so it is not retried every frame.
		if err := a.watcher.Watch(abs); err != nil {
			Logger().Warn("watch failed", "path", abs, "err", err)
		}
		a.watched[abs] = want[abs]
	}
}
