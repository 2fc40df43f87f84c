package rendertoy

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gogpu/rendertoy/internal/gputest"
	"github.com/gogpu/rendertoy/internal/nodegraph"
	"github.com/gogpu/rendertoy/internal/param"
	"github.com/gogpu/rendertoy/internal/pass"
	"github.com/gogpu/rendertoy/internal/project"
)

func newTestApp(t *testing.T, opts ...Option) (*App, *gputest.Device, *gputest.Compiler) {
	t.Helper()
	dev := gputest.NewDevice()
	compiler := gputest.NewCompiler()
	opts = append([]Option{WithCompiler(compiler), WithWindowSize(64, 32)}, opts...)
	app, err := NewApp(dev, opts...)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app, dev, compiler
}

func generator(path string, extra ...param.Descriptor) *gputest.Compiler {
	c := gputest.NewCompiler()
	params := append([]param.Descriptor{gputest.Desc("outputImage", param.TypeImage2D)}, extra...)
	c.Set(path, gputest.NewProgram(path, params...))
	return c
}

// addGenerator adds a pass for path that creates a window-sized image and
// links it to the Output pass.
func addGenerator(t *testing.T, app *App, path string) (nodegraph.NodeHandle, *pass.Compute) {
	t.Helper()
	h, err := app.AddShader(path)
	if err != nil {
		t.Fatalf("AddShader: %v", err)
	}
	ps, _ := app.Package().Pass(h)
	c := ps.(*pass.Compute)

	v := param.DefaultValue(param.TypeImage2D)
	v.Texture.Source = param.SourceCreate
	if err := c.SetValue("outputImage", v); err != nil {
		t.Fatal(err)
	}

	out, err := app.OutputNode()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := app.Connect(h, out); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return h, c
}

func TestNewAppStartsWithOutputOnly(t *testing.T) {
	app, dev, _ := newTestApp(t)

	if _, err := app.OutputNode(); err != nil {
		t.Fatalf("OutputNode: %v", err)
	}
	n := 0
	for range app.Package().Passes() {
		n++
	}
	if n != 1 {
		t.Errorf("new project has %d passes, want 1", n)
	}

	err := app.Frame()
	if !errors.Is(err, project.ErrUnboundInput) {
		t.Errorf("Frame() = %v, want ErrUnboundInput", err)
	}
	if len(dev.Presented()) != 0 {
		t.Error("frame with unbound output was presented")
	}
}

func TestFrameRendersConnectedShader(t *testing.T) {
	dev := gputest.NewDevice()
	app, err := NewApp(dev, WithCompiler(generator("gen.wgsl")), WithWindowSize(64, 32))
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	addGenerator(t, app, "gen.wgsl")
	if err := app.Frame(); err != nil {
		t.Fatalf("Frame: %v", err)
	}

	ds := dev.Dispatches()
	if len(ds) != 1 {
		t.Fatalf("got %d dispatches, want 1", len(ds))
	}
	if want := [3]uint32{8, 4, 1}; ds[0].Workgroups != want {
		t.Errorf("workgroups = %v, want %v", ds[0].Workgroups, want)
	}
	if len(dev.Presented()) != 1 {
		t.Errorf("presented %d frames, want 1", len(dev.Presented()))
	}

	s := app.Stats()
	if s.Frames != 1 || s.Passes != 2 || s.Dispatch.Dispatches != 1 {
		t.Errorf("stats = %+v", s)
	}

	// The transient is reused by the next frame.
	if err := app.Frame(); err != nil {
		t.Fatalf("second Frame: %v", err)
	}
	if got := dev.TexturesCreated(); got != 1 {
		t.Errorf("created %d textures over two frames, want 1", got)
	}
}

func TestConnectWithoutPorts(t *testing.T) {
	app, _, _ := newTestApp(t)
	out, _ := app.OutputNode()
	if _, err := app.Connect(out, out); !errors.Is(err, ErrNoPort) {
		t.Errorf("Connect(out, out) = %v, want ErrNoPort", err)
	}
}

func TestAddShaderRejectsUnknownExtension(t *testing.T) {
	app, _, _ := newTestApp(t)
	if _, err := app.AddShader("notes.txt"); !errors.Is(err, project.ErrUnsupportedShader) {
		t.Errorf("AddShader(notes.txt) = %v, want ErrUnsupportedShader", err)
	}

	app2, _, _ := newTestApp(t, WithShaderExtensions(".comp"))
	if _, err := app2.AddShader("blur.wgsl"); !errors.Is(err, project.ErrUnsupportedShader) {
		t.Errorf("AddShader(blur.wgsl) with .comp only = %v, want ErrUnsupportedShader", err)
	}
}

func TestSaveAndOpenProject(t *testing.T) {
	dev := gputest.NewDevice()
	app, err := NewApp(dev, WithCompiler(generator("gen.wgsl")), WithWindowSize(64, 32))
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()
	addGenerator(t, app, "gen.wgsl")

	path := filepath.Join(t.TempDir(), "scene.rtoy")
	if err := app.SaveProject(path); err != nil {
		t.Fatalf("SaveProject: %v", err)
	}

	app.NewProject()
	if err := app.Frame(); err == nil {
		t.Fatal("Frame on a new project succeeded")
	}

	if err := app.OpenProject(path); err != nil {
		t.Fatalf("OpenProject: %v", err)
	}
	if err := app.Frame(); err != nil {
		t.Fatalf("Frame after OpenProject: %v", err)
	}
	if len(dev.Presented()) != 1 {
		t.Errorf("presented %d frames, want 1", len(dev.Presented()))
	}
}

func TestOpenProjectKeepsCurrentOnError(t *testing.T) {
	app, _, _ := newTestApp(t)
	before := app.Package()

	if err := app.OpenProject(filepath.Join(t.TempDir(), "missing.rtoy")); err == nil {
		t.Fatal("OpenProject of a missing file succeeded")
	}
	if app.Package() != before {
		t.Error("project replaced by a failed open")
	}
}

func TestHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gen.wgsl")
	if err := os.WriteFile(path, []byte("v1"), 0o600); err != nil {
		t.Fatal(err)
	}

	compiler := generator(path)
	app, err := NewApp(gputest.NewDevice(),
		WithCompiler(compiler),
		WithWindowSize(64, 32),
		WithHotReload(10*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	_, c := addGenerator(t, app, path)
	var outUID param.UID
	for _, p := range c.Params() {
		outUID = p.UID
	}

	compiler.Set(path, gputest.NewProgram(path,
		gputest.Desc("gain", param.TypeFloat),
		gputest.Desc("outputImage", param.TypeImage2D)))
	if err := os.WriteFile(path, []byte("v2"), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for compiler.Calls(path) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("shader was not reloaded")
		}
		app.ReloadChanged()
		time.Sleep(10 * time.Millisecond)
	}

	if c.NumParams() != 2 {
		t.Fatalf("reloaded pass has %d params, want 2", c.NumParams())
	}
	if i := c.FindParamByPortUID(outUID); i != 1 {
		t.Errorf("outputImage UID found at %d, want 1", i)
	}
	if err := app.Frame(); err != nil {
		t.Errorf("Frame after reload: %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	app, _, _ := newTestApp(t, WithHotReload(0))
	if err := app.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := app.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := app.Frame(); !errors.Is(err, ErrClosed) {
		t.Errorf("Frame after Close = %v, want ErrClosed", err)
	}
}

func TestSetLogger(t *testing.T) {
	defer SetLogger(nil)

	l := slog.New(slog.NewTextHandler(os.Stderr, nil))
	SetLogger(l)
	if Logger() != l {
		t.Error("Logger() did not return the configured logger")
	}

	var got *slog.Logger
	RegisterLoggerSetter(func(l *slog.Logger) { got = l })
	if got != l {
		t.Error("RegisterLoggerSetter did not pass the current logger")
	}

	SetLogger(nil)
	if Logger() == nil || Logger().Enabled(t.Context(), slog.LevelError) {
		t.Error("SetLogger(nil) did not restore the silent logger")
	}
}
