package rendertoy

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/rendertoy/internal/dispatch"
	"github.com/gogpu/rendertoy/internal/pass"
	"github.com/gogpu/rendertoy/internal/project"
	"github.com/gogpu/rendertoy/internal/shader"
	"github.com/gogpu/rendertoy/internal/texture"
	"github.com/gogpu/rendertoy/internal/watch"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// loggerSetters are the SetLogger functions of the internal packages.
// Backend packages register theirs with RegisterLoggerSetter.
var (
	settersMu     sync.Mutex
	loggerSetters = []func(*slog.Logger){
		shader.SetLogger,
		texture.SetLogger,
		pass.SetLogger,
		project.SetLogger,
		dispatch.SetLogger,
		watch.SetLogger,
	}
)

// SetLogger configures the logger for rendertoy and all its sub-packages.
// By default, rendertoy produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by rendertoy:
//   - [slog.LevelDebug]: per-frame diagnostics (pass order, texture
//     allocations, dispatch sizes)
//   - [slog.LevelInfo]: lifecycle events (device opened, project loaded,
//     shader reloaded)
//   - [slog.LevelWarn]: non-fatal issues (shader compile errors, decode
//     failures, dropped file events)
//
// Example:
//
//	rendertoy.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	settersMu.Lock()
	defer settersMu.Unlock()
	loggerPtr.Store(l)
	for _, set := range loggerSetters {
		set(l)
	}
}

// RegisterLoggerSetter adds a package to the loggers SetLogger updates and
// passes it the current logger. The native backend calls it from init().
func RegisterLoggerSetter(set func(*slog.Logger)) {
	settersMu.Lock()
	defer settersMu.Unlock()
	loggerSetters = append(loggerSetters, set)
	set(Logger())
}

// Logger returns the current logger used by rendertoy.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
