// Package config loads the rendertoy application configuration.
//
// The configuration is a TOML file, by default
// ~/.config/rendertoy/config.toml:
//
//	log_level = "info"
//	output = "out.png"
//
//	[window]
//	width = 1280
//	height = 720
//
//	[textures]
//	budget_mb = 256
//
//	[watch]
//	debounce = "100ms"
//
//	[shaders]
//	extensions = [".wgsl"]
//
// A missing file yields the defaults. Keys that are not recognised are an
// error so typos do not go unnoticed.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
)

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "~/.config/rendertoy/config.toml"

// ErrInvalid is returned by Validate for out-of-range values.
var ErrInvalid = errors.New("config: invalid value")

// Config is the application configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	// Output is the PNG file the render command writes.
	Output string `toml:"output"`

	Window   Window   `toml:"window"`
	Textures Textures `toml:"textures"`
	Watch    Watch    `toml:"watch"`
	Shaders  Shaders  `toml:"shaders"`
}

// Window is the size of the render target that #window-relative images
// scale against.
type Window struct {
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

// Textures configures the texture cache.
type Textures struct {
	// BudgetMB bounds the memory held by idle transient textures.
	BudgetMB int `toml:"budget_mb"`
}

// Watch configures shader hot reload.
type Watch struct {
	// Debounce is the quiet period before a file change is reported.
	Debounce Duration `toml:"debounce"`
}

// Shaders configures which files are accepted as compute shaders.
type Shaders struct {
	Extensions []string `toml:"extensions"`
}

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Window:   Window{Width: 1280, Height: 720},
		Textures: Textures{BudgetMB: 256},
		Watch:    Watch{Debounce: Duration(100 * time.Millisecond)},
		Shaders:  Shaders{Extensions: []string{".wgsl"}},
		LogLevel: "info",
		Output:   "out.png",
	}
}

// Load reads the configuration at path on top of the defaults. An empty path
// means DefaultPath; "~" is expanded to the home directory. A missing file
// is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	data, err := os.ReadFile(expanded)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", expanded, err)
	}
	return cfg, nil
}

// Decode reads a TOML configuration from r on top of the defaults and
// validates it.
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, errors.New(strict.String())
		}
		var de *toml.DecodeError
		if errors.As(err, &de) {
			return nil, errors.New(de.String())
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as TOML to path, creating parent directories.
func (c *Config) Save(path string) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return os.WriteFile(expanded, data, 0o644) //nolint:gosec // config files are user-readable
}

// Validate reports the first out-of-range value.
func (c *Config) Validate() error {
	switch {
	case c.Window.Width == 0 || c.Window.Height == 0:
		return fmt.Errorf("%w: window size %dx%d", ErrInvalid, c.Window.Width, c.Window.Height)
	case c.Textures.BudgetMB < 0:
		return fmt.Errorf("%w: textures.budget_mb %d", ErrInvalid, c.Textures.BudgetMB)
	case c.Watch.Debounce < 0:
		return fmt.Errorf("%w: watch.debounce %s", ErrInvalid, time.Duration(c.Watch.Debounce))
	case len(c.Shaders.Extensions) == 0:
		return fmt.Errorf("%w: shaders.extensions is empty", ErrInvalid)
	}
	for _, ext := range c.Shaders.Extensions {
		if strings.TrimPrefix(ext, ".") == "" {
			return fmt.Errorf("%w: shader extension %q", ErrInvalid, ext)
		}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	l, _ := ParseLevel(c.LogLevel)
	return l
}

// ParseLevel parses a log level name. The empty string means info.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalid, s)
	}
	return l, nil
}
