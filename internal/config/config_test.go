package config

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Window.Width != 1280 || cfg.Textures.BudgetMB != 256 {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestDecode(t *testing.T) {
	const src = `
log_level = "debug"
output = "frame.png"

[window]
width = 800
height = 600

[watch]
debounce = "250ms"

[shaders]
extensions = [".wgsl", ".comp"]
`
	cfg, err := Decode(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Window != (Window{Width: 800, Height: 600}) {
		t.Errorf("window = %+v", cfg.Window)
	}
	if time.Duration(cfg.Watch.Debounce) != 250*time.Millisecond {
		t.Errorf("debounce = %v", time.Duration(cfg.Watch.Debounce))
	}
	if len(cfg.Shaders.Extensions) != 2 || cfg.Shaders.Extensions[1] != ".comp" {
		t.Errorf("extensions = %v", cfg.Shaders.Extensions)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("level = %v", cfg.Level())
	}
	if cfg.Output != "frame.png" {
		t.Errorf("output = %q", cfg.Output)
	}
	// Unset sections keep their defaults.
	if cfg.Textures.BudgetMB != 256 {
		t.Errorf("budget = %d, want default 256", cfg.Textures.BudgetMB)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		invalid bool
	}{
		{"unknown key", "colour = 1\n", false},
		{"bad syntax", "[window\n", false},
		{"bad duration", "[watch]\ndebounce = \"soon\"\n", false},
		{"zero width", "[window]\nwidth = 0\n", true},
		{"negative budget", "[textures]\nbudget_mb = -1\n", true},
		{"negative debounce", "[watch]\ndebounce = \"-1s\"\n", true},
		{"no extensions", "[shaders]\nextensions = []\n", true},
		{"empty extension", "[shaders]\nextensions = [\".\"]\n", true},
		{"bad level", "log_level = \"loud\"\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.src))
			if err == nil {
				t.Fatal("Decode succeeded")
			}
			if got := errors.Is(err, ErrInvalid); got != tt.invalid {
				t.Errorf("errors.Is(%v, ErrInvalid) = %v, want %v", err, got, tt.invalid)
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Window.Width = 320
	cfg.Watch.Debounce = Duration(time.Second)
	cfg.LogLevel = "warn"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Window.Width != 320 || time.Duration(got.Watch.Debounce) != time.Second || got.Level() != slog.LevelWarn {
		t.Errorf("loaded %+v", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}
