// Command rendertoy renders and live-edits compute shader compositor
// projects.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gogpu/rendertoy"
	"github.com/gogpu/rendertoy/internal/config"
)

var (
	configPath  string
	logLevel    string
	backendName string
	width       uint32
	height      uint32
	noColor     bool
)

// cfg is the configuration loaded before any command runs, with flags
// applied on top.
var cfg *config.Config

func main() {
	rootCmd := &cobra.Command{
		Use:   "rendertoy",
		Short: "Node-graph compute shader compositor",
		Long: `rendertoy runs a graph of WGSL compute shader passes and writes the
final image. Shaders are hot reloaded while watching a project.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", config.DefaultPath, "configuration file")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	flags.StringVar(&backendName, "backend", "", "GPU backend (default: best available)")
	flags.Uint32Var(&width, "width", 0, "render width (overrides config)")
	flags.Uint32Var(&height, "height", 0, "render height (overrides config)")
	flags.BoolVar(&noColor, "no-color", false, "disable coloured output")

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	if noColor {
		color.NoColor = true
	}

	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if width > 0 {
		cfg.Window.Width = width
	}
	if height > 0 {
		cfg.Window.Height = height
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	rendertoy.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Level(),
	})))
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "rendertoy %s\n", rendertoy.Version)
	},
}
