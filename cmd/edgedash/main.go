// Package main is the entry point for the edgedash CLI.
//
// edgedash can be used as a library or as a standalone binary with YAML
// configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	edgedash serve -c config.yaml    # Refresh periodically and serve the state API
//	edgedash report                  # Print a one-shot terminal report
//	edgedash report --live           # Redraw the report until interrupted
//	edgedash validate -c config.yaml # Validate configuration
//	edgedash version                 # Show version info
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	edgedash "github.com/mowgli42/bookish-train"
	"github.com/mowgli42/bookish-train/config"
	"github.com/mowgli42/bookish-train/internal/notify"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultEnvFile = ".env"

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "edgedash",
	Short: "State layer of the edge backup dashboard",
	Long: `edgedash keeps a local, refreshable view of an edge backup catcher:
buckets, jobs, packages, sources, status, retention config and projections.

Quick start:
  1. Point it at a catcher: export CATCHER_URL=http://127.0.0.1:8000
  2. Print a report:        edgedash report
  3. Or serve the state:    edgedash serve -c edgedash.yaml

Example config:
  catcher_url: ${CATCHER_URL:-http://127.0.0.1:8000}
  port: 8080
  refresh_interval: 15s
  toasts:
    on_failure: true`,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnvFile,
}

// loadEnvFile loads variables from --env-file. A missing default file is
// fine; a missing file named explicitly is an error. Variables already set
// in the environment win.
func loadEnvFile(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("env-file")
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("env-file") {
		return nil
	}
	return fmt.Errorf("failed to load env file: %w", err)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this edgedash binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "edgedash %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().String("env-file", defaultEnvFile, "file of KEY=value lines loaded into the environment")
	rootCmd.AddCommand(versionCmd)
}

// newLogger creates a JSON logger for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// loadConfig reads the file named by --config, or the defaults when none
// is given.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Parse(nil)
	}
	return config.Load(path)
}

// newRegistry builds a registry from cfg. promReg may be nil.
func newRegistry(cfg *config.Config, logger *slog.Logger, promReg *prometheus.Registry) (*edgedash.Registry, error) {
	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, edgedash.WithLogger(logger))
	if cfg.Toasts.Desktop {
		desktop := notify.NewDesktop(notify.WithLogger(logger))
		opts = append(opts, edgedash.WithToastSink(desktop.Sink()))
	}
	if promReg != nil {
		opts = append(opts, edgedash.WithPrometheus(promReg))
	}
	return edgedash.New(opts...)
}
