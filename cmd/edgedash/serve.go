package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd refreshes the catcher state and serves it over HTTP.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Refresh catcher state and serve it over HTTP",
	Long: `Start the edgedash state server.

The server will:
  - Load configuration from the specified YAML file
  - Refresh every catcher resource at the configured intervals
  - Serve the state API, SSE stream and Prometheus metrics on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  edgedash serve -c config.yaml
  edgedash serve --config /etc/edgedash/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (defaults apply when omitted)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	level, _ := cfg.SlogLevel()
	logger := newLogger(level)

	logger.Info("config loaded",
		"resources", len(cfg.Resources),
		"order_policy", cfg.OrderPolicy,
	)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reg, err := newRegistry(cfg, logger, promReg)
	if err != nil {
		return fmt.Errorf("failed to create registry: %w", err)
	}
	defer reg.Close()

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// serve - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- reg.Serve(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
