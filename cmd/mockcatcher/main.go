// Standalone mock catcher for trying the dashboard without edge hardware.
//
// Usage:
//
//	go run ./cmd/mockcatcher --addr :8000
//
// Then in another terminal:
//
//	CATCHER_URL=http://127.0.0.1:8000 go run ./cmd/edgedash report
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mowgli42/bookish-train/internal/mockcatcher"
)

// flappable are the read endpoints that --flap breaks and repairs.
var flappable = []string{
	mockcatcher.BucketsPath,
	mockcatcher.JobsPath,
	mockcatcher.PackagesPath,
	mockcatcher.SourcesPath,
	mockcatcher.ProjectionsPath,
}

var rootCmd = &cobra.Command{
	Use:          "mockcatcher",
	Short:        "Serve a fake edge backup catcher",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().String("addr", ":8000", "listen address")
	rootCmd.Flags().String("fixture", "", "YAML fixture file (built-in data when omitted)")
	rootCmd.Flags().Bool("demo", false, "start in demo mode (retention in seconds)")
	rootCmd.Flags().Duration("latency", 0, "delay added to every response")
	rootCmd.Flags().Bool("flap", false, "randomly fail and recover read endpoints")
	rootCmd.Flags().Duration("churn", 0, "progress or expire one job every interval (0 disables)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	fixturePath, _ := cmd.Flags().GetString("fixture")
	demo, _ := cmd.Flags().GetBool("demo")
	latency, _ := cmd.Flags().GetDuration("latency")
	flap, _ := cmd.Flags().GetBool("flap")
	churn, _ := cmd.Flags().GetDuration("churn")
	if churn < 0 {
		return fmt.Errorf("--churn cannot be negative, got %s", churn)
	}

	fixture := mockcatcher.DefaultFixture()
	if fixturePath != "" {
		var err error
		if fixture, err = mockcatcher.LoadFixture(fixturePath); err != nil {
			return err
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	opts := []mockcatcher.Option{mockcatcher.WithLogger(logger), mockcatcher.WithLatency(latency)}
	if cmd.Flags().Changed("demo") {
		opts = append(opts, mockcatcher.WithDemoMode(demo))
	}
	catcher := mockcatcher.New(fixture, opts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flap {
		go flapLoop(ctx, catcher, logger)
	}
	if churn > 0 {
		go churnLoop(ctx, catcher, churn, logger)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           catcher.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Mock catcher starting on %s\n", addr)
	if flap {
		fmt.Fprintln(out, "Read endpoints flap between healthy and 503")
	}
	if churn > 0 {
		fmt.Fprintf(out, "Jobs progress every %s\n", churn)
	}
	fmt.Fprintln(out, "Press Ctrl+C to stop")
	fmt.Fprintln(out)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// flapLoop toggles one endpoint every 20 to 60 seconds.
func flapLoop(ctx context.Context, catcher *mockcatcher.Catcher, logger *slog.Logger) {
	failing := make(map[string]bool)
	for {
		wait := time.Duration(20+rand.IntN(41)) * time.Second
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		path := flappable[rand.IntN(len(flappable))]
		if failing[path] {
			catcher.Recover(path)
			delete(failing, path)
			logger.Info("endpoint recovered", "path", path)
			continue
		}
		catcher.Fail(path, http.StatusServiceUnavailable)
		failing[path] = true
		logger.Info("endpoint failing", "path", path, "status", http.StatusServiceUnavailable)
	}
}

// churnLoop advances the catcher's jobs every interval so the dashboard sees
// progress and retention deletes.
func churnLoop(ctx context.Context, catcher *mockcatcher.Catcher, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if id, status, ok := catcher.Advance(); ok {
			logger.Info("job advanced", "job_id", id, "status", status)
		}
	}
}
