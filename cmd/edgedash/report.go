package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	edgedash "github.com/mowgli42/bookish-train"
	"github.com/mowgli42/bookish-train/internal/report"
)

const (
	defaultLiveRefresh = 3 * time.Second
	clearScreen        = "\033[H\033[2J"
)

// errNotTerminal is returned by report --live when stdout is not a terminal.
var errNotTerminal = errors.New("--live requires a terminal on stdout")

// reportCmd prints the dashboard state to the terminal.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the dashboard state as a terminal report",
	Long: `Fetch every catcher resource once and print a report of buckets,
clients, packages, retention rules and projections.

With --live the report is redrawn every --refresh interval until
interrupted. Live mode needs a terminal.

Example:
  edgedash report
  CATCHER_URL=http://catcher:8000 edgedash report --live --refresh 5s`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringP("config", "c", "", "path to config file (defaults apply when omitted)")
	reportCmd.Flags().Bool("live", false, "redraw the report until interrupted")
	reportCmd.Flags().Duration("refresh", defaultLiveRefresh, "redraw interval in live mode")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	live, _ := cmd.Flags().GetBool("live")
	refresh, _ := cmd.Flags().GetDuration("refresh")
	if refresh <= 0 {
		return fmt.Errorf("--refresh must be positive, got %s", refresh)
	}
	if live && !isTerminal(os.Stdout) {
		return errNotTerminal
	}

	// keep the report readable: only warnings and worse reach stderr
	level, _ := cfg.SlogLevel()
	if level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	reg, err := newRegistry(cfg, newLogger(level), nil)
	if err != nil {
		return fmt.Errorf("failed to create registry: %w", err)
	}
	defer reg.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	if !live {
		reg.RefreshAll(ctx)
		fmt.Fprintln(out, report.Render(report.FromRegistry(reg)))
		return nil
	}
	return runLive(ctx, reg, out, refresh)
}

// runLive redraws the report every interval until ctx is cancelled.
func runLive(ctx context.Context, reg *edgedash.Registry, out io.Writer, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		reg.RefreshAll(ctx)
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(out, clearScreen)
		fmt.Fprintln(out, report.Render(report.FromRegistry(reg)))

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
