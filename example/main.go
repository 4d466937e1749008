package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	edgedash "github.com/mowgli42/bookish-train"
	"github.com/mowgli42/bookish-train/internal/mockcatcher"
)

func main() {
	// start an in-process catcher in demo mode so ages move in seconds
	catcher := mockcatcher.New(mockcatcher.DefaultFixture(), mockcatcher.WithDemoMode(true))
	catcherSrv := &http.Server{Addr: ":8000", Handler: catcher.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := catcherSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mock catcher error", "error", err)
			os.Exit(1)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	// jobs changes fastest on a real catcher, so it gets its own interval
	dash, err := edgedash.New(
		edgedash.WithBaseURL("http://localhost:8000"),
		edgedash.WithRefreshInterval(5*time.Second),
		edgedash.WithResourceInterval(edgedash.JobsResource, 2*time.Second),
		edgedash.WithFailureToasts(),
		edgedash.WithPort(8080),
	)
	if err != nil {
		slog.Error("failed to create registry", "error", err)
		os.Exit(1)
	}
	defer dash.Close()

	// let jobs progress and expire
	go func() {
		for range time.Tick(5 * time.Second) {
			catcher.Advance()
		}
	}()

	// break the jobs endpoint for a while to show failure and recovery toasts
	go func() {
		time.Sleep(15 * time.Second)
		catcher.Fail(mockcatcher.JobsPath, http.StatusBadGateway)
		time.Sleep(15 * time.Second)
		catcher.Recover(mockcatcher.JobsPath)
	}()

	fmt.Println()
	fmt.Println("  edgedash demo")
	fmt.Println()
	fmt.Println("  Mock catcher:  http://localhost:8000")
	fmt.Println("  State API:     http://localhost:8080/api/state")
	fmt.Println("  Toasts:        http://localhost:8080/api/toasts")
	fmt.Println()
	fmt.Println("  Jobs fails after 15s and recovers 15s later.")
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dash.Serve(ctx); err != nil {
		slog.Error("edgedash error", "error", err)
	}
	_ = catcherSrv.Shutdown(context.Background())
}
