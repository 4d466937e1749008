// Package edgedash provides the client-side state layer of the edge backup
// dashboard: one independently refreshable store per catcher resource, plus
// a queue of short-lived notifications.
//
// # Quick Start
//
// Create a registry, refresh it and read the typed state:
//
//	reg, err := edgedash.New(edgedash.WithBaseURL("http://127.0.0.1:8000"))
//	if err != nil {
//	    slog.Error("failed to create registry", "error", err)
//	    os.Exit(1)
//	}
//	defer reg.Close()
//
//	reg.RefreshAll(ctx)
//	if msg := reg.Jobs().ErrorMessage(); msg != "" {
//	    reg.Toasts().Error("jobs: " + msg)
//	}
//	for _, job := range reg.Jobs().Data() {
//	    fmt.Println(job.JobID, job.Status)
//	}
//
// To serve the state over HTTP with periodic refreshes:
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//	reg.Serve(ctx) // blocks until ctx is cancelled
//
// # Resources
//
// Every [Resource] follows the same lifecycle. A refresh moves it to
// [PhaseLoading] and clears the error while keeping the previous data. A
// well-formed 2xx response moves it to [PhaseSuccess] with freshly extracted
// data. A transport error, a non-2xx status or an undecodable body moves it
// to [PhaseFailure], stores a [*FetchError] and resets the data to the
// resource's empty default. Refreshes never return errors or panic.
//
// The registry holds seven resources:
//
//   - buckets: /api/v1/buckets, per-tier summaries
//   - config: /api/v1/config, retention rule sets, demo mode and unit
//   - jobs, packages, sources: bare arrays from their endpoints
//   - status: /api/v1/status, the component status record
//   - projections: /api/v1/projections?days=N[&seconds=S]
//
// # Overlapping Refreshes
//
// A refresh issued while another is in flight does not cancel it. With the
// default [OrderLatestIssued] policy, only the response to the most recently
// issued refresh is applied. [OrderLastResolved] applies responses in arrival
// order instead, for compatibility with callers that rely on it.
//
// # Process-wide Registry
//
// [Init] and [Default] manage a single shared registry for the process. [New]
// creates independent registries, which is what tests should use.
//
// # Architecture
//
// The internal packages are:
//
//   - internal/remote: HTTP client for catcher reads
//   - internal/store: snapshot hub with pub/sub for observers
//   - internal/refresher: periodic refresh scheduler with worker pool
//   - internal/server: HTTP API with Server-Sent Events
//   - internal/metrics: Prometheus recorder
//   - internal/report: terminal rendering of the dashboard
//   - internal/notify: desktop notifications for toasts
//   - internal/mockcatcher: in-memory catcher for tests and demos
//
// The toast package holds the notification queue.
package edgedash
