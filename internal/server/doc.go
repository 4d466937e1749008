// Package server exposes the dashboard state over HTTP.
//
// It serves the current resource snapshots as JSON, streams snapshot updates
// as Server-Sent Events, lists and dismisses toasts, triggers refreshes and
// optionally serves Prometheus metrics.
//
// The server shuts down gracefully when its context is cancelled, with a
// 5-second timeout for in-flight requests.
//
// Users of the edgedash package should not need this package directly; it is
// started by Registry.Serve.
package server
