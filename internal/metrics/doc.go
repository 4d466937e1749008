// Package metrics defines observability hooks for resource refreshes and the
// toast queue, with a no-op default and a Prometheus implementation.
package metrics
