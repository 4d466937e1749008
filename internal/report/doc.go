// Package report renders the dashboard state as a terminal report.
//
// [FromRegistry] captures the current state of every resource; [Render]
// lays it out as bordered panels: component status, buckets, clients,
// packages, retention rules and projections, followed by demo-mode and
// deleted-count notes when they apply.
package report
