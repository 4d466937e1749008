// Package refresher drives periodic refreshes of the dashboard resources.
//
// A [Scheduler] refreshes every [Target] immediately on start, then ticks at
// the GCD of all target intervals and refreshes only the targets that are
// due. Refreshes run on a bounded worker pool and each completion is emitted
// on [Scheduler.Results].
//
// Users of the edgedash package should not need this package directly;
// Registry.Serve wires it up.
package refresher
