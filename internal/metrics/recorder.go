package metrics

import "time"

// Refresh outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	// OutcomeStale marks a response discarded because a newer request was issued.
	OutcomeStale = "stale"
)

// Recorder receives refresh and toast observations. Implementations must be
// safe for concurrent use.
type Recorder interface {
	ObserveRefresh(resource, outcome string, d time.Duration)
	IncFailureKind(resource, kind string)
	IncToast(category string)
	SetActiveToasts(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveRefresh(string, string, time.Duration) {}
func (NoopRecorder) IncFailureKind(string, string)                {}
func (NoopRecorder) IncToast(string)                              {}
func (NoopRecorder) SetActiveToasts(int)                          {}
