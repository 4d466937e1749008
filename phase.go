package edgedash

import "fmt"

// Phase is the coarse lifecycle state of a resource store.
//
// Phase is a string type so it serialises readably in snapshots and logs.
type Phase string

const (
	// PhaseIdle is the state before the first refresh.
	PhaseIdle Phase = "idle"

	// PhaseLoading is set exactly while a fetch is in flight.
	PhaseLoading Phase = "loading"

	// PhaseSuccess indicates the last applied fetch succeeded.
	PhaseSuccess Phase = "success"

	// PhaseFailure indicates the last applied fetch failed. Data holds the
	// resource's empty default, never stale data.
	PhaseFailure Phase = "failure"
)

// String returns the string representation of the phase.
// This implements the fmt.Stringer interface.
func (p Phase) String() string {
	return string(p)
}

// OrderPolicy decides which response wins when refreshes of the same
// resource overlap.
type OrderPolicy int

const (
	// OrderLatestIssued applies a response only if it answers the most
	// recently issued refresh; older responses are discarded silently.
	OrderLatestIssued OrderPolicy = iota

	// OrderLastResolved applies every response as it arrives, so whichever
	// resolves last wins regardless of issue order.
	OrderLastResolved
)

// String returns the configuration name of the policy.
func (o OrderPolicy) String() string {
	switch o {
	case OrderLatestIssued:
		return "latest_issued"
	case OrderLastResolved:
		return "last_resolved"
	default:
		return "unknown"
	}
}

// ParseOrderPolicy parses "latest_issued" or "last_resolved". An empty
// string yields [OrderLatestIssued].
func ParseOrderPolicy(s string) (OrderPolicy, error) {
	switch s {
	case "", "latest_issued":
		return OrderLatestIssued, nil
	case "last_resolved":
		return OrderLastResolved, nil
	default:
		return OrderLatestIssued, fmt.Errorf("unknown order policy %q (expected latest_issued or last_resolved)", s)
	}
}
