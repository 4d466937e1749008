package store

import "time"

// Snapshot is the published view of one named piece of dashboard state.
//
// Snapshot is decoupled from the typed resource state so that observers
// (HTTP, SSE, terminal) can consume every resource uniformly.
type Snapshot struct {
	// Name identifies the state ("jobs", "config", "toasts", ...).
	Name string `json:"name"`

	// Phase is the lifecycle phase ("idle", "loading", "success", "failure").
	Phase string `json:"phase"`

	// Loading is true exactly while a fetch is in flight.
	Loading bool `json:"loading"`

	// Error is the failure message, nil unless Phase is "failure".
	Error *string `json:"error"`

	// Data is the current value. It must not be mutated by receivers.
	Data any `json:"data"`

	// UpdatedAt is when the state last changed.
	UpdatedAt time.Time `json:"updated_at"`

	// Seq is assigned by the hub on Update and grows with every write.
	// Observers drop a snapshot whose Seq is not above the last one seen
	// for the same Name.
	Seq uint64 `json:"seq"`
}

// Store defines the interface for storing and subscribing to snapshots.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Update stamps Seq, stores the snapshot and notifies all subscribers.
	// Snapshots are keyed by Name, so later updates replace earlier ones.
	Update(snap Snapshot)

	// Get returns the latest snapshot for name.
	Get(name string) (Snapshot, bool)

	// GetAll returns all current snapshots ordered by name.
	GetAll() []Snapshot

	// Subscribe returns a channel that receives snapshot updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Snapshot

	// SubscribeWithCurrent subscribes and returns the current snapshots in
	// one step, so no update falls between the two.
	SubscribeWithCurrent() ([]Snapshot, <-chan Snapshot)

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Snapshot)
}
