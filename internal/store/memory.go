package store

import (
	"sort"
	"sync"
)

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// A single lock orders writes and fan-out, so every subscriber sees the
// snapshots of one name in the order they were stored, and Seq increases
// along that order.
//
// Subscribers receive updates via buffered channels (buffer size 100). Updates
// are sent non-blocking; if a subscriber's buffer is full, the update is dropped
// for that subscriber. Observers that fall behind can always re-read [MemoryStore.GetAll].
type MemoryStore struct {
	mu          sync.RWMutex
	seq         uint64
	snapshots   map[string]Snapshot
	subscribers map[chan Snapshot]struct{}
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots:   make(map[string]Snapshot),
		subscribers: make(map[chan Snapshot]struct{}),
	}
}

// Update stamps snap with the next sequence number, stores it and notifies
// all subscribers. The caller's Seq is ignored.
func (m *MemoryStore) Update(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	snap.Seq = m.seq
	m.snapshots[snap.Name] = snap

	for ch := range m.subscribers {
		select {
		case ch <- snap:
		default:
			// subscriber is slow, drop the message
		}
	}
}

// Get returns the latest snapshot stored under name.
func (m *MemoryStore) Get(name string) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snapshots[name]
	return snap, ok
}

// GetAll returns a copy of all current snapshots, sorted by name.
func (m *MemoryStore) GetAll() []Snapshot {
	m.mu.RLock()
	out := m.currentLocked()
	m.mu.RUnlock()
	return out
}

// Subscribe creates a new subscription and returns a channel for receiving updates.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Snapshot {
	_, ch := m.subscribe(false)
	return ch
}

// SubscribeWithCurrent registers a subscription and returns the snapshots
// current at that moment. Every later Update reaches the channel, and none
// of the returned snapshots is delivered on it again.
func (m *MemoryStore) SubscribeWithCurrent() ([]Snapshot, <-chan Snapshot) {
	return m.subscribe(true)
}

func (m *MemoryStore) subscribe(withCurrent bool) ([]Snapshot, <-chan Snapshot) {
	ch := make(chan Snapshot, subscriberBuffer)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.subscribers[ch] = struct{}{}
	if !withCurrent {
		return nil, ch
	}
	return m.currentLocked(), ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func (m *MemoryStore) currentLocked() []Snapshot {
	out := make([]Snapshot, 0, len(m.snapshots))
	for _, snap := range m.snapshots {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
