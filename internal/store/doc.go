// Package store provides the snapshot hub shared by the dashboard stores.
//
// Every resource store and the toast queue publish a type-erased [Snapshot]
// here whenever their state changes. The hub keeps the latest snapshot per
// name and fans changes out to subscribers (the state server's SSE stream,
// the live terminal report).
//
// Snapshots carry the full lifecycle of a store rather than a single status
// value: phase, loading flag, error message and data travel together, and
// the hub stamps each write with a sequence number. Writes and fan-out share
// one lock, so a subscriber never sees an older snapshot of a name after a
// newer one. [MemoryStore.SubscribeWithCurrent] hands a new observer the
// current state and its update channel atomically.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [Snapshot]: JSON-friendly view of one named piece of state
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers will miss updates rather than block a refresh).
package store
