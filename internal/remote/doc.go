// Package remote provides the HTTP read client used by the dashboard stores.
//
// This package is internal and wraps net/http with base URL resolution,
// per-request timeouts and response size limits. It does not interpret
// bodies; decoding and failure classification happen in the edgedash
// package, which owns the resource state machine.
package remote
