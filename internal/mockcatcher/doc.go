// Package mockcatcher implements an in-memory catcher backend for local
// development and tests.
//
// A [Catcher] is seeded from a [Fixture], either [DefaultFixture] or a YAML
// file loaded with [LoadFixture]. Its [Catcher.Handler] serves the same paths
// as the real catcher:
//
//	GET  /health
//	POST /api/v1/ingest
//	GET  /api/v1/jobs, /api/v1/jobs/{id}
//	GET  /api/v1/sources, POST /api/v1/sources
//	GET  /api/v1/packages, /api/v1/buckets, /api/v1/status
//	GET  /api/v1/config, /api/v1/projections?days=N[&seconds=S]
//
// Faults are injected per path with [Catcher.Fail] and [Catcher.Corrupt] and
// cleared with [Catcher.Recover].
package mockcatcher
