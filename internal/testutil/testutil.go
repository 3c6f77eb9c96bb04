// Package testutil provides test utilities for seriesgraph, including:
//   - an in-process fake of the platform APIs (platform.go): catalog scopes, module registry,
//     compute evaluator and ingest writer, served by Fiber over httptest
//   - Miniredis helpers for unit tests (miniredis.go)
//
// Nothing here needs Docker or network access.
package testutil
