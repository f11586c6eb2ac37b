// Package pipeline orchestrates a concurrency-safe mutation: resolve the
// tenant, derive the canonical lock key, acquire the distributed lock, run
// the caller's mutation against committed state, append the audit record
// while still holding the lock, and release. Release is attempted on every
// path; the lock's hold timeout bounds the damage if it fails. The pipeline
// never retries the mutation — callers retry the whole invocation.
package pipeline
