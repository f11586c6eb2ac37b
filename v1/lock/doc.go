// Package lock provides distributed lock managers guarding contended
// reservation resources across service instances. A lock is held by at most
// one owner per key at any instant, identified by a fencing token, and is
// bounded by a hold timeout so a crashed holder cannot wedge a key forever.
// Waiters block up to a wait budget, woken by syncbus release notifications
// and a jittered backoff. In-memory and Redis backends are provided.
package lock
