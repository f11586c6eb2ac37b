// Package audit records every mutation of a tracked entity as an immutable,
// append-only record carrying a per-entity revision number. Revisions are
// assigned inside the same transaction as the insert, so under the entity's
// lock the sequence for any (entityType, entityID) pair is 1, 2, 3, … with
// no duplicates. Reads are tenant-scoped unless the caller asserts a
// cross-tenant privilege.
package audit
