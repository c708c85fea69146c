/*
Package deltalog is the shared handle layer over a table's log.

A DeltaLog caches the latest snapshot under a mutex and refreshes it
incrementally: from the cached state when only new deltas landed, from the
newest checkpoint otherwise, folding delta files in order and validating
the version sequence is dense. Snapshots themselves are immutable, so
readers keep using one while the cache moves on.

Handles are borrowed from a Registry that owns the per-path cache and the
shared event broker; there is no process-wide singleton, and the registry
is responsible for eviction. Opening a path under an existing table is
rejected (ErrPartialTableScan): a partitioned table must be scanned at
its root.

After every won commit the handle refreshes the cache, writes a due
checkpoint, publishes commit/metadata/protocol events, and updates the
Prometheus gauges.
*/
package deltalog
