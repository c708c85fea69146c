/*
Package stream serves a table as a logically infinite ordered sequence of
AddFiles for incremental consumption.

Positions are (version, index) pairs, where index is the position of a
data-changing AddFile within its version's delta file; index -1 means
"before the first file of this version". A stream either backfills the
current snapshot as a synthetic first batch or starts at a configured
version or timestamp. Micro-batches are bounded by file count and byte
budget, a drained version bumps the offset to (version+1, -1), and each
streamed version is checked for hygiene: compaction output is skipped,
data rewrites and pure deletes fail unless the matching ignore option is
set, schema changes must stay read-compatible with the starting schema,
and protocol bumps re-validate the reader gate.

Between batches a consumer blocks in WaitForCommit, which wakes on the
table's event broker instead of polling the log store.
*/
package stream
