/*
Package index narrows a snapshot's file set against predicates.

Partition predicates evaluate exactly against each file's partition
values; data predicates are checked against the per-file stats ranges
(numRecords, min, max, nullCount) and a file is skipped only when the
predicate is provably false for every row it can hold. A missing or
unreadable stat never skips. Skipping is therefore a monotonic filter:
disabling it (delta.stats.skipping=false) must never change query results.
*/
package index
