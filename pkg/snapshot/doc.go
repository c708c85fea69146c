/*
Package snapshot reconstructs table state by folding the action log.

A Snapshot is immutable: readers hold it without locking, and mutation
happens by committing a new version. The Builder is a pure left-fold over
actions (metadata and protocol last-wins, AddFile inserts, RemoveFile
erases and tombstones, SetTransaction last-wins per app id); feeding the
same prefix twice yields the same state.

The package also owns the protocol gate: the library declares reader
version 1 and writer version 3, fails fast on tables that demand more,
rejects downgrades, and maps table features (append-only, invariants,
CHECK constraints) to the writer version they require.
*/
package snapshot
