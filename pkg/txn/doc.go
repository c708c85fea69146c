/*
Package txn implements the optimistic transaction protocol.

A transaction captures the snapshot it starts from, records the predicates
and files it reads, and commits by atomically writing log version
readVersion+1. When another writer wins that version the transaction
replays every winning commit through conflict detection; a compatible
history rebases and retries (bounded), an incompatible one aborts with a
classified ConflictError carrying the winner's CommitInfo:

	MetadataChanged         the winner replaced table metadata
	ProtocolChanged         the winner changed protocol versions
	ConcurrentDeleteRead    the winner deleted a file this txn read
	ConcurrentDeleteDelete  both transactions deleted the same file
	ConcurrentAppend        the winner appended into this txn's read domain
	ConcurrentTransaction   duplicate idempotent-writer app id

Pure blind appends never conflict with each other and report
SnapshotIsolation; every other write reports Serializable. There are no
locks across commits; the log store's atomic write is the only
serialization point.
*/
package txn
