/*
Package checkpoint writes and locates compacted snapshots of the log.

Every checkpointInterval commits the writer serializes the snapshot state
(protocol, metadata, app transactions, live tombstones, files) into a
checkpoint file plus the _last_checkpoint pointer. Checkpoints are purely
advisory: a failed write is logged and retried at a later due commit, and
replay falls back to the full log when a checkpoint is missing or
unreadable. Tombstones past the log retention horizon are dropped at
checkpoint time.
*/
package checkpoint
