/*
Package logstore persists the table's ordered action log.

The store's Write is the sole concurrency primitive the whole library
leans on: for a given version exactly one writer succeeds and every other
writer observes ErrVersionExists. Losing that guarantee collapses the ACID
story, so both implementations put the atomicity on a primitive the
underlying medium guarantees:

  - FileStore stages the commit in a temp file and publishes it with
    os.Link, which fails with EEXIST when the name is taken.
  - BoltStore performs a compare-and-swap put inside a single bbolt update
    transaction.

Log filenames follow the on-disk protocol: _delta_log/<20-digit>.json for
deltas, <20-digit>.checkpoint.parquet for checkpoints, and the
_last_checkpoint JSON pointer.
*/
package logstore
