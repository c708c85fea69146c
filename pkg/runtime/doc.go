/*
Package runtime declares the QueryRuntime capability the core requires
from the execution layer: scan files into rows, join row streams, and
materialize rows into new data files. The core never parses data files
itself, it only tracks their paths, sizes, stats, and partition values.

Memory is the in-process reference implementation holding row groups
keyed by file path; it backs the test-suite and the CLI. A distributed
runtime plugs in behind the same interface and presents itself to the log
layer as plain iterators.
*/
package runtime
