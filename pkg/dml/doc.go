/*
Package dml implements the file-rewrite DML verbs: DELETE, UPDATE, and the
WRITE path (append / overwrite with replaceWhere).

DELETE without a predicate tombstones every file; a predicate over
partition columns only tombstones whole matching files; a row-level
predicate rewrites each affected file without the matching rows, leaving
provably untouched files alone. UPDATE is the analogous rewrite with the
set expressions applied to matching rows.
*/
package dml
