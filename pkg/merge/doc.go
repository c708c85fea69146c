/*
Package merge implements MERGE INTO: a join-based upsert with ordered WHEN
clauses, multi-match detection, and optional schema evolution.

The engine runs in three phases over two scans of the target:

Phase A finds the touched files: the target-only conjuncts of the
condition narrow the candidate files through data skipping, an inner join
of source against the candidate rows counts matches per synthesized row
identity, and any target row matching more than one source row fails with
ErrMultipleSourceMatch - unless the whole merge is a single unconditional
delete, the one multi-match shape with a well-defined result.

Phase B joins source against only the touched files (full outer, or right
outer when there are no not-matched clauses) and drives a per-row state
machine: target-only rows copy through, source-only rows try the
not-matched clauses in order, matched rows try the matched clauses in
order with the first satisfied predicate firing.

Phase C commits RemoveFile for every touched file plus the new AddFiles
through the optimistic transaction; a conflict reruns the merge from
Phase A, since the read-set depends on the snapshot.

Insert-only merges (no matched clauses, one not-matched clause) take a
left-anti fast path that rewrites no target file. With autoMerge.schema
the target schema is widened by source-only columns before validation.
*/
package merge
