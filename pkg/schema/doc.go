/*
Package schema models table schemas and their evolution rules.

Schemas serialize to the canonical JSON document stored in the metadata
action. Read compatibility allows appending nullable fields and widening
numeric types (byte -> short -> integer -> long, float -> double, numeric
-> string); removing, renaming, or narrowing a field is incompatible.
Merge widens a target schema with a source's extra columns for MERGE
schema evolution, and the assignment validators enforce the nested SET
path rules shared by UPDATE and MERGE.
*/
package schema
