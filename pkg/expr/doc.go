/*
Package expr is the row-local expression contract the DML engines consume.

An Expr binds to nothing at construction and evaluates against a Row with
SQL three-valued logic; <=> is the null-safe equality used by merge
conditions. Parsing SQL text into an Expr is a collaborator concern; this
package provides typed constructors (Col, Lit, Eq, And, Add, ...) plus the
rewrites the merge planner needs: conjunct splitting, qualifier handling,
and determinism checks.
*/
package expr
