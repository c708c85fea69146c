/*
Package action defines the typed records of the delta log and their
single-line JSON codec.

Each log line is a JSON object with exactly one top-level discriminator
field (add, remove, metaData, protocol, txn, commitInfo). Unknown
discriminators and unknown fields inside a known action are ignored so
newer writers stay readable.

	a, err := action.Decode(line)   // nil, nil for unknown discriminators
	raw, err := action.Encode(&action.AddFile{...})

CommitInfo is provenance only: replay never depends on it. Operation names
are recorded verbatim through the Op* constants.
*/
package action
