package stream

import (
	"fmt"
)

// ChangeError reports a data-changing RemoveFile inside a streamed version
type ChangeError struct {
	Version    int64
	PureDelete bool
}

func (e *ChangeError) Error() string {
	if e.PureDelete {
		return fmt.Sprintf("stream: version %d deletes data; set the ignore_deletes option to skip deletions", e.Version)
	}
	return fmt.Sprintf("stream: version %d rewrites data; set the ignore_changes option to receive possibly duplicated rows", e.Version)
}

// SchemaChangedError reports a mid-stream schema change that readers of
// the starting schema cannot follow
type SchemaChangedError struct {
	Version int64
	Cause   error
}

func (e *SchemaChangedError) Error() string {
	return fmt.Sprintf("stream: schema changed at version %d: %v; restart the stream to pick it up", e.Version, e.Cause)
}

func (e *SchemaChangedError) Unwrap() error {
	return e.Cause
}
