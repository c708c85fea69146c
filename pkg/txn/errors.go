package txn

import (
	"errors"
	"fmt"

	"github.com/cuemby/delta/pkg/action"
)

var (
	// ErrMaxRetryExceeded indicates the commit loop exhausted its rebase
	// attempts
	ErrMaxRetryExceeded = errors.New("txn: maximum commit retries exceeded")

	// ErrTxnClosed indicates a commit or abort on a finished transaction
	ErrTxnClosed = errors.New("txn: transaction already committed or aborted")

	// ErrAppendOnlyTable indicates a RemoveFile with dataChange on a table
	// configured delta.appendOnly
	ErrAppendOnlyTable = errors.New("txn: table is append-only, deletes and rewrites are rejected")
)

// ConflictKind classifies why a concurrent winning commit aborts ours
type ConflictKind string

const (
	ConflictConcurrentAppend       ConflictKind = "ConcurrentAppend"
	ConflictConcurrentDeleteRead   ConflictKind = "ConcurrentDeleteRead"
	ConflictConcurrentDeleteDelete ConflictKind = "ConcurrentDeleteDelete"
	ConflictConcurrentTransaction  ConflictKind = "ConcurrentTransaction"
	ConflictMetadataChanged        ConflictKind = "MetadataChanged"
	ConflictProtocolChanged        ConflictKind = "ProtocolChanged"
)

// ConflictError reports a classified conflict with the winning commit's
// provenance so the caller can act on it
type ConflictError struct {
	Kind           ConflictKind
	WinningVersion int64
	WinningCommit  *action.CommitInfo
	Detail         string
}

func (e *ConflictError) Error() string {
	op := "unknown operation"
	if e.WinningCommit != nil {
		op = e.WinningCommit.Operation
	}
	msg := fmt.Sprintf("txn: %s: version %d committed concurrently by %s", e.Kind, e.WinningVersion, op)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// IsConflict reports whether err is a classified commit conflict
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
