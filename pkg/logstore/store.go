package logstore

import (
	"errors"
	"fmt"
)

var (
	// ErrVersionExists indicates another writer already committed this
	// version; the caller must rebase and retry
	ErrVersionExists = errors.New("logstore: version already exists")

	// ErrFileNotFound indicates the requested log file does not exist
	ErrFileNotFound = errors.New("logstore: file not found")

	// ErrCorruptLog indicates a truncated or unparseable log file, or a gap
	// in the version sequence
	ErrCorruptLog = errors.New("logstore: corrupt log")
)

// Entry names one delta file in the log
type Entry struct {
	Version int64
	Path    string
}

// CheckpointMeta is the content of the _last_checkpoint pointer
type CheckpointMeta struct {
	Version int64 `json:"version"`
	Size    int64 `json:"size"`
}

// Store is the log persistence layer. Write is the sole concurrency
// primitive the transaction engine depends on: exactly one writer succeeds
// for a given version, every other writer observes ErrVersionExists.
type Store interface {
	// Write atomically creates the delta file for version. Returns
	// ErrVersionExists if the version was already committed.
	Write(version int64, lines []string) error

	// Read returns the lines of the delta file for version
	Read(version int64) ([]string, error)

	// ListFrom returns all delta entries with version >= from in ascending
	// order. The sequence is validated to be gapless.
	ListFrom(from int64) ([]Entry, error)

	// LatestVersion returns the highest committed version; ok is false for
	// an empty log
	LatestVersion() (version int64, ok bool, err error)

	// WriteCheckpoint stores a compacted snapshot for version. Overwrites
	// are allowed; checkpoints are advisory.
	WriteCheckpoint(version int64, lines []string) error

	// ReadCheckpoint returns the checkpoint lines for version
	ReadCheckpoint(version int64) ([]string, error)

	// LastCheckpoint returns the _last_checkpoint pointer, nil if absent
	LastCheckpoint() (*CheckpointMeta, error)

	// WriteLastCheckpoint updates the _last_checkpoint pointer
	WriteLastCheckpoint(meta CheckpointMeta) error

	// Close releases underlying resources
	Close() error
}

// validateDense verifies entries form a dense ascending sequence
func validateDense(entries []Entry) error {
	for i := 1; i < len(entries); i++ {
		if entries[i].Version != entries[i-1].Version+1 {
			return fmt.Errorf("%w: gap between versions %d and %d",
				ErrCorruptLog, entries[i-1].Version, entries[i].Version)
		}
	}
	return nil
}
