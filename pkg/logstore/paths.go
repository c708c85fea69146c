package logstore

import (
	"fmt"
	"strconv"
	"strings"
)

// LogDirName is the directory under the table root holding the log
const LogDirName = "_delta_log"

// LastCheckpointName is the checkpoint pointer file inside the log directory
const LastCheckpointName = "_last_checkpoint"

// DeltaFileName returns the name of the delta file for a version,
// e.g. 00000000000000000007.json
func DeltaFileName(version int64) string {
	return fmt.Sprintf("%020d.json", version)
}

// CheckpointFileName returns the name of the checkpoint file for a version
func CheckpointFileName(version int64) string {
	return fmt.Sprintf("%020d.checkpoint.parquet", version)
}

// ParseDeltaFileName extracts the version from a delta file name; ok is
// false for names that are not delta files
func ParseDeltaFileName(name string) (int64, bool) {
	base, found := strings.CutSuffix(name, ".json")
	if !found || len(base) != 20 {
		return 0, false
	}
	v, err := strconv.ParseInt(base, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// ParseCheckpointFileName extracts the version from a checkpoint file name
func ParseCheckpointFileName(name string) (int64, bool) {
	base, found := strings.CutSuffix(name, ".checkpoint.parquet")
	if !found || len(base) != 20 {
		return 0, false
	}
	v, err := strconv.ParseInt(base, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
