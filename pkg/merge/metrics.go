package merge

import "fmt"

// Metrics is what a merge reports into CommitInfo.operationMetrics
type Metrics struct {
	SourceRows         int64
	TargetRowsCopied   int64
	TargetRowsUpdated  int64
	TargetRowsInserted int64
	TargetRowsDeleted  int64

	TargetFilesBeforeSkipping int64
	TargetFilesAfterSkipping  int64
	TargetFilesRemoved        int64
	TargetFilesAdded          int64
}

func (m Metrics) operationMetrics() map[string]string {
	return map[string]string{
		"numSourceRows":             fmt.Sprintf("%d", m.SourceRows),
		"numTargetRowsCopied":       fmt.Sprintf("%d", m.TargetRowsCopied),
		"numTargetRowsUpdated":      fmt.Sprintf("%d", m.TargetRowsUpdated),
		"numTargetRowsInserted":     fmt.Sprintf("%d", m.TargetRowsInserted),
		"numTargetRowsDeleted":      fmt.Sprintf("%d", m.TargetRowsDeleted),
		"numTargetFilesBeforeSkipping": fmt.Sprintf("%d", m.TargetFilesBeforeSkipping),
		"numTargetFilesAfterSkipping":  fmt.Sprintf("%d", m.TargetFilesAfterSkipping),
		"numTargetFilesRemoved":     fmt.Sprintf("%d", m.TargetFilesRemoved),
		"numTargetFilesAdded":       fmt.Sprintf("%d", m.TargetFilesAdded),
	}
}
