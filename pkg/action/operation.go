package action

import "time"

// Operation names recorded verbatim in CommitInfo.operation
const (
	OpWrite                 = "WRITE"
	OpStreamingUpdate       = "STREAMING UPDATE"
	OpDelete                = "DELETE"
	OpTruncate              = "TRUNCATE"
	OpMerge                 = "MERGE"
	OpUpdate                = "UPDATE"
	OpCreateTable           = "CREATE TABLE"
	OpCreateTableAsSelect   = "CREATE TABLE AS SELECT"
	OpReplaceTable          = "REPLACE TABLE"
	OpReplaceTableAsSelect  = "REPLACE TABLE AS SELECT"
	OpSetTableProperties    = "SET TBLPROPERTIES"
	OpUnsetTableProperties  = "UNSET TBLPROPERTIES"
	OpAddColumns            = "ADD COLUMNS"
	OpChangeColumn          = "CHANGE COLUMN"
	OpReplaceColumns        = "REPLACE COLUMNS"
	OpUpgradeProtocol       = "UPGRADE PROTOCOL"
	OpConvert               = "CONVERT"
	OpOptimize              = "OPTIMIZE"
	OpManualUpdate          = "Manual Update"
	OpFileNotifRetention    = "FILE NOTIFICATION RETENTION"
	OpComputeStats          = "COMPUTE STATS"
	OpResetZCubeInfo        = "RESET ZCUBE INFO"
	OpUpdateSchema          = "UPDATE SCHEMA"
	OpFsck                  = "FSCK"
)

// Isolation levels reported in CommitInfo
const (
	IsolationSerializable      = "Serializable"
	IsolationSnapshotIsolation = "SnapshotIsolation"
)

// NewCommitInfo builds provenance for a commit of the given operation
func NewCommitInfo(operation string, parameters map[string]string, readVersion int64, blindAppend bool) *CommitInfo {
	isolation := IsolationSerializable
	if blindAppend {
		isolation = IsolationSnapshotIsolation
	}
	ci := &CommitInfo{
		Timestamp:           time.Now().UnixMilli(),
		Operation:           operation,
		OperationParameters: parameters,
		IsolationLevel:      isolation,
		IsBlindAppend:       &blindAppend,
	}
	if readVersion >= 0 {
		ci.ReadVersion = &readVersion
	}
	return ci
}
