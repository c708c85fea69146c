package action

import (
	"time"

	"github.com/google/uuid"
)

// Action is one typed record in a delta log file. Exactly one concrete type
// backs each log line.
type Action interface {
	isAction()
}

// AddFile makes a data file logically part of the table
type AddFile struct {
	Path             string            `json:"path"`
	PartitionValues  map[string]string `json:"partitionValues"`
	Size             int64             `json:"size"`
	ModificationTime int64             `json:"modificationTime"`
	DataChange       bool              `json:"dataChange"`
	Stats            string            `json:"stats,omitempty"`
	Tags             map[string]string `json:"tags,omitempty"`
}

func (*AddFile) isAction() {}

// Remove tombstones this file at the given deletion timestamp
func (a *AddFile) Remove(deletionTimestamp int64, dataChange bool) *RemoveFile {
	return &RemoveFile{
		Path:              a.Path,
		DeletionTimestamp: &deletionTimestamp,
		DataChange:        dataChange,
	}
}

// RemoveFile tombstones a previously added file
type RemoveFile struct {
	Path              string `json:"path"`
	DeletionTimestamp *int64 `json:"deletionTimestamp,omitempty"`
	DataChange        bool   `json:"dataChange"`
}

func (*RemoveFile) isAction() {}

// Format describes the encoding of the table's data files
type Format struct {
	Provider string            `json:"provider"`
	Options  map[string]string `json:"options"`
}

// DefaultFormat returns the parquet format descriptor
func DefaultFormat() Format {
	return Format{Provider: "parquet", Options: map[string]string{}}
}

// Metadata holds the table-level metadata; at most one instance is effective
// per snapshot, last one wins
type Metadata struct {
	ID               string            `json:"id"`
	Name             string            `json:"name,omitempty"`
	Description      string            `json:"description,omitempty"`
	Format           Format            `json:"format"`
	SchemaString     string            `json:"schemaString"`
	PartitionColumns []string          `json:"partitionColumns"`
	Configuration    map[string]string `json:"configuration"`
	CreatedTime      *int64            `json:"createdTime,omitempty"`
}

func (*Metadata) isAction() {}

// NewMetadata creates table metadata with a fresh id and creation time
func NewMetadata(name, schemaString string, partitionColumns []string, configuration map[string]string) *Metadata {
	now := time.Now().UnixMilli()
	if partitionColumns == nil {
		partitionColumns = []string{}
	}
	if configuration == nil {
		configuration = map[string]string{}
	}
	return &Metadata{
		ID:               uuid.NewString(),
		Name:             name,
		Format:           DefaultFormat(),
		SchemaString:     schemaString,
		PartitionColumns: partitionColumns,
		Configuration:    configuration,
		CreatedTime:      &now,
	}
}

// Protocol carries the minimum reader and writer versions required to
// access the table; last one wins
type Protocol struct {
	MinReaderVersion int `json:"minReaderVersion"`
	MinWriterVersion int `json:"minWriterVersion"`
}

func (*Protocol) isAction() {}

// SetTransaction records the latest version committed by an idempotent
// streaming writer, keyed by application id
type SetTransaction struct {
	AppID       string `json:"appId"`
	Version     int64  `json:"version"`
	LastUpdated *int64 `json:"lastUpdated,omitempty"`
}

func (*SetTransaction) isAction() {}

// CommitInfo is provenance attached to a commit; replay ignores it
type CommitInfo struct {
	Timestamp           int64             `json:"timestamp"`
	Operation           string            `json:"operation"`
	OperationParameters map[string]string `json:"operationParameters,omitempty"`
	ReadVersion         *int64            `json:"readVersion,omitempty"`
	IsolationLevel      string            `json:"isolationLevel,omitempty"`
	IsBlindAppend       *bool             `json:"isBlindAppend,omitempty"`
	OperationMetrics    map[string]string `json:"operationMetrics,omitempty"`
	UserMetadata        string            `json:"userMetadata,omitempty"`
	ClientVersion       string            `json:"clientVersion,omitempty"`
}

func (*CommitInfo) isAction() {}
