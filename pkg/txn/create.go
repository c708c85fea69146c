package txn

import (
	"fmt"

	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/schema"
	"github.com/cuemby/delta/pkg/snapshot"
)

// CreateTable commits version 0 of a new table: metadata, the protocol its
// features require, and any initial files
func CreateTable(ref TableRef, metadata *action.Metadata, initial []action.Action) (*snapshot.Snapshot, error) {
	sch, err := schema.FromJSON(metadata.SchemaString)
	if err != nil {
		return nil, err
	}
	if err := schema.ValidatePartitionColumns(sch, metadata.PartitionColumns); err != nil {
		return nil, err
	}

	tx := Begin(ref)
	actions := make([]action.Action, 0, len(initial)+2)
	actions = append(actions, metadata)
	actions = append(actions, initial...)
	return tx.Commit(actions, action.OpCreateTable)
}

// UpgradeProtocol raises the table's protocol versions
func UpgradeProtocol(ref TableRef, proposed action.Protocol) (*snapshot.Snapshot, error) {
	tx := Begin(ref)
	return tx.Commit([]action.Action{&proposed}, action.OpUpgradeProtocol)
}

// SetTableProperties replaces the table configuration, keeping id, schema,
// and partitioning
func SetTableProperties(ref TableRef, properties map[string]string) (*snapshot.Snapshot, error) {
	tx := Begin(ref)
	snap := tx.Snapshot()
	if snap == nil {
		return nil, fmt.Errorf("txn: table has no committed version")
	}
	md := *snap.Metadata()
	merged := make(map[string]string, len(md.Configuration)+len(properties))
	for k, v := range md.Configuration {
		merged[k] = v
	}
	for k, v := range properties {
		merged[k] = v
	}
	md.Configuration = merged
	return tx.Commit([]action.Action{&md}, action.OpSetTableProperties)
}
