package stream

import (
	"encoding/json"
	"fmt"
)

// IndexSentinel marks "before the first AddFile of this version"
const IndexSentinel = -1

// Offset is a durable stream position: the next batch serves files
// strictly after it in (version, index) order
type Offset struct {
	TableID           string `json:"reservoirId"`
	ReservoirVersion  int64  `json:"reservoirVersion"`
	Index             int64  `json:"index"`
	IsStartingVersion bool   `json:"isStartingVersion"`
}

// Marshal serializes the offset for checkpointing by the stream engine
func (o Offset) Marshal() ([]byte, error) {
	return json.Marshal(o)
}

// ParseOffset deserializes a checkpointed offset
func ParseOffset(raw []byte) (Offset, error) {
	var o Offset
	if err := json.Unmarshal(raw, &o); err != nil {
		return Offset{}, fmt.Errorf("stream: invalid offset: %w", err)
	}
	return o, nil
}

// Before reports whether o orders strictly before other
func (o Offset) Before(other Offset) bool {
	if o.ReservoirVersion != other.ReservoirVersion {
		return o.ReservoirVersion < other.ReservoirVersion
	}
	return o.Index < other.Index
}

func (o Offset) String() string {
	return fmt.Sprintf("(%d,%d)", o.ReservoirVersion, o.Index)
}
