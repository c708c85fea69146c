package action

import (
	"encoding/json"
	"fmt"
)

// logEntry is the single-line wire form: a JSON object with exactly one
// populated discriminator field
type logEntry struct {
	Add        *AddFile        `json:"add,omitempty"`
	Remove     *RemoveFile     `json:"remove,omitempty"`
	MetaData   *Metadata       `json:"metaData,omitempty"`
	Protocol   *Protocol       `json:"protocol,omitempty"`
	Txn        *SetTransaction `json:"txn,omitempty"`
	CommitInfo *CommitInfo     `json:"commitInfo,omitempty"`
}

// Encode serializes an action into its single-line JSON form
func Encode(a Action) ([]byte, error) {
	var entry logEntry
	switch v := a.(type) {
	case *AddFile:
		entry.Add = v
	case *RemoveFile:
		entry.Remove = v
	case *Metadata:
		entry.MetaData = v
	case *Protocol:
		entry.Protocol = v
	case *SetTransaction:
		entry.Txn = v
	case *CommitInfo:
		entry.CommitInfo = v
	default:
		return nil, fmt.Errorf("action: cannot encode %T", a)
	}
	return json.Marshal(entry)
}

// Decode parses one log line. Lines with an unknown discriminator decode to
// (nil, nil) so that newer writers remain readable.
func Decode(line []byte) (Action, error) {
	var entry logEntry
	if err := json.Unmarshal(line, &entry); err != nil {
		return nil, fmt.Errorf("action: invalid log line: %w", err)
	}
	switch {
	case entry.Add != nil:
		return entry.Add, nil
	case entry.Remove != nil:
		return entry.Remove, nil
	case entry.MetaData != nil:
		return entry.MetaData, nil
	case entry.Protocol != nil:
		return entry.Protocol, nil
	case entry.Txn != nil:
		return entry.Txn, nil
	case entry.CommitInfo != nil:
		return entry.CommitInfo, nil
	default:
		// unknown discriminator, ignore for forward compatibility
		return nil, nil
	}
}

// EncodeAll serializes a slice of actions, one line per action
func EncodeAll(actions []Action) ([]string, error) {
	lines := make([]string, 0, len(actions))
	for _, a := range actions {
		raw, err := Encode(a)
		if err != nil {
			return nil, err
		}
		lines = append(lines, string(raw))
	}
	return lines, nil
}

// DecodeAll parses a slice of log lines, dropping unknown entries
func DecodeAll(lines []string) ([]Action, error) {
	actions := make([]Action, 0, len(lines))
	for _, line := range lines {
		a, err := Decode([]byte(line))
		if err != nil {
			return nil, err
		}
		if a != nil {
			actions = append(actions, a)
		}
	}
	return actions, nil
}
