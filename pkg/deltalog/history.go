package deltalog

import (
	"github.com/cuemby/delta/pkg/action"
)

// HistoryEntry pairs a version with its commit provenance
type HistoryEntry struct {
	Version    int64
	CommitInfo *action.CommitInfo
}

// History returns up to limit commits, newest first. Versions without a
// CommitInfo (external writers) appear with a nil CommitInfo.
func (l *DeltaLog) History(limit int) ([]HistoryEntry, error) {
	latest, ok, err := l.store.LatestVersion()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTableNotInitialized
	}

	var out []HistoryEntry
	for v := latest; v >= 0; v-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		lines, err := l.store.Read(v)
		if err != nil {
			return nil, err
		}
		actions, err := action.DecodeAll(lines)
		if err != nil {
			return nil, err
		}
		entry := HistoryEntry{Version: v}
		for _, a := range actions {
			if ci, ok := a.(*action.CommitInfo); ok {
				entry.CommitInfo = ci
				break
			}
		}
		out = append(out, entry)
	}
	return out, nil
}
