package snapshot

import (
	"fmt"
	"strings"

	"github.com/cuemby/delta/pkg/action"
	"github.com/cuemby/delta/pkg/schema"
)

// Protocol versions this library implements
const (
	SupportedReaderVersion = 1
	SupportedWriterVersion = 3
)

// Writer versions required by individual table features
const (
	writerVersionInvariants  = 2
	writerVersionAppendOnly  = 2
	writerVersionConstraints = 3
)

// UnsupportedProtocolError indicates the table requires a newer reader or
// writer than this library provides
type UnsupportedProtocolError struct {
	Role      string // "reader" or "writer"
	Required  int
	Supported int
}

func (e *UnsupportedProtocolError) Error() string {
	return fmt.Sprintf("protocol: table requires %s version %d, library supports up to %d",
		e.Role, e.Required, e.Supported)
}

// ProtocolDowngradeError indicates an attempt to lower either protocol
// version of an existing table
type ProtocolDowngradeError struct {
	Current, Proposed action.Protocol
}

func (e *ProtocolDowngradeError) Error() string {
	return fmt.Sprintf("protocol: downgrade from (%d,%d) to (%d,%d) is not allowed",
		e.Current.MinReaderVersion, e.Current.MinWriterVersion,
		e.Proposed.MinReaderVersion, e.Proposed.MinWriterVersion)
}

// CheckRead fails fast when the snapshot requires a newer reader
func (s *Snapshot) CheckRead() error {
	if s.protocol.MinReaderVersion > SupportedReaderVersion {
		return &UnsupportedProtocolError{
			Role:      "reader",
			Required:  s.protocol.MinReaderVersion,
			Supported: SupportedReaderVersion,
		}
	}
	return nil
}

// CheckWrite fails fast when the snapshot requires a newer writer
func (s *Snapshot) CheckWrite() error {
	if s.protocol.MinWriterVersion > SupportedWriterVersion {
		return &UnsupportedProtocolError{
			Role:      "writer",
			Required:  s.protocol.MinWriterVersion,
			Supported: SupportedWriterVersion,
		}
	}
	return nil
}

// CheckUpgrade validates a protocol change against the current one;
// downgrades on either axis are rejected
func CheckUpgrade(current, proposed action.Protocol) error {
	if proposed.MinReaderVersion < current.MinReaderVersion ||
		proposed.MinWriterVersion < current.MinWriterVersion {
		return &ProtocolDowngradeError{Current: current, Proposed: proposed}
	}
	return nil
}

// RequiredProtocol computes the minimum protocol the table's features
// demand: column invariants and append-only tables need writer 2, CHECK
// constraints need writer 3
func RequiredProtocol(metadata *action.Metadata) action.Protocol {
	required := action.Protocol{MinReaderVersion: 1, MinWriterVersion: 1}

	if metadata.Configuration["delta.appendOnly"] == "true" && required.MinWriterVersion < writerVersionAppendOnly {
		required.MinWriterVersion = writerVersionAppendOnly
	}
	for key := range metadata.Configuration {
		if strings.HasPrefix(key, "delta.constraints.") && required.MinWriterVersion < writerVersionConstraints {
			required.MinWriterVersion = writerVersionConstraints
		}
	}
	if hasInvariants(metadata) && required.MinWriterVersion < writerVersionInvariants {
		required.MinWriterVersion = writerVersionInvariants
	}
	return required
}

// EffectiveProtocol returns max(existing, required_by_features) for table
// creation or alteration
func EffectiveProtocol(existing *action.Protocol, metadata *action.Metadata) action.Protocol {
	required := RequiredProtocol(metadata)
	if existing == nil {
		return required
	}
	out := *existing
	if required.MinReaderVersion > out.MinReaderVersion {
		out.MinReaderVersion = required.MinReaderVersion
	}
	if required.MinWriterVersion > out.MinWriterVersion {
		out.MinWriterVersion = required.MinWriterVersion
	}
	return out
}

func hasInvariants(metadata *action.Metadata) bool {
	sch, err := schema.FromJSON(metadata.SchemaString)
	if err != nil {
		return false
	}
	return structHasInvariants(sch)
}

func structHasInvariants(s schema.StructType) bool {
	for _, f := range s.Fields {
		if f.Metadata != nil {
			if _, ok := f.Metadata["delta.invariants"]; ok {
				return true
			}
		}
		if nested, ok := f.Type.(schema.StructType); ok && structHasInvariants(nested) {
			return true
		}
	}
	return false
}
