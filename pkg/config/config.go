package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Recognized table property keys
const (
	KeyLogRetention       = "delta.logRetentionDuration"
	KeyCheckpointInterval = "delta.checkpointInterval"
	KeyAppendOnly         = "delta.appendOnly"
	KeyRandomPrefix       = "delta.randomPrefixLength"
	KeyStatsSkipping      = "delta.stats.skipping"
	KeyMergeRepartition   = "merge.repartitionBeforeWrite.enabled"
	KeyMergeInsertOnly    = "merge.insertOnly.enabled"
	KeyMergeMatchedOnly   = "merge.matchedOnly.enabled"
	KeyAutoMergeSchema    = "autoMerge.schema"
)

// Table holds the parsed table properties
type Table struct {
	LogRetention                time.Duration
	CheckpointInterval          int
	AppendOnly                  bool
	RandomPrefixLength          int
	StatsSkipping               bool
	MergeRepartitionBeforeWrite bool
	MergeInsertOnly             bool
	MergeMatchedOnly            bool
	AutoMergeSchema             bool
}

// Defaults returns the table configuration with every property at its
// default value
func Defaults() Table {
	return Table{
		LogRetention:       30 * 24 * time.Hour,
		CheckpointInterval: 10,
		StatsSkipping:      true,
		MergeInsertOnly:    true,
		MergeMatchedOnly:   true,
	}
}

// UnknownTablePropertyError indicates a property under a reserved prefix
// that the library does not recognize
type UnknownTablePropertyError struct {
	Key string
}

func (e *UnknownTablePropertyError) Error() string {
	return fmt.Sprintf("config: unknown table property %q", e.Key)
}

// InvalidPropertyValueError indicates a recognized property with an
// unparseable value
type InvalidPropertyValueError struct {
	Key   string
	Value string
	Cause error
}

func (e *InvalidPropertyValueError) Error() string {
	return fmt.Sprintf("config: invalid value %q for property %q: %v", e.Value, e.Key, e.Cause)
}

func (e *InvalidPropertyValueError) Unwrap() error {
	return e.Cause
}

// reserved prefixes; other keys are free-form user properties
var reservedPrefixes = []string{"delta.", "merge.", "autoMerge."}

// delta.constraints.* carries CHECK constraint expressions, not settings
func isConstraintKey(key string) bool {
	return strings.HasPrefix(key, "delta.constraints.")
}

// Parse builds a Table config from raw table properties. Keys under a
// reserved prefix must be recognized; everything else passes through.
func Parse(properties map[string]string) (Table, error) {
	cfg := Defaults()
	for key, value := range properties {
		var err error
		switch key {
		case KeyLogRetention:
			cfg.LogRetention, err = parseDuration(value)
		case KeyCheckpointInterval:
			cfg.CheckpointInterval, err = parsePositiveInt(value)
		case KeyAppendOnly:
			cfg.AppendOnly, err = strconv.ParseBool(value)
		case KeyRandomPrefix:
			cfg.RandomPrefixLength, err = parsePositiveInt(value)
		case KeyStatsSkipping:
			cfg.StatsSkipping, err = strconv.ParseBool(value)
		case KeyMergeRepartition:
			cfg.MergeRepartitionBeforeWrite, err = strconv.ParseBool(value)
		case KeyMergeInsertOnly:
			cfg.MergeInsertOnly, err = strconv.ParseBool(value)
		case KeyMergeMatchedOnly:
			cfg.MergeMatchedOnly, err = strconv.ParseBool(value)
		case KeyAutoMergeSchema:
			cfg.AutoMergeSchema, err = strconv.ParseBool(value)
		default:
			if isConstraintKey(key) {
				continue
			}
			for _, prefix := range reservedPrefixes {
				if strings.HasPrefix(key, prefix) {
					return cfg, &UnknownTablePropertyError{Key: key}
				}
			}
			continue
		}
		if err != nil {
			return cfg, &InvalidPropertyValueError{Key: key, Value: value, Cause: err}
		}
	}
	return cfg, nil
}

// parseDuration accepts Go duration syntax plus a "<n> days" form
func parseDuration(value string) (time.Duration, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(value)))
	if len(fields) == 2 && (fields[1] == "days" || fields[1] == "day") {
		n, err := strconv.Atoi(fields[0])
		if err != nil || n < 0 {
			return 0, fmt.Errorf("expected a non-negative day count")
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative")
	}
	return d, nil
}

func parsePositiveInt(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("expected a positive integer")
	}
	return n, nil
}

// Constraints extracts CHECK constraint expressions from table properties,
// keyed by constraint name
func Constraints(properties map[string]string) map[string]string {
	out := map[string]string{}
	for key, value := range properties {
		if isConstraintKey(key) {
			out[strings.TrimPrefix(key, "delta.constraints.")] = value
		}
	}
	return out
}
