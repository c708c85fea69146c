package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 10, cfg.CheckpointInterval)
	assert.True(t, cfg.StatsSkipping)
	assert.True(t, cfg.MergeInsertOnly)
	assert.True(t, cfg.MergeMatchedOnly)
	assert.False(t, cfg.AppendOnly)
	assert.False(t, cfg.AutoMergeSchema)
	assert.Equal(t, 30*24*time.Hour, cfg.LogRetention)
}

func TestParse(t *testing.T) {
	cfg, err := Parse(map[string]string{
		KeyCheckpointInterval: "5",
		KeyAppendOnly:         "true",
		KeyStatsSkipping:      "false",
		KeyAutoMergeSchema:    "true",
		KeyLogRetention:       "7 days",
		KeyRandomPrefix:       "4",
		"team.owner":          "ingestion", // user property, passes through
	})
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.CheckpointInterval)
	assert.True(t, cfg.AppendOnly)
	assert.False(t, cfg.StatsSkipping)
	assert.True(t, cfg.AutoMergeSchema)
	assert.Equal(t, 7*24*time.Hour, cfg.LogRetention)
	assert.Equal(t, 4, cfg.RandomPrefixLength)
}

func TestParseDurationForms(t *testing.T) {
	cfg, err := Parse(map[string]string{KeyLogRetention: "48h"})
	require.NoError(t, err)
	assert.Equal(t, 48*time.Hour, cfg.LogRetention)

	cfg, err = Parse(map[string]string{KeyLogRetention: "1 day"})
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.LogRetention)
}

func TestParseUnknownProperty(t *testing.T) {
	_, err := Parse(map[string]string{"delta.doesNotExist": "1"})
	var unknown *UnknownTablePropertyError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "delta.doesNotExist", unknown.Key)

	_, err = Parse(map[string]string{"merge.doesNotExist": "1"})
	assert.Error(t, err)
}

func TestParseInvalidValue(t *testing.T) {
	tests := map[string]string{
		KeyCheckpointInterval: "zero",
		KeyAppendOnly:         "yes-please",
		KeyLogRetention:       "-5h",
		KeyRandomPrefix:       "-1",
	}
	for key, value := range tests {
		_, err := Parse(map[string]string{key: value})
		var invalid *InvalidPropertyValueError
		require.ErrorAs(t, err, &invalid, "key %s", key)
		assert.Equal(t, key, invalid.Key)
	}
}

func TestConstraintKeysPassThrough(t *testing.T) {
	props := map[string]string{
		"delta.constraints.positive_value": "value > 0",
	}
	_, err := Parse(props)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"positive_value": "value > 0"}, Constraints(props))
}
