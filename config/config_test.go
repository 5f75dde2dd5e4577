package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FileFillsUnsetValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	fc := &FileConfig{}
	fc.ADS.APIKey = "file-key"
	fc.Snowball.StartYear = 1930
	fc.Snowball.EndYear = 1967
	require.NoError(t, SaveFile(path, fc))

	t.Setenv("CITNET_CONFIG_FILE", path)
	t.Setenv("SNOWBALL_END_YEAR", "1970")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.ADSAPIKey)
	assert.Equal(t, 1930, cfg.SnowballStartYear)
	assert.Equal(t, 1970, cfg.SnowballEndYear, "environment wins over the file")
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 50, cfg.BatchSize)
}

func TestLoad_RejectsBadDriver(t *testing.T) {
	t.Setenv("CITNET_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DB_DRIVER", "mysql")

	_, err := Load()
	assert.Error(t, err)
}

func TestReadFile_Missing(t *testing.T) {
	fc, err := ReadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, fc.ADS.APIKey)
}

func TestParseInterval(t *testing.T) {
	start, end, err := ParseInterval("1930-1967")
	require.NoError(t, err)
	assert.Equal(t, 1930, start)
	assert.Equal(t, 1967, end)

	_, _, err = ParseInterval("1967-1930")
	assert.Error(t, err)
	_, _, err = ParseInterval("1930")
	assert.Error(t, err)
	_, _, err = ParseInterval("abcd-1930")
	assert.Error(t, err)
}
