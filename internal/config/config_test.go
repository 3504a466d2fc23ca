package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	c, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Equal(t, ":5984", c.Addr())
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  name: replica
  port: 8080
  data_dir: /var/lib/treestore
cors:
  enabled: true
  allow_origins: https://example.com
seed:
  dir: seeds
  watch: true
changes:
  timeout: 5s
  heartbeat: 1s
compaction:
  interval: 1h
log:
  level: debug
  format: json
`), 0644))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "replica", c.Name)
	assert.Equal(t, 8080, c.Port)
	assert.Equal(t, "/var/lib/treestore", c.DataDir)
	assert.True(t, c.CORS.Enabled)
	assert.Equal(t, "https://example.com", c.CORS.AllowOrigins)
	assert.Equal(t, Default().CORS.AllowMethods, c.CORS.AllowMethods)
	assert.Equal(t, SeedConfig{Dir: "seeds", Watch: true}, c.Seed)
	assert.Equal(t, ChangesConfig{Timeout: 5 * time.Second, Heartbeat: time.Second}, c.Changes)
	assert.Equal(t, time.Hour, c.CompactInterval)
	assert.Equal(t, LogConfig{Level: "debug", Format: "json"}, c.Log)
}

func TestLoadConfig_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("changes:\n  timeout: soon\n"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveDefaultConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, SaveDefaultConfig(path))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoad_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, SaveDefaultConfig(path))

	c, exit, err := Load([]string{"--config", path, "-p", "7000", "--data", "-", "--seed", "fixtures", "--log-level", "warn"}, "test")
	require.NoError(t, err)
	assert.False(t, exit)
	assert.Equal(t, 7000, c.Port)
	assert.Equal(t, "", c.DataDir)
	assert.Equal(t, "fixtures", c.Seed.Dir)
	assert.Equal(t, "warn", c.Log.Level)
}

func TestLoad_MissingFileFallsBack(t *testing.T) {
	c, exit, err := Load([]string{"--config", filepath.Join(t.TempDir(), "absent.yml")}, "test")
	require.NoError(t, err)
	assert.False(t, exit)
	assert.Equal(t, Default(), c)
}

func TestLoad_GenerateConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generated.yml")
	c, exit, err := Load([]string{"--generate-config", "--config", path}, "test")
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, c)
	assert.FileExists(t, path)
}

func TestSetupLogging(t *testing.T) {
	assert.NoError(t, SetupLogging(LogConfig{Level: "debug", Format: "json"}))
	assert.NoError(t, SetupLogging(LogConfig{Level: "info"}))
	assert.Error(t, SetupLogging(LogConfig{Level: "loud"}))
	assert.Error(t, SetupLogging(LogConfig{Level: "info", Format: "xml"}))
}
