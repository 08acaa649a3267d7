package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_MissingUsesDefaults(t *testing.T) {
	t.Setenv(envAzureEndpoint, "")
	t.Setenv(envAzureKey, "")

	cfg, info, err := LoadFile(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	assert.False(t, info.PortSpecified)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 15*time.Second, cfg.Batch.Pacing())
	assert.Equal(t, 30*time.Second, cfg.Batch.Cooldown())
	assert.Equal(t, 2*time.Second, cfg.Extraction.PollInterval())
	assert.Equal(t, map[int]string{15: "Description"}, cfg.Sheet.Overrides())
}

func TestLoadFile_TomlAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[server]
port = 9000

[batch]
pacing_seconds = 5

[mapping]
list_policy = "strict"

[sheet.column_overrides]
2 = "Kind"
x = "ignored"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv(envAzureEndpoint, "https://example.cognitiveservices.azure.com")
	t.Setenv(envAzureKey, "secret")

	cfg, info, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, info.PortSpecified)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Batch.Pacing())
	assert.Equal(t, 30, cfg.Batch.CooldownSeconds)
	assert.Equal(t, "strict", cfg.Mapping.ListPolicy)
	assert.Equal(t, "https://example.cognitiveservices.azure.com", cfg.Extraction.Endpoint)
	assert.Equal(t, "secret", cfg.Extraction.APIKey)

	overrides := cfg.Sheet.Overrides()
	assert.Equal(t, "Kind", overrides[2])
	_, bad := overrides[-1]
	assert.False(t, bad)
}

func TestLoadFile_InvalidToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nport = "), 0644))

	_, _, err := LoadFile(path)
	require.Error(t, err)
}

func TestEnsureDataDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Data.DataDir = filepath.Join(t.TempDir(), "data")

	dir, err := EnsureDataDir(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.Data.DataDir, dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
