package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), nil)
	require.Error(t, err, "an explicit file must exist")
	assert.Nil(t, cfg)

	cfg, err = Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, 10000, cfg.Ingest.ChunkSize)
	assert.Equal(t, int64(150000), cfg.Group.ChunkSize)
	assert.Equal(t, 4, cfg.Group.Workers)
	assert.Equal(t, 100, cfg.Group.MaxNodes)
	assert.Equal(t, "production", cfg.Botify.Env)
}

func TestLoadLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "galaxy.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir = "/var/lib/galaxy"

[http]
addr = ":9000"

[group]
workers = 8
max_nodes = 50
`), 0o600))

	t.Setenv("GALAXY_GROUP_MAX_NODES", "60")
	t.Setenv("GALAXY_LOG_LEVEL", "debug")
	t.Setenv("GALAXY_UNRELATED_THING", "x")
	t.Setenv("BOTIFY_STAGING_TOKEN", "staging-token")

	cfg, err := Load(path, map[string]any{"http.addr": ":9100", "botify.env": "staging"})
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/galaxy", cfg.DataDir)
	assert.Equal(t, 8, cfg.Group.Workers)
	assert.Equal(t, 60, cfg.Group.MaxNodes, "env wins over file")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9100", cfg.HTTP.Addr, "overrides win over file")
	assert.Equal(t, "staging", cfg.Botify.Env)
	assert.Equal(t, "staging-token", cfg.Botify.Token)
}

func TestEnvKeys(t *testing.T) {
	keys := envKeys([]string{"data_dir", "group.max_nodes", "http.addr"})
	assert.Equal(t, "group.max_nodes", keys["group_max_nodes"])
	assert.Equal(t, "data_dir", keys["data_dir"])
	assert.Equal(t, "http.addr", keys["http_addr"])
}
