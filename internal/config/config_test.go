package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Second, cfg.Cluster.RetryInterval)
	assert.Equal(t, 100, cfg.Cluster.PlacementPoints)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing host", func(c *Config) { c.Server.Host = "" }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"missing node id", func(c *Config) { c.Server.NodeID = "" }},
		{"zero retry interval", func(c *Config) { c.Cluster.RetryInterval = 0 }},
		{"zero placement points", func(c *Config) { c.Cluster.PlacementPoints = 0 }},
		{"gossip bad port", func(c *Config) { c.Gossip.Enabled = true; c.Gossip.BindPort = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_FileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  node_id: "discovery-test"
  port: 9471
cluster:
  retry_interval: 250ms
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "discovery-test", cfg.Server.NodeID)
	assert.Equal(t, 9471, cfg.Server.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Cluster.RetryInterval)
	// Untouched sections keep their defaults.
	assert.Equal(t, 100, cfg.Cluster.PlacementPoints)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Port, cfg.Server.Port)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DISCOVERY_NODE_ID", "env-node")
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("GOSSIP_SEEDS", "10.0.0.1:7946,10.0.0.2:7946")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "env-node", cfg.Server.NodeID)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, []string{"10.0.0.1:7946", "10.0.0.2:7946"}, cfg.Gossip.Seeds)
}
