package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// The file is optional when environment variables carry the settings.
	if err := v.ReadInConfig(); err == nil {
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	applyEnvironmentOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides, which
// take precedence over the file.
func applyEnvironmentOverrides(cfg *Config) {
	if nodeID := os.Getenv("DISCOVERY_NODE_ID"); nodeID != "" {
		cfg.Server.NodeID = nodeID
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if enabled := os.Getenv("GOSSIP_ENABLED"); enabled != "" {
		cfg.Gossip.Enabled = enabled == "true" || enabled == "1"
	}
	if bindAddr := os.Getenv("GOSSIP_BIND_ADDR"); bindAddr != "" {
		cfg.Gossip.BindAddr = bindAddr
	}
	if bindPort := os.Getenv("GOSSIP_BIND_PORT"); bindPort != "" {
		if p, err := strconv.Atoi(bindPort); err == nil {
			cfg.Gossip.BindPort = p
		}
	}
	if seeds := os.Getenv("GOSSIP_SEEDS"); seeds != "" {
		cfg.Gossip.Seeds = strings.Split(seeds, ",")
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		cfg.Logging.Format = logFormat
	}
}
