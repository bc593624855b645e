// Package config defines and loads the discovery service configuration.
package config

import (
	"errors"
	"time"
)

// Config represents the discovery service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Cluster   ClusterConfig   `mapstructure:"cluster"`
	Gossip    GossipConfig    `mapstructure:"gossip"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig represents the HTTP API server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	NodeID          string        `mapstructure:"node_id"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ClusterConfig represents membership and routing configuration.
type ClusterConfig struct {
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
	PlacementPoints int           `mapstructure:"placement_points"`
}

// GossipConfig represents the memberlist transport configuration.
type GossipConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BindAddr       string        `mapstructure:"bind_addr"`
	BindPort       int           `mapstructure:"bind_port"`
	Seeds          []string      `mapstructure:"seeds"`
	GossipInterval time.Duration `mapstructure:"gossip_interval"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	ProbeInterval  time.Duration `mapstructure:"probe_interval"`
}

// RateLimitConfig represents API rate limiting configuration.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// MetricsConfig represents Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return errors.New("server.host is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Server.NodeID == "" {
		return errors.New("server.node_id is required")
	}
	if c.Cluster.RetryInterval <= 0 {
		return errors.New("cluster.retry_interval must be positive")
	}
	if c.Cluster.PlacementPoints <= 0 {
		return errors.New("cluster.placement_points must be positive")
	}
	if c.Gossip.Enabled && (c.Gossip.BindPort <= 0 || c.Gossip.BindPort > 65535) {
		return errors.New("gossip.bind_port must be between 1 and 65535")
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return errors.New("rate_limit.requests_per_second must be positive")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8470,
			NodeID:          "discovery-1",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Cluster: ClusterConfig{
			RetryInterval:   5 * time.Second,
			PlacementPoints: 100,
		},
		Gossip: GossipConfig{
			Enabled:        false,
			BindAddr:       "0.0.0.0",
			BindPort:       7946,
			GossipInterval: 200 * time.Millisecond,
			ProbeTimeout:   500 * time.Millisecond,
			ProbeInterval:  time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 100,
			BurstSize:         200,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
