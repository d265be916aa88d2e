// Package config loads the engine's process-wide configuration using
// viper, and the per-channel YAML definitions that the management surface
// (out of scope here) would otherwise produce via its CRUD API.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/corvushealth/engine/internal/log"
)

// GlobalConfig is the top-level, process-wide static configuration. Its
// keys (node, control, cluster, ...) sit at the root of the YAML document;
// env vars override with the ENGINE_ prefix (e.g. ENGINE_LOG_LEVEL).
type GlobalConfig struct {
	Node    NodeConfig    `mapstructure:"node"`
	Control ControlConfig `mapstructure:"control"`
	Cluster ClusterConfig `mapstructure:"cluster"`
	Store   StoreConfig   `mapstructure:"store"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Session SessionConfig `mapstructure:"session"`
	Log     log.Config    `mapstructure:"log"`
}

// NodeConfig identifies this engine instance.
type NodeConfig struct {
	ID   string            `mapstructure:"id"`
	Tags map[string]string `mapstructure:"tags"`
}

// ControlConfig configures the daemon's gRPC control plane (start, stop,
// reload, deploy, status — see internal/rpc).
type ControlConfig struct {
	Socket string `mapstructure:"socket"`
}

// ClusterConfig configures cluster mode: cluster-safe message id
// allocation and a shared session store (internal/cluster).
type ClusterConfig struct {
	Enabled               bool     `mapstructure:"enabled"`
	Nodes                 []string `mapstructure:"nodes"`
	MessageIDBlockSize    int64    `mapstructure:"message_id_block_size"`
	StrictClusterSessions bool     `mapstructure:"strict_cluster_sessions"`
}

// StoreConfig configures the relational store backing per-channel tables.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // currently only "sqlite"
	DSN    string `mapstructure:"dsn"`
}

// MetricsConfig configures the Prometheus metrics HTTP listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// SessionConfig configures the auth session store (internal/session).
type SessionConfig struct {
	IdleTimeoutMinutes  int    `mapstructure:"idle_timeout_minutes"`
	CleanupIntervalMins int    `mapstructure:"cleanup_interval_minutes"`
	TLSCookiesDefault   bool   `mapstructure:"tls_cookies_default"`
	ExternalCacheAddr   string `mapstructure:"external_cache_addr"`
}

// Load reads the global configuration file (YAML) via viper, applying
// defaults and environment overrides, then validates it.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg GlobalConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("control.socket", "/var/run/engine.sock")
	v.SetDefault("cluster.enabled", false)
	v.SetDefault("cluster.message_id_block_size", int64(1000))
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "file:engine.db?_pragma=journal_mode(WAL)")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen", ":9191")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("session.idle_timeout_minutes", 30)
	v.SetDefault("session.cleanup_interval_minutes", 5)
	v.SetDefault("session.tls_cookies_default", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func (c *GlobalConfig) validate() error {
	if c.Cluster.Enabled && len(c.Cluster.Nodes) == 0 {
		return fmt.Errorf("cluster.enabled is true but cluster.nodes is empty")
	}
	if c.Session.IdleTimeoutMinutes <= 0 {
		c.Session.IdleTimeoutMinutes = 30
	}
	if c.Session.CleanupIntervalMins <= 0 {
		c.Session.CleanupIntervalMins = 5
	}
	return nil
}
