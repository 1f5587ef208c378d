package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full agent configuration. It is loaded once at startup
// and passed explicitly to every component; there is no package-level
// mutable configuration state.
type Config struct {
	// DataDir is where the BoltDB store and blob files live.
	DataDir string `mapstructure:"data_dir"`

	// RemoteBaseURL is the GyanPath backend API base, e.g. https://api.gyanpath.io.
	RemoteBaseURL string `mapstructure:"remote_base_url"`

	// AuthToken is the learner's bearer token for the backend.
	AuthToken string `mapstructure:"auth_token"`

	// APIAddr is the listen address of the local control API.
	APIAddr string `mapstructure:"api_addr"`

	// GatewayAddr is the listen address of the caching gateway.
	GatewayAddr string `mapstructure:"gateway_addr"`

	// UpstreamURL is the origin the gateway fronts (app shell + asset CDN).
	UpstreamURL string `mapstructure:"upstream_url"`

	// CacheGeneration names the current cache generation. It should be a
	// build content hash injected via ldflags; generations that do not match
	// are pruned at startup.
	CacheGeneration string `mapstructure:"cache_generation"`

	// RuntimeQuotaBytes caps the runtime (media) cache. 0 disables eviction.
	RuntimeQuotaBytes int64 `mapstructure:"runtime_quota_bytes"`

	// PrecacheManifest is the path of the YAML shell-asset manifest.
	PrecacheManifest string `mapstructure:"precache_manifest"`

	// OfflinePage is the gateway path served to navigations while offline.
	OfflinePage string `mapstructure:"offline_page"`

	// SyncInterval is how often the outbox drain loop ticks.
	SyncInterval time.Duration `mapstructure:"sync_interval"`

	// FlushInterval is how often playback progress is flushed to the outbox.
	FlushInterval time.Duration `mapstructure:"flush_interval"`

	// ProbeInterval is how often the connectivity prober checks the backend.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	// LogJSON switches log output from console to JSON.
	LogJSON bool `mapstructure:"log_json"`
}

// Load reads configuration from an optional YAML file and GYANPATH_* env
// vars. Env vars win over the file; defaults fill the rest.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("data_dir", "./gyanpath-data")
	v.SetDefault("api_addr", "127.0.0.1:7410")
	v.SetDefault("gateway_addr", "127.0.0.1:7411")
	v.SetDefault("cache_generation", "dev")
	v.SetDefault("runtime_quota_bytes", int64(2<<30)) // 2 GiB
	v.SetDefault("offline_page", "/offline")
	v.SetDefault("sync_interval", "30s")
	v.SetDefault("flush_interval", "5s")
	v.SetDefault("probe_interval", "15s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gyanpath")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/gyanpath")
	}

	v.SetEnvPrefix("GYANPATH")
	v.AutomaticEnv()
	// AutomaticEnv does not register keys for Unmarshal; bind them explicitly.
	for _, key := range []string{
		"data_dir", "remote_base_url", "auth_token", "api_addr",
		"gateway_addr", "upstream_url", "cache_generation",
		"runtime_quota_bytes", "precache_manifest", "offline_page",
		"sync_interval", "flush_interval", "probe_interval",
		"log_level", "log_json",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		// Only a missing file is fine; env and defaults carry the rest.
		// A discovered file that fails to parse must not be silently skipped.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks fields the agent cannot run without.
func (c *Config) Validate() error {
	if c.RemoteBaseURL == "" {
		return fmt.Errorf("remote_base_url is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.CacheGeneration == "" {
		return fmt.Errorf("cache_generation is required")
	}
	return nil
}
