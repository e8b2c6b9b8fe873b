// Package config handles YAML configuration loading with environment variable expansion.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"go.yaml.in/yaml/v3"
)

// Config is the top-level gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Origin    OriginConfig    `yaml:"origin"`
	Storage   StorageConfig   `yaml:"storage"`
	HotCache  HotCacheConfig  `yaml:"hot_cache"`
	Fill      FillConfig      `yaml:"fill"`
	Warmup    WarmupConfig    `yaml:"warmup"`
	Stats     StatsConfig     `yaml:"stats"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"` // 0 disables; recordings can stream for minutes
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// OriginConfig holds settings for the upstream application server.
type OriginConfig struct {
	BaseURL    string            `yaml:"base_url"`
	Timeout    time.Duration     `yaml:"timeout"`     // per-request timeout for snapshot fetches
	DNSRefresh time.Duration     `yaml:"dns_refresh"` // resolver cache refresh interval
	Auth       *OriginAuthConfig `yaml:"auth"`        // optional; unauthenticated when nil
}

// OriginAuthConfig configures OAuth2 client-credentials auth against the origin.
type OriginAuthConfig struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// StorageConfig selects and configures the durable generation store.
type StorageConfig struct {
	Backend string `yaml:"backend"` // "sqlite" or "leveldb"
	DSN     string `yaml:"dsn"`     // sqlite: file path or ":memory:"
	Path    string `yaml:"path"`    // leveldb: directory
}

// HotCacheConfig holds in-memory read cache settings.
type HotCacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxSize    int           `yaml:"max_size"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// FillConfig holds background cache-fill settings.
type FillConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// WarmupConfig controls manifest-driven cache warmup after activation.
type WarmupConfig struct {
	Enabled bool `yaml:"enabled"`
}

// StatsConfig controls the periodic cache stats log.
type StatsConfig struct {
	Every time.Duration `yaml:"every"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`    // OTLP gRPC endpoint
	SampleRate float64 `yaml:"sample_rate"` // 0.0 to 1.0
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Origin: OriginConfig{
			Timeout:    30 * time.Second,
			DNSRefresh: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			DSN:     "airlock.db",
			Path:    "airlock-cache",
		},
		HotCache: HotCacheConfig{
			Enabled:    true,
			MaxSize:    10_000,
			DefaultTTL: 5 * time.Minute,
		},
		Fill: FillConfig{
			QueueSize: 1024,
		},
		Stats: StatsConfig{
			Every: time.Minute,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
