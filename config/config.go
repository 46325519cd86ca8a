// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Lock        LockConfig        `mapstructure:"lock"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Log         LogConfig         `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           string  `mapstructure:"port"`
	MetricsEnabled bool    `mapstructure:"metrics_enabled"`
	BodySizeLimit  int64   `mapstructure:"body_size_limit"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// RedisConfig holds the shared KV store connection. An empty URL selects the
// in-process memory store, which is only suitable for development and tests.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// StorageConfig selects and configures the complaint store backend.
type StorageConfig struct {
	Type        string `mapstructure:"type"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresURL string `mapstructure:"postgres_url"`
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	Secret string `mapstructure:"secret"`
}

// CacheConfig holds cache tuning and the optional route policy file.
type CacheConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	PolicyFile string        `mapstructure:"policy_file"`
}

// LockConfig holds the resource lease duration.
type LockConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// IdempotencyConfig holds ledger retention and body size limits.
type IdempotencyConfig struct {
	TTL          time.Duration `mapstructure:"ttl"`
	MaxBodyBytes int           `mapstructure:"max_body_bytes"`
}

// LogConfig selects the log output format: "json", "pretty", or "tint".
type LogConfig struct {
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	// Load .env file using Viper (optional, won't fail if not found)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if .env file doesn't exist

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("METRICS_ENABLED", true)
	viper.SetDefault("BODY_SIZE_LIMIT", 1<<20)
	viper.SetDefault("RATE_LIMIT_RPS", 25.0)
	viper.SetDefault("RATE_LIMIT_BURST", 50)
	viper.SetDefault("STORAGE_TYPE", "sqlite")
	viper.SetDefault("SQLITE_PATH", "data/civiq.db")
	viper.SetDefault("CACHE_TTL", "60s")
	viper.SetDefault("LOCK_TTL", "5m")
	viper.SetDefault("IDEMPOTENCY_TTL", "24h")
	viper.SetDefault("IDEMPOTENCY_MAX_BODY_BYTES", 256<<10)
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("LOG_LEVEL", "info")

	// Enable automatic environment variable reading
	viper.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port:           viper.GetString("PORT"),
			MetricsEnabled: viper.GetBool("METRICS_ENABLED"),
			BodySizeLimit:  viper.GetInt64("BODY_SIZE_LIMIT"),
			RateLimitRPS:   viper.GetFloat64("RATE_LIMIT_RPS"),
			RateLimitBurst: viper.GetInt("RATE_LIMIT_BURST"),
		},
		Redis: RedisConfig{
			URL: viper.GetString("REDIS_URL"),
		},
		Storage: StorageConfig{
			Type:        viper.GetString("STORAGE_TYPE"),
			SQLitePath:  viper.GetString("SQLITE_PATH"),
			PostgresURL: viper.GetString("POSTGRES_URL"),
		},
		Auth: AuthConfig{
			Secret: viper.GetString("AUTH_SECRET"),
		},
		Cache: CacheConfig{
			TTL:        viper.GetDuration("CACHE_TTL"),
			PolicyFile: viper.GetString("POLICY_FILE"),
		},
		Lock: LockConfig{
			TTL: viper.GetDuration("LOCK_TTL"),
		},
		Idempotency: IdempotencyConfig{
			TTL:          viper.GetDuration("IDEMPOTENCY_TTL"),
			MaxBodyBytes: viper.GetInt("IDEMPOTENCY_MAX_BODY_BYTES"),
		},
		Log: LogConfig{
			Format: viper.GetString("LOG_FORMAT"),
			Level:  viper.GetString("LOG_LEVEL"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Type {
	case "sqlite", "postgresql", "memory":
	default:
		return fmt.Errorf("unsupported storage type %q", c.Storage.Type)
	}
	if c.Storage.Type == "postgresql" && c.Storage.PostgresURL == "" {
		return fmt.Errorf("POSTGRES_URL is required when STORAGE_TYPE=postgresql")
	}
	return nil
}
