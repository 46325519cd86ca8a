package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	// Reset viper state before test
	viper.Reset()

	for _, key := range []string{"PORT", "STORAGE_TYPE", "CACHE_TTL", "LOCK_TTL", "REDIS_URL"} {
		_ = os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Storage.Type != "sqlite" {
		t.Errorf("expected default storage sqlite, got %s", cfg.Storage.Type)
	}
	if cfg.Cache.TTL != 60*time.Second {
		t.Errorf("expected default cache ttl 60s, got %s", cfg.Cache.TTL)
	}
	if cfg.Lock.TTL != 5*time.Minute {
		t.Errorf("expected default lock ttl 5m, got %s", cfg.Lock.TTL)
	}
	if cfg.Idempotency.TTL != 24*time.Hour {
		t.Errorf("expected default idempotency ttl 24h, got %s", cfg.Idempotency.TTL)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected default log format json, got %s", cfg.Log.Format)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	viper.Reset()

	_ = os.Setenv("PORT", "9090")
	_ = os.Setenv("CACHE_TTL", "2m")
	_ = os.Setenv("REDIS_URL", "redis://localhost:6379/0")
	defer func() {
		_ = os.Unsetenv("PORT")
		_ = os.Unsetenv("CACHE_TTL")
		_ = os.Unsetenv("REDIS_URL")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Cache.TTL != 2*time.Minute {
		t.Errorf("expected cache ttl 2m, got %s", cfg.Cache.TTL)
	}
	if cfg.Redis.URL != "redis://localhost:6379/0" {
		t.Errorf("unexpected redis url %s", cfg.Redis.URL)
	}
}

func TestLoad_RejectsUnknownStorage(t *testing.T) {
	viper.Reset()

	_ = os.Setenv("STORAGE_TYPE", "cassandra")
	defer func() { _ = os.Unsetenv("STORAGE_TYPE") }()

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported storage type")
	}
}

func TestLoad_PostgresRequiresURL(t *testing.T) {
	viper.Reset()

	_ = os.Setenv("STORAGE_TYPE", "postgresql")
	_ = os.Unsetenv("POSTGRES_URL")
	defer func() { _ = os.Unsetenv("STORAGE_TYPE") }()

	if _, err := Load(); err == nil {
		t.Fatal("expected error when POSTGRES_URL is missing")
	}
}
