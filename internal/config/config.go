// Package config loads service configuration from LEDGER_-prefixed
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/atmx/liquidity-ledger/internal/model"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	DatabaseURL     string
	RedisURL        string
	CacheTTL        time.Duration
	EventsChannel   string
	DustPolicy      model.DustPolicy
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables prefixed with LEDGER_.
// An empty DatabaseURL selects the in-memory store; an empty RedisURL
// disables both the cache and the event channel.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("cache_ttl", 30*time.Second)
	v.SetDefault("events_channel", "ledger:events")
	v.SetDefault("dust_policy", string(model.DustReject))
	v.SetDefault("shutdown_timeout", 5*time.Second)

	dust, err := model.ParseDustPolicy(v.GetString("dust_policy"))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{
		Port:            v.GetString("port"),
		DatabaseURL:     v.GetString("database_url"),
		RedisURL:        v.GetString("redis_url"),
		CacheTTL:        v.GetDuration("cache_ttl"),
		EventsChannel:   v.GetString("events_channel"),
		DustPolicy:      dust,
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
	}

	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("config: cache_ttl must be positive, got %s", cfg.CacheTTL)
	}
	return cfg, nil
}
