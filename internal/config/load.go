package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const envPrefix = "ERPSYNC"

func setDefaults(v *viper.Viper) {
	v.SetDefault("odoo.url", "")
	v.SetDefault("odoo.database", "")
	v.SetDefault("odoo.username", "")
	v.SetDefault("odoo.password", "")
	v.SetDefault("odoo.timeout", "30s")
	v.SetDefault("odoo.session_ttl", "0s")

	v.SetDefault("state_storage.type", "mysql")
	v.SetDefault("state_storage.host", "127.0.0.1")
	v.SetDefault("state_storage.port", 3306)
	v.SetDefault("state_storage.user", "")
	v.SetDefault("state_storage.password", "")
	v.SetDefault("state_storage.database", "erp_sync")

	v.SetDefault("sync.concurrency", 5)
	v.SetDefault("sync.batch_size", 50)
	v.SetDefault("sync.max_batch_errors", 10)
	v.SetDefault("sync.picking_type_code", "outgoing")
	v.SetDefault("sync.time_budget", "50s")
	v.SetDefault("sync.retry_grace", "30s")

	v.SetDefault("realtime.enabled", false)
	v.SetDefault("realtime.server_id", 1001)
	v.SetDefault("realtime.source.host", "127.0.0.1")
	v.SetDefault("realtime.source.port", 3306)
	v.SetDefault("realtime.source.database", "erp_sync")
	v.SetDefault("realtime.source.replication_user", "")
	v.SetDefault("realtime.source.replication_password", "")

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval", "@every 5m")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.auth_token", "")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
}

// LoadConfig reads the YAML file at path, applies ERPSYNC_* environment
// overrides and validates the result. An empty path means environment only.
// A .env file in the working directory is loaded first when present.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first setting that would keep the service from running.
func (c *Config) Validate() error {
	if c.Odoo.URL == "" {
		return errors.New("config: odoo.url is required")
	}
	if c.Odoo.Database == "" || c.Odoo.Username == "" {
		return errors.New("config: odoo.database and odoo.username are required")
	}
	if c.Odoo.Timeout < 0 || c.Odoo.SessionTTL < 0 {
		return errors.New("config: odoo durations must not be negative")
	}

	switch c.StateStorage.Type {
	case "mysql", "memory":
	default:
		return fmt.Errorf("config: unknown state_storage.type %q", c.StateStorage.Type)
	}

	if c.Sync.Concurrency < 1 {
		return errors.New("config: sync.concurrency must be at least 1")
	}
	if c.Sync.BatchSize < 0 {
		return errors.New("config: sync.batch_size must not be negative")
	}
	if c.Sync.TimeBudget < time.Second {
		return errors.New("config: sync.time_budget must be at least 1s")
	}

	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.Interval); err != nil {
			return fmt.Errorf("config: invalid scheduler.interval %q: %w", c.Scheduler.Interval, err)
		}
	}

	if c.Realtime.Enabled && c.StateStorage.Type != "mysql" {
		return errors.New("config: realtime requires mysql state storage")
	}
	return nil
}
