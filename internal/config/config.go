package config

import (
	"time"
)

type Config struct {
	Odoo         OdooConfig      `mapstructure:"odoo"`
	StateStorage StateStorage    `mapstructure:"state_storage"`
	Sync         SyncConfig      `mapstructure:"sync"`
	Realtime     RealtimeConfig  `mapstructure:"realtime"`
	Scheduler    SchedulerConfig `mapstructure:"scheduler"`
	Server       ServerConfig    `mapstructure:"server"`
	Logging      LoggingConfig   `mapstructure:"logging"`
}

// OdooConfig describes the remote ERP endpoint and the credentials used for
// every XML-RPC call.
type OdooConfig struct {
	URL      string        `mapstructure:"url"`
	Database string        `mapstructure:"database"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// SessionTTL caches the authenticated uid. Zero authenticates on every call.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

type DatabaseConnection struct {
	Host                string `mapstructure:"host"`
	Port                int    `mapstructure:"port"`
	User                string `mapstructure:"user"`
	Password            string `mapstructure:"password"`
	Database            string `mapstructure:"database"`
	ReplicationUser     string `mapstructure:"replication_user"`
	ReplicationPassword string `mapstructure:"replication_password"`
}

type StateStorage struct {
	Type     string `mapstructure:"type"` // mysql | memory
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// Connection returns the storage settings as a database connection.
func (s StateStorage) Connection() DatabaseConnection {
	return DatabaseConnection{
		Host:     s.Host,
		Port:     s.Port,
		User:     s.User,
		Password: s.Password,
		Database: s.Database,
	}
}

type SyncConfig struct {
	// Concurrency caps the number of in-flight per-record operations in a batch.
	Concurrency     int           `mapstructure:"concurrency"`
	BatchSize       int           `mapstructure:"batch_size"`
	MaxBatchErrors  int           `mapstructure:"max_batch_errors"`
	PickingTypeCode string        `mapstructure:"picking_type_code"`
	TimeBudget      time.Duration `mapstructure:"time_budget"`
	RetryGrace      time.Duration `mapstructure:"retry_grace"`
}

// RealtimeConfig enables the binlog watcher that re-pushes rows flagged
// pending_push by other writers of the local database.
type RealtimeConfig struct {
	Enabled  bool               `mapstructure:"enabled"`
	ServerID uint32             `mapstructure:"server_id"`
	Source   DatabaseConnection `mapstructure:"source"`
}

type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval"`
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	Host         string   `mapstructure:"host"`
	AuthToken    string   `mapstructure:"auth_token"`
	ReadTimeout  string   `mapstructure:"read_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout"`
	CorsOrigins  []string `mapstructure:"cors_origins"`
}

func (s ServerConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(s.ReadTimeout)
	return d
}

func (s ServerConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(s.WriteTimeout)
	return d
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File, when set, writes logs to a rotating file instead of stderr.
	File      string `mapstructure:"file"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
}
