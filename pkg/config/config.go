package config

import (
	"fmt"
	"time"
)

// Config holds all tunables of the collaboration runtime.
// Values are loaded from a YAML file and/or environment variables;
// defaults match the behavior expected by the synchronization server.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Editing    EditingConfig    `yaml:"editing"`
	History    HistoryConfig    `yaml:"history"`
	Log        LogConfig        `yaml:"log"`
}

// ConnectionConfig holds channel and reconnection settings.
type ConnectionConfig struct {
	Endpoint          string        `yaml:"endpoint"           env:"COLLAB_ENDPOINT"           env-default:"ws://localhost:4000/sync"`
	AuthToken         string        `yaml:"auth_token"         env:"COLLAB_AUTH_TOKEN"`
	ReconnectBase     time.Duration `yaml:"reconnect_base"     env:"COLLAB_RECONNECT_BASE"     env-default:"1s"`
	MaxReconnects     int           `yaml:"max_reconnects"     env:"COLLAB_MAX_RECONNECTS"     env-default:"5"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"COLLAB_HEARTBEAT_INTERVAL" env-default:"30s"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"  env:"COLLAB_HANDSHAKE_TIMEOUT"  env-default:"10s"`
}

// EditingConfig holds edit-session buffering settings.
type EditingConfig struct {
	FlushAfter         time.Duration `yaml:"flush_after"          env:"COLLAB_FLUSH_AFTER"          env-default:"2s"`
	FlushCheckInterval time.Duration `yaml:"flush_check_interval" env:"COLLAB_FLUSH_CHECK_INTERVAL" env-default:"5s"`
}

// HistoryConfig holds change-log settings.
type HistoryConfig struct {
	Limit int `yaml:"limit" env:"COLLAB_HISTORY_LIMIT" env-default:"100"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" env:"COLLAB_LOG_LEVEL" env-default:"info"`
}

// Validate rejects configurations the runtime cannot operate with.
func (c *Config) Validate() error {
	if c.Connection.Endpoint == "" {
		return fmt.Errorf("connection.endpoint is required")
	}
	if c.Connection.ReconnectBase <= 0 {
		return fmt.Errorf("connection.reconnect_base must be positive, got %v", c.Connection.ReconnectBase)
	}
	if c.Connection.MaxReconnects < 1 {
		return fmt.Errorf("connection.max_reconnects must be at least 1, got %d", c.Connection.MaxReconnects)
	}
	if c.History.Limit < 1 {
		return fmt.Errorf("history.limit must be at least 1, got %d", c.History.Limit)
	}
	if c.Editing.FlushAfter <= 0 || c.Editing.FlushCheckInterval <= 0 {
		return fmt.Errorf("editing flush windows must be positive")
	}
	return nil
}
