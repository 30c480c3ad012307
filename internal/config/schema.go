// Package config loads quadrant settings from defaults, an optional YAML
// file, QUADRANT_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import "time"

// Config is the full quadrant configuration.
type Config struct {
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Owner  OwnerConfig  `yaml:"owner" mapstructure:"owner"`
	Client ClientConfig `yaml:"client" mapstructure:"client"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the sync server.
type ServerConfig struct {
	Addr       string `yaml:"addr" mapstructure:"addr"`
	WSPath     string `yaml:"ws_path" mapstructure:"ws_path"`
	OutboxSize int    `yaml:"outbox_size" mapstructure:"outbox_size"`
}

// StoreConfig configures the SQLite task store.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// OwnerConfig configures record ownership.
type OwnerConfig struct {
	// ID is the owner used by connections that name none.
	ID string `yaml:"id" mapstructure:"id"`

	// Scoped limits snapshots and broadcasts to the connection's owner.
	Scoped bool `yaml:"scoped" mapstructure:"scoped"`
}

// ClientConfig configures the event channel client.
type ClientConfig struct {
	URL             string        `yaml:"url" mapstructure:"url"`
	SnapshotTimeout time.Duration `yaml:"snapshot_timeout" mapstructure:"snapshot_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	ReconnectMin    time.Duration `yaml:"reconnect_min" mapstructure:"reconnect_min"`
	ReconnectMax    time.Duration `yaml:"reconnect_max" mapstructure:"reconnect_max"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug | info | warn | error
	Format string `yaml:"format" mapstructure:"format"` // text | json | pretty
}
