package config

import (
	"io"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:       ":8080",
			WSPath:     "/ws",
			OutboxSize: 64,
		},
		Store: StoreConfig{
			Path: "quadrant.db",
		},
		Owner: OwnerConfig{
			ID:     "local",
			Scoped: true,
		},
		Client: ClientConfig{
			URL:             "ws://localhost:8080/ws",
			SnapshotTimeout: 5 * time.Second,
			RequestTimeout:  10 * time.Second,
			ReconnectMin:    500 * time.Millisecond,
			ReconnectMax:    30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// setDefaults registers every default so environment variables bind to
// keys that the file does not mention.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.ws_path", d.Server.WSPath)
	v.SetDefault("server.outbox_size", d.Server.OutboxSize)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("owner.id", d.Owner.ID)
	v.SetDefault("owner.scoped", d.Owner.Scoped)
	v.SetDefault("client.url", d.Client.URL)
	v.SetDefault("client.snapshot_timeout", d.Client.SnapshotTimeout)
	v.SetDefault("client.request_timeout", d.Client.RequestTimeout)
	v.SetDefault("client.reconnect_min", d.Client.ReconnectMin)
	v.SetDefault("client.reconnect_max", d.Client.ReconnectMax)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// WriteDefault writes a commented default configuration file.
func WriteDefault(path string) error {
	content := `# quadrant configuration

server:
  addr: ":8080"
  ws_path: /ws
  outbox_size: 64   # pending envelopes per connection before it is dropped

store:
  path: quadrant.db

owner:
  id: local         # used when a connection does not pass ?owner=
  scoped: true      # limit snapshots and broadcasts to the connection's owner

client:
  url: ws://localhost:8080/ws
  snapshot_timeout: 5s
  request_timeout: 10s
  reconnect_min: 500ms
  reconnect_max: 30s

log:
  level: info       # debug | info | warn | error
  format: text      # text | json | pretty
`
	return os.WriteFile(path, []byte(content), 0o644)
}

// Encode writes cfg as YAML.
func Encode(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
