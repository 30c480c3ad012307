package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "/ws", cfg.Server.WSPath)
	assert.Equal(t, 64, cfg.Server.OutboxSize)
	assert.Equal(t, "quadrant.db", cfg.Store.Path)
	assert.Equal(t, "local", cfg.Owner.ID)
	assert.True(t, cfg.Owner.Scoped)
	assert.Equal(t, 5*time.Second, cfg.Client.SnapshotTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_WriteDefaultRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quadrant.yaml")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_FileEnvAndFlagPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
store:
  path: from-file.db
client:
  request_timeout: 3s
log:
  format: json
`), 0o644))

	t.Setenv("QUADRANT_STORE_PATH", "from-env.db")
	t.Setenv("QUADRANT_OWNER_ID", "alice")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("addr", "", "")
	fs.String("owner", "", "")
	require.NoError(t, fs.Parse([]string{"--addr", ":7000"}))

	cfg, err := Load(path,
		FlagBinding{Key: "server.addr", Flag: fs.Lookup("addr")},
		FlagBinding{Key: "owner.id", Flag: fs.Lookup("owner")},
	)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr, "flag beats file")
	assert.Equal(t, "from-env.db", cfg.Store.Path, "env beats file")
	assert.Equal(t, "alice", cfg.Owner.ID, "unchanged flag does not beat env")
	assert.Equal(t, 3*time.Second, cfg.Client.RequestTimeout)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/ws", cfg.Server.WSPath, "untouched keys keep defaults")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad ws path", func(c *Config) { c.Server.WSPath = "ws" }, "ws_path"},
		{"zero outbox", func(c *Config) { c.Server.OutboxSize = 0 }, "outbox_size"},
		{"blank owner", func(c *Config) { c.Owner.ID = " " }, "owner.id"},
		{"inverted backoff", func(c *Config) { c.Client.ReconnectMax = time.Millisecond }, "reconnect"},
		{"unknown format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEncode_LoadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "effective.yaml")
	f, err := os.Create(path)
	require.NoError(t, err)

	want := DefaultConfig()
	want.Server.Addr = "127.0.0.1:9000"
	want.Client.ReconnectMax = time.Minute
	require.NoError(t, Encode(f, want))
	require.NoError(t, f.Close())

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
