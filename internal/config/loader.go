package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. QUADRANT_STORE_PATH.
const EnvPrefix = "QUADRANT"

// DefaultFile is read from the working directory when no file is named.
const DefaultFile = "quadrant.yaml"

// FlagBinding maps a command-line flag onto a config key.
type FlagBinding struct {
	Key  string
	Flag *pflag.Flag
}

// Load reads configuration from path (or DefaultFile if present), the
// environment and any changed flags.
//
// A missing DefaultFile is not an error; a missing explicit path is.
func Load(path string, flags ...FlagBinding) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readFile(v, path); err != nil {
		return nil, err
	}

	for _, fb := range flags {
		if fb.Flag == nil {
			continue
		}
		if err := v.BindPFlag(fb.Key, fb.Flag); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", fb.Flag.Name, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readFile(v *viper.Viper, path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil
		}
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the server or client cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if !strings.HasPrefix(c.Server.WSPath, "/") {
		errs = append(errs, fmt.Errorf("server.ws_path %q must start with /", c.Server.WSPath))
	}
	if c.Server.OutboxSize < 1 {
		errs = append(errs, fmt.Errorf("server.outbox_size must be positive, got %d", c.Server.OutboxSize))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if strings.TrimSpace(c.Owner.ID) == "" {
		errs = append(errs, errors.New("owner.id is required"))
	}
	if c.Client.SnapshotTimeout <= 0 {
		errs = append(errs, errors.New("client.snapshot_timeout must be positive"))
	}
	if c.Client.RequestTimeout <= 0 {
		errs = append(errs, errors.New("client.request_timeout must be positive"))
	}
	if c.Client.ReconnectMin <= 0 || c.Client.ReconnectMax < c.Client.ReconnectMin {
		errs = append(errs, fmt.Errorf("client reconnect bounds invalid: min=%s max=%s",
			c.Client.ReconnectMin, c.Client.ReconnectMax))
	}
	switch c.Log.Format {
	case "text", "json", "pretty":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text, json or pretty", c.Log.Format))
	}
	return errors.Join(errs...)
}
