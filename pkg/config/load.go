package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nicktill/tracedump/pkg/logparse"
)

// EnvPrefix prefixes environment overrides, e.g. TRACEDUMP_STORE_BACKEND.
const EnvPrefix = "TRACEDUMP"

// Config holds the settings shared by every command. Flags override them.
type Config struct {
	Mask    string      `mapstructure:"mask"`
	Browser string      `mapstructure:"browser"`
	Gnuplot string      `mapstructure:"gnuplot"`
	Store   StoreConfig `mapstructure:"store"`
	Serve   ServeConfig `mapstructure:"serve"`
}

// StoreConfig selects the bucket store.
type StoreConfig struct {
	Backend     string `mapstructure:"backend"` // memory, badger or sqlite
	Path        string `mapstructure:"path"`
	MaxMemoryMB int64  `mapstructure:"max_memory_mb"`

	// Retention is the window kept behind the newest bucket, 0 keeps all
	Retention time.Duration `mapstructure:"retention"`
}

// ServeConfig configures the report server.
type ServeConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
}

// Load reads the configuration. With an empty path, tracedump.yaml is
// looked up in the working directory and ~/.config/tracedump and is
// optional; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("mask", logparse.DefaultMask)
	v.SetDefault("browser", DefaultBrowser)
	v.SetDefault("gnuplot", "gnuplot")
	v.SetDefault("store.backend", DefaultBackend)
	v.SetDefault("store.path", "")
	v.SetDefault("store.max_memory_mb", DefaultMaxMemoryMB)
	v.SetDefault("store.retention", "0s")
	v.SetDefault("serve.addr", DefaultAddr)
	v.SetDefault("serve.reload_interval", DefaultReloadInterval.String())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tracedump")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/tracedump")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
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

// Validate checks the settings that have a fixed set of values.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "badger", "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s backend", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store.backend %q (want memory, badger or sqlite)", c.Store.Backend)
	}
	if c.Serve.ReloadInterval <= 0 {
		return fmt.Errorf("serve.reload_interval must be positive, got %s", c.Serve.ReloadInterval)
	}
	if c.Store.Retention < 0 {
		return fmt.Errorf("store.retention must not be negative, got %s", c.Store.Retention)
	}
	if c.Store.MaxMemoryMB <= 0 {
		return fmt.Errorf("store.max_memory_mb must be positive, got %d", c.Store.MaxMemoryMB)
	}
	return nil
}
