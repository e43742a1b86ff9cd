// Package config loads the daemon configuration from a YAML file with
// defaults and validation.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config holds the daemon configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Admin  AdminConfig  `mapstructure:"admin"`
	Store  StoreConfig  `mapstructure:"store"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig holds the binary-protocol listener settings.
type ServerConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr"`
	MaxConnections int           `mapstructure:"max_connections"`
	StopTimeout    time.Duration `mapstructure:"stop_timeout"`
	// TestFill enables the clearly-labeled synthetic resolver used for
	// demonstrations without a live series source. Never enable this in a
	// production deployment.
	TestFill bool `mapstructure:"test_fill"`
}

// AdminConfig holds the HTTP admin endpoint settings.
type AdminConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Backend is "redis", "badger" or "none".
	Backend string `mapstructure:"backend"`
	Redis   struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		Prefix   string `mapstructure:"prefix"`
	} `mapstructure:"redis"`
	Badger struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"badger"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.ListenAddr = ":20000"
	cfg.Server.MaxConnections = 32
	cfg.Server.StopTimeout = 5 * time.Second
	cfg.Admin.ListenAddr = ":9102"
	cfg.Store.Backend = "none"
	cfg.Store.Redis.Addr = "localhost:6379"
	cfg.Store.Redis.Prefix = "tsexpr:"
	cfg.Store.Badger.Path = "./data"
	cfg.Log.Level = "info"
	return cfg
}

// Load reads path (optional) on top of the defaults, then applies TSEXPR_*
// environment overrides. The YAML is decoded through a generic map so partial
// files and loosely-typed values work.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		var tree map[string]any
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(tree); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets deployments override the file without templating it.
func (c *Config) applyEnv() {
	env := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	env("TSEXPR_LISTEN_ADDR", &c.Server.ListenAddr)
	env("TSEXPR_ADMIN_ADDR", &c.Admin.ListenAddr)
	env("TSEXPR_LOG_LEVEL", &c.Log.Level)
	env("TSEXPR_STORE_BACKEND", &c.Store.Backend)
	env("TSEXPR_REDIS_ADDR", &c.Store.Redis.Addr)
	env("TSEXPR_REDIS_PASSWORD", &c.Store.Redis.Password)
	env("TSEXPR_BADGER_PATH", &c.Store.Badger.Path)
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if c.Server.MaxConnections <= 0 {
		return fmt.Errorf("server.max_connections must be positive, got %d", c.Server.MaxConnections)
	}
	switch c.Store.Backend {
	case "redis", "badger", "none":
	default:
		return fmt.Errorf("store.backend must be redis, badger or none, got %q", c.Store.Backend)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}
