// Package config loads the wsbind server configuration.
//
// Precedence (highest wins): CLI flags, WSBIND_* environment variables,
// the YAML file, Default(). Environment names are the upper-cased key path
// joined with underscores, e.g. WSBIND_SESSIONS_STORE for sessions.store.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/go-go-golems/wsbind/pkg/redisstream"
	"github.com/go-go-golems/wsbind/pkg/registry"
)

// EnvPrefix is shared with the CLI's viper setup.
const EnvPrefix = "wsbind"

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

type Config struct {
	Server   ServerConfig         `yaml:"server" mapstructure:"server"`
	Registry RegistryConfig       `yaml:"registry" mapstructure:"registry"`
	Sessions SessionsConfig       `yaml:"sessions" mapstructure:"sessions"`
	Redis    redisstream.Settings `yaml:"redis" mapstructure:"redis"`
	Push     PushConfig           `yaml:"push" mapstructure:"push"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	WSPath          string        `yaml:"ws_path" mapstructure:"ws_path"`
	MetricsPath     string        `yaml:"metrics_path" mapstructure:"metrics_path"`
	ReadLimit       int64         `yaml:"read_limit" mapstructure:"read_limit"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

type RegistryConfig struct {
	// Rebind is "evict" or "reject".
	Rebind string `yaml:"rebind" mapstructure:"rebind"`
}

type SessionsConfig struct {
	Store         string        `yaml:"store" mapstructure:"store"`
	SQLitePath    string        `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	RedisPrefix   string        `yaml:"redis_prefix" mapstructure:"redis_prefix"`
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
	IdleTimeout   time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	EvictInterval time.Duration `yaml:"evict_interval" mapstructure:"evict_interval"`
}

type PushConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Topic   string `yaml:"topic" mapstructure:"topic"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8085",
			WSPath:          "/ws",
			MetricsPath:     "/metrics",
			ReadLimit:       1 << 20,
			AllowedOrigins:  []string{},
			ShutdownTimeout: 10 * time.Second,
		},
		Registry: RegistryConfig{Rebind: registry.EvictPrevious.String()},
		Sessions: SessionsConfig{
			Store:         StoreMemory,
			SQLitePath:    "wsbind-sessions.db",
			RedisPrefix:   "wsbind:session:",
			TTL:           24 * time.Hour,
			IdleTimeout:   30 * time.Minute,
			EvictInterval: time.Minute,
		},
		Redis: redisstream.DefaultSettings(),
		Push: PushConfig{
			Enabled: false,
			Topic:   "wsbind.push",
		},
	}
}

// NewViper returns a viper instance holding Default() with the WSBIND_*
// environment bound to every key.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// every key needs a default, AutomaticEnv only covers keys viper knows
	d := Default()
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.ws_path", d.Server.WSPath)
	v.SetDefault("server.metrics_path", d.Server.MetricsPath)
	v.SetDefault("server.read_limit", d.Server.ReadLimit)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("registry.rebind", d.Registry.Rebind)
	v.SetDefault("sessions.store", d.Sessions.Store)
	v.SetDefault("sessions.sqlite_path", d.Sessions.SQLitePath)
	v.SetDefault("sessions.redis_prefix", d.Sessions.RedisPrefix)
	v.SetDefault("sessions.ttl", d.Sessions.TTL)
	v.SetDefault("sessions.idle_timeout", d.Sessions.IdleTimeout)
	v.SetDefault("sessions.evict_interval", d.Sessions.EvictInterval)
	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.group", d.Redis.Group)
	v.SetDefault("redis.consumer", d.Redis.Consumer)
	v.SetDefault("push.enabled", d.Push.Enabled)
	v.SetDefault("push.topic", d.Push.Topic)
	return v
}

// Load reads path over Default() and the environment. An empty path skips
// the file. Unknown keys in the file are rejected.
func Load(path string) (*Config, error) {
	v := NewViper()
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.UnmarshalExact(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.Server.AllowedOrigins = cleanList(cfg.Server.AllowedOrigins)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func cleanList(in []string) []string {
	ret := []string{}
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			ret = append(ret, p)
		}
	}
	return ret
}

// RebindPolicy returns the parsed registry.rebind value.
func (c *Config) RebindPolicy() (registry.RebindPolicy, error) {
	return registry.ParseRebindPolicy(strings.ToLower(strings.TrimSpace(c.Registry.Rebind)))
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is empty")
	}
	if !strings.HasPrefix(c.Server.WSPath, "/") {
		return errors.Errorf("server.ws_path must start with /: %q", c.Server.WSPath)
	}
	if c.Server.MetricsPath != "" && !strings.HasPrefix(c.Server.MetricsPath, "/") {
		return errors.Errorf("server.metrics_path must start with /: %q", c.Server.MetricsPath)
	}
	if c.Server.MetricsPath == c.Server.WSPath {
		return errors.New("server.metrics_path and server.ws_path collide")
	}
	if c.Server.ReadLimit < 0 {
		return errors.New("server.read_limit is negative")
	}
	if _, err := c.RebindPolicy(); err != nil {
		return errors.Wrap(err, "registry.rebind")
	}
	switch c.Sessions.Store {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.Sessions.SQLitePath) == "" {
			return errors.New("sessions.sqlite_path is empty")
		}
	case StoreRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return errors.New("sessions.store is redis but redis.addr is empty")
		}
	default:
		return errors.Errorf("unknown sessions.store %q", c.Sessions.Store)
	}
	if c.Sessions.IdleTimeout < 0 || c.Sessions.EvictInterval < 0 || c.Sessions.TTL < 0 {
		return errors.New("sessions durations must not be negative")
	}
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	if c.Push.Enabled && strings.TrimSpace(c.Push.Topic) == "" {
		return errors.New("push.topic is empty")
	}
	return nil
}
