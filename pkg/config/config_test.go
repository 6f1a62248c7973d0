package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/wsbind/pkg/registry"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wsbind.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	p, err := cfg.RebindPolicy()
	require.NoError(t, err)
	require.Equal(t, registry.EvictPrevious, p)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	requireDefaults(t, cfg)
}

func requireDefaults(t *testing.T, cfg *Config) {
	t.Helper()
	d := Default()
	require.Equal(t, d.Server.Addr, cfg.Server.Addr)
	require.Equal(t, d.Server.WSPath, cfg.Server.WSPath)
	require.Equal(t, d.Server.ReadLimit, cfg.Server.ReadLimit)
	require.Empty(t, cfg.Server.AllowedOrigins)
	require.Equal(t, d.Server.ShutdownTimeout, cfg.Server.ShutdownTimeout)
	require.Equal(t, d.Registry, cfg.Registry)
	require.Equal(t, d.Sessions, cfg.Sessions)
	require.Equal(t, d.Redis, cfg.Redis)
	require.Equal(t, d.Push, cfg.Push)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
  ws_path: /socket
  allowed_origins: ["https://app.example.com"]
  shutdown_timeout: 3s
registry:
  rebind: reject
sessions:
  store: sqlite
  sqlite_path: /tmp/s.db
  idle_timeout: 5m
redis:
  enabled: true
  addr: redis:6379
  group: g
  consumer: c
push:
  enabled: true
  topic: devices.push
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Server.Addr)
	require.Equal(t, "/socket", cfg.Server.WSPath)
	require.Equal(t, "/metrics", cfg.Server.MetricsPath)
	require.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
	require.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, StoreSQLite, cfg.Sessions.Store)
	require.Equal(t, 5*time.Minute, cfg.Sessions.IdleTimeout)
	require.Equal(t, time.Minute, cfg.Sessions.EvictInterval)
	require.True(t, cfg.Redis.Enabled)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
	require.Equal(t, "devices.push", cfg.Push.Topic)

	p, err := cfg.RebindPolicy()
	require.NoError(t, err)
	require.Equal(t, registry.RejectRebind, p)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	requireDefaults(t, cfg)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  adress: \":1\"\n"))
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("WSBIND_SERVER_ADDR", ":7000")
	t.Setenv("WSBIND_SERVER_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("WSBIND_REGISTRY_REBIND", "reject")
	t.Setenv("WSBIND_SESSIONS_STORE", "redis")
	t.Setenv("WSBIND_SESSIONS_TTL", "2h")
	t.Setenv("WSBIND_SERVER_READ_LIMIT", "4096")
	t.Setenv("WSBIND_REDIS_ENABLED", "true")
	t.Setenv("WSBIND_PUSH_ENABLED", "1")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, ":7000", cfg.Server.Addr)
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
	require.Equal(t, "reject", cfg.Registry.Rebind)
	require.Equal(t, StoreRedis, cfg.Sessions.Store)
	require.Equal(t, 2*time.Hour, cfg.Sessions.TTL)
	require.Equal(t, int64(4096), cfg.Server.ReadLimit)
	require.True(t, cfg.Redis.Enabled)
	require.True(t, cfg.Push.Enabled)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("WSBIND_SERVER_WS_PATH", "/env")
	cfg, err := Load(writeConfig(t, "server:\n  ws_path: /file\n  addr: \":9100\"\n"))
	require.NoError(t, err)
	require.Equal(t, "/env", cfg.Server.WSPath)
	require.Equal(t, ":9100", cfg.Server.Addr)
}

func TestLoadRejectsMalformedEnvironment(t *testing.T) {
	t.Setenv("WSBIND_SESSIONS_TTL", "soon")
	_, err := Load("")
	require.Error(t, err)
}

func TestFromViperValidates(t *testing.T) {
	v := NewViper()
	v.Set("server.ws_path", "ws")
	_, err := FromViper(v)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"relative ws path", func(c *Config) { c.Server.WSPath = "ws" }},
		{"paths collide", func(c *Config) { c.Server.MetricsPath = "/ws" }},
		{"negative read limit", func(c *Config) { c.Server.ReadLimit = -1 }},
		{"bad rebind", func(c *Config) { c.Registry.Rebind = "overwrite" }},
		{"unknown store", func(c *Config) { c.Sessions.Store = "etcd" }},
		{"sqlite without path", func(c *Config) { c.Sessions.Store = StoreSQLite; c.Sessions.SQLitePath = "" }},
		{"negative idle", func(c *Config) { c.Sessions.IdleTimeout = -time.Second }},
		{"redis without group", func(c *Config) { c.Redis.Enabled = true; c.Redis.Group = "" }},
		{"push without topic", func(c *Config) { c.Push.Enabled = true; c.Push.Topic = " " }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
