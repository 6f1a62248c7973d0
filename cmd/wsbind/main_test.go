package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/wsbind/pkg/config"
)

func TestSessionCreateWithSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	t.Setenv("WSBIND_SESSIONS_STORE", "sqlite")
	t.Setenv("WSBIND_SESSIONS_SQLITE_PATH", dbPath)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"session", "create", "--user", "alice", "--role", "owner", "--attr", "edge=fems1"})
	require.NoError(t, cmd.Execute())

	token := strings.TrimSpace(out.String())
	require.NotEmpty(t, token)

	cmd = newRootCmd()
	cmd.SetArgs([]string{"session", "delete", token})
	require.NoError(t, cmd.Execute())
}

func TestSessionCreateRequiresUser(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"session", "create"})
	require.Error(t, cmd.Execute())
}

func TestPushRequiresRedis(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"push", "--token", "t", "--payload", "{}"})
	err := cmd.Execute()
	require.ErrorContains(t, err, "redis.enabled")
}

func TestRootCommandHasLoggingAndConfigFlags(t *testing.T) {
	cmd := newRootCmd()
	require.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestConfigCommandPrintsEffectiveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsbind.yaml")
	require.NoError(t, os.WriteFile(path, []byte("registry:\n  rebind: reject\n"), 0o600))
	t.Setenv("WSBIND_SERVER_ADDR", ":9999")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "--config", path})
	require.NoError(t, cmd.Execute())

	var got config.Config
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	require.Equal(t, ":9999", got.Server.Addr)
	require.Equal(t, "reject", got.Registry.Rebind)
	require.Equal(t, config.StoreMemory, got.Sessions.Store)
	require.Equal(t, 24*time.Hour, got.Sessions.TTL)
}

func TestConfigCommandRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsbind.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sever:\n  addr: \":1\"\n"), 0o600))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"config", "--config", path})
	require.Error(t, cmd.Execute())
}
