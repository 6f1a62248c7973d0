package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Load(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.Error(t, s.Save(ctx, Record{Token: " "}))

	rec := Record{
		Token:     "t1",
		Data:      Data{UserID: "alice", Role: "owner", Attributes: map[string]string{"edge": "fems1"}},
		CreatedAt: time.UnixMilli(1700000000000),
	}
	require.NoError(t, s.Save(ctx, rec))

	got, ok, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec.Token, got.Token)
	require.Equal(t, rec.Data, got.Data)
	require.True(t, rec.CreatedAt.Equal(got.CreatedAt))

	rec.Data.Role = "admin"
	require.NoError(t, s.Save(ctx, rec))
	got, ok, err = s.Load(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "admin", got.Data.Role)

	require.NoError(t, s.Delete(ctx, "t1"))
	_, ok, err = s.Load(ctx, "t1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Delete(ctx, "t1"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)

	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseStore(t, s)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)

	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), Record{Token: "t1", Data: Data{UserID: "u"}}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	got, ok, err := s.Load(context.Background(), "t1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "u", got.Data.UserID)
}

func TestSQLiteStoreRejectsEmptyDSN(t *testing.T) {
	_, err := NewSQLiteStore("")
	require.ErrorContains(t, err, "empty dsn")

	_, err = SQLiteDSNForFile("")
	require.ErrorContains(t, err, "empty path")
}

func TestRedisStoreValidation(t *testing.T) {
	_, err := NewRedisStore(nil, RedisStoreOptions{})
	require.ErrorContains(t, err, "client is nil")

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	s, err := NewRedisStore(client, RedisStoreOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.Equal(t, DefaultRedisPrefix+"t1", s.key(" t1 "))
	require.ErrorContains(t, s.Save(context.Background(), Record{}), "token is empty")

	_, ok, err := s.Load(context.Background(), "")
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = s.Load(context.Background(), "t1")
	require.Error(t, err)
}
