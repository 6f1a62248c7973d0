package session

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "wsbind:session:"

// RedisStore keeps records as JSON strings under prefix+token. A positive TTL
// is refreshed on every Save.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	closer func() error
}

var _ Store = &RedisStore{}

type RedisStoreOptions struct {
	Prefix string
	TTL    time.Duration
}

func NewRedisStore(client redis.Cmdable, opts RedisStoreOptions) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis session store: client is nil")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	s := &RedisStore{client: client, prefix: prefix, ttl: opts.TTL}
	if c, ok := client.(interface{ Close() error }); ok {
		s.closer = c.Close
	}
	return s, nil
}

func (s *RedisStore) key(token string) string {
	return s.prefix + strings.TrimSpace(token)
}

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	if s == nil || s.client == nil {
		return errors.New("redis session store: client is nil")
	}
	if strings.TrimSpace(rec.Token) == "" {
		return errors.New("redis session store: token is empty")
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "redis session store: marshal record")
	}
	if err := s.client.Set(ctx, s.key(rec.Token), b, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis session store: set")
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, token string) (Record, bool, error) {
	if s == nil || s.client == nil {
		return Record{}, false, errors.New("redis session store: client is nil")
	}
	if strings.TrimSpace(token) == "" {
		return Record{}, false, nil
	}
	b, err := s.client.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, errors.Wrap(err, "redis session store: get")
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, false, errors.Wrap(err, "redis session store: unmarshal record")
	}
	return rec, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if s == nil || s.client == nil {
		return errors.New("redis session store: client is nil")
	}
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil {
		return errors.Wrap(err, "redis session store: del")
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer()
}
