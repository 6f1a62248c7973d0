package session

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Store persists session records. Implementations must be safe for
// concurrent use.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, token string) (Record, bool, error)
	Delete(ctx context.Context, token string) error
	Close() error
}

type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}}
}

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	if s == nil {
		return errors.New("memory session store: store is nil")
	}
	rec.Token = strings.TrimSpace(rec.Token)
	if rec.Token == "" {
		return errors.New("memory session store: token is empty")
	}
	s.mu.Lock()
	s.records[rec.Token] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, token string) (Record, bool, error) {
	if s == nil {
		return Record{}, false, errors.New("memory session store: store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[strings.TrimSpace(token)]
	return rec, ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	if s == nil {
		return errors.New("memory session store: store is nil")
	}
	s.mu.Lock()
	delete(s.records, strings.TrimSpace(token))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
