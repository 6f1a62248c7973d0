package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type SessionsOptions struct {
	// Store defaults to a MemoryStore.
	Store  Store
	Logger zerolog.Logger
	// Now is overridable for tests.
	Now func() time.Time
}

// Sessions is the reference Manager. It caches live *Session values so that
// every lookup of a token returns the same pointer, and falls back to the
// store for tokens minted before a restart.
type Sessions struct {
	mu    sync.Mutex
	cache map[string]*Session
	store Store

	logger zerolog.Logger
	now    func() time.Time

	// busy reports sessions that must stay cached (typically: currently bound).
	busy func(*Session) bool

	evictIdle     time.Duration
	evictInterval time.Duration
	evictRunning  bool
}

var _ Manager[*Session] = &Sessions{}

func NewSessions(opts SessionsOptions) *Sessions {
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Sessions{
		cache:  map[string]*Session{},
		store:  store,
		logger: opts.Logger.With().Str("component", "session").Logger(),
		now:    now,
	}
}

// SetBusyFunc installs the predicate consulted by idle eviction. It is called
// with the cache lock held.
func (m *Sessions) SetBusyFunc(f func(*Session) bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.busy = f
	m.mu.Unlock()
}

// Create mints a new token, persists the session and caches it.
func (m *Sessions) Create(ctx context.Context, data Data) (*Session, error) {
	if m == nil {
		return nil, errors.New("sessions is nil")
	}
	if strings.TrimSpace(data.UserID) == "" {
		return nil, errors.New("session user id is empty")
	}
	s := New(uuid.NewString(), data, m.now())
	if err := m.store.Save(ctx, s.Record()); err != nil {
		return nil, errors.Wrap(err, "save session")
	}
	m.mu.Lock()
	m.cache[s.Token()] = s
	m.mu.Unlock()

	m.logger.Info().Str("session", s.Describe()).Msg("session created")
	return s, nil
}

// GetSessionByToken returns the cached session or restores it from the store.
func (m *Sessions) GetSessionByToken(ctx context.Context, token string) (*Session, bool, error) {
	if m == nil {
		return nil, false, nil
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, false, nil
	}

	m.mu.Lock()
	s, ok := m.cache[token]
	if ok {
		s.Touch(m.now())
	}
	m.mu.Unlock()
	if ok {
		return s, true, nil
	}

	rec, found, err := m.store.Load(ctx, token)
	if err != nil {
		return nil, false, errors.Wrap(err, "load session")
	}
	if !found {
		return nil, false, nil
	}

	restored := FromRecord(rec)
	m.mu.Lock()
	// another goroutine may have restored the same token meanwhile
	if existing, ok := m.cache[token]; ok {
		existing.Touch(m.now())
		m.mu.Unlock()
		return existing, true, nil
	}
	restored.Touch(m.now())
	m.cache[token] = restored
	m.mu.Unlock()

	m.logger.Debug().Str("session", restored.Describe()).Msg("session restored from store")
	return restored, true, nil
}

// Remove deletes the session from cache and store.
func (m *Sessions) Remove(ctx context.Context, token string) error {
	if m == nil {
		return nil
	}
	token = strings.TrimSpace(token)
	m.mu.Lock()
	delete(m.cache, token)
	m.mu.Unlock()
	if err := m.store.Delete(ctx, token); err != nil {
		return errors.Wrap(err, "delete session")
	}
	return nil
}

// Cached returns the number of sessions currently held in memory.
func (m *Sessions) Cached() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}

func (m *Sessions) Close() error {
	if m == nil || m.store == nil {
		return nil
	}
	return m.store.Close()
}
