package session

import (
	"context"
	"time"
)

// SetEvictionConfig configures how long an unused session stays cached and
// how often the eviction loop runs. Evicted sessions stay in the store.
func (m *Sessions) SetEvictionConfig(idle, interval time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.evictIdle = idle
	m.evictInterval = interval
	m.mu.Unlock()
}

func (m *Sessions) StartEvictionLoop(ctx context.Context) {
	if m == nil {
		return
	}
	if ctx == nil {
		panic("session: StartEvictionLoop requires non-nil ctx")
	}
	m.mu.Lock()
	if m.evictRunning {
		m.mu.Unlock()
		return
	}
	idle := m.evictIdle
	interval := m.evictInterval
	if idle <= 0 || interval <= 0 {
		m.mu.Unlock()
		return
	}
	m.evictRunning = true
	m.mu.Unlock()

	go m.runEvictionLoop(ctx, interval)
}

func (m *Sessions) runEvictionLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.evictRunning = false
			m.mu.Unlock()
			return
		case now := <-ticker.C:
			if n := m.evictIdleOnce(now); n > 0 {
				m.logger.Debug().Int("evicted", n).Msg("evicted idle sessions from cache")
			}
		}
	}
}

// evictIdleOnce drops idle, non-busy sessions from the cache. The final
// decision is taken under m.mu, which GetSessionByToken also holds while it
// touches a cached session, so a session handed out to a caller is never
// evicted behind its back. busy is called with m.mu held and must not call
// back into Sessions.
func (m *Sessions) evictIdleOnce(now time.Time) int {
	if m == nil {
		return 0
	}
	if now.IsZero() {
		now = m.now()
	}

	m.mu.Lock()
	idle := m.evictIdle
	busy := m.busy
	if idle <= 0 {
		m.mu.Unlock()
		return 0
	}
	candidates := make([]*Session, 0, len(m.cache))
	for _, s := range m.cache {
		candidates = append(candidates, s)
	}
	m.mu.Unlock()

	evicted := 0
	for _, s := range candidates {
		if !shouldEvictSession(now, idle, s, busy) {
			continue
		}
		m.mu.Lock()
		// the session may have been handed out or bound since the first check
		current, ok := m.cache[s.Token()]
		if ok && current == s && shouldEvictSession(now, idle, current, busy) {
			delete(m.cache, s.Token())
			evicted++
		}
		m.mu.Unlock()
	}
	return evicted
}

func shouldEvictSession(now time.Time, idle time.Duration, s *Session, busy func(*Session) bool) bool {
	if s == nil {
		return false
	}
	if busy != nil && busy(s) {
		return false
	}
	last := s.LastActivity()
	if last.IsZero() {
		return false
	}
	return now.Sub(last) >= idle
}
