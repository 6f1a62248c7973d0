package wsgorilla

import (
	"sync"
)

// Pool tracks the live connections of a Handler so they can be counted and
// closed together on shutdown.
type Pool struct {
	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func NewPool() *Pool {
	return &Pool{conns: map[*Conn]struct{}{}}
}

func (p *Pool) Add(c *Conn) {
	if p == nil || c == nil {
		return
	}
	p.mu.Lock()
	p.conns[c] = struct{}{}
	p.mu.Unlock()
}

func (p *Pool) Remove(c *Conn) {
	if p == nil || c == nil {
		return
	}
	p.mu.Lock()
	delete(p.conns, c)
	p.mu.Unlock()
}

func (p *Pool) Count() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Snapshot returns the current connections in no particular order.
func (p *Pool) Snapshot() []*Conn {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ret := make([]*Conn, 0, len(p.conns))
	for c := range p.conns {
		ret = append(ret, c)
	}
	return ret
}

// CloseAll sends a close frame to every connection. Connections leave the
// pool once their read loop has finished.
func (p *Pool) CloseAll(code int, reason string) {
	for _, c := range p.Snapshot() {
		_ = c.CloseWith(code, reason)
	}
}
