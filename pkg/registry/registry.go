// Package registry keeps the bidirectional association between live
// connections and the sessions bound to them.
//
// Both directions are stored in one structure guarded by a single lock, so a
// reader never observes a connection pointing at a session that points
// somewhere else.
package registry

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrSessionBound is returned by Bind under RejectRebind when the session is
// already bound to a different connection.
var ErrSessionBound = errors.New("session is already bound to another connection")

// RebindPolicy decides what Bind does when the session already has a
// connection.
type RebindPolicy int

const (
	// EvictPrevious removes the old binding and reports it to the caller.
	EvictPrevious RebindPolicy = iota
	// RejectRebind keeps the old binding and fails the new one.
	RejectRebind
)

func (p RebindPolicy) String() string {
	switch p {
	case EvictPrevious:
		return "evict"
	case RejectRebind:
		return "reject"
	default:
		return "unknown"
	}
}

// ParseRebindPolicy maps the config spelling onto a RebindPolicy.
func ParseRebindPolicy(s string) (RebindPolicy, error) {
	switch s {
	case "", "evict":
		return EvictPrevious, nil
	case "reject":
		return RejectRebind, nil
	default:
		return EvictPrevious, errors.Errorf("unknown rebind policy %q", s)
	}
}

// Outcome reports what Bind changed.
type Outcome int

const (
	// Unchanged means the pair was already bound.
	Unchanged Outcome = iota
	// Bound means a new binding was stored without evicting anyone.
	Bound
	// Rebound means a new binding was stored and the session's previous
	// connection was evicted.
	Rebound
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Bound:
		return "bound"
	case Rebound:
		return "rebound"
	default:
		return "unknown"
	}
}

// Binding is one (connection, session) pair.
type Binding[C comparable, S comparable] struct {
	Conn    C
	Session S
}

type Option func(*options)

type options struct {
	logger zerolog.Logger
	policy RebindPolicy
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithRebindPolicy(p RebindPolicy) Option {
	return func(o *options) { o.policy = p }
}

// Registry is safe for concurrent use. Critical sections never perform I/O or
// call back into user code.
type Registry[C comparable, S comparable] struct {
	mu        sync.RWMutex
	bySession map[S]C
	byConn    map[C]S
	policy    RebindPolicy
	logger    zerolog.Logger
}

func New[C comparable, S comparable](opts ...Option) *Registry[C, S] {
	o := options{logger: zerolog.Nop(), policy: EvictPrevious}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry[C, S]{
		bySession: map[S]C{},
		byConn:    map[C]S{},
		policy:    o.policy,
		logger:    o.logger.With().Str("component", "registry").Logger(),
	}
}

// Policy returns the rebind policy the registry was built with.
func (r *Registry[C, S]) Policy() RebindPolicy {
	return r.policy
}

// Bind associates conn with sess.
//
// Binding an already bound pair changes nothing and reports Unchanged. If
// conn was bound to another session, that session simply loses its
// connection. If sess was bound to another connection, the result depends on
// the rebind policy: under EvictPrevious the old binding is dropped and
// returned with Rebound; under RejectRebind ErrSessionBound is returned and
// nothing changes.
func (r *Registry[C, S]) Bind(conn C, sess S) (evicted Binding[C, S], outcome Outcome, err error) {
	r.mu.Lock()
	if cur, found := r.byConn[conn]; found && cur == sess {
		r.mu.Unlock()
		return evicted, Unchanged, nil
	}

	prevConn, sessionBound := r.bySession[sess]
	if sessionBound && r.policy == RejectRebind {
		r.mu.Unlock()
		return evicted, Unchanged, ErrSessionBound
	}

	if prevSess, found := r.byConn[conn]; found {
		delete(r.bySession, prevSess)
	}
	outcome = Bound
	if sessionBound {
		delete(r.byConn, prevConn)
		evicted = Binding[C, S]{Conn: prevConn, Session: sess}
		outcome = Rebound
	}
	r.byConn[conn] = sess
	r.bySession[sess] = conn
	r.mu.Unlock()

	if outcome == Rebound {
		r.logger.Warn().
			Str("session", describe(sess)).
			Str("evicted_conn", describe(prevConn)).
			Str("conn", describe(conn)).
			Msg("session rebound, previous connection evicted")
	}
	return evicted, outcome, nil
}

// LookupSession returns the session bound to conn.
func (r *Registry[C, S]) LookupSession(conn C) (S, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byConn[conn]
	return s, ok
}

// LookupConnection returns the connection bound to sess.
func (r *Registry[C, S]) LookupConnection(sess S) (C, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.bySession[sess]
	return c, ok
}

// Unbind removes any binding for conn and returns the session it held.
// Unbinding an unknown connection is a no-op.
func (r *Registry[C, S]) Unbind(conn C) (S, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byConn[conn]
	if !ok {
		return s, false
	}
	delete(r.byConn, conn)
	delete(r.bySession, s)
	return s, true
}

func (r *Registry[C, S]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

// Bindings returns a snapshot of all current bindings in no particular order.
func (r *Registry[C, S]) Bindings() []Binding[C, S] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]Binding[C, S], 0, len(r.byConn))
	for c, s := range r.byConn {
		ret = append(ret, Binding[C, S]{Conn: c, Session: s})
	}
	return ret
}

type describer interface {
	Describe() string
}

func describe(v any) string {
	if d, ok := v.(describer); ok {
		return d.Describe()
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}
