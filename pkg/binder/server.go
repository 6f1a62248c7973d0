package binder

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-go-golems/wsbind/pkg/registry"
	"github.com/go-go-golems/wsbind/pkg/session"
)

const tracerName = "github.com/go-go-golems/wsbind/pkg/binder"

type Option[C comparable, S Session] func(*Server[C, S])

func WithLogger[C comparable, S Session](logger zerolog.Logger) Option[C, S] {
	return func(s *Server[C, S]) { s.logger = logger }
}

func WithObserver[C comparable, S Session](o Observer) Option[C, S] {
	return func(s *Server[C, S]) {
		if o != nil {
			s.observer = o
		}
	}
}

func WithTracer[C comparable, S Session](t trace.Tracer) Option[C, S] {
	return func(s *Server[C, S]) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithRebindPolicy[C comparable, S Session](p registry.RebindPolicy) Option[C, S] {
	return func(s *Server[C, S]) { s.policy = p }
}

// WithEvictHandler is called after a rebind evicted conn from sess. It runs
// outside the registry lock on the goroutine that called Bind.
func WithEvictHandler[C comparable, S Session](f func(conn C, sess S)) Option[C, S] {
	return func(s *Server[C, S]) { s.onEvict = f }
}

// Server implements the lifecycle and dispatch side of the binding layer.
// Its On* methods are meant to be called by a transport adapter and never
// panic or return errors.
type Server[C comparable, S Session] struct {
	handler  Handler[C, S]
	sessions session.Manager[S]
	registry *registry.Registry[C, S]

	policy   registry.RebindPolicy
	logger   zerolog.Logger
	observer Observer
	tracer   trace.Tracer
	onEvict  func(C, S)
}

var _ Binder[string, *session.Session] = (*Server[string, *session.Session])(nil)

func New[C comparable, S Session](handler Handler[C, S], sessions session.Manager[S], opts ...Option[C, S]) (*Server[C, S], error) {
	if handler == nil {
		return nil, errors.New("binder: handler is nil")
	}
	s := &Server[C, S]{
		handler:  handler,
		sessions: sessions,
		policy:   registry.EvictPrevious,
		logger:   zerolog.Nop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	s.registry = registry.New[C, S](
		registry.WithLogger(s.logger),
		registry.WithRebindPolicy(s.policy),
	)
	s.logger = s.logger.With().Str("component", "binder").Logger()
	return s, nil
}

// Bind associates conn with sess. Under the reject policy a session that is
// already bound elsewhere yields registry.ErrSessionBound.
func (s *Server[C, S]) Bind(conn C, sess S) error {
	evicted, outcome, err := s.registry.Bind(conn, sess)
	if err != nil {
		s.logger.Warn().
			Str("conn", describe(conn)).
			Str("session", safeDescribe(sess)).
			Err(err).
			Msg("bind rejected")
		return errors.Wrap(err, "bind")
	}
	if outcome == registry.Unchanged {
		return nil
	}
	s.observer.SessionBound(outcome == registry.Rebound)
	s.logger.Info().
		Str("conn", describe(conn)).
		Str("session", safeDescribe(sess)).
		Msg("session bound")
	if outcome == registry.Rebound && s.onEvict != nil {
		s.notifyEvicted(evicted.Conn, evicted.Session)
	}
	return nil
}

func (s *Server[C, S]) notifyEvicted(conn C, sess S) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("conn", describe(conn)).
				Interface("panic", r).
				Msg("evict handler panicked")
		}
	}()
	s.onEvict(conn, sess)
}

func (s *Server[C, S]) LookupSession(conn C) (S, bool) {
	return s.registry.LookupSession(conn)
}

func (s *Server[C, S]) LookupConnection(sess S) (C, bool) {
	return s.registry.LookupConnection(sess)
}

// Bound returns the number of bound connections.
func (s *Server[C, S]) Bound() int {
	return s.registry.Len()
}

func (s *Server[C, S]) Bindings() []registry.Binding[C, S] {
	return s.registry.Bindings()
}

func (s *Server[C, S]) Policy() registry.RebindPolicy {
	return s.policy
}

// describeSession returns "" when conn has no session.
func (s *Server[C, S]) describeSession(conn C) string {
	sess, ok := s.registry.LookupSession(conn)
	if !ok {
		return ""
	}
	return safeDescribe(sess)
}

func safeDescribe[S Session](sess S) (ret string) {
	defer func() {
		if r := recover(); r != nil {
			ret = fmt.Sprintf("<describe panicked: %v>", r)
		}
	}()
	return sess.Describe()
}

func describe(v any) string {
	if st, ok := v.(fmt.Stringer); ok {
		return st.String()
	}
	return fmt.Sprintf("%v", v)
}
