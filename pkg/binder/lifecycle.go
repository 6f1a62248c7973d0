package binder

import (
	"context"
)

// OnOpen hands a freshly accepted connection to the application. The
// connection stays open even when the handler fails or binds nothing.
func (s *Server[C, S]) OnOpen(ctx context.Context, conn C, hs Handshake) {
	defer s.guard("open", conn)

	s.observer.ConnectionOpened()
	s.logger.Debug().
		Str("conn", describe(conn)).
		Str("handshake", hs.String()).
		Msg("connection opened")

	err := invoke(StageOpen, func() error {
		return s.handler.OnOpen(ctx, s, conn, hs)
	})
	if err != nil {
		s.observer.HandlerFailed(StageOpen)
		s.logger.Error().
			Err(err).
			Str("conn", describe(conn)).
			Str("handshake", hs.String()).
			Msg("open handler failed, connection left unbound")
		return
	}
	if _, ok := s.registry.LookupSession(conn); !ok {
		s.logger.Info().
			Str("conn", describe(conn)).
			Str("handshake", hs.String()).
			Msg("connection left unbound")
	}
}

// OnClose drops whatever binding conn holds. Calling it more than once for a
// connection is harmless.
func (s *Server[C, S]) OnClose(conn C, code int, reason string, remote bool) {
	defer s.guard("close", conn)

	desc := ""
	if sess, ok := s.registry.Unbind(conn); ok {
		desc = safeDescribe(sess)
	}
	s.observer.ConnectionClosed(remote)
	s.logger.Info().
		Str("conn", describe(conn)).
		Str("session", desc).
		Int("code", code).
		Str("reason", reason).
		Bool("remote", remote).
		Msg("connection closed")
}

// OnError only logs. The transport is expected to follow up with OnClose.
func (s *Server[C, S]) OnError(conn C, err error) {
	defer s.guard("error", conn)

	s.logger.Warn().
		Err(err).
		Str("conn", describe(conn)).
		Str("session", s.describeSession(conn)).
		Msg("connection error")
}

func (s *Server[C, S]) guard(event string, conn C) {
	if r := recover(); r != nil {
		s.logger.Error().
			Str("event", event).
			Str("conn", describe(conn)).
			Interface("panic", r).
			Msg("recovered panic in transport callback")
	}
}
