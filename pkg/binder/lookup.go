package binder

import (
	"context"
)

// LookupByToken resolves token to the connection currently bound to its
// session. An unknown token, an unbound session and a failing session
// manager all yield (zero, false).
func (s *Server[C, S]) LookupByToken(ctx context.Context, token string) (conn C, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("recovered panic in token lookup")
			var zero C
			conn, ok = zero, false
		}
	}()

	if s.sessions == nil {
		return conn, false
	}
	sess, found, err := s.sessions.GetSessionByToken(ctx, token)
	if err != nil {
		s.logger.Warn().Err(err).Msg("session lookup failed")
		return conn, false
	}
	if !found {
		return conn, false
	}
	return s.registry.LookupConnection(sess)
}
