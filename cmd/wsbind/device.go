package main

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/wsbind/pkg/binder"
	"github.com/go-go-golems/wsbind/pkg/envelope"
	"github.com/go-go-golems/wsbind/pkg/session"
)

const tokenCookie = "token"

const (
	errCodeUnauthenticated = 401
	errCodeMethodNotFound  = 404
	errCodeInvalidParams   = 422
)

// replier is what the device handler needs from a connection.
type replier interface {
	comparable
	WriteJSON(v any) error
}

type replyError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// reply mirrors the request's id and device so clients can correlate it.
type reply struct {
	ID     []any       `json:"id,omitempty"`
	Device string      `json:"device,omitempty"`
	Result any         `json:"result,omitempty"`
	Error  *replyError `json:"error,omitempty"`
}

type authenticateRequest struct {
	Params struct {
		Token string `json:"token"`
	} `json:"params"`
}

// deviceHandler is a small device-control protocol: clients authenticate with
// a session token (cookie or "authenticate" request) and query values per
// device.
type deviceHandler[C replier] struct {
	sessions session.Manager[*session.Session]
	logger   zerolog.Logger
	now      func() time.Time
}

func newDeviceHandler[C replier](sessions session.Manager[*session.Session], logger zerolog.Logger) *deviceHandler[C] {
	return &deviceHandler[C]{
		sessions: sessions,
		logger:   logger.With().Str("component", "device").Logger(),
		now:      time.Now,
	}
}

func (h *deviceHandler[C]) OnOpen(ctx context.Context, b binder.Binder[C, *session.Session], conn C, hs binder.Handshake) error {
	token, ok := hs.Cookie(tokenCookie)
	if !ok || strings.TrimSpace(token) == "" {
		return nil
	}
	sess, found, err := h.sessions.GetSessionByToken(ctx, token)
	if err != nil {
		return errors.Wrap(err, "resolve cookie token")
	}
	if !found {
		return errors.New("cookie token does not match a session")
	}
	return b.Bind(conn, sess)
}

func (h *deviceHandler[C]) OnMessage(ctx context.Context, b binder.Binder[C, *session.Session], conn C, env *envelope.Envelope) error {
	if env.Method() == "authenticate" {
		return h.authenticate(ctx, b, conn, env)
	}

	sess, ok := b.LookupSession(conn)
	if !ok {
		return h.fail(conn, env, errCodeUnauthenticated, "unauthenticated")
	}
	sess.Touch(h.now())

	switch env.Method() {
	case "getValues":
		return h.send(conn, env, map[string]any{
			"device":    env.Device,
			"user":      sess.Data.UserID,
			"timestamp": h.now().UnixMilli(),
		})
	case "getSession":
		return h.send(conn, env, sess.Data)
	default:
		return h.fail(conn, env, errCodeMethodNotFound, "method not found: "+env.Method())
	}
}

func (h *deviceHandler[C]) authenticate(ctx context.Context, b binder.Binder[C, *session.Session], conn C, env *envelope.Envelope) error {
	var req authenticateRequest
	if err := env.Decode(&req); err != nil || strings.TrimSpace(req.Params.Token) == "" {
		return h.fail(conn, env, errCodeInvalidParams, "params.token is required")
	}
	sess, found, err := h.sessions.GetSessionByToken(ctx, req.Params.Token)
	if err != nil {
		return errors.Wrap(err, "resolve token")
	}
	if !found {
		return h.fail(conn, env, errCodeUnauthenticated, "unknown token")
	}
	if err := b.Bind(conn, sess); err != nil {
		return h.fail(conn, env, errCodeUnauthenticated, "session is in use")
	}
	h.logger.Info().Str("session", sess.Describe()).Msg("client authenticated")
	return h.send(conn, env, sess.Data)
}

func (h *deviceHandler[C]) send(conn C, env *envelope.Envelope, result any) error {
	return conn.WriteJSON(reply{ID: env.ID, Device: env.Device, Result: result})
}

func (h *deviceHandler[C]) fail(conn C, env *envelope.Envelope, code int, msg string) error {
	return conn.WriteJSON(reply{ID: env.ID, Device: env.Device, Error: &replyError{Code: code, Message: msg}})
}
