// Package binder ties transport events to sessions. It owns the
// connection/session registry, decodes inbound envelopes and keeps
// application handler failures from reaching the transport.
package binder

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-go-golems/wsbind/pkg/cookie"
	"github.com/go-go-golems/wsbind/pkg/envelope"
)

// Session is the capability the binder needs from an application session.
// Sessions are compared by identity, so pointer types are the usual choice.
type Session interface {
	comparable
	Describe() string
}

// Handshake carries what the transport learned while accepting a connection.
type Handshake struct {
	RemoteAddr string
	Path       string
	Header     http.Header
}

// Cookies parses every Cookie header of the handshake.
func (h Handshake) Cookies() map[string]string {
	return cookie.FromHeader(h.Header)
}

// Cookie returns a single cookie value.
func (h Handshake) Cookie(name string) (string, bool) {
	v, ok := h.Cookies()[name]
	return v, ok
}

func (h Handshake) String() string {
	return fmt.Sprintf("remote=%s path=%s", h.RemoteAddr, h.Path)
}

// Binder is the view of the server handed to application handlers.
type Binder[C comparable, S Session] interface {
	Bind(conn C, sess S) error
	LookupSession(conn C) (S, bool)
}

// Handler is implemented by the application. Returned errors and panics are
// logged by the server and never reach the transport.
type Handler[C comparable, S Session] interface {
	// OnOpen decides whether and to which session conn gets bound.
	OnOpen(ctx context.Context, b Binder[C, S], conn C, hs Handshake) error
	OnMessage(ctx context.Context, b Binder[C, S], conn C, env *envelope.Envelope) error
}

// HandlerFuncs adapts plain functions to Handler. Nil funcs are no-ops.
type HandlerFuncs[C comparable, S Session] struct {
	Open    func(ctx context.Context, b Binder[C, S], conn C, hs Handshake) error
	Message func(ctx context.Context, b Binder[C, S], conn C, env *envelope.Envelope) error
}

func (f HandlerFuncs[C, S]) OnOpen(ctx context.Context, b Binder[C, S], conn C, hs Handshake) error {
	if f.Open == nil {
		return nil
	}
	return f.Open(ctx, b, conn, hs)
}

func (f HandlerFuncs[C, S]) OnMessage(ctx context.Context, b Binder[C, S], conn C, env *envelope.Envelope) error {
	if f.Message == nil {
		return nil
	}
	return f.Message(ctx, b, conn, env)
}
