package wsgorilla

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/wsbind/pkg/binder"
)

// Events receives the lifecycle of every accepted connection. Callbacks for
// one connection are never concurrent. *binder.Server[*Conn, S] implements
// it.
type Events interface {
	OnOpen(ctx context.Context, conn *Conn, hs binder.Handshake)
	OnMessage(ctx context.Context, conn *Conn, raw string)
	OnClose(conn *Conn, code int, reason string, remote bool)
	OnError(conn *Conn, err error)
}

type Option func(*Handler)

func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithReadLimit caps the size of one inbound message. Zero keeps gorilla's
// default (no limit).
func WithReadLimit(n int64) Option {
	return func(h *Handler) { h.readLimit = n }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(h *Handler) { h.writeTimeout = d }
}

// WithCheckOrigin restricts upgrades to the listed origins. An empty list or
// "*" accepts everything. Requests without an Origin header are accepted.
func WithCheckOrigin(allowed []string) Option {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = originChecker(allowed)
	}
}

// WithUpgrader replaces the upgrader. A nil CheckOrigin keeps the current
// one.
func WithUpgrader(u websocket.Upgrader) Option {
	return func(h *Handler) {
		check := h.upgrader.CheckOrigin
		h.upgrader = u
		if h.upgrader.CheckOrigin == nil {
			h.upgrader.CheckOrigin = check
		}
	}
}

// Handler upgrades HTTP requests and runs one read loop per connection on
// the serving goroutine.
type Handler struct {
	events       Events
	pool         *Pool
	upgrader     websocket.Upgrader
	readLimit    int64
	writeTimeout time.Duration
	logger       zerolog.Logger
}

var _ http.Handler = (*Handler)(nil)

func NewHandler(events Events, opts ...Option) (*Handler, error) {
	if events == nil {
		return nil, errors.New("wsgorilla: events is nil")
	}
	h := &Handler{
		events: events,
		pool:   NewPool(),
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(nil),
		},
		writeTimeout: defaultWriteTimeout,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With().Str("component", "wsgorilla").Logger()
	return h, nil
}

// Pool exposes the live connections.
func (h *Handler) Pool() *Pool { return h.pool }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	if h.readLimit > 0 {
		ws.SetReadLimit(h.readLimit)
	}

	conn := newConn(ws, h.writeTimeout)
	h.pool.Add(conn)
	defer h.pool.Remove(conn)

	ctx := r.Context()
	h.events.OnOpen(ctx, conn, binder.Handshake{
		RemoteAddr: conn.RemoteAddr(),
		Path:       r.URL.Path,
		Header:     r.Header.Clone(),
	})
	h.readLoop(ctx, conn)
}

func (h *Handler) readLoop(ctx context.Context, conn *Conn) {
	for {
		msgType, data, err := conn.ws.ReadMessage()
		if err != nil {
			h.finish(conn, err)
			return
		}
		switch msgType {
		case websocket.TextMessage:
			h.events.OnMessage(ctx, conn, string(data))
		default:
			h.logger.Debug().
				Str("conn", conn.String()).
				Int("type", msgType).
				Int("bytes", len(data)).
				Msg("ignoring non-text frame")
		}
	}
}

// finish maps the error that ended the read loop onto OnClose, preceded by
// OnError when the socket failed without a close handshake.
func (h *Handler) finish(conn *Conn, err error) {
	defer func() { _ = conn.ws.Close() }()

	if code, reason, ok := conn.localClose(); ok {
		h.events.OnClose(conn, code, reason, false)
		return
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
		h.events.OnClose(conn, ce.Code, ce.Text, true)
		return
	}

	h.events.OnError(conn, err)
	h.events.OnClose(conn, websocket.CloseAbnormalClosure, err.Error(), true)
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := map[string]struct{}{}
	for _, a := range allowed {
		a = strings.TrimSpace(strings.ToLower(a))
		if a == "*" {
			return func(*http.Request) bool { return true }
		}
		if a != "" {
			set[strings.TrimRight(a, "/")] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
