// Package wsgorilla adapts gorilla/websocket connections to the binder event
// callbacks.
package wsgorilla

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// CloseSessionEvicted is sent to a connection whose session was rebound to a
// newer connection.
const CloseSessionEvicted = 4000

const defaultWriteTimeout = 5 * time.Second

// Conn is the connection handle seen by the binder. It is compared by pointer.
type Conn struct {
	id     string
	ws     *websocket.Conn
	remote string

	writeMu      sync.Mutex
	writeTimeout time.Duration

	closeMu     sync.Mutex
	closed      bool
	closeCode   int
	closeReason string
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Conn{
		id:           uuid.NewString(),
		ws:           ws,
		remote:       ws.RemoteAddr().String(),
		writeTimeout: writeTimeout,
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) RemoteAddr() string { return c.remote }

func (c *Conn) String() string {
	if c == nil {
		return ""
	}
	return c.id[:8] + "@" + c.remote
}

// WriteText sends data as one text frame. Writes are serialized per
// connection.
func (c *Conn) WriteText(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return errors.Wrap(err, "set write deadline")
	}
	return errors.Wrap(c.ws.WriteMessage(websocket.TextMessage, data), "write text frame")
}

func (c *Conn) WriteJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal frame")
	}
	return c.WriteText(b)
}

// CloseWith sends a close frame with code and reason and tears the socket
// down. The read loop then reports a local close with the same code. Only the
// first call has an effect.
func (c *Conn) CloseWith(code int, reason string) error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	c.closeMu.Unlock()

	c.writeMu.Lock()
	werr := c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(c.writeTimeout),
	)
	c.writeMu.Unlock()

	cerr := c.ws.Close()
	if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		return errors.Wrap(werr, "write close frame")
	}
	return errors.Wrap(cerr, "close socket")
}

func (c *Conn) Close() error {
	return c.CloseWith(websocket.CloseNormalClosure, "")
}

// localClose reports the code and reason of a close started by CloseWith.
func (c *Conn) localClose() (int, string, bool) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closeCode, c.closeReason, c.closed
}
