// ABOUTME: Adapts a gorilla websocket connection to the relay's channel type.
// ABOUTME: Serializes writes and makes close idempotent with a close frame.

package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harmonia-bot/dashboard/internal/relay"
)

const (
	writeTimeout = 10 * time.Second

	// maxFrameSize bounds one inbound frame. Relay envelopes are small;
	// anything near this size is a misbehaving client.
	maxFrameSize = 1 << 20
)

// wsConn wraps a websocket connection as a relay.Conn. Reads stay
// single-threaded (one receive loop per connection); writes can come from
// any dispatch path and are serialized here.
type wsConn struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newWSConn(conn *websocket.Conn) *wsConn {
	conn.SetReadLimit(maxFrameSize)
	return &wsConn{conn: conn}
}

var _ relay.Conn = (*wsConn)(nil)

// ReadMessage blocks for the next frame payload.
func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	return data, err
}

// WriteEnvelope sends one envelope as a JSON text frame.
func (w *wsConn) WriteEnvelope(env relay.Envelope) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteJSON(env)
}

// Close sends a close frame with the given code and reason, then tears
// down the underlying connection. Subsequent calls return the first
// result.
func (w *wsConn) Close(code int, reason string) error {
	w.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		w.writeMu.Lock()
		_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		w.writeMu.Unlock()
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}
