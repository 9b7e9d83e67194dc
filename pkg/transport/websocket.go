package transport

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"golang.org/x/net/websocket"
)

// WebSocket is a Transport over a websocket serial bridge. Each binary
// message carries a slice of the byte stream.
type WebSocket struct {
	conn *websocket.Conn
	buf  []byte
}

// OpenWebSocket dials a websocket bridge.
func OpenWebSocket(wsURL string) (*WebSocket, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", wsURL, err)
	}
	origin := "http://" + u.Host
	if u.Scheme == "wss" {
		origin = "https://" + u.Host
	}
	conn, err := websocket.Dial(wsURL, "", origin)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	return NewWebSocket(conn), nil
}

// NewWebSocket wraps an established websocket, e.g. one accepted by a
// websocket.Handler.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	conn.PayloadType = websocket.BinaryFrame
	return &WebSocket{conn: conn}
}

// Read implements Transport.
func (w *WebSocket) Read(p []byte, timeout time.Duration) (int, error) {
	if len(w.buf) > 0 {
		n := copy(p, w.buf)
		w.buf = w.buf[n:]
		return n, nil
	}
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := w.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	var msg []byte
	if err := websocket.Message.Receive(w.conn, &msg); err != nil {
		if isTimeout(err) {
			return 0, nil
		}
		return 0, err
	}
	n := copy(p, msg)
	w.buf = msg[n:]
	return n, nil
}

// Write implements Transport.
func (w *WebSocket) Write(p []byte) (int, error) {
	if err := websocket.Message.Send(w.conn, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush implements Transport.
func (w *WebSocket) Flush() error {
	w.buf = nil
	return nil
}

// Close implements Transport.
func (w *WebSocket) Close() error {
	return w.conn.Close()
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
