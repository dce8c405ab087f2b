package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSDialer dials the hive-writer over a websocket connection using
// websocket.DefaultDialer, the same construct services/crypto-stream's
// runWS uses to reach Binance.
type WSDialer struct{}

func (WSDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	url := addr
	if !hasScheme(url) {
		url = "ws://" + url
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return &wsConn{conn: conn}, nil
}

func hasScheme(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ':':
			return i > 0
		case '/':
			return false
		}
	}
	return false
}

// wsConn wraps *websocket.Conn to satisfy Conn. gorilla/websocket permits
// one concurrent reader and one concurrent writer, which matches the
// forwarder's pattern of interleaving a Recv call between Send calls on the
// same connection without ever reading or writing from two goroutines at
// once; writeMu/closeMu exist only to make Close safe to call concurrently
// with an in-flight Send or Recv.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

func (c *wsConn) Send(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

func (c *wsConn) Recv(timeout time.Duration) ([]byte, error) {
	c.closeMu.Lock()
	closed := c.closed
	c.closeMu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("transport: set read deadline: %w", err)
	}
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
			return nil, ErrRecvTimeout
		}
		return nil, fmt.Errorf("transport: recv: %w", err)
	}
	return msg, nil
}

func (c *wsConn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.writeMu.Lock()
	c.closed = true
	c.writeMu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
