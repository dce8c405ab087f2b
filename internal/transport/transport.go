// Package transport abstracts the persistent full-duplex socket the
// forwarder speaks to the external hive-writer process over. The original
// wire used ZeroMQ, for which no Go client exists anywhere in this
// codebase's dependency corpus; the concrete binding here is
// gorilla/websocket instead, grounded on services/crypto-stream's dial/
// reconnect/read loop (the one file in this codebase that genuinely talks
// websockets).
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrRecvTimeout is returned by Recv when no frame arrived before the
// deadline; callers treat it as "nothing pending right now", not a failure.
var ErrRecvTimeout = errors.New("transport: recv timeout")

// ErrClosed is returned by Send/Recv once the connection has been closed.
var ErrClosed = errors.New("transport: closed")

// Conn is a single connected, message-framed duplex socket. Each Send/Recv
// call carries one complete binary frame (the codec.Envelope wire bytes);
// Conn never splits or coalesces frames.
type Conn interface {
	Send(b []byte) error
	// Recv blocks for at most timeout waiting for one frame. It returns
	// ErrRecvTimeout, not an error wrapping it, when the deadline elapses
	// with nothing pending.
	Recv(timeout time.Duration) ([]byte, error)
	Close() error
}

// Dialer opens a new Conn to addr. Implementations must be safe to call
// repeatedly from a reconnect loop.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}
