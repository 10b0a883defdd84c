package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Transport errors.
var (
	// ErrConnectionClosed is returned for operations on a closed socket.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrHandshakeRejected is returned when the server answers the upgrade
	// request with a non-101 status.
	ErrHandshakeRejected = errors.New("websocket handshake rejected")
)

// Close codes used by the client.
const (
	// CloseNormal is sent when the application closes the session.
	CloseNormal = 1000

	// CloseGoingAway is sent when the client shuts down.
	CloseGoingAway = 1001

	// CloseNoStatus is reported when the peer closed without a status code.
	CloseNoStatus = 1005

	// CloseAbnormal is reported when the socket dropped without a close frame.
	CloseAbnormal = 1006
)

// FrameKind distinguishes text and binary data frames.
type FrameKind uint8

const (
	// FrameText is a UTF-8 text frame.
	FrameText FrameKind = iota + 1

	// FrameBinary is a binary frame.
	FrameBinary
)

// String returns the frame kind name.
func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "TEXT"
	case FrameBinary:
		return "BINARY"
	default:
		return fmt.Sprintf("FRAME(%d)", k)
	}
}

// Frame is one WebSocket data frame.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// CloseError reports a close frame received from the peer, or an abnormal
// closure when the socket dropped without one.
type CloseError struct {
	Code   int
	Reason string
}

// Error implements error.
func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("websocket closed: %d", e.Code)
	}
	return fmt.Sprintf("websocket closed: %d %s", e.Code, e.Reason)
}

// Conn is an established client WebSocket.
//
// ReadFrame must be called from a single goroutine. The write methods are
// safe for concurrent use.
type Conn interface {
	// ReadFrame blocks until the next data frame arrives. Control frames are
	// handled internally; pongs are reported through the pong handler.
	ReadFrame() (Frame, error)

	// WriteFrame sends one data frame.
	WriteFrame(f Frame) error

	// WritePing sends a ping control frame with the given payload.
	WritePing(data []byte) error

	// WriteClose sends a close control frame. The socket stays open so that
	// the peer's close reply can still be read.
	WriteClose(code int, reason string) error

	// SetPongHandler installs the handler invoked from ReadFrame when a pong
	// arrives.
	SetPongHandler(h func(data []byte))

	// Close tears down the socket without a closing handshake.
	Close() error

	// RemoteAddr returns the peer's network address.
	RemoteAddr() net.Addr
}

// Dialer opens client connections.
type Dialer interface {
	// Dial performs the opening handshake against url. The context bounds
	// the whole handshake.
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// Compile-time interface satisfaction checks.
var (
	_ Dialer = (*WebSocketDialer)(nil)
	_ Dialer = DialerFunc(nil)
	_ Conn   = (*wsConn)(nil)
)
