package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket dialer defaults.
const (
	// DefaultHandshakeTimeout bounds the opening handshake.
	DefaultHandshakeTimeout = 5 * time.Second

	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultReadLimit is the maximum accepted message size (1 MiB).
	DefaultReadLimit = 1 << 20
)

// WebSocketDialer dials ws:// and wss:// endpoints using gorilla/websocket.
type WebSocketDialer struct {
	// HandshakeTimeout bounds the opening handshake. Zero uses the default.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each frame write. Zero uses the default.
	WriteTimeout time.Duration

	// ReadLimit caps inbound message size. Zero uses the default.
	ReadLimit int64

	// TLSConfig is used for wss:// URLs. Nil uses the system roots.
	TLSConfig *tls.Config

	// Header is sent with the upgrade request.
	Header http.Header
}

// NewWebSocketDialer returns a dialer with default timeouts.
func NewWebSocketDialer() *WebSocketDialer {
	return &WebSocketDialer{
		HandshakeTimeout: DefaultHandshakeTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		ReadLimit:        DefaultReadLimit,
	}
}

// Dial performs the opening handshake.
func (d *WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	handshake := d.HandshakeTimeout
	if handshake <= 0 {
		handshake = DefaultHandshakeTimeout
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshake,
		TLSClientConfig:  d.TLSConfig,
	}

	ws, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			if errors.Is(err, websocket.ErrBadHandshake) {
				return nil, fmt.Errorf("%w: %s", ErrHandshakeRejected, resp.Status)
			}
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	limit := d.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	ws.SetReadLimit(limit)

	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}

	return newWSConn(ws, writeTimeout), nil
}

// wsConn wraps a gorilla connection. gorilla allows one concurrent writer
// for data frames; control frames go through WriteControl which is safe to
// call alongside it.
type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func newWSConn(ws *websocket.Conn, writeTimeout time.Duration) *wsConn {
	return &wsConn{ws: ws, writeTimeout: writeTimeout}
}

// ReadFrame reads the next data frame.
func (c *wsConn) ReadFrame() (Frame, error) {
	messageType, data, err := c.ws.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return Frame{}, &CloseError{Code: ce.Code, Reason: ce.Text}
		}
		if errors.Is(err, net.ErrClosed) {
			return Frame{}, ErrConnectionClosed
		}
		return Frame{}, err
	}

	switch messageType {
	case websocket.TextMessage:
		return Frame{Kind: FrameText, Data: data}, nil
	default:
		return Frame{Kind: FrameBinary, Data: data}, nil
	}
}

// WriteFrame writes a data frame.
func (c *wsConn) WriteFrame(f Frame) error {
	messageType := websocket.BinaryMessage
	if f.Kind == FrameText {
		messageType = websocket.TextMessage
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.mapWriteErr(c.ws.WriteMessage(messageType, f.Data))
}

// WritePing sends a ping control frame.
func (c *wsConn) WritePing(data []byte) error {
	deadline := time.Now().Add(c.writeTimeout)
	return c.mapWriteErr(c.ws.WriteControl(websocket.PingMessage, data, deadline))
}

// WriteClose sends a close control frame.
func (c *wsConn) WriteClose(code int, reason string) error {
	deadline := time.Now().Add(c.writeTimeout)
	msg := websocket.FormatCloseMessage(code, reason)
	return c.mapWriteErr(c.ws.WriteControl(websocket.CloseMessage, msg, deadline))
}

// SetPongHandler installs the pong handler.
func (c *wsConn) SetPongHandler(h func(data []byte)) {
	if h == nil {
		c.ws.SetPongHandler(nil)
		return
	}
	c.ws.SetPongHandler(func(appData string) error {
		h([]byte(appData))
		return nil
	})
}

// Close closes the socket. It is safe to call more than once.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the peer address.
func (c *wsConn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

func (c *wsConn) mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
		return ErrConnectionClosed
	}
	return err
}
