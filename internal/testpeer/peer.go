// Package testpeer provides an in-process WebSocket server implementing the
// peer side of the client protocol, for tests.
//
// The peer answers pings with pongs, acknowledges greetings in the format
// they arrived in, optionally pushes server_message payloads on a timer, and
// can be told to refuse, drop or close connections.
package testpeer

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wstoolkit/wstoolkit-go/pkg/wire"
)

// DefaultName is the sender name in acknowledgements.
const DefaultName = "server"

// Options configures a Peer.
type Options struct {
	// Name is used in greeting acknowledgements.
	Name string

	// PushInterval sends a server_message every interval. Zero disables.
	PushInterval time.Duration

	// PushFormat is the format of pushed messages. Defaults to JSON.
	PushFormat wire.Format

	// IgnorePings suppresses pong replies, simulating a hung peer.
	IgnorePings bool

	// Logger receives debug output. Nil discards it.
	Logger *slog.Logger
}

// Peer is a running test server.
type Peer struct {
	opts     Options
	srv      *httptest.Server
	upgrader websocket.Upgrader
	logger   *slog.Logger

	refuse     atomic.Bool
	ignorePing atomic.Bool
	accepted   atomic.Int32

	mu       sync.Mutex
	conns    map[*peerConn]struct{}
	received []wire.Message
}

type peerConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
}

func (c *peerConn) write(msgType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(msgType, data)
}

// New starts a peer listening on a loopback address.
func New(opts Options) *Peer {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if !opts.PushFormat.IsValid() {
		opts.PushFormat = wire.FormatJSON
	}

	p := &Peer{
		opts:   opts,
		conns:  make(map[*peerConn]struct{}),
		logger: opts.Logger,
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p.ignorePing.Store(opts.IgnorePings)
	p.srv = httptest.NewServer(http.HandlerFunc(p.serve))
	return p
}

// URL returns the ws:// endpoint.
func (p *Peer) URL() string {
	return "ws" + strings.TrimPrefix(p.srv.URL, "http")
}

// Accepted returns the number of completed upgrades.
func (p *Peer) Accepted() int {
	return int(p.accepted.Load())
}

// Connections returns the number of open connections.
func (p *Peer) Connections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Received returns every message decoded so far.
func (p *Peer) Received() []wire.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]wire.Message(nil), p.received...)
}

// Refuse makes subsequent upgrade requests fail with 503.
func (p *Peer) Refuse(refuse bool) {
	p.refuse.Store(refuse)
}

// IgnorePings toggles pong replies on connections accepted afterwards.
func (p *Peer) IgnorePings(ignore bool) {
	p.ignorePing.Store(ignore)
}

// Send writes msg to every open connection.
func (p *Peer) Send(msg wire.Message) error {
	data, err := wire.Encode(msg, msg.Format)
	if err != nil {
		return err
	}
	for _, c := range p.snapshot() {
		if err := c.write(frameType(msg.Format), data); err != nil {
			return err
		}
	}
	return nil
}

// SendRaw writes data as a binary frame to every open connection.
func (p *Peer) SendRaw(data []byte) error {
	for _, c := range p.snapshot() {
		if err := c.write(websocket.BinaryMessage, data); err != nil {
			return err
		}
	}
	return nil
}

// DropAll tears down every connection without a closing handshake.
func (p *Peer) DropAll() {
	for _, c := range p.snapshot() {
		_ = c.ws.UnderlyingConn().Close()
	}
}

// CloseAll sends a close frame to every connection and closes them.
func (p *Peer) CloseAll(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	for _, c := range p.snapshot() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.ws.Close()
	}
}

// Close drops every connection and stops the server.
func (p *Peer) Close() {
	p.DropAll()
	p.srv.Close()
}

func (p *Peer) snapshot() []*peerConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*peerConn, 0, len(p.conns))
	for c := range p.conns {
		out = append(out, c)
	}
	return out
}

func (p *Peer) serve(w http.ResponseWriter, r *http.Request) {
	if p.refuse.Load() {
		http.Error(w, "refusing connections", http.StatusServiceUnavailable)
		return
	}

	ignorePings := p.ignorePing.Load()
	ws, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Debug("upgrade failed", "error", err)
		return
	}
	c := &peerConn{ws: ws, done: make(chan struct{})}

	if ignorePings {
		ws.SetPingHandler(func(string) error { return nil })
	} else {
		ws.SetPingHandler(func(data string) error {
			c.writeMu.Lock()
			defer c.writeMu.Unlock()
			return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		})
	}

	p.mu.Lock()
	p.conns[c] = struct{}{}
	p.mu.Unlock()
	p.accepted.Add(1)

	defer func() {
		close(c.done)
		p.mu.Lock()
		delete(p.conns, c)
		p.mu.Unlock()
		_ = ws.Close()
	}()

	if p.opts.PushInterval > 0 {
		go p.push(c)
	}
	p.readLoop(c)
}

func (p *Peer) readLoop(c *peerConn) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			p.logger.Debug("peer read ended", "error", err)
			return
		}

		msg, err := wire.Decode(data)
		if err != nil {
			p.logger.Debug("peer decode failed", "error", err)
			continue
		}
		p.mu.Lock()
		p.received = append(p.received, msg)
		p.mu.Unlock()

		resp, ok := wire.Acknowledge(msg, p.opts.Name)
		if !ok {
			continue
		}
		out, err := wire.EncodeAs(resp)
		if err != nil {
			continue
		}
		if err := c.write(frameType(resp.Format), out); err != nil {
			return
		}
	}
}

func (p *Peer) push(c *peerConn) {
	ticker := time.NewTicker(p.opts.PushInterval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}
		msg := wire.NewMessage(wire.TypeServerMessage, map[string]any{
			wire.KeyContent: fmt.Sprintf("server message %d", n),
		})
		data, err := wire.Encode(msg, p.opts.PushFormat)
		if err != nil {
			return
		}
		if err := c.write(frameType(p.opts.PushFormat), data); err != nil {
			return
		}
	}
}

func frameType(f wire.Format) int {
	if f.IsBinary() {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
