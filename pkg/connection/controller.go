package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wstoolkit/wstoolkit-go/pkg/log"
	"github.com/wstoolkit/wstoolkit-go/pkg/transport"
	"github.com/wstoolkit/wstoolkit-go/pkg/wire"
)

// Controller defaults.
const (
	// DefaultCloseGrace is how long Close waits for the peer's close reply.
	DefaultCloseGrace = 2 * time.Second

	// DefaultConnectTimeout bounds each dial including the handshake.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultName is the sender name used in greeting acknowledgements.
	DefaultName = "client"

	closeReason = "client closing"
)

// Handler processes an inbound message. Handlers run on the connection's
// reader goroutine, one message at a time. Frames still buffered from a
// replaced connection are dropped.
type Handler func(msg wire.Message)

// Config configures a Controller.
type Config struct {
	// Heartbeat configures ping interval and pong timeout.
	Heartbeat transport.KeepAliveConfig

	// Reconnect is the retry policy.
	Reconnect ReconnectPolicy

	// JitterFraction adds up to this fraction of each retry delay at random.
	// Zero disables jitter.
	JitterFraction float64

	// JitterSeed seeds the jitter source. Zero uses a time-based seed.
	JitterSeed int64

	// CloseGrace bounds the closing handshake.
	CloseGrace time.Duration

	// ConnectTimeout bounds each dial.
	ConnectTimeout time.Duration

	// Name is the sender name used when acknowledging greetings.
	Name string

	// Dialer opens transports. Nil uses transport.NewWebSocketDialer().
	Dialer transport.Dialer

	// Logger receives operational logs. Nil uses slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives protocol events. Nil disables capture.
	ProtocolLogger log.Logger

	// Observer receives metrics notifications. Nil disables them.
	Observer Observer
}

// Controller owns one logical WebSocket connection and keeps it alive.
//
// All lifecycle transitions are computed by Step and applied by a single
// actor goroutine, which runs only while the controller is not
// Disconnected. Send and the read accessors never wait for the actor.
//
// Callbacks run on controller goroutines and must not call Connect or Close.
type Controller struct {
	config   Config
	policy   ReconnectPolicy
	jitter   *Jitter
	dialer   transport.Dialer
	logger   *slog.Logger
	plog     log.Logger
	observer Observer

	// Actor-owned. Only the goroutine running loop touches these.
	session      Session
	dialCancel   context.CancelFunc
	retryTimer   *time.Timer
	graceTimer   *time.Timer
	connectReply chan error
	closeReplies []chan struct{}

	lastActivity atomic.Int64

	// dispatchMu serializes handler dispatch across reader goroutines.
	dispatchMu sync.Mutex

	mu        sync.RWMutex
	run       *actorRun
	url       string
	state     State
	attempts  int
	lastErr   error
	conn      transport.Conn
	connGen   uint64
	connID    string
	remote    string
	keepAlive *transport.KeepAlive
	handlers  map[string]Handler

	// Callbacks
	onStateChange  func(from, to State)
	onConnected    func()
	onDisconnected func(err error)
	onReconnecting func(attempt int, delay time.Duration)
	onExhausted    func(err error)
	onDecodeError  func(err error)
	onHandlerError func(err error)
}

// link is a snapshot of the live transport together with the tags stamped
// on its protocol events.
type link struct {
	conn   transport.Conn
	gen    uint64
	id     string
	url    string
	remote string
}

// actorRun is one lifetime of the actor goroutine.
type actorRun struct {
	events chan event
	done   chan struct{}
}

type event struct {
	input Input

	// conn is the dialed transport for DialSucceeded.
	conn transport.Conn

	// url and connectReply accompany ConnectRequested.
	url          string
	connectReply chan error

	// closeReply accompanies CloseRequested.
	closeReply chan struct{}
}

// NewController creates a disconnected controller.
func NewController(cfg Config) *Controller {
	if cfg.CloseGrace <= 0 {
		cfg.CloseGrace = DefaultCloseGrace
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}

	c := &Controller{
		config:   cfg,
		policy:   cfg.Reconnect.withDefaults(),
		dialer:   cfg.Dialer,
		logger:   cfg.Logger,
		plog:     cfg.ProtocolLogger,
		observer: cfg.Observer,
		handlers: make(map[string]Handler),
	}
	if cfg.JitterFraction > 0 {
		c.jitter = NewJitter(cfg.JitterFraction, cfg.JitterSeed)
	}
	if c.dialer == nil {
		c.dialer = transport.NewWebSocketDialer()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.plog == nil {
		c.plog = log.NoopLogger{}
	}
	if c.observer == nil {
		c.observer = NoopObserver{}
	}
	return c
}

// Connect dials url. It returns once the first handshake settles: nil when
// Connected, or an error wrapping ErrConnectFailed while retries continue in
// the background. Connect is only valid while Disconnected.
func (c *Controller) Connect(ctx context.Context, url string) error {
	if url == "" {
		return fmt.Errorf("%w: empty url", ErrConnectFailed)
	}

	reply := make(chan error, 1)
	if err := c.submit(ctx, event{input: ConnectRequested{}, url: url, connectReply: reply}); err != nil {
		return err
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the connection down. From Connected it sends a close frame and
// waits for the peer's reply or the grace period; from Connecting or
// Reconnecting it cancels the pending dial or retry. Close on a
// Disconnected controller is a no-op.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.RLock()
	idle := c.state == StateDisconnected && c.run == nil
	c.mu.RUnlock()
	if idle {
		return nil
	}

	reply := make(chan struct{})
	in := CloseRequested{Code: transport.CloseNormal, Reason: closeReason}
	if err := c.submit(ctx, event{input: in, closeReply: reply}); err != nil {
		return err
	}

	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send encodes msg in its own format, or JSON if it has none, and writes it.
func (c *Controller) Send(msg wire.Message) error {
	format := msg.Format
	if !format.IsValid() {
		format = wire.FormatJSON
	}
	return c.SendFormat(msg, format)
}

// SendFormat encodes msg in format and writes it as a text (JSON) or binary
// (CBOR) frame. Outside Connected it returns ErrNotConnected; nothing is
// queued.
func (c *Controller) SendFormat(msg wire.Message, format wire.Format) error {
	data, err := wire.Encode(msg, format)
	if err != nil {
		return err
	}

	kind := transport.FrameText
	if format.IsBinary() {
		kind = transport.FrameBinary
	}

	l, ok := c.connected()
	if !ok {
		return ErrNotConnected
	}

	// mu is not held across the write; the transport serializes writers.
	if err := l.conn.WriteFrame(transport.Frame{Kind: kind, Data: data}); err != nil {
		// The reader notices the dead socket and drives the reconnect.
		_ = l.conn.Close()
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}

	c.touch()
	msg.Format = format
	c.emitFor(l, log.Event{
		Direction: log.DirectionOut,
		Layer:     log.LayerTransport,
		Category:  log.CategoryMessage,
		Frame:     log.NewFrameEvent(data, kind == transport.FrameBinary),
	})
	c.emitFor(l, messageEvent(log.DirectionOut, msg))
	c.observer.MessageSent(format, len(data))
	return nil
}

// Handle registers h for messages of the given type, replacing any previous
// handler. A nil h removes the registration.
func (c *Controller) Handle(msgType string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h == nil {
		delete(c.handlers, msgType)
		return
	}
	c.handlers[msgType] = h
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected returns true if currently connected.
func (c *Controller) IsConnected() bool {
	return c.State() == StateConnected
}

// URL returns the endpoint of the last Connect call.
func (c *Controller) URL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.url
}

// Err returns the terminal error of the last session, such as an error
// wrapping ErrReconnectExhausted. It is cleared by Connect.
func (c *Controller) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Attempts returns the number of failed retry dials since the last
// established connection.
func (c *Controller) Attempts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attempts
}

// ConnectionID returns the UUID of the current or last transport.
func (c *Controller) ConnectionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connID
}

// LastActivity returns the time of the last frame or pong seen or sent.
func (c *Controller) LastActivity() time.Time {
	ns := c.lastActivity.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// HeartbeatStats returns keep-alive statistics for the current or last
// connection.
func (c *Controller) HeartbeatStats() transport.KeepAliveStats {
	c.mu.RLock()
	ka := c.keepAlive
	c.mu.RUnlock()
	if ka == nil {
		return transport.KeepAliveStats{}
	}
	return ka.Stats()
}

// OnStateChange sets a callback for state changes.
func (c *Controller) OnStateChange(fn func(from, to State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = fn
}

// OnConnected sets a callback for established connections.
func (c *Controller) OnConnected(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnected = fn
}

// OnDisconnected sets a callback for leaving Connected. err is nil for a
// requested close.
func (c *Controller) OnDisconnected(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnected = fn
}

// OnReconnecting sets a callback for scheduled retries.
func (c *Controller) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnecting = fn
}

// OnExhausted sets a callback for a spent retry budget.
func (c *Controller) OnExhausted(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExhausted = fn
}

// OnDecodeError sets a callback for undecodable or unroutable frames. The
// error is a *wire.DecodeError.
func (c *Controller) OnDecodeError(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDecodeError = fn
}

// OnHandlerError sets a callback for recovered handler panics.
func (c *Controller) OnHandlerError(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onHandlerError = fn
}

// submit hands ev to the actor, starting one if none is running.
func (c *Controller) submit(ctx context.Context, ev event) error {
	for {
		r := c.ensureRun()
		select {
		case r.events <- ev:
			return nil
		case <-r.done:
			// The actor went idle before taking the event; start a new one.
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Controller) ensureRun() *actorRun {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		c.run = &actorRun{
			events: make(chan event),
			done:   make(chan struct{}),
		}
		go c.loop(c.run)
	}
	return c.run
}

// post delivers an internal event. It reports false if the actor that
// spawned the sender has already exited.
func (c *Controller) post(r *actorRun, ev event) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.done:
		return false
	}
}

// loop is the actor. It exits once the session is back to Disconnected.
func (c *Controller) loop(r *actorRun) {
	for {
		ev := <-r.events
		c.handle(r, ev)

		if c.session.State == StateDisconnected {
			c.mu.Lock()
			c.run = nil
			close(r.done)
			c.mu.Unlock()
			return
		}
	}
}

func (c *Controller) handle(r *actorRun, ev event) {
	next, cmds, err := Step(c.session, c.policy, ev.input)
	if err != nil {
		if ev.connectReply != nil {
			ev.connectReply <- err
		}
		return
	}

	if ev.closeReply != nil {
		c.closeReplies = append(c.closeReplies, ev.closeReply)
	}
	if ev.connectReply != nil {
		c.connectReply = ev.connectReply
	}

	c.session = next
	c.mu.Lock()
	if _, ok := ev.input.(ConnectRequested); ok {
		c.url = ev.url
		c.lastErr = nil
	}
	c.state = next.State
	c.attempts = next.Attempt
	c.mu.Unlock()

	for _, cmd := range cmds {
		c.exec(r, ev, cmd)
	}
}

func (c *Controller) exec(r *actorRun, ev event, cmd Command) {
	switch cmd := cmd.(type) {
	case Dial:
		c.startDial(r, cmd.Gen)
	case CancelDial:
		if c.dialCancel != nil {
			c.dialCancel()
			c.dialCancel = nil
		}
	case AdoptTransport:
		c.dialCancel = nil
		c.adopt(r, ev.conn, cmd.Gen)
	case DiscardTransport:
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
	case StartHeartbeat:
		c.startHeartbeat(r, cmd.Gen)
	case StopHeartbeat:
		c.stopHeartbeat()
	case ScheduleRetry:
		c.scheduleRetry(r, cmd)
	case CancelRetry:
		if c.retryTimer != nil {
			c.retryTimer.Stop()
			c.retryTimer = nil
		}
	case CloseTransport:
		c.closeTransport(r, cmd)
	case ReleaseTransport:
		c.releaseTransport()
	case NotifyState:
		c.notifyState(cmd)
	case NotifyExhausted:
		c.notifyExhausted(cmd.Err)
	case ResolveConnect:
		if c.connectReply != nil {
			c.connectReply <- cmd.Err
			c.connectReply = nil
		}
	case ResolveClose:
		for _, reply := range c.closeReplies {
			close(reply)
		}
		c.closeReplies = nil
	}
}

func (c *Controller) startDial(r *actorRun, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.ConnectTimeout)
	c.dialCancel = cancel

	c.mu.RLock()
	url := c.url
	c.mu.RUnlock()

	c.logger.Debug("dialing", "url", url, "attempt", c.session.Attempt)

	go func() {
		conn, err := c.dialer.Dial(ctx, url)
		cancel()

		ev := event{input: DialSucceeded{Gen: gen}, conn: conn}
		if err != nil {
			ev = event{input: DialFailed{Gen: gen, Err: err}}
		}
		if !c.post(r, ev) && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (c *Controller) adopt(r *actorRun, conn transport.Conn, gen uint64) {
	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}

	c.mu.Lock()
	c.conn = conn
	c.connGen = gen
	c.connID = uuid.NewString()
	c.remote = remote
	c.mu.Unlock()

	c.touch()
	conn.SetPongHandler(func(data []byte) { c.pongReceived(gen, data) })
	go c.readLoop(r, conn, gen)
}

func (c *Controller) releaseTransport() {
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Controller) startHeartbeat(r *actorRun, gen uint64) {
	ka := transport.NewKeepAlive(c.config.Heartbeat,
		func(seq uint32) error { return c.sendPing(gen, seq) },
		func() {
			c.observer.HeartbeatTimedOut()
			c.post(r, event{input: HeartbeatTimedOut{Gen: gen}})
		},
	)
	ka.SetPongReceivedCallback(func(_ uint32, rtt time.Duration) {
		c.observer.PongReceived(rtt)
	})

	c.mu.Lock()
	c.keepAlive = ka
	c.mu.Unlock()

	ka.Start(context.Background())
}

// stopHeartbeat must not hold mu: Stop waits for the ping loop, which takes
// the read lock in connected.
func (c *Controller) stopHeartbeat() {
	c.mu.RLock()
	ka := c.keepAlive
	c.mu.RUnlock()
	if ka != nil {
		ka.Stop()
	}
}

// sendPing writes a ping for connection gen. Pings are only written while
// that connection is current and Connected.
func (c *Controller) sendPing(gen uint64, seq uint32) error {
	l, ok := c.connected()
	if !ok || l.gen != gen {
		return ErrNotConnected
	}
	if err := l.conn.WritePing(transport.EncodePingPayload(seq)); err != nil {
		return err
	}

	c.emitFor(l, log.Event{
		Direction:  log.DirectionOut,
		Layer:      log.LayerTransport,
		Category:   log.CategoryControl,
		ControlMsg: &log.ControlMsgEvent{Type: log.ControlMsgPing, Seq: &seq},
	})
	return nil
}

func (c *Controller) pongReceived(gen uint64, data []byte) {
	c.touch()
	seq, ok := transport.DecodePingPayload(data)

	c.mu.RLock()
	ka := c.keepAlive
	current := c.connGen == gen
	c.mu.RUnlock()

	ctrl := &log.ControlMsgEvent{Type: log.ControlMsgPong}
	if ok {
		ctrl.Seq = &seq
	}
	c.emit(log.Event{
		Direction:  log.DirectionIn,
		Layer:      log.LayerTransport,
		Category:   log.CategoryControl,
		ControlMsg: ctrl,
	})

	if ok && current && ka != nil {
		ka.PongReceived(seq)
	}
}

func (c *Controller) scheduleRetry(r *actorRun, cmd ScheduleRetry) {
	delay := c.jitter.Apply(cmd.Delay)
	gen := cmd.Gen
	c.retryTimer = time.AfterFunc(delay, func() {
		c.post(r, event{input: RetryTimerFired{Gen: gen}})
	})

	c.logger.Info("reconnect scheduled", "attempt", cmd.Attempt, "delay", delay)
	c.observer.ReconnectScheduled(cmd.Attempt, delay)

	c.mu.RLock()
	cb := c.onReconnecting
	c.mu.RUnlock()
	if cb != nil {
		cb(cmd.Attempt, delay)
	}
}

func (c *Controller) closeTransport(r *actorRun, cmd CloseTransport) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	grace := c.config.CloseGrace
	if conn == nil {
		grace = 0
	} else if err := conn.WriteClose(cmd.Code, cmd.Reason); err != nil {
		c.logger.Debug("close frame not sent", "error", err)
		grace = 0
	} else {
		code := cmd.Code
		c.emit(log.Event{
			Direction:  log.DirectionOut,
			Layer:      log.LayerTransport,
			Category:   log.CategoryControl,
			ControlMsg: &log.ControlMsgEvent{Type: log.ControlMsgClose, CloseCode: &code, CloseReason: cmd.Reason},
		})
	}

	gen := cmd.Gen
	c.graceTimer = time.AfterFunc(grace, func() {
		c.post(r, event{input: ShutdownComplete{Gen: gen}})
	})
}

func (c *Controller) readLoop(r *actorRun, conn transport.Conn, gen uint64) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			c.logReadError(err)
			c.post(r, event{input: TransportLost{Gen: gen, Err: err}})
			return
		}
		c.touch()
		c.deliver(gen, frame)
	}
}

// deliver dispatches frame if connection gen is still the current one. It
// reports whether the frame was dispatched.
func (c *Controller) deliver(gen uint64, frame transport.Frame) bool {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.RLock()
	current := c.conn != nil && c.connGen == gen
	c.mu.RUnlock()
	if !current {
		return false
	}
	c.dispatch(frame)
	return true
}

func (c *Controller) logReadError(err error) {
	var ce *transport.CloseError
	if !errors.As(err, &ce) {
		return
	}
	code := ce.Code
	c.emit(log.Event{
		Direction:  log.DirectionIn,
		Layer:      log.LayerTransport,
		Category:   log.CategoryControl,
		ControlMsg: &log.ControlMsgEvent{Type: log.ControlMsgClose, CloseCode: &code, CloseReason: ce.Reason},
	})
}

// dispatch decodes an inbound frame and routes it.
func (c *Controller) dispatch(frame transport.Frame) {
	c.emit(log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerTransport,
		Category:  log.CategoryMessage,
		Frame:     log.NewFrameEvent(frame.Data, frame.Kind == transport.FrameBinary),
	})

	msg, err := wire.Decode(frame.Data)
	if err != nil {
		c.reportDecodeError(err)
		return
	}
	c.observer.MessageReceived(msg.Format, len(frame.Data))
	c.emit(messageEvent(log.DirectionIn, msg))

	if resp, ok := wire.Acknowledge(msg, c.config.Name); ok {
		if err := c.SendFormat(resp, resp.Format); err != nil {
			c.logger.Warn("greeting acknowledgement not sent", "error", err)
		}
	}

	c.mu.RLock()
	h := c.handlers[msg.Type]
	c.mu.RUnlock()

	if h == nil {
		switch msg.Type {
		case wire.TypeGreeting, wire.TypeResponse, wire.TypeServerMessage:
			return
		}
		c.reportDecodeError(&wire.DecodeError{
			Raw:      frame.Data,
			Detected: msg.Format,
			Type:     msg.Type,
			Err:      wire.ErrUnknownType,
		})
		return
	}

	c.invoke(h, msg)
}

func (c *Controller) invoke(h Handler, msg wire.Message) {
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("%w: %s: %v", ErrHandlerPanic, msg.Type, p)
			c.logger.Error("message handler panicked", "type", msg.Type, "error", err)

			c.mu.RLock()
			cb := c.onHandlerError
			c.mu.RUnlock()
			if cb != nil {
				cb(err)
			}
		}
	}()
	h(msg)
}

func (c *Controller) reportDecodeError(err error) {
	c.logger.Warn("inbound frame rejected", "error", err)
	c.observer.DecodeFailed(err)
	c.emit(log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerWire,
		Category:  log.CategoryError,
		Error:     &log.ErrorEventData{Layer: log.LayerWire, Message: err.Error(), Context: "decode"},
	})

	c.mu.RLock()
	cb := c.onDecodeError
	c.mu.RUnlock()
	if cb != nil {
		cb(err)
	}
}

func (c *Controller) notifyState(cmd NotifyState) {
	attrs := []any{"from", cmd.From.String(), "to", cmd.To.String()}
	reason := ""
	if cmd.Reason != nil {
		reason = cmd.Reason.Error()
		attrs = append(attrs, "error", cmd.Reason)
	}
	c.logger.Info("connection state changed", attrs...)

	c.emit(log.Event{
		Layer:    log.LayerConnection,
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			OldState: cmd.From.String(),
			NewState: cmd.To.String(),
			Reason:   reason,
			Attempt:  c.session.Attempt,
		},
	})
	c.observer.StateChanged(cmd.From, cmd.To)

	c.mu.RLock()
	onStateChange := c.onStateChange
	onConnected := c.onConnected
	onDisconnected := c.onDisconnected
	c.mu.RUnlock()

	if onStateChange != nil {
		onStateChange(cmd.From, cmd.To)
	}
	if cmd.To == StateConnected && onConnected != nil {
		onConnected()
	}
	if cmd.From == StateConnected && onDisconnected != nil {
		onDisconnected(cmd.Reason)
	}
}

func (c *Controller) notifyExhausted(err error) {
	c.logger.Error("giving up on connection", "error", err)
	c.observer.ReconnectExhausted()

	c.mu.Lock()
	c.lastErr = err
	cb := c.onExhausted
	c.mu.Unlock()

	if cb != nil {
		cb(err)
	}
}

func (c *Controller) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// connected returns the live transport while the controller is Connected.
func (c *Controller) connected() (link, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateConnected || c.conn == nil {
		return link{}, false
	}
	return link{conn: c.conn, gen: c.connGen, id: c.connID, url: c.url, remote: c.remote}, true
}

// emit sends a protocol event tagged with the current connection.
func (c *Controller) emit(e log.Event) {
	c.mu.RLock()
	l := link{id: c.connID, url: c.url, remote: c.remote}
	c.mu.RUnlock()
	c.emitFor(l, e)
}

// emitFor sends a protocol event tagged with l.
func (c *Controller) emitFor(l link, e log.Event) {
	e.Timestamp = time.Now()
	e.ConnectionID = l.id
	e.URL = l.url
	e.RemoteAddr = l.remote
	c.plog.Log(e)
}

func messageEvent(dir log.Direction, msg wire.Message) log.Event {
	return log.Event{
		Direction: dir,
		Layer:     log.LayerWire,
		Category:  log.CategoryMessage,
		Message: &log.MessageEvent{
			Type:   msg.Type,
			Format: msg.Format.String(),
			Fields: msg.Fields,
		},
	}
}
