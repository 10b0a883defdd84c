package transport

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"
)

// Keep-alive constants.
const (
	// DefaultPingInterval is the default interval between pings.
	DefaultPingInterval = 5 * time.Second

	// DefaultPongTimeout is the default time allowed for a pong after a ping.
	DefaultPongTimeout = 10 * time.Second
)

// KeepAliveConfig configures keep-alive behavior.
type KeepAliveConfig struct {
	// Interval is the time between pings.
	Interval time.Duration

	// Timeout is how long to wait for the pong answering a ping.
	Timeout time.Duration
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		Interval: DefaultPingInterval,
		Timeout:  DefaultPongTimeout,
	}
}

// DetectionDelay is the longest a dead peer can go unnoticed.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.Interval + c.Timeout
}

// EncodePingPayload encodes a ping sequence number as a ping payload.
func EncodePingPayload(seq uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, seq)
	return buf
}

// DecodePingPayload extracts the sequence number from a pong payload.
func DecodePingPayload(data []byte) (uint32, bool) {
	if len(data) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(data), true
}

// KeepAlive monitors connection liveness with ping/pong.
//
// One ping is outstanding at a time. If its pong does not arrive within
// Timeout, onTimeout is called once and the monitor stops sending.
type KeepAlive struct {
	config KeepAliveConfig

	// Callbacks
	sendPing       func(seq uint32) error
	onTimeout      func()
	onPongReceived func(seq uint32, latency time.Duration)

	// State
	sequence      atomic.Uint32
	lastPingTime  time.Time
	lastPongTime  time.Time
	lastLatency   time.Duration
	pingsSent     uint64
	pongsReceived uint64
	pendingPing   uint32
	hasPending    bool
	timedOut      bool

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	pongCh  chan uint32
}

// NewKeepAlive creates a new keep-alive monitor.
func NewKeepAlive(config KeepAliveConfig, sendPing func(seq uint32) error, onTimeout func()) *KeepAlive {
	if config.Interval <= 0 {
		config.Interval = DefaultPingInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultPongTimeout
	}

	return &KeepAlive{
		config:    config,
		sendPing:  sendPing,
		onTimeout: onTimeout,
		pongCh:    make(chan uint32, 1),
	}
}

// SetPongReceivedCallback sets a callback for matched pongs.
func (ka *KeepAlive) SetPongReceivedCallback(cb func(seq uint32, latency time.Duration)) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	ka.onPongReceived = cb
}

// Start begins the monitoring loop. The first ping is sent one interval
// after Start.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	if ka.running {
		ka.mu.Unlock()
		return
	}
	ka.running = true
	ka.hasPending = false
	ka.timedOut = false
	ka.stopCh = make(chan struct{})
	ka.doneCh = make(chan struct{})
	stopCh, doneCh := ka.stopCh, ka.doneCh
	ka.mu.Unlock()

	go ka.loop(ctx, stopCh, doneCh)
}

// Stop stops the monitor and waits for its loop to exit. No ping is sent
// after Stop returns.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	if !ka.running {
		ka.mu.Unlock()
		return
	}
	ka.running = false
	close(ka.stopCh)
	doneCh := ka.doneCh
	ka.mu.Unlock()

	<-doneCh
}

// PongReceived should be called when a pong arrives.
func (ka *KeepAlive) PongReceived(seq uint32) {
	select {
	case ka.pongCh <- seq:
	default:
		// A pong is already queued; the loop only needs one.
	}
}

// IsRunning returns true if the monitor loop is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running && !ka.timedOut
}

// Stats returns current keep-alive statistics.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return KeepAliveStats{
		Interval:      ka.config.Interval,
		Timeout:       ka.config.Timeout,
		LastPingTime:  ka.lastPingTime,
		LastPongTime:  ka.lastPongTime,
		LastLatency:   ka.lastLatency,
		PingsSent:     ka.pingsSent,
		PongsReceived: ka.pongsReceived,
		Pending:       ka.hasPending,
		TimedOut:      ka.timedOut,
		CurrentSeq:    ka.sequence.Load(),
	}
}

// KeepAliveStats contains keep-alive statistics.
type KeepAliveStats struct {
	Interval      time.Duration
	Timeout       time.Duration
	LastPingTime  time.Time
	LastPongTime  time.Time
	LastLatency   time.Duration
	PingsSent     uint64
	PongsReceived uint64
	Pending       bool
	TimedOut      bool
	CurrentSeq    uint32
}

// loop is the main keep-alive monitoring loop.
func (ka *KeepAlive) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(ka.config.Interval)
	defer ticker.Stop()

	deadline := time.NewTimer(ka.config.Timeout)
	deadline.Stop()
	defer deadline.Stop()
	var deadlineC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			// Stop may have raced with the tick.
			select {
			case <-stopCh:
				return
			default:
			}
			if ka.pending() {
				continue
			}
			ka.sendPingMessage()
			deadline.Reset(ka.config.Timeout)
			deadlineC = deadline.C
		case <-deadlineC:
			ka.mu.Lock()
			ka.hasPending = false
			ka.timedOut = true
			ka.mu.Unlock()
			if ka.onTimeout != nil {
				go ka.onTimeout()
			}
			return
		case seq := <-ka.pongCh:
			if ka.handlePong(seq) {
				deadline.Stop()
				deadlineC = nil
			}
		}
	}
}

func (ka *KeepAlive) pending() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.hasPending
}

// sendPingMessage sends a ping and records the time.
func (ka *KeepAlive) sendPingMessage() {
	seq := ka.sequence.Add(1)

	ka.mu.Lock()
	ka.lastPingTime = time.Now()
	ka.pendingPing = seq
	ka.hasPending = true
	ka.mu.Unlock()

	// A failed send leaves the ping pending; the pong deadline handles it.
	if err := ka.sendPing(seq); err == nil {
		ka.mu.Lock()
		ka.pingsSent++
		ka.mu.Unlock()
	}
}

// handlePong handles a received pong and reports whether it matched the
// outstanding ping.
func (ka *KeepAlive) handlePong(seq uint32) bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	now := time.Now()
	ka.lastPongTime = now

	// Pongs for older pings are ignored.
	if !ka.hasPending || seq != ka.pendingPing {
		return false
	}

	ka.lastLatency = now.Sub(ka.lastPingTime)
	ka.hasPending = false
	ka.pongsReceived++

	if ka.onPongReceived != nil {
		go ka.onPongReceived(seq, ka.lastLatency)
	}
	return true
}
