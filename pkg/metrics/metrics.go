// Package metrics exposes Prometheus metrics for client connections.
//
// A Collector implements connection.Observer; pass it as Config.Observer and
// serve the registry it was created with on /metrics.
//
//   - wsk_connection_state{state}            1 for the current state, 0 otherwise
//   - wsk_connection_transitions_total       state changes by from/to
//   - wsk_connection_reconnects_total        scheduled retries
//   - wsk_connection_reconnect_delay_seconds retry waits
//   - wsk_connection_exhausted_total         spent retry budgets
//   - wsk_messages_total{direction,format}   data frames by direction and format
//   - wsk_message_bytes_total{direction,format}
//   - wsk_decode_errors_total                rejected inbound frames
//   - wsk_heartbeat_rtt_seconds              ping/pong round trips
//   - wsk_heartbeat_timeouts_total           missed pongs
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wstoolkit/wstoolkit-go/pkg/connection"
	"github.com/wstoolkit/wstoolkit-go/pkg/wire"
)

const namespace = "wsk"

var states = []connection.State{
	connection.StateDisconnected,
	connection.StateConnecting,
	connection.StateConnected,
	connection.StateReconnecting,
	connection.StateClosing,
}

// Collector records controller notifications as Prometheus metrics.
type Collector struct {
	state          *prometheus.GaugeVec
	transitions    *prometheus.CounterVec
	reconnects     prometheus.Counter
	reconnectDelay prometheus.Histogram
	exhausted      prometheus.Counter
	messages       *prometheus.CounterVec
	bytes          *prometheus.CounterVec
	decodeErrors   prometheus.Counter
	rtt            prometheus.Histogram
	timeouts       prometheus.Counter
}

var _ connection.Observer = (*Collector)(nil)

// NewCollector creates a collector and registers its metrics with reg. A
// nil reg uses the default Prometheus registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	c := &Collector{
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "Current connection state (1 for the active state).",
		}, []string{"state"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "transitions_total",
			Help:      "Total number of connection state transitions.",
		}, []string{"from", "to"}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnects_total",
			Help:      "Total number of scheduled reconnect attempts.",
		}),
		reconnectDelay: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnect_delay_seconds",
			Help:      "Wait before each reconnect attempt in seconds.",
			// 0.5s → 1s → 2s → ... → 64s
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
		exhausted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "exhausted_total",
			Help:      "Total number of times the reconnect budget was spent.",
		}),
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total number of data frames by direction and format.",
		}, []string{"direction", "format"}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_bytes_total",
			Help:      "Total payload bytes by direction and format.",
		}, []string{"direction", "format"}),
		decodeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Total number of inbound frames that could not be decoded or routed.",
		}),
		rtt: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "heartbeat",
			Name:      "rtt_seconds",
			Help:      "Ping to pong round trip time in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		timeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "heartbeat",
			Name:      "timeouts_total",
			Help:      "Total number of missed pongs.",
		}),
	}

	c.setState(connection.StateDisconnected)
	return c
}

func (c *Collector) setState(current connection.State) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1
		}
		c.state.WithLabelValues(s.String()).Set(v)
	}
}

// StateChanged implements connection.Observer.
func (c *Collector) StateChanged(from, to connection.State) {
	c.transitions.WithLabelValues(from.String(), to.String()).Inc()
	c.setState(to)
}

// ReconnectScheduled implements connection.Observer.
func (c *Collector) ReconnectScheduled(_ int, delay time.Duration) {
	c.reconnects.Inc()
	c.reconnectDelay.Observe(delay.Seconds())
}

// ReconnectExhausted implements connection.Observer.
func (c *Collector) ReconnectExhausted() {
	c.exhausted.Inc()
}

// MessageSent implements connection.Observer.
func (c *Collector) MessageSent(format wire.Format, size int) {
	c.messages.WithLabelValues("out", format.String()).Inc()
	c.bytes.WithLabelValues("out", format.String()).Add(float64(size))
}

// MessageReceived implements connection.Observer.
func (c *Collector) MessageReceived(format wire.Format, size int) {
	c.messages.WithLabelValues("in", format.String()).Inc()
	c.bytes.WithLabelValues("in", format.String()).Add(float64(size))
}

// DecodeFailed implements connection.Observer.
func (c *Collector) DecodeFailed(error) {
	c.decodeErrors.Inc()
}

// PongReceived implements connection.Observer.
func (c *Collector) PongReceived(rtt time.Duration) {
	c.rtt.Observe(rtt.Seconds())
}

// HeartbeatTimedOut implements connection.Observer.
func (c *Collector) HeartbeatTimedOut() {
	c.timeouts.Inc()
}
