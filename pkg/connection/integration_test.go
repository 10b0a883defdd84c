package connection_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wstoolkit/wstoolkit-go/internal/testpeer"
	"github.com/wstoolkit/wstoolkit-go/pkg/connection"
	"github.com/wstoolkit/wstoolkit-go/pkg/log"
	"github.com/wstoolkit/wstoolkit-go/pkg/metrics"
	"github.com/wstoolkit/wstoolkit-go/pkg/transport"
	"github.com/wstoolkit/wstoolkit-go/pkg/wire"
)

func newController(t *testing.T, cfg connection.Config) *connection.Controller {
	t.Helper()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if cfg.Heartbeat.Interval == 0 {
		cfg.Heartbeat = transport.KeepAliveConfig{Interval: 50 * time.Millisecond, Timeout: 200 * time.Millisecond}
	}
	if cfg.Reconnect.BaseDelay == 0 {
		cfg.Reconnect = connection.ReconnectPolicy{BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond, Multiplier: 2}
	}
	c := connection.NewController(cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c
}

func TestEndToEndGreeting(t *testing.T) {
	peer := testpeer.New(testpeer.Options{PushInterval: 20 * time.Millisecond})
	t.Cleanup(peer.Close)

	reg := prometheus.NewRegistry()
	path := filepath.Join(t.TempDir(), "session.wslog")
	plog, err := log.NewFileLogger(path)
	require.NoError(t, err)

	c := newController(t, connection.Config{
		ProtocolLogger: plog,
		Observer:       metrics.NewCollector(reg),
	})

	responses := make(chan wire.Message, 2)
	pushes := make(chan wire.Message, 8)
	c.Handle(wire.TypeResponse, func(msg wire.Message) { responses <- msg })
	c.Handle(wire.TypeServerMessage, func(msg wire.Message) {
		select {
		case pushes <- msg:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx, peer.URL()))

	require.NoError(t, c.Send(wire.Greeting(wire.FormatJSON, "hi")))
	require.NoError(t, c.SendFormat(wire.Greeting(wire.FormatCBOR, ""), wire.FormatCBOR))

	for _, want := range []string{"Hello from server (JSON)!", "Hello from server (CBOR)!"} {
		select {
		case msg := <-responses:
			assert.Equal(t, want, msg.Content())
		case <-time.After(2 * time.Second):
			t.Fatalf("no response %q", want)
		}
	}

	select {
	case msg := <-pushes:
		assert.Contains(t, msg.Content(), "server message")
	case <-time.After(2 * time.Second):
		t.Fatal("no server push")
	}

	require.Eventually(t, func() bool { return c.HeartbeatStats().PongsReceived > 0 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close(ctx))
	assert.Equal(t, connection.StateDisconnected, c.State())
	require.NoError(t, plog.Close())

	// The peer saw both greetings.
	received := peer.Received()
	require.Len(t, received, 2)
	assert.Equal(t, wire.FormatJSON, received[0].Format)
	assert.Equal(t, "hi", received[0].Content())
	assert.Equal(t, wire.FormatCBOR, received[1].Format)

	// The capture holds the whole session.
	r, err := log.NewFilteredReader(path, log.Filter{MessageType: wire.TypeGreeting})
	require.NoError(t, err)
	defer r.Close()
	events, err := r.All()
	require.NoError(t, err)
	assert.Len(t, events, 2)

	n, err := testutil.GatherAndCount(reg, "wsk_messages_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 2)
}

func TestEndToEndReconnect(t *testing.T) {
	peer := testpeer.New(testpeer.Options{})
	t.Cleanup(peer.Close)

	c := newController(t, connection.Config{})

	var mu sync.Mutex
	var retries []int
	c.OnReconnecting(func(attempt int, _ time.Duration) {
		mu.Lock()
		retries = append(retries, attempt)
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx, peer.URL()))
	firstID := c.ConnectionID()
	require.Eventually(t, func() bool { return peer.Connections() == 1 }, time.Second, 5*time.Millisecond)

	// Refuse two retries, then let the third through.
	peer.Refuse(true)
	peer.DropAll()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(retries) >= 3
	}, 2*time.Second, 5*time.Millisecond)
	peer.Refuse(false)

	require.Eventually(t, c.IsConnected, 2*time.Second, 5*time.Millisecond)
	assert.NotEqual(t, firstID, c.ConnectionID())
	assert.Equal(t, 0, c.Attempts())
	assert.GreaterOrEqual(t, peer.Accepted(), 2)

	require.NoError(t, c.Send(wire.Greeting(wire.FormatJSON, "")))
}

func TestEndToEndHeartbeatTimeout(t *testing.T) {
	peer := testpeer.New(testpeer.Options{IgnorePings: true})
	t.Cleanup(peer.Close)

	c := newController(t, connection.Config{
		Heartbeat: transport.KeepAliveConfig{Interval: 20 * time.Millisecond, Timeout: 50 * time.Millisecond},
	})
	lost := make(chan error, 4)
	c.OnDisconnected(func(err error) { lost <- err })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx, peer.URL()))

	// Later connections answer pings.
	peer.IgnorePings(false)

	select {
	case err := <-lost:
		assert.ErrorIs(t, err, connection.ErrHeartbeatTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat never timed out")
	}

	require.Eventually(t, func() bool {
		return c.IsConnected() && c.HeartbeatStats().PongsReceived > 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEndToEndPeerClose(t *testing.T) {
	peer := testpeer.New(testpeer.Options{})
	t.Cleanup(peer.Close)

	c := newController(t, connection.Config{})
	lost := make(chan error, 1)
	c.OnDisconnected(func(err error) { lost <- err })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx, peer.URL()))
	require.Eventually(t, func() bool { return peer.Connections() == 1 }, time.Second, 5*time.Millisecond)

	peer.CloseAll(transport.CloseGoingAway, "restart")

	var ce *transport.CloseError
	require.ErrorAs(t, <-lost, &ce)
	assert.Equal(t, transport.CloseGoingAway, ce.Code)
	assert.Equal(t, "restart", ce.Reason)

	require.Eventually(t, c.IsConnected, 2*time.Second, 5*time.Millisecond)
}
