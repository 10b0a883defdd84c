package connection

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testPolicy = ReconnectPolicy{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2, MaxAttempts: 3}
	errRefused = errors.New("connection refused")
)

func commandTypes(cmds []Command) []string {
	out := make([]string, 0, len(cmds))
	for _, c := range cmds {
		switch c.(type) {
		case Dial:
			out = append(out, "Dial")
		case CancelDial:
			out = append(out, "CancelDial")
		case AdoptTransport:
			out = append(out, "AdoptTransport")
		case DiscardTransport:
			out = append(out, "DiscardTransport")
		case StartHeartbeat:
			out = append(out, "StartHeartbeat")
		case StopHeartbeat:
			out = append(out, "StopHeartbeat")
		case ScheduleRetry:
			out = append(out, "ScheduleRetry")
		case CancelRetry:
			out = append(out, "CancelRetry")
		case CloseTransport:
			out = append(out, "CloseTransport")
		case ReleaseTransport:
			out = append(out, "ReleaseTransport")
		case NotifyState:
			out = append(out, "NotifyState")
		case NotifyExhausted:
			out = append(out, "NotifyExhausted")
		case ResolveConnect:
			out = append(out, "ResolveConnect")
		case ResolveClose:
			out = append(out, "ResolveClose")
		}
	}
	return out
}

func findCommand[T Command](t *testing.T, cmds []Command) T {
	t.Helper()
	for _, c := range cmds {
		if v, ok := c.(T); ok {
			return v
		}
	}
	var zero T
	t.Fatalf("no %T in %v", zero, commandTypes(cmds))
	return zero
}

func TestStepTransitions(t *testing.T) {
	tests := []struct {
		name  string
		from  Session
		in    Input
		to    Session
		cmds  []string
		error error
	}{
		{
			name: "connect from disconnected",
			from: Session{State: StateDisconnected, Attempt: 3, Generation: 4},
			in:   ConnectRequested{},
			to:   Session{State: StateConnecting, Generation: 5, Dialing: true},
			cmds: []string{"NotifyState", "Dial"},
		},
		{
			name:  "connect while connected",
			from:  Session{State: StateConnected, Generation: 1},
			in:    ConnectRequested{},
			to:    Session{State: StateConnected, Generation: 1},
			error: ErrAlreadyConnected,
		},
		{
			name:  "connect while reconnecting",
			from:  Session{State: StateReconnecting, Generation: 2},
			in:    ConnectRequested{},
			to:    Session{State: StateReconnecting, Generation: 2},
			error: ErrAlreadyConnected,
		},
		{
			name: "initial dial succeeds",
			from: Session{State: StateConnecting, Generation: 1, Dialing: true},
			in:   DialSucceeded{Gen: 1},
			to:   Session{State: StateConnected, Generation: 1},
			cmds: []string{"AdoptTransport", "StartHeartbeat", "NotifyState", "ResolveConnect"},
		},
		{
			name: "retry dial succeeds and resets counter",
			from: Session{State: StateReconnecting, Attempt: 2, Generation: 7, Dialing: true},
			in:   DialSucceeded{Gen: 7},
			to:   Session{State: StateConnected, Generation: 7},
			cmds: []string{"AdoptTransport", "StartHeartbeat", "NotifyState"},
		},
		{
			name: "stale dial success is discarded",
			from: Session{State: StateDisconnected, Generation: 3},
			in:   DialSucceeded{Gen: 2},
			to:   Session{State: StateDisconnected, Generation: 3},
			cmds: []string{"DiscardTransport"},
		},
		{
			name: "initial dial fails without counting a retry",
			from: Session{State: StateConnecting, Generation: 1, Dialing: true},
			in:   DialFailed{Gen: 1, Err: errRefused},
			to:   Session{State: StateReconnecting, Generation: 2},
			cmds: []string{"NotifyState", "ResolveConnect", "ScheduleRetry"},
		},
		{
			name: "retry dial fails and counts",
			from: Session{State: StateReconnecting, Attempt: 1, Generation: 5, Dialing: true},
			in:   DialFailed{Gen: 5, Err: errRefused},
			to:   Session{State: StateReconnecting, Attempt: 2, Generation: 6},
			cmds: []string{"ScheduleRetry"},
		},
		{
			name: "last retry fails and gives up",
			from: Session{State: StateReconnecting, Attempt: 2, Generation: 5, Dialing: true},
			in:   DialFailed{Gen: 5, Err: errRefused},
			to:   Session{State: StateDisconnected, Attempt: 3, Generation: 6},
			cmds: []string{"NotifyState", "NotifyExhausted"},
		},
		{
			name: "stale dial failure ignored",
			from: Session{State: StateReconnecting, Generation: 6},
			in:   DialFailed{Gen: 5, Err: errRefused},
			to:   Session{State: StateReconnecting, Generation: 6},
		},
		{
			name: "transport lost while connected",
			from: Session{State: StateConnected, Generation: 3},
			in:   TransportLost{Gen: 3, Err: errRefused},
			to:   Session{State: StateReconnecting, Generation: 4},
			cmds: []string{"StopHeartbeat", "ReleaseTransport", "NotifyState", "ScheduleRetry"},
		},
		{
			name: "stale transport loss ignored",
			from: Session{State: StateConnected, Generation: 3},
			in:   TransportLost{Gen: 2},
			to:   Session{State: StateConnected, Generation: 3},
		},
		{
			name: "heartbeat timeout while connected",
			from: Session{State: StateConnected, Generation: 3},
			in:   HeartbeatTimedOut{Gen: 3},
			to:   Session{State: StateReconnecting, Generation: 4},
			cmds: []string{"StopHeartbeat", "ReleaseTransport", "NotifyState", "ScheduleRetry"},
		},
		{
			name: "heartbeat timeout while closing ignored",
			from: Session{State: StateClosing, Generation: 3},
			in:   HeartbeatTimedOut{Gen: 3},
			to:   Session{State: StateClosing, Generation: 3},
		},
		{
			name: "retry timer dials",
			from: Session{State: StateReconnecting, Attempt: 1, Generation: 4},
			in:   RetryTimerFired{Gen: 4},
			to:   Session{State: StateReconnecting, Attempt: 1, Generation: 5, Dialing: true},
			cmds: []string{"Dial"},
		},
		{
			name: "stale retry timer ignored",
			from: Session{State: StateDisconnected, Generation: 5},
			in:   RetryTimerFired{Gen: 4},
			to:   Session{State: StateDisconnected, Generation: 5},
		},
		{
			name: "close disconnected is a no-op",
			from: Session{State: StateDisconnected, Generation: 2},
			in:   CloseRequested{},
			to:   Session{State: StateDisconnected, Generation: 2},
			cmds: []string{"ResolveClose"},
		},
		{
			name: "close connected",
			from: Session{State: StateConnected, Generation: 2},
			in:   CloseRequested{Code: 1000},
			to:   Session{State: StateClosing, Generation: 2},
			cmds: []string{"StopHeartbeat", "NotifyState", "CloseTransport"},
		},
		{
			name: "close while connecting",
			from: Session{State: StateConnecting, Generation: 1, Dialing: true},
			in:   CloseRequested{},
			to:   Session{State: StateDisconnected, Generation: 2},
			cmds: []string{"CancelDial", "NotifyState", "NotifyState", "ResolveConnect", "ResolveClose"},
		},
		{
			name: "close during retry wait",
			from: Session{State: StateReconnecting, Attempt: 1, Generation: 4},
			in:   CloseRequested{},
			to:   Session{State: StateDisconnected, Attempt: 1, Generation: 5},
			cmds: []string{"CancelRetry", "NotifyState", "NotifyState", "ResolveClose"},
		},
		{
			name: "close during retry dial",
			from: Session{State: StateReconnecting, Attempt: 1, Generation: 5, Dialing: true},
			in:   CloseRequested{},
			to:   Session{State: StateDisconnected, Attempt: 1, Generation: 6},
			cmds: []string{"CancelDial", "NotifyState", "NotifyState", "ResolveClose"},
		},
		{
			name: "close while closing joins",
			from: Session{State: StateClosing, Generation: 2},
			in:   CloseRequested{},
			to:   Session{State: StateClosing, Generation: 2},
		},
		{
			name: "peer close reply finishes closing",
			from: Session{State: StateClosing, Generation: 2},
			in:   TransportLost{Gen: 2},
			to:   Session{State: StateDisconnected, Generation: 3},
			cmds: []string{"ReleaseTransport", "NotifyState", "ResolveClose"},
		},
		{
			name: "grace expiry finishes closing",
			from: Session{State: StateClosing, Generation: 2},
			in:   ShutdownComplete{Gen: 2},
			to:   Session{State: StateDisconnected, Generation: 3},
			cmds: []string{"ReleaseTransport", "NotifyState", "ResolveClose"},
		},
		{
			name: "stale grace expiry ignored",
			from: Session{State: StateDisconnected, Generation: 3},
			in:   ShutdownComplete{Gen: 2},
			to:   Session{State: StateDisconnected, Generation: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, cmds, err := Step(tt.from, testPolicy, tt.in)
			if tt.error != nil {
				assert.ErrorIs(t, err, tt.error)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.to, got)
			if tt.cmds == nil {
				tt.cmds = []string{}
			}
			assert.Equal(t, tt.cmds, commandTypes(cmds))
		})
	}
}

func TestStepConnectFailureWrapsCause(t *testing.T) {
	_, cmds, err := Step(Session{State: StateConnecting, Generation: 1, Dialing: true}, testPolicy, DialFailed{Gen: 1, Err: errRefused})
	require.NoError(t, err)

	resolve := findCommand[ResolveConnect](t, cmds)
	assert.ErrorIs(t, resolve.Err, ErrConnectFailed)
	assert.ErrorIs(t, resolve.Err, errRefused)

	retry := findCommand[ScheduleRetry](t, cmds)
	assert.Equal(t, time.Second, retry.Delay, "first wait uses attempt 0")
	assert.Equal(t, 1, retry.Attempt)
}

func TestStepHeartbeatTimeoutReason(t *testing.T) {
	_, cmds, err := Step(Session{State: StateConnected, Generation: 1}, testPolicy, HeartbeatTimedOut{Gen: 1})
	require.NoError(t, err)

	notify := findCommand[NotifyState](t, cmds)
	assert.Equal(t, StateConnected, notify.From)
	assert.Equal(t, StateReconnecting, notify.To)
	assert.ErrorIs(t, notify.Reason, ErrHeartbeatTimeout)
}

// TestStepLossScenario drives the machine through a lost connection with a
// budget of three retries: waits of 1s, 2s and 4s, then exhaustion.
func TestStepLossScenario(t *testing.T) {
	p := ReconnectPolicy{BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2, MaxAttempts: 3}
	s := Session{State: StateConnected, Generation: 1}

	s, cmds, err := Step(s, p, TransportLost{Gen: s.Generation, Err: errRefused})
	require.NoError(t, err)

	var delays []time.Duration
	var exhausted error
	for range 10 {
		if s.State == StateDisconnected {
			break
		}
		retry := findCommand[ScheduleRetry](t, cmds)
		delays = append(delays, retry.Delay)
		require.Equal(t, s.Generation, retry.Gen)

		s, cmds, err = Step(s, p, RetryTimerFired{Gen: retry.Gen})
		require.NoError(t, err)
		dial := findCommand[Dial](t, cmds)

		s, cmds, err = Step(s, p, DialFailed{Gen: dial.Gen, Err: errRefused})
		require.NoError(t, err)
		for _, c := range cmds {
			if ex, ok := c.(NotifyExhausted); ok {
				exhausted = ex.Err
			}
		}
	}

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)
	assert.Equal(t, StateDisconnected, s.State)
	assert.Equal(t, 3, s.Attempt)
	require.Error(t, exhausted)
	assert.ErrorIs(t, exhausted, ErrReconnectExhausted)
	assert.ErrorIs(t, exhausted, errRefused)
}

func TestStepUnboundedNeverGivesUp(t *testing.T) {
	p := DefaultReconnectPolicy()
	s := Session{State: StateReconnecting, Generation: 1, Dialing: true}

	for range 100 {
		var cmds []Command
		var err error
		s, cmds, err = Step(s, p, DialFailed{Gen: s.Generation, Err: errRefused})
		require.NoError(t, err)
		require.Equal(t, StateReconnecting, s.State)
		retry := findCommand[ScheduleRetry](t, cmds)
		s, _, _ = Step(s, p, RetryTimerFired{Gen: retry.Gen})
	}
	assert.Equal(t, 100, s.Attempt)
}

func TestStepUnknownInput(t *testing.T) {
	s := Session{State: StateConnected, Generation: 1}
	got, cmds, err := Step(s, testPolicy, nil)
	assert.Error(t, err)
	assert.Empty(t, cmds)
	assert.Equal(t, s, got)
}
