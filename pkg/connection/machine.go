package connection

import (
	"errors"
	"fmt"
	"time"
)

// Session is the lifecycle state Step operates on.
type Session struct {
	// State is the current lifecycle state.
	State State

	// Attempt counts failed retry dials since the last established
	// connection.
	Attempt int

	// Generation identifies the current dial, retry timer or connection.
	// Inputs carrying an older generation are ignored.
	Generation uint64

	// Dialing is set while a dial for Generation is in flight.
	Dialing bool
}

// Input is an event fed to Step.
type Input interface {
	input()
}

// ConnectRequested asks for a new connection.
type ConnectRequested struct{}

// DialSucceeded reports a completed opening handshake.
type DialSucceeded struct{ Gen uint64 }

// DialFailed reports a failed dial or handshake.
type DialFailed struct {
	Gen uint64
	Err error
}

// TransportLost reports that the connection's reader stopped.
type TransportLost struct {
	Gen uint64
	Err error
}

// HeartbeatTimedOut reports a missing pong.
type HeartbeatTimedOut struct{ Gen uint64 }

// RetryTimerFired reports that the retry wait elapsed.
type RetryTimerFired struct{ Gen uint64 }

// CloseRequested asks for the connection to be closed.
type CloseRequested struct {
	Code   int
	Reason string
}

// ShutdownComplete reports that the close grace period ran out.
type ShutdownComplete struct{ Gen uint64 }

func (ConnectRequested) input()  {}
func (DialSucceeded) input()     {}
func (DialFailed) input()        {}
func (TransportLost) input()     {}
func (HeartbeatTimedOut) input() {}
func (RetryTimerFired) input()   {}
func (CloseRequested) input()    {}
func (ShutdownComplete) input()  {}

// Command is an effect requested by Step and carried out by the Controller.
type Command interface {
	command()
}

// Dial starts an opening handshake tagged with Gen.
type Dial struct{ Gen uint64 }

// CancelDial aborts the in-flight dial.
type CancelDial struct{}

// AdoptTransport installs the freshly dialed transport and starts reading.
type AdoptTransport struct{ Gen uint64 }

// DiscardTransport closes a transport produced by a superseded dial.
type DiscardTransport struct{}

// StartHeartbeat starts the keep-alive monitor for connection Gen.
type StartHeartbeat struct{ Gen uint64 }

// StopHeartbeat stops the keep-alive monitor and waits for it.
type StopHeartbeat struct{}

// ScheduleRetry arms the retry timer.
type ScheduleRetry struct {
	Gen   uint64
	Delay time.Duration

	// Attempt is the 1-based number of the retry being scheduled.
	Attempt int
}

// CancelRetry stops the retry timer.
type CancelRetry struct{}

// CloseTransport sends a close frame and arms the grace timer.
type CloseTransport struct {
	Gen    uint64
	Code   int
	Reason string
}

// ReleaseTransport closes the socket and drops the handle.
type ReleaseTransport struct{}

// NotifyState publishes a state transition.
type NotifyState struct {
	From, To State
	Reason   error
}

// NotifyExhausted reports that the retry budget is spent.
type NotifyExhausted struct{ Err error }

// ResolveConnect completes a pending Connect call.
type ResolveConnect struct{ Err error }

// ResolveClose completes all pending Close calls.
type ResolveClose struct{}

func (Dial) command()             {}
func (CancelDial) command()       {}
func (AdoptTransport) command()   {}
func (DiscardTransport) command() {}
func (StartHeartbeat) command()   {}
func (StopHeartbeat) command()    {}
func (ScheduleRetry) command()    {}
func (CancelRetry) command()      {}
func (CloseTransport) command()   {}
func (ReleaseTransport) command() {}
func (NotifyState) command()      {}
func (NotifyExhausted) command()  {}
func (ResolveConnect) command()   {}
func (ResolveClose) command()     {}

var errTransportClosed = errors.New("transport closed")

// Step computes one lifecycle transition. It is pure: the returned commands
// describe every effect and the caller executes them in order.
//
// The error is non-nil only when the input is not valid in the current
// state; the session is then returned unchanged.
func Step(s Session, p ReconnectPolicy, in Input) (Session, []Command, error) {
	switch in := in.(type) {
	case ConnectRequested:
		if s.State != StateDisconnected {
			return s, nil, ErrAlreadyConnected
		}
		next := s
		next.State = StateConnecting
		next.Attempt = 0
		next.Generation++
		next.Dialing = true
		return next, []Command{
			NotifyState{From: s.State, To: StateConnecting},
			Dial{Gen: next.Generation},
		}, nil

	case DialSucceeded:
		if !s.Dialing || in.Gen != s.Generation {
			return s, []Command{DiscardTransport{}}, nil
		}
		next := s
		next.State = StateConnected
		next.Attempt = 0
		next.Dialing = false
		cmds := []Command{
			AdoptTransport{Gen: s.Generation},
			StartHeartbeat{Gen: s.Generation},
			NotifyState{From: s.State, To: StateConnected},
		}
		if s.State == StateConnecting {
			cmds = append(cmds, ResolveConnect{})
		}
		return next, cmds, nil

	case DialFailed:
		if !s.Dialing || in.Gen != s.Generation {
			return s, nil, nil
		}
		cause := connectFailure(in.Err)
		next := s
		next.Dialing = false
		switch s.State {
		case StateConnecting:
			// The initial dial was never a retry; the counter stays put.
			next.State = StateReconnecting
			cmds := []Command{
				NotifyState{From: StateConnecting, To: StateReconnecting, Reason: cause},
				ResolveConnect{Err: cause},
			}
			return retry(next, p, cause, cmds)
		case StateReconnecting:
			next.Attempt++
			return retry(next, p, cause, nil)
		}
		return s, nil, nil

	case TransportLost:
		if in.Gen != s.Generation {
			return s, nil, nil
		}
		reason := in.Err
		if reason == nil {
			reason = errTransportClosed
		}
		switch s.State {
		case StateConnected:
			return lost(s, p, reason)
		case StateClosing:
			return finishClose(s)
		}
		return s, nil, nil

	case HeartbeatTimedOut:
		if in.Gen != s.Generation || s.State != StateConnected {
			return s, nil, nil
		}
		return lost(s, p, ErrHeartbeatTimeout)

	case RetryTimerFired:
		if in.Gen != s.Generation || s.State != StateReconnecting || s.Dialing {
			return s, nil, nil
		}
		next := s
		next.Generation++
		next.Dialing = true
		return next, []Command{Dial{Gen: next.Generation}}, nil

	case CloseRequested:
		switch s.State {
		case StateDisconnected:
			return s, []Command{ResolveClose{}}, nil
		case StateClosing:
			// Already closing; the caller joins the pending close.
			return s, nil, nil
		case StateConnected:
			next := s
			next.State = StateClosing
			return next, []Command{
				StopHeartbeat{},
				NotifyState{From: StateConnected, To: StateClosing},
				CloseTransport{Gen: s.Generation, Code: in.Code, Reason: in.Reason},
			}, nil
		default:
			// Connecting or Reconnecting: nothing to shut down on the wire.
			next := s
			next.State = StateDisconnected
			next.Generation++
			next.Dialing = false
			cmds := []Command{CancelRetry{}}
			if s.Dialing {
				cmds = []Command{CancelDial{}}
			}
			cmds = append(cmds,
				NotifyState{From: s.State, To: StateClosing},
				NotifyState{From: StateClosing, To: StateDisconnected},
			)
			if s.State == StateConnecting {
				cmds = append(cmds, ResolveConnect{Err: ErrClosed})
			}
			cmds = append(cmds, ResolveClose{})
			return next, cmds, nil
		}

	case ShutdownComplete:
		if in.Gen != s.Generation || s.State != StateClosing {
			return s, nil, nil
		}
		return finishClose(s)
	}

	return s, nil, fmt.Errorf("connection: unknown input %T", in)
}

// lost handles the loss of an established connection.
func lost(s Session, p ReconnectPolicy, reason error) (Session, []Command, error) {
	next := s
	next.State = StateReconnecting
	next.Attempt = 0
	cmds := []Command{
		StopHeartbeat{},
		ReleaseTransport{},
		NotifyState{From: StateConnected, To: StateReconnecting, Reason: reason},
	}
	return retry(next, p, reason, cmds)
}

// retry consults the policy for next.Attempt and either schedules the next
// dial or gives up.
func retry(next Session, p ReconnectPolicy, cause error, cmds []Command) (Session, []Command, error) {
	dec := p.NextDelay(next.Attempt)
	if dec.GiveUp {
		err := fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, next.Attempt, cause)
		from := next.State
		next.State = StateDisconnected
		next.Generation++
		cmds = append(cmds,
			NotifyState{From: from, To: StateDisconnected, Reason: err},
			NotifyExhausted{Err: err},
		)
		return next, cmds, nil
	}

	next.Generation++
	cmds = append(cmds, ScheduleRetry{
		Gen:     next.Generation,
		Delay:   dec.Delay,
		Attempt: next.Attempt + 1,
	})
	return next, cmds, nil
}

// finishClose completes the closing handshake.
func finishClose(s Session) (Session, []Command, error) {
	next := s
	next.State = StateDisconnected
	next.Generation++
	return next, []Command{
		ReleaseTransport{},
		NotifyState{From: StateClosing, To: StateDisconnected},
		ResolveClose{},
	}, nil
}

func connectFailure(err error) error {
	if err == nil {
		return ErrConnectFailed
	}
	if errors.Is(err, ErrConnectFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConnectFailed, err)
}
