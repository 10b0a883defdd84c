package connection

import "errors"

// Connection errors.
var (
	// ErrConnectFailed wraps the cause of a failed dial or handshake.
	ErrConnectFailed = errors.New("connect failed")

	// ErrHeartbeatTimeout is the loss reason when no pong arrived in time.
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")

	// ErrNotConnected is returned by Send outside the Connected state.
	ErrNotConnected = errors.New("not connected")

	// ErrReconnectExhausted is reported when the retry budget is spent.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	// ErrAlreadyConnected is returned by Connect outside the Disconnected state.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrClosed is returned to a pending Connect when Close interrupts it.
	ErrClosed = errors.New("connection closed")

	// ErrHandlerPanic is reported when a message handler panics.
	ErrHandlerPanic = errors.New("message handler panicked")
)
