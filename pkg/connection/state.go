package connection

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection and no retry pending.
	StateDisconnected State = iota

	// StateConnecting indicates the initial dial is in progress.
	StateConnecting

	// StateConnected indicates an established connection.
	StateConnected

	// StateReconnecting indicates a retry is scheduled or being dialed.
	StateReconnecting

	// StateClosing indicates a close was requested and the transport is
	// shutting down.
	StateClosing
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}
