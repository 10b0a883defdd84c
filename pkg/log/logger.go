package log

// Logger receives protocol capture events from a connection.Controller.
//
// Log is called from the controller's reader, writer and actor goroutines,
// so implementations must be safe for concurrent use and should not block.
type Logger interface {
	Log(event Event)
}

// NoopLogger drops every event. The controller uses it when no
// ProtocolLogger is configured.
type NoopLogger struct{}

// Log drops the event.
func (NoopLogger) Log(Event) {}

var _ Logger = NoopLogger{}
