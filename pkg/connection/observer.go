package connection

import (
	"time"

	"github.com/wstoolkit/wstoolkit-go/pkg/wire"
)

// Observer receives lifecycle and traffic notifications, typically to feed
// metrics. Implementations must be safe for concurrent use and return
// quickly; they are called from the controller's goroutines.
type Observer interface {
	StateChanged(from, to State)
	ReconnectScheduled(attempt int, delay time.Duration)
	ReconnectExhausted()
	MessageSent(format wire.Format, size int)
	MessageReceived(format wire.Format, size int)
	DecodeFailed(err error)
	PongReceived(rtt time.Duration)
	HeartbeatTimedOut()
}

// NoopObserver ignores all notifications.
type NoopObserver struct{}

func (NoopObserver) StateChanged(State, State)             {}
func (NoopObserver) ReconnectScheduled(int, time.Duration) {}
func (NoopObserver) ReconnectExhausted()                   {}
func (NoopObserver) MessageSent(wire.Format, int)          {}
func (NoopObserver) MessageReceived(wire.Format, int)      {}
func (NoopObserver) DecodeFailed(error)                    {}
func (NoopObserver) PongReceived(time.Duration)            {}
func (NoopObserver) HeartbeatTimedOut()                    {}

var _ Observer = NoopObserver{}
