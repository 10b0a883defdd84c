package wire

import (
	"errors"
	"fmt"
)

// Codec errors.
var (
	// ErrUnsupportedFormat is returned when a payload is neither JSON nor CBOR.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrInvalidEnvelope is returned when a payload parses but is not a map
	// with a string "type" field.
	ErrInvalidEnvelope = errors.New("invalid message envelope")

	// ErrUnknownType is reported for well-formed messages whose type has no
	// registered handler.
	ErrUnknownType = errors.New("unknown message type")
)

// DecodeError describes a payload that could not be turned into a Message.
// The raw bytes are kept so callers can inspect or forward them.
type DecodeError struct {
	// Raw is the undecodable payload.
	Raw []byte

	// Detected is the grammar the bytes matched, if any.
	Detected Format

	// Type is set when the envelope decoded but its type is unknown.
	Type string

	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *DecodeError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("wire: %s message %q: %v", e.Detected, e.Type, e.Err)
	}
	return fmt.Sprintf("wire: decode %d bytes (detected %s): %v", len(e.Raw), e.Detected, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
