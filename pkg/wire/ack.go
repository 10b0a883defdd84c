package wire

import "fmt"

// Acknowledge builds the canned response to a greeting. The response uses
// the same format as the greeting so that a JSON greeting is answered in
// JSON and a CBOR greeting in CBOR.
//
// ok is false if msg is not a greeting or carries no usable format.
func Acknowledge(msg Message, sender string) (resp Message, ok bool) {
	if msg.Type != TypeGreeting || !msg.Format.IsValid() {
		return Message{}, false
	}
	return Message{
		Type: TypeResponse,
		Fields: map[string]any{
			KeyFormat:  msg.Format.String(),
			KeyContent: fmt.Sprintf("Hello from %s (%s)!", sender, msg.Format),
		},
		Format: msg.Format,
	}, true
}

// Greeting builds a greeting in the given format with optional content.
func Greeting(format Format, content string) Message {
	msg := Message{Type: TypeGreeting, Format: format}
	if content != "" {
		msg.Fields = map[string]any{KeyContent: content}
	}
	return msg
}
