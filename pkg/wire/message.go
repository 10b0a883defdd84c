package wire

// Message types observed on the reference protocol.
const (
	// TypeGreeting is sent by a client after connecting.
	TypeGreeting = "greeting"

	// TypeResponse acknowledges a greeting. Carries "format" and "content".
	TypeResponse = "response"

	// TypeServerMessage is an unsolicited periodic payload from the server.
	TypeServerMessage = "server_message"
)

// Envelope keys.
const (
	KeyType    = "type"
	KeyFormat  = "format"
	KeyContent = "content"
)

// Message is an application-level payload.
//
// Type is the "type" discriminator. Fields holds every other envelope key.
// Format records the encoding the message was decoded from, or the encoding
// it is meant to be sent in.
type Message struct {
	Type   string
	Fields map[string]any
	Format Format
}

// NewMessage creates a message of the given type. fields may be nil.
func NewMessage(msgType string, fields map[string]any) Message {
	return Message{Type: msgType, Fields: fields}
}

// Field returns the value stored under key, or nil.
func (m Message) Field(key string) any {
	if m.Fields == nil {
		return nil
	}
	return m.Fields[key]
}

// String returns the string stored under key.
func (m Message) String(key string) (string, bool) {
	s, ok := m.Field(key).(string)
	return s, ok
}

// Content returns the "content" field, or "" when absent.
func (m Message) Content() string {
	s, _ := m.String(KeyContent)
	return s
}

// envelope flattens the message into its wire map. Type always wins over a
// "type" entry in Fields.
func (m Message) envelope() map[string]any {
	env := make(map[string]any, len(m.Fields)+1)
	for k, v := range m.Fields {
		env[k] = v
	}
	env[KeyType] = m.Type
	return env
}
