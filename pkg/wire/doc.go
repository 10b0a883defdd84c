// Package wire defines the message envelope and the dual-format codec used on
// the WebSocket connection.
//
// Every application message is a map with a string "type" discriminator and
// arbitrary additional fields:
//
//	{"type": "response", "format": "JSON", "content": "Hello from server (JSON)!"}
//
// The same envelope is carried either as UTF-8 JSON in a text frame or as a
// CBOR (RFC 8949) map with text keys in a binary frame.
//
// # Format Detection
//
// Senders do not declare the format. Decode sniffs it by trial decoding in a
// fixed order:
//
//  1. JSON
//  2. CBOR
//  3. otherwise the payload is rejected as ErrUnsupportedFormat and the raw
//     bytes are returned inside a *DecodeError
//
// Some byte strings are valid under both grammars (for example the single
// byte "7" is a JSON number and the CBOR integer -24). Such input is always
// classified as JSON. Peers that need deterministic classification must only
// ever emit one format.
//
// # Numbers
//
// Decoded numbers are normalized in both formats: integers become int64 and
// all other numbers float64. Nested maps decode as map[string]any and arrays
// as []any.
package wire
